package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests       *prometheus.CounterVec
	renewals       *prometheus.CounterVec
	sessionExpired prometheus.Counter
}

// NewMetrics registers the gateway collectors. A nil registerer yields nil,
// and a nil *Metrics records nothing.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pamana",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP requests sent by the gateway, including replays.",
		}, []string{"method", "code"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pamana",
			Subsystem: "gateway",
			Name:      "renewals_total",
			Help:      "Access credential renewal attempts by result.",
		}, []string{"result"}),
		sessionExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pamana",
			Subsystem: "gateway",
			Name:      "session_expired_total",
			Help:      "Requests that ended with a forced logout.",
		}),
	}
	reg.MustRegister(m.requests, m.renewals, m.sessionExpired)
	return m
}

func (m *Metrics) observeRequest(method string, status int) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) observeRenewal(result string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(result).Inc()
}

func (m *Metrics) observeSessionExpired() {
	if m == nil {
		return
	}
	m.sessionExpired.Inc()
}
