// Package gateway sends authenticated requests to the notes backend and
// keeps the access credential valid behind the caller's back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"pamana/notes/internal/credentials"
	"pamana/notes/internal/logging"
	"pamana/notes/internal/model"
)

const (
	TokenPath   = "/accounts/api/auth/token/"
	RefreshPath = "/accounts/api/auth/token/refresh/"
)

// renewalTimeout bounds a coalesced renewal, which outlives the caller that
// started it.
const renewalTimeout = 30 * time.Second

// Doer is what the workflow engines need from the gateway.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out interface{}) error
	Send(ctx context.Context, req Request) (*Response, error)
}

// Renewer exchanges a refresh credential for a new access credential. A
// rotated refresh credential may come back with it.
type Renewer interface {
	Renew(ctx context.Context, refresh string) (model.Credential, error)
}

type Request struct {
	Method string
	Path   string
	// JSON is encoded as the request body when Raw is nil.
	JSON        interface{}
	Raw         []byte
	ContentType string
	Header      http.Header
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode treats an empty body as the empty value and leaves out untouched.
func (r *Response) Decode(out interface{}) error {
	if out == nil || r == nil || len(bytes.TrimSpace(r.Body)) == 0 || r.Status == http.StatusNoContent {
		return nil
	}
	return errors.Wrap(json.Unmarshal(r.Body, out), "decode response")
}

type Gateway struct {
	baseURL  string
	store    credentials.Store
	client   *http.Client
	logger   *slog.Logger
	metrics  *Metrics
	renewer  Renewer
	coalesce bool
	group    singleflight.Group
}

var _ Doer = (*Gateway)(nil)

type Option func(*Gateway)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logging.OrDefault(logger) }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithRenewer(r Renewer) Option {
	return func(g *Gateway) {
		if r != nil {
			g.renewer = r
		}
	}
}

// WithCoalescedRenewal controls whether concurrent 401s share one renewal
// round trip. Either way a single request renews at most once.
func WithCoalescedRenewal(enabled bool) Option {
	return func(g *Gateway) { g.coalesce = enabled }
}

func New(baseURL string, store credentials.Store, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		store:    store,
		client:   &http.Client{},
		logger:   slog.Default(),
		coalesce: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.renewer == nil {
		g.renewer = &httpRenewer{gw: g}
	}
	return g
}

func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Do is Send with a JSON body and a JSON result.
func (g *Gateway) Do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := g.Send(ctx, Request{Method: method, Path: path, JSON: body})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (g *Gateway) Send(ctx context.Context, req Request) (*Response, error) {
	payload, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}
	cred, _, err := g.store.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load credentials")
	}

	resp, err := g.roundTrip(ctx, req, payload, contentType, cred.Access)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusUnauthorized {
		access, err := g.renew(ctx, cred, true)
		if err != nil {
			return nil, err
		}
		// replay exactly once, after the renewal result is in
		resp, err = g.roundTrip(ctx, req, payload, contentType, access)
		if err != nil {
			return nil, err
		}
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, newAPIError(resp.Status, resp.Body)
	}
	return resp, nil
}

func (g *Gateway) roundTrip(ctx context.Context, req Request, payload []byte, contentType, access string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, g.baseURL+req.Path, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		g.metrics.observeRequest(req.Method, 0)
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.Path)
	}
	defer httpResp.Body.Close()
	g.metrics.observeRequest(req.Method, httpResp.StatusCode)

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// renew runs one renewal for the request that saw the 401 and returns the
// access credential to replay with. When coalescing, the shared call runs
// detached from any single caller so one cancellation does not fail the
// requests waiting on it; each caller still stops waiting on its own ctx.
func (g *Gateway) renew(ctx context.Context, sent model.Credential, reuse bool) (string, error) {
	if !g.coalesce {
		return g.renewOnce(ctx, sent, false)
	}
	ch := g.group.DoChan(sent.Refresh, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), renewalTimeout)
		defer cancel()
		return g.renewOnce(shared, sent, reuse)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Gateway) renewOnce(ctx context.Context, sent model.Credential, reuse bool) (string, error) {
	if reuse {
		// Someone else renewed while this request was in flight.
		if current, ok, err := g.store.Get(ctx); err == nil && ok && current.Access != "" && current.Access != sent.Access {
			g.logger.Debug("reusing credential renewed by another request")
			return current.Access, nil
		}
	}
	if sent.Refresh == "" {
		return "", g.expire(ctx, errors.New("no refresh credential"))
	}

	g.logger.Debug("renewing access credential")
	renewed, err := g.renewer.Renew(ctx, sent.Refresh)
	if err != nil {
		g.metrics.observeRenewal("failure")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", g.expire(ctx, err)
	}
	if renewed.Access == "" {
		g.metrics.observeRenewal("failure")
		return "", g.expire(ctx, errors.New("renewal returned no access credential"))
	}
	if err := g.store.Set(ctx, renewed); err != nil {
		return "", errors.Wrap(err, "store renewed credentials")
	}
	g.metrics.observeRenewal("success")
	g.logger.Debug("access credential renewed", "rotated_refresh", renewed.Refresh != "")
	return renewed.Access, nil
}

func (g *Gateway) expire(ctx context.Context, cause error) error {
	g.metrics.observeSessionExpired()
	g.logger.Warn("session expired", "cause", cause)
	if err := g.store.Clear(ctx); err != nil {
		g.logger.Error("clear credentials failed", "error", err)
	}
	return ErrSessionExpired
}

func encodeBody(req Request) ([]byte, string, error) {
	if req.Raw != nil {
		return req.Raw, req.ContentType, nil
	}
	if req.JSON == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(req.JSON)
	if err != nil {
		return nil, "", errors.Wrap(err, "encode request")
	}
	return data, "application/json", nil
}
