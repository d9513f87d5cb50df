package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"pamana/notes/internal/config"
	"pamana/notes/internal/credentials"
	"pamana/notes/internal/gateway"
	"pamana/notes/internal/logging"
	"pamana/notes/internal/model"
	"pamana/notes/internal/session"
)

// app holds what every command needs. It is built once the flags are
// parsed.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   credentials.Store
	closer  func() error
	gw      *gateway.Gateway
	session *session.Oracle
	out     io.Writer
	errOut  io.Writer

	registry    *prometheus.Registry
	showMetrics bool
}

// loadingDelay is how long a fetch may run before the loading line shows.
const loadingDelay = 150 * time.Millisecond

func rootCmd() *cobra.Command {
	var (
		apiURL   string
		logLevel string
		profile  string
	)
	a := &app{out: os.Stdout, errOut: os.Stderr}

	cmd := &cobra.Command{
		Use:           "pamana",
		Short:         "Campus note sharing from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return errors.Wrap(err, "load .env")
			}
			cfg := config.Load()
			if apiURL != "" {
				cfg.APIURL = apiURL
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if profile != "" {
				cfg.Profile = profile
			}
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			return a.init(cmd.Context(), cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.showMetrics {
				if err := a.dumpMetrics(); err != nil {
					return err
				}
			}
			if a.closer != nil {
				return a.closer()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&apiURL, "api", "", "Backend base URL (default $PAMANA_API_URL)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "Credential profile for the redis store")
	cmd.PersistentFlags().BoolVar(&a.showMetrics, "metrics", false, "Print gateway counters to stderr when the command ends")

	cmd.AddCommand(
		loginCmd(a), logoutCmd(a), whoamiCmd(a),
		queueCmd(a), approveCmd(a), rejectCmd(a), moderatedCmd(a),
		subjectsCmd(a), uploadCmd(a), resubmitCmd(a), myNotesCmd(a), deleteNoteCmd(a),
		saveCmd(a), savedCmd(a), likeNoteCmd(a), publicCmd(a), dashboardCmd(a),
		commentsCmd(a), commentNoteCmd(a), watchCmd(a),
		wallCmd(a), postCmd(a), commentCmd(a), replyCmd(a), likeCmd(a), reportCmd(a), deleteCmd(a),
		scopesCmd(a),
	)
	return cmd
}

func (a *app) init(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	store, closer, err := credentials.Open(ctx, cfg, a.logger)
	if err != nil {
		return err
	}
	a.store = store
	a.closer = closer
	a.session = session.New(store)

	a.registry = prometheus.NewRegistry()
	opts := []gateway.Option{
		gateway.WithLogger(a.logger),
		gateway.WithMetrics(gateway.NewMetrics(a.registry)),
	}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, gateway.WithHTTPClient(newHTTPClient(cfg.HTTPTimeout)))
	}
	a.gw = gateway.New(cfg.APIURL, store, opts...)
	return nil
}

// dumpMetrics writes what the gateway counted during this command in the
// Prometheus text format.
func (a *app) dumpMetrics() error {
	if a.registry == nil {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(a.errOut, mf); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}

// await runs fetch and prints a loading line on stderr once busy reports a
// fetch still in flight after loadingDelay.
func (a *app) await(busy func() bool, fetch func() error) error {
	errc := make(chan error, 1)
	go func() { errc <- fetch() }()

	ticker := time.NewTicker(loadingDelay)
	defer ticker.Stop()
	shown := false
	for {
		select {
		case err := <-errc:
			return err
		case <-ticker.C:
			if !shown && busy() {
				fmt.Fprintln(a.errOut, "loading…")
				shown = true
			}
		}
	}
}

// author is the signed-in user as shown on posts and comments.
func (a *app) author(ctx context.Context) (model.Author, error) {
	id, ok := a.session.SchoolID(ctx)
	if !ok {
		return model.Author{}, gateway.ErrSessionExpired
	}
	return model.Author{SchoolID: id}, nil
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
