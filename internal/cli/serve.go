package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/thingdir/internal/bridge"
	"github.com/roach88/thingdir/internal/config"
	"github.com/roach88/thingdir/internal/directory"
	"github.com/roach88/thingdir/internal/events"
	"github.com/roach88/thingdir/internal/httpapi"
	"github.com/roach88/thingdir/internal/schema"
	"github.com/roach88/thingdir/internal/store"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command. Non-empty flags override
// the configuration file.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Addr       string
	Database   string
	NATSURL    string

	// Ready, when set, receives the listener address once the server
	// accepts connections.
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the directory HTTP server",
		Long: `Run the Thing Description directory.

Serves the things API, the event streams under /events, SPARQL search under
/search/sparql, Prometheus metrics under /metrics and /healthz.

Example:
  thingdir serve --config thingdir.yaml
  thingdir serve --addr :8081 --db ./data/thingdir.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML configuration")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")
	cmd.Flags().StringVar(&opts.NATSURL, "nats-url", "", "forward events to NATS (overrides bridge.nats.url)")

	return cmd
}

// loadConfig reads the configuration file, if any, and applies flag
// overrides.
func (o *ServeOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Addr != "" {
		cfg.Server.Addr = o.Addr
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	if o.NATSURL != "" {
		cfg.Bridge.NATS.URL = o.NATSURL
	}
	return cfg, cfg.Validate()
}

// app holds the components of a running server.
type app struct {
	store   *store.Store
	svc     *directory.Service
	nats    *bridge.Conn
	handler http.Handler
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.Open(ctx, cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a := &app{store: st, logger: logger}

	bopts := []events.BroadcasterOption{events.WithBroadcasterLogger(logger)}
	if cfg.Bridge.NATS.URL != "" {
		nc, err := bridge.Connect(cfg.Bridge.NATS.URL, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.nats = nc
		bopts = append(bopts, events.WithSink(bridge.New(nc, cfg.Bridge.NATS.SubjectPrefix, bridge.WithLogger(logger))))
		logger.Info("forwarding events to NATS", "url", cfg.Bridge.NATS.URL, "prefix", cfg.Bridge.NATS.SubjectPrefix)
	}
	b := events.NewBroadcaster(
		events.NewLog(events.WithRetention(cfg.Events.Retention)),
		events.NewMux(events.WithReaderBuffer(cfg.Events.ReaderBuffer), events.WithMuxLogger(logger)),
		bopts...,
	)

	sopts := []directory.Option{directory.WithLogger(logger), directory.WithBroadcaster(b)}
	if cfg.Validation.Enabled {
		v, err := schema.New()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("compile schema: %w", err)
		}
		sopts = append(sopts, directory.WithValidator(v))
	}
	a.svc = directory.New(st, sopts...)
	a.handler = httpapi.New(a.svc,
		httpapi.WithLogger(logger),
		httpapi.WithHeartbeat(cfg.Server.Heartbeat),
	).Handler()
	return a, nil
}

func (a *app) close() {
	if a.svc != nil {
		a.svc.Close()
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.logger.Error("error closing NATS connection", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	slog.SetDefault(logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.close()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	logger.Info("directory listening", "addr", addr, "db", cfg.Store.Path, "things", a.store.Count())
	fmt.Fprintf(cmd.OutOrStdout(), "thingdir listening on %s\n", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case err := <-serveErr:
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// Event streams never finish on their own; end them before draining.
	a.svc.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	logger.Info("server stopped")
	return nil
}
