// Package bootstrap is the start-up and tear-down path shared by every binary
// under cmd/.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/db"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
	"github.com/angelmondragon/teamprint-backend/pkg/migrate"
	"github.com/angelmondragon/teamprint-backend/pkg/pubsub"
	"github.com/angelmondragon/teamprint-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

type closer struct {
	name string
	fn   func() error
}

// Process carries the config, logger and open clients of one binary.
type Process struct {
	Name    string
	Config  *config.Config
	Logger  *logger.Logger
	closers []closer
}

// Start loads .env and the environment config and builds the service logger.
func Start(name string) (*Process, error) {
	boot := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), "bootstrap.dotenv_missing")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "bootstrap.config_failed", err)
		return nil, err
	}
	cfg.Service.Kind = name
	return New(name, cfg), nil
}

// New wraps an already loaded config.
func New(name string, cfg *config.Config) *Process {
	return &Process{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
}

// Context is cancelled on SIGINT or SIGTERM and carries env and service
// fields for logging.
func (p *Process) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Name,
	})
	return ctx, stop
}

// OnClose registers fn to run, in reverse order, from Close.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close releases everything registered with OnClose and returns every error.
func (p *Process) Close() error {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			p.Logger.Error(p.Logger.WithField(context.Background(), "resource", c.name), "bootstrap.close_failed", err)
			errs = multierr.Append(errs, err)
		}
	}
	p.closers = nil
	return errs
}

// Exit logs err, closes resources and terminates the process.
func (p *Process) Exit(ctx context.Context, err error) {
	p.Logger.Error(ctx, p.Name+".failed", err)
	_ = p.Close()
	os.Exit(1)
}

// OpenDB connects to the database and, in dev with auto-migrate on, applies
// pending migrations.
func (p *Process) OpenDB(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		return nil, err
	}
	p.OnClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, p.Config, p.Logger, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (p *Process) OpenRedis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, err
	}
	p.OnClose("redis", client.Close)
	return client, nil
}

func (p *Process) OpenPubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, p.Logger)
	if err != nil {
		return nil, err
	}
	p.OnClose("pubsub", client.Close)
	return client, nil
}

// ServeMetrics exposes reg on TEAMPRINT_METRICS_PORT until ctx ends. It is a
// no-op when no port is configured.
func (p *Process) ServeMetrics(ctx context.Context, reg *prometheus.Registry) {
	port := p.Config.App.MetricsPort
	if port == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.Logger.Error(ctx, "bootstrap.metrics_server_failed", err)
		}
	}()
	p.OnClose("metrics server", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func (p *Process) Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		p.Logger.Info(p.Logger.WithField(ctx, "addr", srv.Addr), p.Name+".listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
