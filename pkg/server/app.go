package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinRange/internal/usecase"
	"FinRange/pkg/config"
	xhttp "FinRange/pkg/http"
	pkgkafka "FinRange/pkg/kafka"
	applogger "FinRange/pkg/logger"
)

// Closer releases one infrastructure client on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	scheduler  *usecase.Scheduler
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	closers    []Closer
}

// New creates a new App. consumer may be nil when settlement ingestion is off.
// Closers run in reverse order on shutdown.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	scheduler *usecase.Scheduler,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	closers ...Closer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		scheduler:  scheduler,
		httpServer: httpServer,
		consumer:   consumer,
		closers:    closers,
	}
}

// Scheduler exposes the jobs for one-shot CLI runs.
func (a *App) Scheduler() *usecase.Scheduler { return a.scheduler }

// Run starts the HTTP server, the scheduler and the settlement consumer, and
// blocks until ctx is done or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.cfg.Scheduler.Enabled {
		a.scheduler.Start(ctx)
		a.log.Info("scheduler started",
			applogger.Duration("interval_ms", a.cfg.Scheduler.CheckInterval),
			applogger.String("model", a.cfg.Scheduler.Model),
		)
	}

	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Shutdown stops the services, then closes infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

// Close releases infrastructure clients without touching running services.
func (a *App) Close() error {
	// flush aggregated errors while the producer is still open
	a.log.RemoveCollector()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("client", c.Name), applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
