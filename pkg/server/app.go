package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "LagScope/internal/domain/repository"
	"LagScope/pkg/config"
	xhttp "LagScope/pkg/http"
	pkgkafka "LagScope/pkg/kafka"
	applogger "LagScope/pkg/logger"
)

// App encapsulates the application lifecycle: the HTTP API, the optional
// point ingestion consumer and the archive schema.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	points     pkgkafka.MessageHandler
	store      domrepo.PointStore
}

// New creates the application. consumer, points and store may be nil when
// Kafka or ClickHouse are disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	points pkgkafka.MessageHandler,
	store domrepo.PointStore,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		consumer:   consumer,
		points:     points,
		store:      store,
	}
}

// Run starts every component and blocks until ctx is cancelled or an
// interrupt arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.store != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.store.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("init point store: %w", err)
		}
		a.log.Info("point archive ready", applogger.String("database", a.cfg.ClickHouse.Database))
	}

	if a.consumer != nil && a.points != nil {
		a.consumer.RegisterHandler(a.points)
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.points.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops the HTTP server first so no request outlives the
// consumer. Clients are closed by the DI cleanup.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.log.Info("shutdown complete")
	return firstErr
}
