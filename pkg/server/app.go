package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TradeFloor/internal/egress"
	"TradeFloor/internal/orchestrator"
	"TradeFloor/pkg/config"
	xhttp "TradeFloor/pkg/http"
	applogger "TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

// App encapsulates the entire application lifecycle: the signal pipeline,
// the monitoring HTTP surface, and their shutdown ordering.
type App struct {
	cfg        *config.Config
	orc        *orchestrator.Orchestrator
	broker     substrate.MessageBroker
	ts         substrate.TimeSeriesStore
	publisher  egress.Publisher
	httpServer *xhttp.Server
	handler    xhttp.Handler
	lgr        *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	orc *orchestrator.Orchestrator,
	broker substrate.MessageBroker,
	ts substrate.TimeSeriesStore,
	publisher egress.Publisher,
	handler xhttp.Handler,
	lgr *applogger.Logger,
) *App {
	return &App{
		cfg:       cfg,
		orc:       orc,
		broker:    broker,
		ts:        ts,
		publisher: publisher,
		handler:   handler,
		lgr:       lgr,
	}
}

// Run starts the pipeline and the HTTP server, then blocks until
// interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.orc.Start(ctx)

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.lgr.Error("http server start error", applogger.Error(err))
		return err
	}
	a.lgr.Info("started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("environment", a.cfg.Environment),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.lgr.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown drains the pipeline first so no unit publishes into a closed
// substrate, then stops the HTTP surface and infrastructure clients.
func (a *App) shutdown(ctx context.Context) error {
	a.orc.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.lgr.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.lgr.Warn("egress close error", applogger.Error(err))
		}
	}
	if err := a.ts.Close(); err != nil {
		a.lgr.Warn("time series close error", applogger.Error(err))
	}
	if err := a.broker.Close(); err != nil {
		a.lgr.Warn("broker close error", applogger.Error(err))
	}

	a.lgr.Info("shutdown complete")
	return nil
}
