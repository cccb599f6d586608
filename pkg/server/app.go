package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"Nowcast/internal/handler/api"
	"Nowcast/internal/usecase"
	"Nowcast/pkg/config"
	xhttp "Nowcast/pkg/http"
	applogger "Nowcast/pkg/logger"
	"Nowcast/pkg/metrics"
)

// App encapsulates one backtest invocation and its optional HTTP surface.
type App struct {
	cfg        *config.Config
	runner     *usecase.BacktestRunner
	progress   *usecase.Progress
	recorder   *metrics.Recorder
	l          *applogger.Logger
	out        io.Writer
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	runner *usecase.BacktestRunner,
	progress *usecase.Progress,
	recorder *metrics.Recorder,
	l *applogger.Logger,
) *App {
	return &App{
		cfg:      cfg,
		runner:   runner,
		progress: progress,
		recorder: recorder,
		l:        l,
		out:      io.Discard,
	}
}

// SetOutput sets where reports are printed.
func (a *App) SetOutput(w io.Writer) { a.out = w }

// Run executes the backtest and prints the accuracy summary. With http.hold the
// status and metrics endpoints stay up until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.HTTP.Enabled {
		if err := a.startHTTP(); err != nil {
			return err
		}
		defer a.stopHTTP(ctx)
	}

	rep, err := a.runner.Run(ctx)
	a.flushDigest(ctx)
	if err != nil {
		a.l.Error("backtest failed", applogger.Error(err))
		return err
	}

	fmt.Fprintf(a.out, "run %s: %d folds, %d absent pooled points\n", rep.RunID, rep.Folds, rep.Absent)
	if err := usecase.WriteSummary(a.out, rep.Summary()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if a.httpServer != nil && a.cfg.HTTP.Hold {
		a.l.Info("backtest done, serving until interrupted", applogger.String("addr", a.httpServer.Addr()))
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()
		a.l.Info("shutdown signal received")
	}
	return nil
}

// Missing prints the cache keys the configured run would still have to compute.
func (a *App) Missing(ctx context.Context) error {
	keys, err := a.runner.Missing(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(a.out, k.String())
	}
	a.l.Info("missing cache keys", applogger.String("run_id", a.runner.RunID()), applogger.Int("count", len(keys)))
	return nil
}

func (a *App) startHTTP() error {
	h := api.NewStatusEchoHandler(a.l, a.progress)
	a.httpServer = xhttp.NewServer(h,
		xhttp.WithHost(a.cfg.HTTP.Host),
		xhttp.WithPort(a.cfg.HTTP.Port),
		xhttp.WithTimeouts(a.cfg.HTTP.ReadTimeout, a.cfg.HTTP.WriteTimeout, a.cfg.HTTP.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.HTTP.MetricsPath, a.recorder.Handler(), a.recorder.Registry()),
		xhttp.WithLogger(a.l),
	)
	return a.httpServer.Start()
}

func (a *App) stopHTTP(ctx context.Context) {
	if err := a.httpServer.Stop(context.WithoutCancel(ctx)); err != nil {
		a.l.Warn("http shutdown error", applogger.Error(err))
	}
}

// flushDigest logs the most frequent warnings of the run and publishes the digest.
func (a *App) flushDigest(ctx context.Context) {
	c := a.l.Collector()
	if c == nil {
		return
	}
	digest := c.Summary()
	for i, e := range digest {
		if i == 10 {
			break
		}
		a.l.Info("warning digest",
			applogger.String("message", e.Message),
			applogger.Int("count", e.Count),
			applogger.Any("fields", e.Fields))
	}
	if err := c.Flush(context.WithoutCancel(ctx)); err != nil {
		a.l.Warn("warning digest publish failed", applogger.Error(err))
	}
}
