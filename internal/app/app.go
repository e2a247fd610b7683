package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ytget/tg-downloader/internal/config"
	"github.com/ytget/tg-downloader/internal/dispatch"
	"github.com/ytget/tg-downloader/internal/download"
	"github.com/ytget/tg-downloader/internal/logging"
	"github.com/ytget/tg-downloader/internal/metrics"
	"github.com/ytget/tg-downloader/internal/progress"
	"github.com/ytget/tg-downloader/internal/queue"
	"github.com/ytget/tg-downloader/internal/session"
	"github.com/ytget/tg-downloader/internal/telegram"
	"github.com/ytget/tg-downloader/internal/worker"
)

// Run wires every component and blocks until SIGINT/SIGTERM or a fatal
// component error. All in-memory state (queue, sessions) is discarded on
// return.
func Run(ctx context.Context, cfg *config.Settings) error {
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	transport, err := telegram.NewTransport(cfg.BotToken, cfg.MaxUploadSizeBytes, log)
	if err != nil {
		return err
	}

	q := queue.New()
	sessions := session.NewStore(cfg.SelectionTTL)
	downloader := download.NewService(log)

	reporter := progress.NewReporter(transport, cfg.ProgressMinInterval, cfg.ProgressStallInterval, log)
	reporter.SetEmitHook(func() { m.ProgressEdits.Inc() })

	dispatcher := dispatch.NewDispatcher(downloader, sessions, q, transport, cfg.PlaylistPageSize, log, m)
	transport.Bind(dispatcher)

	loop := worker.NewLoop(q, downloader, transport, transport, reporter, cfg.DownloadRoot, log, m)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return transport.Run(ctx)
	})

	g.Go(func() error {
		return loop.Run(ctx)
	})

	g.Go(func() error {
		return sweepSessions(ctx, sessions, m, cfg.SessionSweepInterval, log)
	})

	g.Go(func() error {
		return serveMetrics(ctx, cfg.MetricsListenAddr, m, log)
	})

	log.Info("service started",
		zap.String("download_root", cfg.DownloadRoot),
		zap.Duration("selection_ttl", cfg.SelectionTTL),
		zap.String("metrics_addr", cfg.MetricsListenAddr))

	err = g.Wait()
	q.Close()
	log.Info("service stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sweepSessions periodically evicts expired selection sessions. Correctness
// does not depend on this; lazy TTL checks on access already reject expired
// sessions.
func sweepSessions(ctx context.Context, store *session.Store, m *metrics.Metrics, interval time.Duration, log *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if removed := store.ExpireSweep(now); removed > 0 {
				m.SessionsExpired.Add(float64(removed))
				log.Debug("expired sessions swept", zap.Int("removed", removed))
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		log.Error("metrics listener failed", zap.String("addr", addr), zap.Error(err))
		return err
	}
}
