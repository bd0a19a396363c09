package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/avelis/readthis/internal/api"
	"github.com/avelis/readthis/internal/config"
	"github.com/avelis/readthis/internal/notify"
	"github.com/avelis/readthis/internal/page"
	"github.com/avelis/readthis/internal/queue"
	"github.com/avelis/readthis/internal/reconcile"
	"github.com/avelis/readthis/internal/remote"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the readthis daemon (foreground)",
	Long: `Run the readthis daemon. It exposes the capture and list API on
loopback, drains the intent queue on an interval and whenever a capture
surface signals, and streams change events to connected clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateRemote(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	token, err := config.EnsureServerToken(&cfg)
	if err != nil {
		return err
	}

	// Refuse to start a second daemon on the same port.
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		return fmt.Errorf("daemon already running on port %d", cfg.Server.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			logger.Warn("closing queue", "error", err)
		}
	}()

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Token, cfg.Remote.UserID, cfg.CallTimeout())
	rec := &reconcile.Reconciler{Store: client, CallTimeout: cfg.CallTimeout(), Logger: logger}
	pager := &page.Pager{Store: remote.WithRetry(client), Limit: cfg.Sync.PageSize}
	notifier := notify.New()

	handler := api.NewHandler(api.Deps{
		Queue:      q,
		Reconciler: rec,
		Pager:      pager,
		Notifier:   notifier,
		Token:      token,
		FullBudget: cfg.DrainBudget(),
		Logger:     logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("readthis daemon listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return drainLoop(gctx, cfg, q, rec, notifier, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drainLoop is the correctness backstop: a full drain on start, on every
// interval tick, and whenever any local process signals the links scope.
func drainLoop(ctx context.Context, cfg config.Config, q *queue.Queue, rec *reconcile.Reconciler, notifier *notify.Notifier, logger *slog.Logger) error {
	events, cancel := notifier.Subscribe(api.ScopeLinks)
	defer cancel()

	ticker := time.NewTicker(cfg.SyncInterval())
	defer ticker.Stop()

	drain := func() {
		res := rec.Drain(ctx, q, cfg.DrainBudget())
		if len(res.Applied) > 0 || len(res.Failed) > 0 || res.TimedOut {
			logger.Info("drain finished",
				"applied", len(res.Applied),
				"failed", len(res.Failed),
				"timed_out", res.TimedOut,
			)
		}
		if len(res.Applied) > 0 {
			// Wake websocket subscribers; the loop's own extra pass after
			// this signal applies nothing and goes quiet.
			notifier.Signal(api.ScopeLinks)
		}
	}

	drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			drain()
		case <-events:
			drain()
		}
	}
}
