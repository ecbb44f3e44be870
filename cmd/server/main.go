package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/heartline/matchqueue/internal/api"
	"github.com/heartline/matchqueue/internal/arena"
	"github.com/heartline/matchqueue/internal/cleanup"
	"github.com/heartline/matchqueue/internal/config"
	"github.com/heartline/matchqueue/internal/limits"
	"github.com/heartline/matchqueue/internal/logger"
	"github.com/heartline/matchqueue/internal/match"
	"github.com/heartline/matchqueue/internal/metrics"
	"github.com/heartline/matchqueue/internal/store"
	"github.com/heartline/matchqueue/internal/ws"
	"github.com/heartline/matchqueue/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:          "matchqueue",
		Short:        "Matchmaking queue, arena schedule and daily match limits",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, matchmaker and cleanup loops",
			RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "match-once",
			Short: "Run a single matchmaking pass and exit",
			RunE:  func(cmd *cobra.Command, _ []string) error { return matchOnce(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Run a single cleanup pass and exit",
			RunE:  func(cmd *cobra.Command, _ []string) error { return cleanupOnce(cmd.Context()) },
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.AppConfig
	log      *zap.Logger
	queue    *store.RedisStore
	db       *store.SQLiteStore
	limits   *limits.Service
	schedule *arena.Schedule
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	schedule := arena.Defaults()
	if cfg.ArenasFile != "" {
		if schedule, err = arena.LoadFile(cfg.ArenasFile); err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	queue := store.NewRedisStore(store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword), cfg.MatchedTTL)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := queue.Ping(pingCtx); err != nil {
		db.Close()
		queue.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	log.Info("configuration loaded",
		zap.String("redis", cfg.RedisAddr),
		zap.String("database", cfg.DatabasePath),
		zap.Int("arenas", len(schedule.All())),
		zap.Int("daily_match_limit", cfg.DailyMatchLimit),
	)
	return &app{
		cfg:      cfg,
		log:      log,
		queue:    queue,
		db:       db,
		limits:   limits.New(db, cfg.DailyMatchLimit, cfg.LimitTimezone),
		schedule: schedule,
	}, nil
}

func (a *app) Close() {
	_ = a.queue.Close()
	_ = a.db.Close()
	_ = a.log.Sync()
}

func (a *app) matchmaker(n match.Notifier) *match.Matchmaker {
	return match.NewMatchmaker(a.queue, a.db, a.limits, n, a.schedule, a.log,
		match.Options{Batch: a.cfg.MatchBatch, Interval: a.cfg.MatchInterval})
}

func (a *app) cleaner() *cleanup.Service {
	return cleanup.NewService(a.queue, a.schedule, a.limits, a.log, cleanup.Options{
		Interval:      a.cfg.CleanupInterval,
		QueueTTL:      a.cfg.QueueTTL,
		RetentionDays: a.cfg.UsageRetentionDays,
	})
}

func serve(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	metrics.Init()

	hub := ws.NewHub(a.log)
	go hub.Run(ctx)

	go a.matchmaker(hub).Run(ctx)

	cl := a.cleaner()
	cl.Start(ctx)
	defer cl.Stop()

	srv := &http.Server{
		Addr: a.cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Queue:    a.queue,
			Chats:    a.db,
			Limits:   a.limits,
			Schedule: a.schedule,
			Hub:      hub,
			Log:      a.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.log.Error("server error", zap.Error(err))
		return err
	case <-ctx.Done():
	}
	a.log.Info("shutting down")

	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	return srv.Shutdown(ctxShut)
}

// logNotifier stands in for the hub when no clients can be connected.
type logNotifier struct{ log *zap.Logger }

func (n logNotifier) Notify(userID string, ev types.Event) {
	n.log.Info("event", zap.String("user_id", userID), zap.String("type", ev.Type), zap.Any("payload", ev.Payload))
}

func matchOnce(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.matchmaker(logNotifier{a.log}).RunOnce(ctx, time.Now())
	a.log.Info("matchmaking pass complete", zap.Int("pairs", n))
	return err
}

func cleanupOnce(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.cleaner().RunOnce(ctx, time.Now())
	a.log.Info("cleanup pass complete",
		zap.Int("expired", rep.Expired),
		zap.Int("drained", rep.Drained),
		zap.Int64("usage_purged", rep.UsagePurged),
	)
	return err
}
