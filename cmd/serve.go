package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cronkit/scheduler/internal/cache"
	"github.com/cronkit/scheduler/internal/config"
	"github.com/cronkit/scheduler/internal/executor"
	"github.com/cronkit/scheduler/internal/gateway"
	"github.com/cronkit/scheduler/internal/httpapi"
	"github.com/cronkit/scheduler/internal/model"
	"github.com/cronkit/scheduler/internal/repository"
	"github.com/cronkit/scheduler/internal/scheduler"
	"github.com/cronkit/scheduler/internal/store"
	"github.com/cronkit/scheduler/internal/store/pg"
)

const requestTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cron job scheduler HTTP control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	pgStore, err := pg.Open(store.Config{
		DSN:                cfg.DBConnectionString,
		MaxOpenConns:       cfg.Tuning.MaxOpenConns,
		SlowQueryThreshold: 100 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer pgStore.Close()

	c := cache.NewWithTTL(cfg.ListCacheTTL(), cfg.DetailCacheTTL())
	repo := repository.New(pgStore)

	var bcast *cache.Broadcaster
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		bcast = cache.NewBroadcaster(rdb)
		subCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go bcast.Subscribe(subCtx, c)
	}

	retryHook := func(job model.Job, runErr error) {
		slog.Error("job exhausted retries", "job_id", job.ID, "job_name", job.Name, "error", runErr)
	}
	sched := scheduler.New(repo, c, executor.Simulated{}, bcast, cfg.SyncInterval(), retryHook)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	handler := httpapi.New(repo, sched, c, pgStore, cfg.JWTSecret)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	triggerLimiter := gateway.NewRateLimiter(cfg.Tuning.TriggerRateLimitPerMin, 5)
	generalLimiter := gateway.NewRateLimiter(cfg.Tuning.GeneralRateLimitPerMin, 10)

	var h http.Handler = mux
	h = gateway.RequestTimeout(requestTimeout)(h)
	h = withTriggerRateLimit(h, triggerLimiter)
	h = generalLimiter.Middleware(h)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: h,
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			watcher.OnChange(func(newCfg *config.Config) {
				sched.SetSyncInterval(newCfg.SyncInterval())
				generalLimiter.SetLimit(newCfg.Tuning.GeneralRateLimitPerMin, 10)
				triggerLimiter.SetLimit(newCfg.Tuning.TriggerRateLimitPerMin, 5)
				slog.Info("tuning overlay reloaded",
					"allowedOrigins", newCfg.AllowedOrigins,
					"syncIntervalSeconds", newCfg.Tuning.SyncIntervalSeconds,
					"generalRateLimitPerMin", newCfg.Tuning.GeneralRateLimitPerMin,
					"triggerRateLimitPerMin", newCfg.Tuning.TriggerRateLimitPerMin)
			})
			if err := watcher.Start(); err != nil {
				slog.Warn("config watcher failed to start", "error", err)
			} else {
				defer watcher.Stop()
			}
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("cronkit-scheduler listening", "port", cfg.Port, "nodeEnv", cfg.NodeEnv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// withTriggerRateLimit applies a stricter limiter to POST /jobs/:id/trigger
// only, matching spec §5's "20/min/IP on the trigger endpoint" carve-out
// from the general 100/min/IP limit.
func withTriggerRateLimit(next http.Handler, limiter *gateway.RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && len(r.URL.Path) > 8 && r.URL.Path[len(r.URL.Path)-8:] == "/trigger" {
			limiter.Middleware(next).ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelDebug
	var handler slog.Handler
	if cfg.IsProduction() {
		level = slog.LevelInfo
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
