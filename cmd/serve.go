// File: /cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chyrp-api/config"
	"chyrp-api/database"
	"chyrp-api/jobs"
	"chyrp-api/middleware"
	"chyrp-api/routes"
	"chyrp-api/services"
	"chyrp-api/telemetry"
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()
		return serve(cmd.Context(), cfg, log)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run migrations on startup")
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, cfg.App.Env)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	sentryOn, flushSentry, err := telemetry.InitSentry(cfg.Sentry, cfg.App.Env)
	if err != nil {
		return err
	}
	defer flushSentry(context.Background())

	db, err := database.Initialize(cfg, log)
	if err != nil {
		return err
	}
	if !skipMigrate {
		if err := database.Migrate(db, log); err != nil {
			return err
		}
		if err := database.SeedData(db, log); err != nil {
			log.Warn("failed to seed database", zap.Error(err))
		}
	}

	app := &routes.App{
		Config:      cfg,
		DB:          db,
		Log:         log,
		Email:       services.NewEmailService(cfg.SMTP, cfg.Site.URL, log.Named("email")),
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		Sentry:      sentryOn,
	}

	tasks := []jobs.Task{{
		Name: "rate_limiters",
		Run:  func() int { return app.RateLimiter.CleanupLimiters(10 * time.Minute) },
	}}

	var rdb *redis.Client
	if cfg.Cache.Driver == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
	}

	switch cfg.Cache.Driver {
	case "redis":
		app.Cache = services.NewRedisCache(rdb, cfg.Redis.KeyPrefix, cfg.Cache.TTL, log.Named("cache"))
		app.Captcha = services.NewRedisCaptchaStore(rdb, cfg.Redis.KeyPrefix)
	case "none":
		app.Cache = services.NopCache{}
	default:
		mem := services.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		app.Cache = mem
		tasks = append(tasks, jobs.Task{Name: "cache", Run: mem.Sweep})
	}
	if app.Captcha == nil {
		store := services.NewMemoryCaptchaStore()
		app.Captcha = store
		tasks = append(tasks, jobs.Task{Name: "captcha", Run: store.Cleanup})
	}

	app.Blobs, err = services.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	router, err := routes.NewRouter(app)
	if err != nil {
		return err
	}

	cleanup := jobs.NewCleanupJob(cfg.Cache.SweepInterval, log, tasks...)
	cleanup.Start()
	defer cleanup.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting chyrp-api", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
