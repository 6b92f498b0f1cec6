package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dexmon/internal/config"
	cronrunner "dexmon/internal/cron"
	"dexmon/internal/db"
	"dexmon/internal/handler"
	"dexmon/internal/lock"
	"dexmon/internal/logger"
	"dexmon/internal/replay"
	gormrepository "dexmon/internal/repository/gorm"
	syncsvc "dexmon/internal/sync"
	"dexmon/internal/warehouse"
)

func main() {
	cfgPath := os.Getenv("DM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("DM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		logger.Info("sync lock enabled", zap.String("redis", cfg.Redis.Addr))
	}

	maintainer := &warehouse.Maintainer{
		DB:     dbConn.Gorm,
		States: store,
		Logger: logger,
	}
	replayEngine := &replay.Engine{
		Store:  store,
		Logger: logger,
		Config: cfg.Replay,
	}
	orchestrator := &syncsvc.Orchestrator{
		Store:     store,
		Warehouse: maintainer,
		Locker:    locker,
		Logger:    logger,
		Config:    cfg.Sync,
	}
	checker := &syncsvc.HealthChecker{
		Store:     store,
		Warehouse: maintainer,
		Logger:    logger,
		Config:    cfg.Sync,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	syncHandler := &handler.SyncHandler{Orchestrator: orchestrator, Checker: checker, Logger: logger}
	syncHandler.Register(engine)
	replayHandler := &handler.ReplayHandler{Engine: replayEngine, Logger: logger}
	replayHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add("trade_sync", cfg.Cron.TradeSync, func(ctx context.Context) {
			result, err := orchestrator.Sync(ctx, syncsvc.Options{Strategy: cfg.Sync.Strategy})
			if err != nil {
				logger.Warn("cron trade sync failed", zap.Error(err))
				return
			}
			logger.Info("cron trade sync ok",
				zap.String("strategy", string(result.Strategy)),
				zap.Int("processed", result.Processed),
				zap.Int("errors", result.Errors),
				zap.String("message", result.Message),
			)
		})
		if err != nil {
			logger.Warn("cron register trade sync failed", zap.Error(err))
		}

		_, err = cronRunner.Add("replay_resume", cfg.Cron.ReplayResume, func(ctx context.Context) {
			result, err := replayEngine.Resume(ctx)
			if err != nil {
				logger.Warn("cron replay resume failed", zap.Error(err))
				return
			}
			logger.Info("cron replay resume ok",
				zap.Int("hours", result.HoursProcessed),
				zap.Int("snapshots", result.Snapshots),
				zap.String("message", result.Message),
			)
		})
		if err != nil {
			logger.Warn("cron register replay resume failed", zap.Error(err))
		}

		_, err = cronRunner.Add("warehouse", cfg.Cron.Warehouse, func(ctx context.Context) {
			if err := maintainer.EnsureMaterializedViews(ctx); err != nil {
				logger.Warn("cron warehouse ensure views failed", zap.Error(err))
				return
			}
			if _, err := maintainer.RefreshMaterializedViews(ctx); err != nil {
				logger.Warn("cron warehouse refresh views failed", zap.Error(err))
			}
			if err := maintainer.EnsureAggregationTables(ctx); err != nil {
				logger.Warn("cron warehouse ensure tables failed", zap.Error(err))
				return
			}
			if _, err := maintainer.RefreshContinuousAggregates(ctx); err != nil {
				logger.Warn("cron warehouse refresh aggregates failed", zap.Error(err))
			}
			if _, err := maintainer.RunRollupJobs(ctx); err != nil {
				logger.Warn("cron warehouse rollup jobs failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register warehouse failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
