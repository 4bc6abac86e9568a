// Command flowgate-server wires the engine's components into a running
// HTTP service: config load, storage/cache connections, the catalog
// cache, the orchestrator, the trigger loop, the anomaly detector, and
// the gin HTTP surface, with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowgate/engine/internal/anomaly"
	"github.com/flowgate/engine/internal/catalog"
	"github.com/flowgate/engine/internal/config"
	"github.com/flowgate/engine/internal/httpapi"
	"github.com/flowgate/engine/internal/infrastructure/cache"
	"github.com/flowgate/engine/internal/infrastructure/logger"
	"github.com/flowgate/engine/internal/infrastructure/storage"
	"github.com/flowgate/engine/internal/notify"
	"github.com/flowgate/engine/internal/orchestrator"
	"github.com/flowgate/engine/internal/recorder"
	"github.com/flowgate/engine/internal/stats"
	"github.com/flowgate/engine/internal/trigger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := storage.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	workflowRepo := storage.NewWorkflowRepository(db)
	catalogCache := catalog.New(workflowRepo, cfg.Catalog.TTL, log)
	if err := catalogCache.Refresh(context.Background()); err != nil {
		log.Error("initial catalog load failed, starting with an empty catalog", "error", err)
	}

	executionRepo := storage.NewExecutionRepository(db)
	statsAggregator := stats.New()
	recorderFacade := recorder.New(executionRepo, statsAggregator)

	notifyManager := notify.NewManager(log)
	if err := notifyManager.Register(notify.VisualizationGroup, notify.NewLoggerObserver(log)); err != nil {
		return fmt.Errorf("register logger observer: %w", err)
	}

	anomalyDetector := anomaly.New(statsAggregator, notifyManager, log, anomaly.Options{
		MinSamples:      cfg.Anomaly.MinSamples,
		ZScoreThreshold: cfg.Anomaly.ZScoreThreshold,
		RefreshInterval: cfg.Anomaly.BaselineRefreshInterval,
	})

	orch := orchestrator.New(catalogCache, notifyManager, recorderFacade, log, orchestrator.Options{
		WorkflowDeadline: cfg.Trigger.WorkflowDeadline,
	}).WithAnomalyEvaluator(anomalyDetector).WithStatsSink(statsAggregator)

	triggerLoop := trigger.New(catalogCache, orch, log, trigger.Options{
		ScheduleTickInterval: cfg.Trigger.ScheduleTickInterval,
	})

	handlers := httpapi.NewHandlers(catalogCache, orch, recorderFacade, triggerLoop)
	router := httpapi.NewRouter(handlers, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go anomalyDetector.Run(runCtx)
	go triggerLoop.Run(runCtx)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("flowgate-server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("shutdown initiated", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return shutdownAll(ctx, httpServer, stopBackground, db, redisCache, log)
	}
}

func shutdownAll(ctx context.Context, httpServer *http.Server, stopBackground context.CancelFunc, db interface{ Close() error }, redisCache *cache.RedisCache, log *logger.Logger) error {
	stopBackground()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful HTTP shutdown failed", "error", err)
		if closeErr := httpServer.Close(); closeErr != nil {
			log.Error("HTTP server close failed", "error", closeErr)
		}
	}

	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Error("redis close failed", "error", err)
		} else {
			log.Info("redis closed")
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("database close failed", "error", err)
		} else {
			log.Info("database closed")
		}
	}

	return nil
}
