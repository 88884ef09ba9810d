package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/api"
	"github.com/mealwatch/plan-scraper/internal/batch"
	"github.com/mealwatch/plan-scraper/internal/config"
	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/middleware"
	"github.com/mealwatch/plan-scraper/internal/monitor"
	"github.com/mealwatch/plan-scraper/internal/notify"
	"github.com/mealwatch/plan-scraper/internal/pipeline"
	"github.com/mealwatch/plan-scraper/internal/queue"
	"github.com/mealwatch/plan-scraper/internal/store"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(logrus.DebugLevel)
	}

	log.Info("initializing database")
	dbConn, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}

	repo := store.NewGorm(dbConn)

	settings, err := config.LoadSettings(repo)
	if err != nil {
		log.WithError(err).Fatal("failed to load settings")
	}

	// Background work stops when this context is cancelled at shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	dispatcher := notify.NewDispatcher(repo, log)
	adapter := pipeline.NewAdapter(buildFetcher(cfg, log), buildOCR(cfg),
		pipeline.NewHTTPExtractor(cfg.ExtractorURL, cfg.FetchTimeout), repo, settings, log)

	scrapeQueue, err := queue.New(settings, repo, log)
	if err != nil {
		log.WithError(err).Fatal("failed to restore queue")
	}
	queue.NewWorker(scrapeQueue, adapter, repo, dispatcher, cfg.QueuePoll, cfg.QueueWorkers, log).Start(appCtx)

	batchRunner := batch.NewRunner(adapter, repo, repo, dispatcher, cfg.BatchDelay, log)

	engine := monitor.NewEngine(repo, repo, repo, adapter, dispatcher, cfg.MonitorDelay, log)
	engine.StartScheduler(appCtx, cfg.SchedulerTick)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "plan-scraper",
		})
	})

	r.POST("/auth/login", api.LoginHandler(repo, api.AuthConfig{
		JWTSecret:     cfg.JWTSecret,
		TokenDuration: cfg.JWTDuration,
	}, log))

	authorized := r.Group("/api")
	authorized.Use(middleware.JWTRequired(cfg.JWTSecret, log))
	{
		authorized.GET("/jobs", api.ListJobsHandler(repo, log))
		authorized.GET("/jobs/stats", api.JobStatsHandler(repo, log))
		authorized.GET("/jobs/export", api.ExportJobsHandler(repo, log))
		authorized.GET("/jobs/:id", api.GetJobHandler(repo, log))
		authorized.DELETE("/jobs/:id", api.DeleteJobHandler(repo, log))
		authorized.DELETE("/jobs", api.ClearJobsHandler(repo, log))

		authorized.POST("/scrape", api.ScrapeURLHandler(adapter, repo, log))
		authorized.POST("/scrape/batch", api.StartBatchHandler(batchRunner, appCtx, log))
		authorized.GET("/scrape/batch", api.BatchStatusHandler(batchRunner))
		authorized.DELETE("/scrape/batch", api.CancelBatchHandler(batchRunner))
		authorized.POST("/scrape/retry-failed", api.RetryFailedHandler(batchRunner, appCtx, log))

		authorized.POST("/queue", api.EnqueueHandler(scrapeQueue, log))
		authorized.GET("/queue", api.ListQueueHandler(scrapeQueue))
		authorized.POST("/queue/:id/retry", api.RetryQueueItemHandler(scrapeQueue))
		authorized.PATCH("/queue/:id/priority", api.ReprioritizeHandler(scrapeQueue))
		authorized.DELETE("/queue/:id", api.RemoveQueueItemHandler(scrapeQueue))
		authorized.DELETE("/queue", api.ClearQueueHandler(scrapeQueue, log))

		authorized.POST("/monitors", api.CreateMonitorHandler(engine, log))
		authorized.GET("/monitors", api.ListMonitorsHandler(engine, log))
		authorized.POST("/monitors/check-all", api.CheckAllMonitorsHandler(engine, appCtx, log))
		authorized.POST("/monitors/:id/check", api.CheckMonitorHandler(engine, log))
		authorized.PATCH("/monitors/:id/toggle", api.ToggleMonitorHandler(engine))
		authorized.PATCH("/monitors/:id/interval", api.SetMonitorIntervalHandler(engine))
		authorized.DELETE("/monitors/:id", api.DeleteMonitorHandler(engine))
		authorized.GET("/monitors/history/:planId", api.MonitorHistoryHandler(engine, log))
		authorized.GET("/monitors/changes", api.MonitorChangesHandler(engine, log))

		authorized.GET("/notifications", api.ListNotificationsHandler(repo, log))
		authorized.PATCH("/notifications/read-all", api.MarkAllNotificationsReadHandler(repo, log))
		authorized.PATCH("/notifications/:id/read", api.MarkNotificationReadHandler(repo))
		authorized.DELETE("/notifications", api.ClearNotificationsHandler(repo, log))

		authorized.GET("/settings/retry", api.GetRetrySettingsHandler(settings))
		authorized.PUT("/settings/retry", api.PutRetrySettingsHandler(settings, log))
		authorized.GET("/settings/domain-rules", api.ListDomainRulesHandler(settings))
		authorized.POST("/settings/domain-rules", api.CreateDomainRuleHandler(settings, log))
		authorized.PUT("/settings/domain-rules/:id", api.UpdateDomainRuleHandler(settings))
		authorized.DELETE("/settings/domain-rules/:id", api.DeleteDomainRuleHandler(settings))
		authorized.GET("/settings/vendor-configs", api.ListVendorConfigsHandler(settings))
		authorized.POST("/settings/vendor-configs", api.CreateVendorConfigHandler(settings, log))
		authorized.PUT("/settings/vendor-configs/:id", api.UpdateVendorConfigHandler(settings))
		authorized.DELETE("/settings/vendor-configs/:id", api.DeleteVendorConfigHandler(settings))

		authorized.GET("/duplicates", api.FindDuplicatesHandler(repo, log))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	appCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server forced to shutdown")
	}

	log.Info("server exited")
}

// buildFetcher selects the page fetch strategy and wraps it in a
// circuit breaker.
func buildFetcher(cfg *config.Config, log *logrus.Logger) pipeline.Fetcher {
	var inner pipeline.Fetcher
	switch cfg.ScraperService {
	case "api":
		inner = pipeline.NewAPIFetcher(cfg.ScrapeAPIURL, cfg.ScrapeAPIKey, cfg.FetchTimeout)
	case "local":
		inner = pipeline.NewLocalFetcher(cfg.FetchTimeout)
	default:
		inner = pipeline.NewReaderFetcher(cfg.ReaderBaseURL, cfg.FetchTimeout)
	}
	log.WithField("service", cfg.ScraperService).Info("scraper service selected")
	return pipeline.NewBreakerFetcher(cfg.ScraperService, inner)
}

func buildOCR(cfg *config.Config) pipeline.OCRClient {
	if cfg.OCRServiceURL == "" {
		return nil
	}
	return pipeline.NewHTTPOCRClient(cfg.OCRServiceURL, cfg.FetchTimeout)
}
