package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"honest-report-service/config"
	"honest-report-service/database"
	"honest-report-service/email"
	"honest-report-service/enrichment"
	"honest-report-service/handlers"
	"honest-report-service/llm"
	"honest-report-service/metrics"
	"honest-report-service/middleware"
	"honest-report-service/openai"
	"honest-report-service/rabbitmq"
	"honest-report-service/serper"
	"honest-report-service/service"
	"honest-report-service/stubllm"
)

func main() {
	cfg := config.Load()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if cfg.SerperAPIKey == "" {
		log.Fatal("SERPER_API_KEY environment variable is required")
	}

	metrics.Register()

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	if err := db.CreateReportsTable(); err != nil {
		log.WithError(err).Fatal("failed to create reports table")
	}
	if err := db.CreateSubscribersTable(); err != nil {
		log.WithError(err).Fatal("failed to create subscribers table")
	}
	if err := db.MigrateReportsTable(); err != nil {
		log.WithError(err).Fatal("failed to migrate reports table")
	}

	searcher := serper.NewClient(cfg.SerperAPIKey, cfg.SerperMaxResults)

	var summarizer llm.Summarizer
	switch {
	case cfg.OpenAIAPIKey != "":
		summarizer = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case cfg.DevMode:
		log.Warn("OPENAI_API_KEY not set, using the deterministic stub summarizer")
		summarizer = stubllm.NewClient()
	default:
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	worker := enrichment.NewWorker(searcher, db, cfg.EnrichMaxRetries, cfg.EnrichBaseDelay)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})

	var queue enrichment.Queue
	if cfg.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			log.WithError(err).Fatal("failed to connect RabbitMQ publisher")
		}
		subscriber, err := rabbitmq.NewSubscriber(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			log.WithError(err).Fatal("failed to connect RabbitMQ subscriber")
		}
		defer subscriber.Close()
		queue = publisher
		go func() {
			defer close(workersDone)
			subscriber.Run(workerCtx, worker, cfg.EnrichWorkers)
		}()
		log.Infof("image enrichment backed by RabbitMQ queue %q", cfg.AMQPQueue)
	} else {
		channelQueue := enrichment.NewChannelQueue(256)
		queue = channelQueue
		go func() {
			defer close(workersDone)
			worker.Run(workerCtx, channelQueue.Jobs(), cfg.EnrichWorkers)
		}()
		log.Infof("image enrichment backed by in-process queue (%d workers)", cfg.EnrichWorkers)
	}

	var mailer service.WelcomeMailer
	if cfg.SendGridAPIKey != "" && cfg.EmailFromAddr != "" {
		mailer = email.NewSender(cfg.SendGridAPIKey, cfg.EmailFromName, cfg.EmailFromAddr)
	}

	svc := service.New(db, searcher, summarizer, queue, mailer, cfg.SiteBaseURL)
	h := handlers.NewHandlers(svc, cfg)

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	router.GET("/sitemap.xml", h.Sitemap)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/generate-report", middleware.RateLimit(cfg.GenerateRPM), h.GenerateReport)
		api.GET("/reports", h.ListReports)
		api.GET("/reports/:id", h.GetReportByID)
		api.GET("/rapports/:slug", h.GetReportBySlug)
		api.POST("/subscribe", h.Subscribe)
		api.GET("/health", h.Health)
		api.GET("/stats", h.Stats)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/login", h.AdminLogin)
		protected := admin.Group("", middleware.AdminAuth(cfg.AdminSecret, cfg.JWTSecret))
		protected.POST("/reports/:id/regenerate", h.AdminRegenerate)
		protected.POST("/reports/:id/image", h.AdminSetImage)
		protected.PATCH("/reports/:id/category", h.AdminSetCategory)
		protected.POST("/backfill/images", h.AdminBackfillImages)
		protected.POST("/backfill/categories", h.AdminBackfillCategories)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	// Stop accepting enrichment jobs and let the workers drain. The RabbitMQ
	// consumer only exits on cancellation; the channel workers exit when the
	// queue closes.
	_ = queue.Close()
	if cfg.AMQPURL != "" {
		stopWorkers()
	}
	select {
	case <-workersDone:
	case <-time.After(10 * time.Second):
		log.Warn("enrichment workers did not drain in time")
	}
	stopWorkers()

	log.Info("server exited")
}
