package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/medichat/platform/pkg/access"
	"github.com/medichat/platform/pkg/ai"
	"github.com/medichat/platform/pkg/blobstore"
	"github.com/medichat/platform/pkg/common/config"
	"github.com/medichat/platform/pkg/common/database"
	"github.com/medichat/platform/pkg/common/kafka"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/consolidate"
	"github.com/medichat/platform/pkg/dashboard"
	"github.com/medichat/platform/pkg/documents"
	"github.com/medichat/platform/pkg/insights"
	"github.com/medichat/platform/pkg/locks"
	"github.com/medichat/platform/pkg/observability/metrics"
	"github.com/medichat/platform/pkg/profile"
	"github.com/medichat/platform/pkg/records"
	"github.com/medichat/platform/pkg/terminology"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres()

	redisClient := database.GetRedis()
	defer database.CloseRedis()

	recordsRepo := records.NewRepository(db)
	documentsRepo := documents.NewRepository(db, recordsRepo)
	profileRepo := profile.NewRepository(db)
	dashboardRepo := dashboard.NewRepository(db)
	for name, migrate := range map[string]func() error{
		"records":    recordsRepo.AutoMigrate,
		"documents":  documentsRepo.AutoMigrate,
		"profiles":   profileRepo.AutoMigrate,
		"dashboards": dashboardRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("schema", name).Fatal("Migration failed")
		}
	}

	catalog := terminology.DefaultCatalog()
	if cfg.LabCatalogPath != "" {
		catalog, err = terminology.LoadCatalog(cfg.LabCatalogPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to load lab catalog")
		}
	}

	blobs, err := blobstore.NewFileStore(cfg.BlobRoot)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize blob store")
	}

	var publisher documents.Publisher = kafka.NoopPublisher{}
	if !cfg.EventsDisabled {
		producer := kafka.NewProducer(cfg.PipelineTopic)
		defer producer.Close()
		publisher = producer
	}

	claims := locks.NewRedisClaimer(redisClient)
	extractor := ai.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.ExtractionModel, cfg.ExtractionTimeout)
	summarizer := ai.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.SummaryModel, cfg.SummaryTimeout)

	authz := access.OwnerOnly{}

	recordsService := records.NewService(recordsRepo)
	profileService := profile.NewService(profileRepo)
	documentsService := documents.NewService(
		documentsRepo, blobs, extractor, consolidate.New(catalog),
		claims, publisher, cfg.BlobBucket, cfg.ParseClaimTTL,
	)
	dashboardService := dashboard.NewService(
		dashboardRepo, profileService, recordsRepo, summarizer,
		claims, publisher, cfg.GenerateClaimTTL,
	)
	insightsService := insights.NewService(
		documentsService, documentsRepo, recordsRepo, dashboardService,
		insights.NewRedisCache(redisClient), cfg.InsightsCacheTTL,
	)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	documents.NewHandler(documentsService, authz, cfg.MaxUploadBytes).Register(api)
	records.NewHandler(recordsService, authz).Register(api)
	profile.NewHandler(profileService, authz).Register(api)
	dashboard.NewHandler(dashboardService, authz).Register(api)
	insights.NewHandler(insightsService, authz).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Medichat server started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Medichat server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Medichat server stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
