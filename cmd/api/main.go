package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nirmal141/nvidiaxdell-hack/api/routes"
	"github.com/nirmal141/nvidiaxdell-hack/internal/answers"
	"github.com/nirmal141/nvidiaxdell-hack/internal/evidence"
	"github.com/nirmal141/nvidiaxdell-hack/internal/gateway"
	"github.com/nirmal141/nvidiaxdell-hack/internal/ingest"
	"github.com/nirmal141/nvidiaxdell-hack/internal/jobs"
	"github.com/nirmal141/nvidiaxdell-hack/internal/retrieval"
	"github.com/nirmal141/nvidiaxdell-hack/internal/videos"
	"github.com/nirmal141/nvidiaxdell-hack/internal/vision"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/ffmpeg"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/metrics"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/migrate"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	ingestMetrics := metrics.NewIngestMetrics(promRegistry)
	searchMetrics := metrics.NewSearchMetrics(promRegistry)
	modelMetrics := metrics.NewModelCallMetrics(promRegistry)

	models, err := gateway.New(cfg.Models, logg, modelMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create model gateway", err)
		os.Exit(1)
	}

	tool := ffmpeg.New()
	registry := jobs.NewRegistry()
	videoRepo := videos.NewRepository(dbClient.DB())
	evidenceRepo := evidence.NewRepository(dbClient.DB())

	videoService, err := videos.NewService(videoRepo, evidenceRepo, dbClient, tool, registry, cfg.Media.VideosDir, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create video service", err)
		os.Exit(1)
	}

	ingestService, err := ingest.NewService(videoRepo, evidenceRepo, registry, models, models, models, tool, cfg.Ingest, logg, ingestMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest service", err)
		os.Exit(1)
	}

	retrievalService, err := retrieval.NewService(evidenceRepo, videoRepo, models, redisClient, cfg.Retrieval, logg, searchMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create retrieval service", err)
		os.Exit(1)
	}

	answerService, err := answers.NewService(retrievalService, models, cfg.Retrieval, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create answer service", err)
		os.Exit(1)
	}

	visionService, err := vision.NewService(videoRepo, tool, models, models, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create vision service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			videoService,
			ingestService,
			answerService,
			visionService,
			promRegistry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
