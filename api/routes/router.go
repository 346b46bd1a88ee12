package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nirmal141/nvidiaxdell-hack/api/controllers"
	"github.com/nirmal141/nvidiaxdell-hack/api/middleware"
	"github.com/nirmal141/nvidiaxdell-hack/internal/answers"
	"github.com/nirmal141/nvidiaxdell-hack/internal/ingest"
	"github.com/nirmal141/nvidiaxdell-hack/internal/jobs"
	"github.com/nirmal141/nvidiaxdell-hack/internal/videos"
	"github.com/nirmal141/nvidiaxdell-hack/internal/vision"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	registry *jobs.Registry,
	videoService videos.Service,
	ingestService ingest.Service,
	answerService answers.Service,
	visionService vision.Service,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	queryPolicy := middleware.NewQueryRateLimitPolicy(
		"query",
		cfg.QueryRateLimit.Window,
		cfg.QueryRateLimit.Limit,
	)
	queryLimit := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		queryLimit = middleware.QueryRateLimit(queryPolicy, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, pingerOrNil(redisClient)))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/videos", func(r chi.Router) {
			r.Post("/", controllers.VideoUpload(videoService, cfg.Media, logg))
			r.Get("/", controllers.VideoList(videoService, logg))

			r.Route("/{videoId}", func(r chi.Router) {
				r.Get("/", controllers.VideoDetail(videoService, logg))
				r.Delete("/", controllers.VideoDelete(videoService, logg))
				r.Get("/thumbnail", controllers.VideoThumbnail(videoService, logg))
				r.Get("/stream", controllers.VideoStream(videoService, logg))

				r.Post("/process", controllers.ProcessStart(ingestService, logg))
				r.Post("/process/stop", controllers.ProcessStop(ingestService, logg))
				r.Get("/status", controllers.ProcessStatus(ingestService, logg))
				r.Get("/progress", controllers.ProgressStream(ingestService, registry, cfg.Progress, logg))

				r.Group(func(r chi.Router) {
					r.Use(queryLimit)
					r.Post("/detect", controllers.Detect(visionService, logg))
					r.Post("/segment", controllers.Segment(visionService, logg))
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(queryLimit)
			r.Post("/ask", controllers.Ask(answerService, logg))
			r.Post("/search", controllers.Search(answerService, logg))
		})
	})

	return r
}

func pingerOrNil(client *redis.Client) db.Pinger {
	if client == nil {
		return nil
	}
	return client
}
