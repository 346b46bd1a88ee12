package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nirmal141/nvidiaxdell-hack/api/responses"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

const envHeader = "X-Sentio-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the datastores. The response stays 200 with per-check
// results unless a required dependency is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				checks["db"] = err.Error()
				healthy = false
			} else {
				checks["db"] = "ok"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		status := "ready"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
			if logg != nil {
				logg.Warn(logg.WithFields(r.Context(), map[string]any{"checks": checks}), "readiness check failed")
			}
		}

		responses.WriteSuccessStatus(w, code, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}
