package handlers

import (
	"fmt"
	"net/http"

	"github.com/elax46/frigate/internal/config"
	"github.com/elax46/frigate/internal/logger"
	"github.com/elax46/frigate/internal/metrics"
)

// HealthHandler serves GET /.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Frigate is running. Alive and healthy!")
	}
}

// ConfigHandler serves GET /config: the static configuration dump.
func ConfigHandler(cfg *config.Config, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cfg, log)
	}
}

// StatsHandler serves GET /stats: one merged snapshot of all camera and
// detector runtime counters.
func StatsHandler(registry *metrics.Registry, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, registry.Snapshot(), log)
	}
}
