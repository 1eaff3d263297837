package routes

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elax46/frigate/internal/config"
	"github.com/elax46/frigate/internal/handlers"
	"github.com/elax46/frigate/internal/logger"
	"github.com/elax46/frigate/internal/metrics"
	"github.com/elax46/frigate/internal/pipeline"
	"github.com/elax46/frigate/internal/repository"
	"github.com/elax46/frigate/internal/services/websocket"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frigate_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frigate_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Setup registers all HTTP routes. Registration order matters: the
// camera-scoped wildcard routes must come after every literal path so that
// /events, /config, /stats, /metrics and /ws are not swallowed by
// /{camera}.
func Setup(cfg *config.Config, events repository.EventRepository, frames *pipeline.FrameStore,
	registry *metrics.Registry, hub *websocket.HubService, log *logger.Logger) http.Handler {

	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/", handlers.HealthHandler()).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/events/summary", handlers.EventsSummaryHandler(events, log)).Methods("GET")
	r.HandleFunc("/events/{id}/snapshot.jpg", handlers.EventSnapshotHandler(events, frames, log)).Methods("GET")
	r.HandleFunc("/events/{id}", handlers.GetEventHandler(events, log)).Methods("GET")
	r.HandleFunc("/events", handlers.ListEventsHandler(events, log)).Methods("GET")

	r.HandleFunc("/config", handlers.ConfigHandler(cfg, log)).Methods("GET")
	r.HandleFunc("/stats", handlers.StatsHandler(registry, log)).Methods("GET")
	r.HandleFunc("/ws", handlers.LiveWebsocketHandler(hub, frames, log)).Methods("GET")

	r.HandleFunc("/{camera}/latest.jpg", handlers.LatestFrameHandler(frames, log)).Methods("GET")
	r.HandleFunc("/{camera}/{label}/best.jpg", handlers.BestFrameHandler(frames, log)).Methods("GET")
	r.HandleFunc("/{camera}", handlers.MJPEGStreamHandler(frames, cfg, log)).Methods("GET")

	return r
}

// statusRecorder captures the response status for the request metrics. It
// forwards Flush and Hijack so streaming and websocket handlers keep
// working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rec.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
