package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elax46/frigate/internal/config"
	"github.com/elax46/frigate/internal/imaging"
	"github.com/elax46/frigate/internal/logger"
	"github.com/elax46/frigate/internal/metrics"
	"github.com/elax46/frigate/internal/pipeline"
	"github.com/elax46/frigate/internal/repository"
	"github.com/elax46/frigate/internal/repository/sqlite"
	"github.com/elax46/frigate/internal/routes"
	"github.com/elax46/frigate/internal/services/websocket"
)

// App wires the serving layer together. The frame store and metrics
// registry are created here and handed to the capture/detection pipeline at
// startup; both live for the duration of the process.
type App struct {
	cfg     *config.Config
	logger  *logger.Logger
	db      *sqlite.DB
	events  repository.EventRepository
	frames  *pipeline.FrameStore
	metrics *metrics.Registry
	hub     *websocket.HubService
}

// New loads configuration and builds all services.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.LogDirectory)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logger:  log,
		db:      db,
		events:  sqlite.NewEventRepository(db),
		frames:  pipeline.NewFrameStore(cfg.CameraNames()),
		metrics: metrics.NewRegistry(cfg.CameraNames(), cfg.DetectorNames()),
		hub:     websocket.NewHubService(log),
	}, nil
}

// Frames exposes the live frame store for the capture/detection pipeline.
func (a *App) Frames() *pipeline.FrameStore { return a.frames }

// Metrics exposes the runtime counter registry for the worker processes.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Events exposes the event repository for the event writer.
func (a *App) Events() repository.EventRepository { return a.events }

// Run starts the hub, the live frame publisher and the HTTP server, and
// blocks until shutdown completes.
func (a *App) Run() error {
	go a.hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.publishLive(ctx)

	router := routes.Setup(a.cfg, a.events, a.frames, a.metrics, a.hub, a.logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Port),
		Handler: router,
		// no write timeout: MJPEG responses are long-lived
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		a.logger.Info("Server is shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Could not gracefully shutdown the server: %v", err)
		}
		close(done)
	}()

	a.logger.Info("Frigate serving layer listening on :%d (%d cameras)", a.cfg.Port, len(a.cfg.Topology.Cameras))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not listen on :%d: %w", a.cfg.Port, err)
	}

	<-done
	a.logger.Info("Server stopped")
	return a.db.Close()
}

type liveFrame struct {
	Camera string `json:"camera"`
	Image  string `json:"image"`
}

// publishLive periodically pushes the latest annotated frame of every
// camera with live viewers to the websocket hub.
func (a *App) publishLive(ctx context.Context) {
	interval := time.Duration(a.cfg.LivePushMillis) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		for _, camera := range a.frames.CameraNames() {
			if a.hub.SubscriberCount(camera) == 0 {
				continue
			}

			frame, ok := a.frames.AnnotatedFrame(camera)
			if !ok {
				continue
			}
			jpg, err := imaging.EncodeJPEG(frame)
			frame.Close()
			if err != nil {
				a.logger.Error("Failed to encode live frame for %s: %v", camera, err)
				continue
			}

			payload, err := json.Marshal(liveFrame{
				Camera: camera,
				Image:  base64.StdEncoding.EncodeToString(jpg),
			})
			if err != nil {
				a.logger.Error("Failed to marshal live frame for %s: %v", camera, err)
				continue
			}
			a.hub.Broadcast(camera, payload)
		}
	}
}
