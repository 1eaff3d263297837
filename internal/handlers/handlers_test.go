package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/elax46/frigate/internal/config"
	"github.com/elax46/frigate/internal/logger"
	"github.com/elax46/frigate/internal/metrics"
	"github.com/elax46/frigate/internal/models"
	"github.com/elax46/frigate/internal/pipeline"
	"github.com/elax46/frigate/internal/repository/sqlite"
	"github.com/elax46/frigate/internal/routes"
	"github.com/elax46/frigate/internal/services/websocket"
)

type fixture struct {
	server   *httptest.Server
	frames   *pipeline.FrameStore
	registry *metrics.Registry
	events   *sqlite.EventRepository
	hub      *websocket.HubService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		StreamFPS:      3,
		StreamHeight:   360,
		LivePushMillis: 500,
		LogDirectory:   t.TempDir(),
		Topology: config.Topology{
			Cameras: map[string]config.CameraConfig{
				"back": {Width: 1280, Height: 720, FPS: 5, Zones: []string{"yard"}},
			},
			Detectors: map[string]config.DetectorConfig{
				"coral": {Type: "edgetpu"},
			},
		},
	}

	log := logger.New(cfg.LogDirectory)

	db, err := sqlite.New(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	events := sqlite.NewEventRepository(db)
	frames := pipeline.NewFrameStore(cfg.CameraNames())
	registry := metrics.NewRegistry(cfg.CameraNames(), cfg.DetectorNames())
	hub := websocket.NewHubService(log)
	go hub.Run()

	server := httptest.NewServer(routes.Setup(cfg, events, frames, registry, hub, log))
	t.Cleanup(server.Close)

	return &fixture{server: server, frames: frames, registry: registry, events: events, hub: hub}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, body
}

func bgrFrame(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), height, width, gocv.MatTypeCV8UC3)
}

func yuvFrame(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 0, 0, 0), height*3/2, width, gocv.MatTypeCV8UC1)
}

func jpegSize(t *testing.T, data []byte) (int, int) {
	t.Helper()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Response is not a decodable image: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if string(body) != "Frigate is running. Alive and healthy!" {
		t.Errorf("Unexpected body: %q", body)
	}
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)

	for i, id := range []string{"ev-1", "ev-2", "ev-3"} {
		err := f.events.Insert(&models.Event{
			ID: id, Camera: "back", Label: "person", StartTime: 1000 + float64(i), Zones: []string{"yard"},
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	resp, body := f.get(t, "/events?camera=back&label=person&zone=yard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var events []models.Event
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("Failed to decode events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].ID != "ev-3" {
		t.Errorf("Expected newest event first, got %s", events[0].ID)
	}
}

func TestListEvents_EmptyIsJSONArray(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/events")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("Expected empty JSON array, got %q", body)
	}
}

func TestListEvents_InvalidFilter(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/events?limit=abc",
		"/events?limit=-1",
		"/events?after=notatime",
		"/events?before=notatime",
	} {
		resp, _ := f.get(t, path)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestGetEvent(t *testing.T) {
	f := newFixture(t)

	err := f.events.Insert(&models.Event{
		ID: "ev-1", Camera: "back", Label: "person", StartTime: 1000, Zones: []string{"yard"},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	resp, body := f.get(t, "/events/ev-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var event models.Event
	if err := json.Unmarshal(body, &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.Camera != "back" || len(event.Zones) != 1 {
		t.Errorf("Unexpected event: %+v", event)
	}

	resp, _ = f.get(t, "/events/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown event, got %d", resp.StatusCode)
	}
}

func TestEventSnapshot_StoredThumbnail(t *testing.T) {
	f := newFixture(t)

	thumb := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	err := f.events.Insert(&models.Event{
		ID: "ev-1", Camera: "back", Label: "person", StartTime: 1000, Thumbnail: thumb,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	resp, body := f.get(t, "/events/ev-1/snapshot.jpg")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("Unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	if !bytes.Equal(body, thumb) {
		t.Error("Thumbnail bytes not served as stored")
	}
}

func TestEventSnapshot_LiveFallback(t *testing.T) {
	f := newFixture(t)

	// not persisted, but actively tracked
	f.frames.UpsertObject("back", pipeline.TrackedObject{
		ID: "track-9", Label: "person", Score: 0.8,
	}, yuvFrame(64, 48), true)

	resp, body := f.get(t, "/events/track-9/snapshot.jpg")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from live fallback, got %d", resp.StatusCode)
	}
	w, h := jpegSize(t, body)
	if w != 64 || h != 48 {
		t.Errorf("Expected 64x48 snapshot, got %dx%d", w, h)
	}

	resp, _ = f.get(t, "/events/neither/snapshot.jpg")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestConfigDump(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/config")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var dump struct {
		Topology config.Topology `json:"topology"`
	}
	if err := json.Unmarshal(body, &dump); err != nil {
		t.Fatalf("Failed to decode config: %v", err)
	}
	if _, ok := dump.Topology.Cameras["back"]; !ok {
		t.Error("Config dump missing camera topology")
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	cm := f.registry.Camera("back")
	cm.CameraFPS.Set(5.0)
	cm.DetectionFPS.Set(0.666)
	cm.PID.Store(42)
	f.registry.Detector("coral").AvgInferenceSpeed.Set(0.01)

	resp, body := f.get(t, "/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}

	camera, ok := stats["back"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected per-camera stats, got %T", stats["back"])
	}
	if camera["detection_fps"] != 0.67 {
		t.Errorf("Expected rounded detection_fps 0.67, got %v", camera["detection_fps"])
	}
	if camera["pid"] != float64(42) {
		t.Errorf("Expected pid 42, got %v", camera["pid"])
	}
	if stats["detection_fps"] != 0.67 {
		t.Errorf("Expected total detection_fps 0.67, got %v", stats["detection_fps"])
	}
	detectors, ok := stats["detectors"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected detectors map, got %T", stats["detectors"])
	}
	coral := detectors["coral"].(map[string]interface{})
	if coral["inference_speed"] != float64(10) {
		t.Errorf("Expected inference_speed 10ms, got %v", coral["inference_speed"])
	}
}

func TestLatestFrame_UnknownCamera(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/garage/latest.jpg")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Camera named garage not found") {
		t.Errorf("Unexpected 404 body: %q", body)
	}
}

func TestLatestFrame_PlaceholderWhenNoFrame(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/back/latest.jpg")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 placeholder, got %d", resp.StatusCode)
	}
	w, h := jpegSize(t, body)
	if w != 1280 || h != 720 {
		t.Errorf("Expected 1280x720 placeholder, got %dx%d", w, h)
	}
}

func TestLatestFrame_Resize(t *testing.T) {
	f := newFixture(t)

	f.frames.SetCurrentFrame("back", bgrFrame(1280, 720))

	resp, body := f.get(t, "/back/latest.jpg?h=100")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	w, h := jpegSize(t, body)
	if h != 100 {
		t.Errorf("Expected height 100, got %d", h)
	}
	if w != 177 {
		t.Errorf("Expected width 177 (100*1280/720 truncated), got %d", w)
	}

	resp, _ = f.get(t, "/back/latest.jpg?h=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad h, got %d", resp.StatusCode)
	}
}

func TestBestFrame_CropDefaultRegion(t *testing.T) {
	f := newFixture(t)

	// nothing tracked: placeholder cropped to the default region
	resp, body := f.get(t, "/back/person/best.jpg?crop=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	w, h := jpegSize(t, body)
	if w != 300 || h != 300 {
		t.Errorf("Expected 300x300 default-region crop, got %dx%d", w, h)
	}
}

func TestBestFrame_CropTrackedRegion(t *testing.T) {
	f := newFixture(t)

	f.frames.UpsertObject("back", pipeline.TrackedObject{
		ID: "a", Label: "person", Score: 0.9, Region: image.Rect(8, 8, 40, 40),
	}, yuvFrame(64, 48), true)

	resp, body := f.get(t, "/back/person/best.jpg?crop=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	w, h := jpegSize(t, body)
	if w != 32 || h != 32 {
		t.Errorf("Expected 32x32 crop of tracked region, got %dx%d", w, h)
	}
}

func TestBestFrame_UnknownCamera(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/garage/person/best.jpg")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestMJPEGStream_UnknownCamera(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/garage")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestMJPEGStream_InvalidParams(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/back?fps=abc", "/back?fps=0", "/back?h=abc"} {
		resp, _ := f.get(t, path)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestLiveWebsocket(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?camera=back"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}
	defer conn.Close()

	// the hub registers asynchronously
	deadline := time.Now().Add(time.Second)
	for f.hub.SubscriberCount("back") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.hub.SubscriberCount("back") == 0 {
		t.Fatal("Client never registered with the hub")
	}

	f.hub.Broadcast("back", []byte(`{"camera":"back","image":"abc"}`))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read broadcast frame: %v", err)
	}
	var msg struct {
		Camera string `json:"camera"`
		Image  string `json:"image"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Broadcast payload is not JSON: %v", err)
	}
	if msg.Camera != "back" || msg.Image != "abc" {
		t.Errorf("Unexpected payload: %+v", msg)
	}
}

func TestLiveWebsocket_UnknownCamera(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/ws?camera=garage")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

// Streaming at fps=5 for 2 seconds yields 8-12 frames when frames are
// available faster than the stream rate.
func TestMJPEGStream_Rate(t *testing.T) {
	f := newFixture(t)

	f.frames.SetAnnotatedFrame("back", bgrFrame(64, 48))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/back?fps=5&h=48", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("Unexpected content type %q", ct)
	}

	// read until the context deadline cuts the connection
	data, _ := io.ReadAll(resp.Body)

	count := bytes.Count(data, []byte("--frame"))
	if count < 8 || count > 12 {
		t.Errorf("Expected 8-12 frames over 2s at fps=5, got %d", count)
	}
}
