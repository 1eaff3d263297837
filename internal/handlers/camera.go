package handlers

import (
	"image"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gocv.io/x/gocv"

	"github.com/elax46/frigate/internal/config"
	"github.com/elax46/frigate/internal/imaging"
	"github.com/elax46/frigate/internal/logger"
	"github.com/elax46/frigate/internal/pipeline"
)

// placeholder dimensions served when a camera has produced no frame yet
const (
	defaultFrameWidth  = 1280
	defaultFrameHeight = 720
)

// defaultCropRegion is used when a best-shot crop is requested but the
// object never recorded a bounding region.
var defaultCropRegion = image.Rect(0, 0, 300, 300)

var activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "frigate_active_streams",
	Help: "Number of open MJPEG streams",
})

// LatestFrameHandler serves GET /{camera}/latest.jpg: the most recent raw
// frame, resized to the requested height, JPEG encoded.
func LatestFrameHandler(frames *pipeline.FrameStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		camera := mux.Vars(r)["camera"]
		if !frames.HasCamera(camera) {
			cameraNotFound(w, camera)
			return
		}

		height, hasHeight, ok := optionalIntParam(w, r, "h")
		if !ok {
			return
		}

		frame, found := frames.CurrentFrame(camera)
		if !found {
			frame = imaging.Blank(defaultFrameWidth, defaultFrameHeight)
		}

		if !hasHeight {
			height = frame.Rows()
		}
		resized := imaging.ResizeToHeight(frame, height, gocv.InterpolationArea)
		frame.Close()

		jpg, err := imaging.EncodeJPEG(resized)
		resized.Close()
		if err != nil {
			log.Error("Failed to encode frame for %s: %v", camera, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}
}

// BestFrameHandler serves GET /{camera}/{label}/best.jpg: the best observed
// snapshot for the camera/label pair, optionally cropped to the object's
// last known region, resized to the requested height.
func BestFrameHandler(frames *pipeline.FrameStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		camera := vars["camera"]
		label := vars["label"]
		if !frames.HasCamera(camera) {
			cameraNotFound(w, camera)
			return
		}

		cropRequested := false
		if v := r.URL.Query().Get("crop"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				invalidParam(w, "crop")
				return
			}
			cropRequested = n != 0
		}

		height, hasHeight, ok := optionalIntParam(w, r, "h")
		if !ok {
			return
		}

		shot, found := frames.BestObject(camera, label)

		var frame gocv.Mat
		if found && shot.HasFrame {
			frame = imaging.ToBGR(shot.Frame)
			shot.Frame.Close()
		} else {
			frame = imaging.Blank(defaultFrameWidth, defaultFrameHeight)
		}

		if cropRequested {
			region := shot.Region
			if !found || region.Empty() {
				region = defaultCropRegion
			}
			cropped := imaging.Crop(frame, region)
			frame.Close()
			frame = cropped
		}

		if !hasHeight {
			height = frame.Rows()
		}
		resized := imaging.ResizeToHeight(frame, height, gocv.InterpolationArea)
		frame.Close()

		jpg, err := imaging.EncodeJPEG(resized)
		resized.Close()
		if err != nil {
			log.Error("Failed to encode best frame for %s/%s: %v", camera, label, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}
}

// MJPEGStreamHandler serves GET /{camera}: an unbounded multipart stream of
// annotated frames. Each iteration sleeps 1/fps, fetches the latest
// annotated frame (placeholder if none), resizes with linear interpolation
// and emits one part. The loop ends when the client disconnects; frames are
// never emitted closer together than the requested interval, though the
// achieved rate may be lower when encoding outruns it.
func MJPEGStreamHandler(frames *pipeline.FrameStore, cfg *config.Config, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		camera := mux.Vars(r)["camera"]
		if !frames.HasCamera(camera) {
			cameraNotFound(w, camera)
			return
		}

		fps := cfg.StreamFPS
		if v := r.URL.Query().Get("fps"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				invalidParam(w, "fps")
				return
			}
			fps = n
		}

		height := cfg.StreamHeight
		if v := r.URL.Query().Get("h"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				invalidParam(w, "h")
				return
			}
			height = n
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		streamID := uuid.NewString()[:8]
		log.Info("Stream %s opened: camera=%s fps=%d h=%d", streamID, camera, fps, height)
		activeStreams.Inc()
		defer activeStreams.Dec()

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

		interval := time.Duration(float64(time.Second) / float64(fps))
		ctx := r.Context()

		for {
			select {
			case <-ctx.Done():
				log.Info("Stream %s closed by client", streamID)
				return
			case <-time.After(interval):
			}

			frame, found := frames.AnnotatedFrame(camera)
			if !found {
				// placeholder keeps the requested aspect ratio
				frame = imaging.Blank(height*16/9, height)
			}
			resized := imaging.ResizeToHeight(frame, height, gocv.InterpolationLinear)
			frame.Close()

			jpg, err := imaging.EncodeJPEG(resized)
			resized.Close()
			if err != nil {
				log.Error("Stream %s: failed to encode frame: %v", streamID, err)
				continue
			}

			if _, err := io.WriteString(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
				return
			}
			if _, err := w.Write(jpg); err != nil {
				return
			}
			if _, err := io.WriteString(w, "\r\n\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// optionalIntParam parses a positive integer query parameter. ok=false
// means the 400 response has already been written.
func optionalIntParam(w http.ResponseWriter, r *http.Request, name string) (value int, has bool, ok bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		invalidParam(w, name)
		return 0, false, false
	}
	return n, true, true
}
