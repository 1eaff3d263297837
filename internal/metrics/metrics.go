// Package metrics aggregates the runtime counters shared with the camera
// and detector worker processes. Each gauge is updated independently by its
// producer and read atomically; a snapshot is consistent per gauge, not
// across the group.
package metrics

import (
	"math"
	"sync/atomic"
)

// Gauge is an instantaneous float64 metric with torn-free concurrent reads
// and writes.
type Gauge struct {
	bits atomic.Uint64
}

// Set stores a new value.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Value returns the current value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// CameraMetrics holds the per-camera runtime counters updated by the
// capture and processing workers.
type CameraMetrics struct {
	CameraFPS    Gauge
	ProcessFPS   Gauge
	SkippedFPS   Gauge
	DetectionFPS Gauge
	PID          atomic.Int64
	CapturePID   atomic.Int64
}

// DetectorMetrics holds the per-detector-instance runtime counters.
type DetectorMetrics struct {
	// AvgInferenceSpeed is in seconds; the stats snapshot reports it in
	// milliseconds.
	AvgInferenceSpeed Gauge
	DetectionStart    Gauge
	PID               atomic.Int64
}

// CameraStats is the rounded, JSON-serializable view of CameraMetrics.
type CameraStats struct {
	CameraFPS    float64 `json:"camera_fps"`
	ProcessFPS   float64 `json:"process_fps"`
	SkippedFPS   float64 `json:"skipped_fps"`
	DetectionFPS float64 `json:"detection_fps"`
	PID          int64   `json:"pid"`
	CapturePID   int64   `json:"capture_pid"`
}

// DetectorStats is the rounded, JSON-serializable view of DetectorMetrics.
type DetectorStats struct {
	InferenceSpeed float64 `json:"inference_speed"`
	DetectionStart float64 `json:"detection_start"`
	PID            int64   `json:"pid"`
}

// Registry holds the camera and detector metrics for the process. The key
// sets are fixed at startup from the static topology and never change, so
// lookups need no locking.
type Registry struct {
	cameras   map[string]*CameraMetrics
	detectors map[string]*DetectorMetrics
}

// NewRegistry creates a registry with one zeroed metrics block per
// configured camera and detector.
func NewRegistry(cameraNames, detectorNames []string) *Registry {
	cameras := make(map[string]*CameraMetrics, len(cameraNames))
	for _, name := range cameraNames {
		cameras[name] = &CameraMetrics{}
	}
	detectors := make(map[string]*DetectorMetrics, len(detectorNames))
	for _, name := range detectorNames {
		detectors[name] = &DetectorMetrics{}
	}
	return &Registry{cameras: cameras, detectors: detectors}
}

// Camera returns the metrics block for a camera, or nil if unknown.
func (r *Registry) Camera(name string) *CameraMetrics {
	return r.cameras[name]
}

// Detector returns the metrics block for a detector, or nil if unknown.
func (r *Registry) Detector(name string) *DetectorMetrics {
	return r.detectors[name]
}

// Snapshot merges all camera and detector counters into one
// JSON-serializable map: camera names at the top level, a "detectors" map,
// and a summed "detection_fps" across all cameras. Gauges are rounded to
// two decimals for display; stored precision is unaffected.
func (r *Registry) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(r.cameras)+2)

	totalDetectionFPS := 0.0
	for name, cm := range r.cameras {
		detectionFPS := cm.DetectionFPS.Value()
		totalDetectionFPS += detectionFPS
		out[name] = CameraStats{
			CameraFPS:    round2(cm.CameraFPS.Value()),
			ProcessFPS:   round2(cm.ProcessFPS.Value()),
			SkippedFPS:   round2(cm.SkippedFPS.Value()),
			DetectionFPS: round2(detectionFPS),
			PID:          cm.PID.Load(),
			CapturePID:   cm.CapturePID.Load(),
		}
	}

	detectors := make(map[string]DetectorStats, len(r.detectors))
	for name, dm := range r.detectors {
		detectors[name] = DetectorStats{
			InferenceSpeed: round2(dm.AvgInferenceSpeed.Value() * 1000),
			DetectionStart: dm.DetectionStart.Value(),
			PID:            dm.PID.Load(),
		}
	}
	out["detectors"] = detectors
	out["detection_fps"] = round2(totalDetectionFPS)

	return out
}

// TotalDetectionFPS sums the current detection rate across all cameras.
func (r *Registry) TotalDetectionFPS() float64 {
	total := 0.0
	for _, cm := range r.cameras {
		total += cm.DetectionFPS.Value()
	}
	return total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
