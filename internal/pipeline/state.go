// Package pipeline exposes the live per-camera state maintained by the
// detection pipeline: the most recent raw and annotated frames and the set
// of currently tracked objects. The serving layer holds a read-only view;
// every read returns a snapshot (cloned Mat / copied struct) so a frame or
// object vanishing between two accesses is observed as "not available"
// rather than a fault.
package pipeline

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// TrackedObject is a snapshot of an in-flight object track. Region is the
// last known bounding box in source-frame pixel coordinates; Score is the
// best observed score so far.
type TrackedObject struct {
	ID     string
	Label  string
	Score  float64
	Region image.Rectangle
}

// BestShot is the best-observed snapshot for a camera/label pair. Frame is
// the best frame in I420 YUV, cloned for the caller, valid only when
// HasFrame is set; the caller owns closing it.
type BestShot struct {
	Frame    gocv.Mat
	HasFrame bool
	Region   image.Rectangle
}

// trackedObject is the store-internal record; frame is guarded by the
// owning cameraState mutex.
type trackedObject struct {
	TrackedObject
	frame    gocv.Mat
	hasFrame bool
}

type cameraState struct {
	mu           sync.RWMutex
	raw          gocv.Mat
	hasRaw       bool
	annotated    gocv.Mat
	hasAnnotated bool
	objects      map[string]*trackedObject
}

// FrameStore holds the live state for the static camera topology. The
// camera key set is fixed at construction; the pipeline mutates per-camera
// state through the setter methods, request handlers only read.
type FrameStore struct {
	cameras map[string]*cameraState
}

// NewFrameStore creates a store with one empty state per configured camera.
func NewFrameStore(cameraNames []string) *FrameStore {
	cameras := make(map[string]*cameraState, len(cameraNames))
	for _, name := range cameraNames {
		cameras[name] = &cameraState{objects: make(map[string]*trackedObject)}
	}
	return &FrameStore{cameras: cameras}
}

// HasCamera reports whether the camera is part of the known topology.
func (s *FrameStore) HasCamera(name string) bool {
	_, ok := s.cameras[name]
	return ok
}

// CameraNames returns the names of all cameras in the topology.
func (s *FrameStore) CameraNames() []string {
	names := make([]string, 0, len(s.cameras))
	for name := range s.cameras {
		names = append(names, name)
	}
	return names
}

// SetCurrentFrame stores the latest raw BGR frame for a camera, taking
// ownership of the Mat. The previous frame is closed. Unknown cameras are
// ignored (the Mat is closed).
func (s *FrameStore) SetCurrentFrame(camera string, frame gocv.Mat) {
	state, ok := s.cameras[camera]
	if !ok {
		frame.Close()
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.hasRaw {
		state.raw.Close()
	}
	state.raw = frame
	state.hasRaw = true
}

// SetAnnotatedFrame stores the latest annotated BGR frame for a camera,
// taking ownership of the Mat.
func (s *FrameStore) SetAnnotatedFrame(camera string, frame gocv.Mat) {
	state, ok := s.cameras[camera]
	if !ok {
		frame.Close()
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.hasAnnotated {
		state.annotated.Close()
	}
	state.annotated = frame
	state.hasAnnotated = true
}

// CurrentFrame returns a clone of the latest raw frame for a camera, or
// ok=false when the camera is unknown or no frame has arrived yet.
func (s *FrameStore) CurrentFrame(camera string) (gocv.Mat, bool) {
	state, ok := s.cameras[camera]
	if !ok {
		return gocv.Mat{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()
	if !state.hasRaw {
		return gocv.Mat{}, false
	}
	return state.raw.Clone(), true
}

// AnnotatedFrame returns a clone of the latest annotated frame for a
// camera, or ok=false when none is available.
func (s *FrameStore) AnnotatedFrame(camera string) (gocv.Mat, bool) {
	state, ok := s.cameras[camera]
	if !ok {
		return gocv.Mat{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()
	if !state.hasAnnotated {
		return gocv.Mat{}, false
	}
	return state.annotated.Clone(), true
}

// UpsertObject creates or updates a tracked object. bestFrame is the best
// observed frame in I420 YUV; the store takes ownership of it. Pass an
// empty Mat with hasFrame=false to update the track without replacing the
// stored frame.
func (s *FrameStore) UpsertObject(camera string, obj TrackedObject, bestFrame gocv.Mat, hasFrame bool) {
	state, ok := s.cameras[camera]
	if !ok {
		if hasFrame {
			bestFrame.Close()
		}
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	existing, ok := state.objects[obj.ID]
	if !ok {
		existing = &trackedObject{}
		state.objects[obj.ID] = existing
	}
	existing.TrackedObject = obj
	if hasFrame {
		if existing.hasFrame {
			existing.frame.Close()
		}
		existing.frame = bestFrame
		existing.hasFrame = true
	}
}

// RemoveObject drops a tracked object when its track ends or ages out.
func (s *FrameStore) RemoveObject(camera, id string) {
	state, ok := s.cameras[camera]
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if obj, ok := state.objects[id]; ok {
		if obj.hasFrame {
			obj.frame.Close()
		}
		delete(state.objects, id)
	}
}

// BestObject returns the best-observed snapshot for a camera/label pair:
// the highest scoring currently tracked object with that label. found is
// false when nothing with that label is being tracked.
func (s *FrameStore) BestObject(camera, label string) (BestShot, bool) {
	state, ok := s.cameras[camera]
	if !ok {
		return BestShot{}, false
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	var best *trackedObject
	for _, obj := range state.objects {
		if obj.Label != label {
			continue
		}
		if best == nil || obj.Score > best.Score {
			best = obj
		}
	}
	if best == nil {
		return BestShot{}, false
	}

	shot := BestShot{Region: best.Region}
	if best.hasFrame {
		shot.Frame = best.frame.Clone()
		shot.HasFrame = true
	}
	return shot, true
}

// ObjectSnapshot looks an in-flight object up by id across all cameras and
// returns a clone of its best frame (I420 YUV). Used as the live fallback
// when an event id is not persisted yet.
func (s *FrameStore) ObjectSnapshot(id string) (gocv.Mat, bool) {
	for _, state := range s.cameras {
		state.mu.RLock()
		obj, ok := state.objects[id]
		if ok && obj.hasFrame {
			frame := obj.frame.Clone()
			state.mu.RUnlock()
			return frame, true
		}
		state.mu.RUnlock()
	}
	return gocv.Mat{}, false
}
