package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/elax46/frigate/internal/imaging"
	"github.com/elax46/frigate/internal/logger"
	"github.com/elax46/frigate/internal/models"
	"github.com/elax46/frigate/internal/pipeline"
	"github.com/elax46/frigate/internal/repository"
)

// ListEventsHandler serves GET /events: the persisted event log filtered by
// camera, label, zone, after, before and limit, newest first.
func ListEventsHandler(events repository.EventRepository, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := &models.EventFilter{
			Camera: q.Get("camera"),
			Label:  q.Get("label"),
			Zone:   q.Get("zone"),
		}

		if v := q.Get("after"); v != "" {
			after, err := strconv.ParseFloat(v, 64)
			if err != nil {
				invalidParam(w, "after")
				return
			}
			filter.After = after
		}

		if v := q.Get("before"); v != "" {
			before, err := strconv.ParseFloat(v, 64)
			if err != nil {
				invalidParam(w, "before")
				return
			}
			filter.Before = before
		}

		if v := q.Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				invalidParam(w, "limit")
				return
			}
			filter.Limit = limit
		}

		result, err := events.GetAll(filter)
		if err != nil {
			log.Error("Failed to query events: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result, log)
	}
}

// EventsSummaryHandler serves GET /events/summary: event counts grouped by
// camera, label, day and zone.
func EventsSummaryHandler(events repository.EventRepository, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := events.Summary()
		if err != nil {
			log.Error("Failed to query event summary: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, summary, log)
	}
}

// GetEventHandler serves GET /events/{id}: the full event record.
func GetEventHandler(events repository.EventRepository, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		event, err := events.GetByID(id)
		if err != nil {
			log.Error("Failed to get event %s: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if event == nil {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, event, log)
	}
}

// EventSnapshotHandler serves GET /events/{id}/snapshot.jpg: the stored
// thumbnail, falling back to the live tracked object's best frame when the
// id has not been persisted yet.
func EventSnapshotHandler(events repository.EventRepository, frames *pipeline.FrameStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		event, err := events.GetByID(id)
		if err != nil {
			log.Error("Failed to get event %s: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if event != nil && len(event.Thumbnail) > 0 {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(event.Thumbnail)
			return
		}

		// the object may be actively tracked and not persisted yet
		if yuv, ok := frames.ObjectSnapshot(id); ok {
			bgr := imaging.ToBGR(yuv)
			yuv.Close()
			jpg, err := imaging.EncodeJPEG(bgr)
			bgr.Close()
			if err != nil {
				log.Error("Failed to encode snapshot for %s: %v", id, err)
				http.Error(w, "Event not found", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(jpg)
			return
		}

		http.Error(w, "Event not found", http.StatusNotFound)
	}
}
