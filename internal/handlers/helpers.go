package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elax46/frigate/internal/logger"
)

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error encoding JSON response: %v", err)
	}
}

// cameraNotFound writes the 404 response for camera-scoped routes.
func cameraNotFound(w http.ResponseWriter, camera string) {
	http.Error(w, fmt.Sprintf("Camera named %s not found", camera), http.StatusNotFound)
}

// invalidParam writes the 400 response for a malformed query parameter.
func invalidParam(w http.ResponseWriter, name string) {
	http.Error(w, fmt.Sprintf("Invalid %s parameter", name), http.StatusBadRequest)
}
