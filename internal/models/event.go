package models

// Event is a persisted record of a completed object detection. Events are
// written by the detection pipeline when a track closes; the serving layer
// only reads them.
type Event struct {
	ID        string   `json:"id"`
	Camera    string   `json:"camera"`
	Label     string   `json:"label"`
	StartTime float64  `json:"start_time"`
	EndTime   float64  `json:"end_time"`
	Zones     []string `json:"zones"`
	Thumbnail []byte   `json:"thumbnail,omitempty"`
}

// EventFilter narrows an event query. All set options are combined with AND.
// A zero After/Before means unbounded; a Limit <= 0 falls back to the
// repository default of 100.
type EventFilter struct {
	Camera string
	Label  string
	Zone   string
	After  float64
	Before float64
	Limit  int
}

// EventSummary is one row of the grouped event counts: events per camera,
// label, local day and zone. Events without zones are grouped under an
// empty zone name.
type EventSummary struct {
	Camera string `json:"camera"`
	Label  string `json:"label"`
	Day    string `json:"day"`
	Zone   string `json:"zone"`
	Count  int    `json:"count"`
}
