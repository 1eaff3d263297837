package repository

import (
	"github.com/elax46/frigate/internal/models"
)

// EventRepository defines the interface for event store operations. The
// serving layer only reads; Insert exists for the event writer side of the
// pipeline and for test fixtures.
type EventRepository interface {
	// Create operations
	Insert(event *models.Event) error

	// Read operations
	GetByID(id string) (*models.Event, error)
	GetAll(filter *models.EventFilter) ([]models.Event, error)
	Summary() ([]models.EventSummary, error)
}
