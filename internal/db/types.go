package db

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses written before a run reports its own
const RunStatusRunning = "running"

// Run represents a validation run record
type Run struct {
	ID          uuid.UUID  `json:"id"`
	Blobs       []string   `json:"blobs"`
	Status      string     `json:"status"`
	OutputFile  *string    `json:"output_file,omitempty"`
	Errors      []string   `json:"errors"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStep represents a single step execution for a run
type RunStep struct {
	ID           uuid.UUID `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	Step         string    `json:"step"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	DurationMs   *int      `json:"duration_ms,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
