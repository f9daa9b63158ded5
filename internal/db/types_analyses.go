package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/types"
)

// AnalysisStatus constants
const (
	AnalysisStatusQueued    = "queued"
	AnalysisStatusRunning   = "running"
	AnalysisStatusCompleted = "completed"
	AnalysisStatusFailed    = "failed"
)

// ErrInvalidTransition is returned when an update would move a record
// backwards or out of a terminal status
var ErrInvalidTransition = errors.New("invalid analysis status transition")

// IsTerminalStatus reports whether status is completed or failed
func IsTerminalStatus(status string) bool {
	return status == AnalysisStatusCompleted || status == AnalysisStatusFailed
}

// Upload is an uploaded source document
type Upload struct {
	ID         uuid.UUID `json:"id"`
	UserID     *string   `json:"user_id,omitempty"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// UploadInput represents input for creating an upload
type UploadInput struct {
	UserID     *string
	Filename   string
	StorageKey string
}

// AnalysisResult is the durable job record of one analysis run
type AnalysisResult struct {
	ID       uuid.UUID `json:"id"`
	UploadID uuid.UUID `json:"upload_id"`
	Status   string    `json:"status"`
	// Output is the raw stored document; use DecodeOutput for the typed value
	Output    json.RawMessage `json:"output,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DecodeOutput validates and decodes the stored output. A record without
// output returns nil, nil.
func (r *AnalysisResult) DecodeOutput() (*types.AnalysisOutput, error) {
	if len(r.Output) == 0 || string(r.Output) == "null" {
		return nil, nil
	}
	var out types.AnalysisOutput
	if err := json.Unmarshal(r.Output, &out); err != nil {
		return nil, fmt.Errorf("analysis %s: %w", r.ID, err)
	}
	return &out, nil
}

// AnalysisUpdate is a partial update of a record. Nil fields are left unchanged.
type AnalysisUpdate struct {
	Status *string
	Output *types.AnalysisOutput
	Error  *string
}

// StatusPtr returns a pointer to status, for building updates
func StatusPtr(status string) *string {
	return &status
}
