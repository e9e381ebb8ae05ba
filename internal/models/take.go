package models

import (
	"time"

	"github.com/google/uuid"
)

// Take archive status.
const (
	TakeStatusCompleted = "completed"
	TakeStatusArchiving = "archiving"
	TakeStatusArchived  = "archived"
)

// Take is a completed recording session persisted to the take history.
type Take struct {
	ID        uuid.UUID         `json:"id"`
	SessionID string            `json:"session_id"`
	Name      string            `json:"name,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	StoppedAt time.Time         `json:"stopped_at"`
	Duration  time.Duration     `json:"duration_ms"`
	Files     map[string]string `json:"files"` // input id -> output file path on the recorder
	Status    string            `json:"status"`
	S3Keys    map[string]string `json:"s3_keys,omitempty"` // input id -> archived object key
	CreatedAt time.Time         `json:"created_at"`
}
