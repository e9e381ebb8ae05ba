package models

import (
	"fmt"
	"time"
)

// Status is the recording lifecycle state. Exactly one authoritative
// instance exists process-wide, owned by the session machine.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRecording Status = "recording"
	StatusStopping  Status = "stopping"
)

// RecordingSession is one take. It exists iff status is not idle.
type RecordingSession struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ms"`
	BytesWritten int64         `json:"bytes_written"`
	// Inputs holds a snapshot of the inputs that carried signal when the
	// take started.
	Inputs []CameraInput `json:"inputs"`
}

// Clone deep-copies the session including its input snapshot.
func (s *RecordingSession) Clone() *RecordingSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Inputs = make([]CameraInput, len(s.Inputs))
	copy(out.Inputs, s.Inputs)
	return &out
}

// FormatDuration renders a duration as HH:MM:SS for display.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
