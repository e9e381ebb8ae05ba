package models

import "encoding/json"

// StatusEvent is a partial status push from the recorder's out-of-band
// feed. All fields are optional; absent fields leave state untouched.
type StatusEvent struct {
	SessionID    *string      `json:"session_id,omitempty"`
	DurationMS   *int64       `json:"duration_ms,omitempty"`
	BytesWritten *int64       `json:"bytes_written,omitempty"`
	Inputs       []InputEvent `json:"inputs,omitempty"`
}

// InputEvent is the per-input portion of a status push. Events may
// reference inputs not yet known locally; those are dropped on merge.
type InputEvent struct {
	ID           string  `json:"id"`
	HasSignal    *bool   `json:"has_signal,omitempty"`
	BytesWritten *int64  `json:"bytes_written,omitempty"`
	Resolution   *string `json:"resolution,omitempty"`
	Framerate    *int    `json:"framerate,omitempty"`
}

// ParseStatusEvent narrows a loosely typed feed payload into a
// StatusEvent. Unknown fields are dropped by encoding/json.
func ParseStatusEvent(raw []byte) (StatusEvent, error) {
	var ev StatusEvent
	err := json.Unmarshal(raw, &ev)
	return ev, err
}
