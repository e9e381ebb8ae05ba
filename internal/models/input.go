package models

// CameraInput is one physical or logical video source on the recorder.
type CameraInput struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	HasSignal    bool   `json:"has_signal"`
	IsRecording  bool   `json:"is_recording"`
	BytesWritten int64  `json:"bytes_written"`
	Resolution   string `json:"resolution,omitempty"`
	Framerate    int    `json:"framerate,omitempty"`
}

// Clone returns a copy so callers cannot mutate machine-owned state.
func (i CameraInput) Clone() CameraInput {
	return i
}
