package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{5 * time.Second, "00:00:05"},
		{90 * time.Second, "00:01:30"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{25 * time.Hour, "25:00:00"},
		{-time.Second, "00:00:00"},
		{1500 * time.Millisecond, "00:00:01"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatDuration(tc.in), "duration %s", tc.in)
	}
}

func TestParseStatusEvent(t *testing.T) {
	raw := []byte(`{
		"session_id": "sess-1",
		"duration_ms": 5000,
		"bytes_written": 4096,
		"inputs": [
			{"id": "cam1", "has_signal": true, "bytes_written": 2048, "resolution": "1920x1080", "framerate": 50},
			{"id": "cam2"}
		],
		"firmware_extra": "ignored"
	}`)
	ev, err := ParseStatusEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.SessionID)
	assert.Equal(t, "sess-1", *ev.SessionID)
	require.NotNil(t, ev.DurationMS)
	assert.Equal(t, int64(5000), *ev.DurationMS)
	require.Len(t, ev.Inputs, 2)
	assert.Equal(t, "cam1", ev.Inputs[0].ID)
	require.NotNil(t, ev.Inputs[0].HasSignal)
	assert.True(t, *ev.Inputs[0].HasSignal)
	assert.Equal(t, 50, *ev.Inputs[0].Framerate)

	// Absent fields stay nil so merges know to leave state alone.
	assert.Nil(t, ev.Inputs[1].HasSignal)
	assert.Nil(t, ev.Inputs[1].BytesWritten)
	require.NotNil(t, ev.BytesWritten)
	assert.Equal(t, int64(4096), *ev.BytesWritten)
}

func TestParseStatusEventPartial(t *testing.T) {
	ev, err := ParseStatusEvent([]byte(`{"duration_ms": 1000}`))
	require.NoError(t, err)
	assert.Nil(t, ev.SessionID)
	assert.Nil(t, ev.BytesWritten)
	assert.Empty(t, ev.Inputs)
}

func TestParseStatusEventInvalid(t *testing.T) {
	_, err := ParseStatusEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestRecordingSessionClone(t *testing.T) {
	var nilSess *RecordingSession
	assert.Nil(t, nilSess.Clone())

	sess := &RecordingSession{
		ID:     "sess-1",
		Inputs: []CameraInput{{ID: "cam1", HasSignal: true}},
	}
	cp := sess.Clone()
	cp.Inputs[0].HasSignal = false
	assert.True(t, sess.Inputs[0].HasSignal, "clone must not share the snapshot")
}
