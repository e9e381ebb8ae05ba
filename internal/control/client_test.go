package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/record/start", r.URL.Path)
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "interview", body["name"])
		json.NewEncoder(w).Encode(StartResult{SessionID: "sess-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4, time.Millisecond, nil)
	res, err := c.Start(context.Background(), "interview", []string{"cam1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestStartExhaustsBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4, time.Millisecond, nil)
	_, err := c.Start(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestStartContextCancelStopsRetrying(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, 10, time.Hour, nil)
	done := make(chan error, 1)
	go func() {
		_, err := c.Start(ctx, "", nil)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return after cancel")
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestStopSendsSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/record/stop", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sess-1", body["session_id"])
		json.NewEncoder(w).Encode(StopResult{
			SessionID:  "sess-1",
			DurationMS: 42000,
			Files:      map[string]string{"cam1": "/rec/cam1.mkv"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, time.Millisecond, nil)
	res, err := c.Stop(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42000), res.DurationMS)
	assert.Equal(t, "/rec/cam1.mkv", res.Files["cam1"])
}

func TestInputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/inputs", r.URL.Path)
		w.Write([]byte(`{"inputs":[{"id":"cam1","label":"Camera 1","has_signal":true},{"id":"cam2","label":"Camera 2","has_signal":false}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, time.Millisecond, nil)
	inputs, err := c.Inputs(context.Background())
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "cam1", inputs[0].ID)
	assert.True(t, inputs[0].HasSignal)
	assert.False(t, inputs[1].HasSignal)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/status", r.URL.Path)
		w.Write([]byte(`{"duration_ms":5000,"inputs":[{"id":"cam1","has_signal":true}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, time.Millisecond, nil)
	ev, err := c.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev.DurationMS)
	assert.Equal(t, int64(5000), *ev.DurationMS)
	require.Len(t, ev.Inputs, 1)
	require.NotNil(t, ev.Inputs[0].HasSignal)
	assert.True(t, *ev.Inputs[0].HasSignal)
}
