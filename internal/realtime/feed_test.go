package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
)

type mergeRecorder struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (m *mergeRecorder) UpdateFromEvent(ev models.StatusEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mergeRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestFeedConsumerMergesPushes(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"duration_ms":5000}`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"inputs":[{"id":"cam1","has_signal":false}]}`)))
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	merger := &mergeRecorder{}
	hub := NewHub(zap.NewNop(), nil, nil)
	client := newTestClient("ui")
	hub.Register(client)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	consumer := NewFeedConsumer(url, merger, hub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	// The unparsable push is dropped; the two valid ones merge.
	assert.Eventually(t, func() bool { return merger.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	merger.mu.Lock()
	first := merger.events[0]
	merger.mu.Unlock()
	require.NotNil(t, first.DurationMS)
	assert.Equal(t, int64(5000), *first.DurationMS)

	// Valid pushes are relayed to UI clients verbatim.
	select {
	case msg := <-client.send:
		assert.Equal(t, "recorder_status", msg.Event)
	case <-time.After(time.Second):
		t.Fatal("push was not relayed to the hub")
	}
}

func TestFeedConsumerStopsOnCancel(t *testing.T) {
	consumer := NewFeedConsumer("ws://127.0.0.1:1/feed", &mergeRecorder{}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
