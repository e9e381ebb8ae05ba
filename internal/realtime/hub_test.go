package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(id string) *Client {
	return &Client{ID: id, send: make(chan WSMessage, 4)}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c1 := newTestClient("c1")
	c2 := newTestClient("c2")
	hub.Register(c1)
	hub.Register(c2)
	assert.Equal(t, 2, hub.ClientCount())

	hub.Broadcast("recorder_status", map[string]string{"status": "recording"})

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			assert.Equal(t, "recorder_status", msg.Event)
			var payload map[string]string
			require.NoError(t, json.Unmarshal(msg.Data, &payload))
			assert.Equal(t, "recording", payload["status"])
		default:
			t.Fatalf("client %s got no message", c.ID)
		}
	}
}

func TestBroadcastSkipsFullBuffers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := &Client{ID: "slow", send: make(chan WSMessage)}
	hub.Register(c)

	// No reader; the unbuffered channel would block a naive broadcast.
	hub.Broadcast("recorder_status", map[string]string{"status": "idle"})
	assert.Equal(t, 1, hub.ClientCount())
}

func TestUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient("c1")
	hub.Register(c)
	hub.Unregister(c)
	assert.Zero(t, hub.ClientCount())

	hub.Broadcast("recorder_status", nil)
	select {
	case <-c.send:
		t.Fatal("unregistered client must not receive broadcasts")
	default:
	}
}

type fakePublisher struct {
	events   []string
	payloads [][]byte
}

func (f *fakePublisher) PublishEvent(event string, payload []byte) error {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestBroadcastAndPublish(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(zap.NewNop(), pub, nil)
	c := newTestClient("c1")
	hub.Register(c)

	hub.BroadcastAndPublish("preview_state", map[string]string{"input_id": "cam1"})

	require.Len(t, pub.events, 1)
	assert.Equal(t, "preview_state", pub.events[0])
	select {
	case msg := <-c.send:
		assert.Equal(t, "preview_state", msg.Event)
	default:
		t.Fatal("local client got no message")
	}
}

type fakeSubscriber struct {
	handler   func(event string, payload []byte)
	cancelled bool
}

func (f *fakeSubscriber) SubscribeEvents(handler func(event string, payload []byte)) (func(), error) {
	f.handler = handler
	return func() { f.cancelled = true }, nil
}

func TestCrossInstanceRelay(t *testing.T) {
	sub := &fakeSubscriber{}
	hub := NewHub(zap.NewNop(), nil, sub)
	c := newTestClient("c1")
	hub.Register(c)

	hub.Start()
	require.NotNil(t, sub.handler)

	sub.handler("recorder_status", []byte(`{"status":"recording"}`))
	select {
	case msg := <-c.send:
		assert.Equal(t, "recorder_status", msg.Event)
		assert.JSONEq(t, `{"status":"recording"}`, string(msg.Data))
	default:
		t.Fatal("relayed event did not reach local client")
	}

	hub.Stop()
	assert.True(t, sub.cancelled)
}
