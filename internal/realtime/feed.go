package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
)

const (
	feedReconnectMin = time.Second
	feedReconnectMax = 30 * time.Second
)

// StatusMerger receives narrowed status pushes (the session machine).
type StatusMerger interface {
	UpdateFromEvent(ev models.StatusEvent)
}

// FeedConsumer dials the appliance's out-of-band status websocket and
// merges each push into the session machine, then relays it to UIs.
type FeedConsumer struct {
	url     string
	machine StatusMerger
	hub     *Hub
	logger  *zap.Logger
}

// NewFeedConsumer creates a consumer for the appliance status feed. The
// hub may be nil when no UI relaying is wanted.
func NewFeedConsumer(url string, machine StatusMerger, hub *Hub, logger *zap.Logger) *FeedConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedConsumer{url: url, machine: machine, hub: hub, logger: logger}
}

// Run consumes the feed until ctx is done, redialing with capped
// exponential backoff when the connection drops.
func (f *FeedConsumer) Run(ctx context.Context) {
	backoff := feedReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.consume(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("status feed disconnected", zap.Error(err), zap.Duration("redial_in", backoff))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > feedReconnectMax {
			backoff = feedReconnectMax
		}
	}
}

func (f *FeedConsumer) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	f.logger.Info("status feed connected", zap.String("url", f.url))

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := models.ParseStatusEvent(raw)
		if err != nil {
			f.logger.Debug("unparsable status push dropped", zap.Error(err))
			continue
		}
		f.machine.UpdateFromEvent(ev)
		if f.hub != nil {
			f.hub.Broadcast("recorder_status", json.RawMessage(raw))
		}
	}
}
