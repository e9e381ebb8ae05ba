package preview

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Manager keeps one preview session per camera input and serializes
// slot ownership: swapping an input always closes the old session
// before the new one negotiates.
type Manager struct {
	transport  SignalTransport
	iceServers []webrtc.ICEServer
	sink       MediaSink
	onState    StateListener
	log        *zap.Logger

	mu    sync.Mutex
	slots map[string]*Session
}

// NewManager creates an empty preview manager.
func NewManager(transport SignalTransport, iceURLs []string, sink MediaSink, onState StateListener, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		transport:  transport,
		iceServers: ICEServers(iceURLs),
		sink:       sink,
		onState:    onState,
		log:        log,
		slots:      make(map[string]*Session),
	}
}

// Open starts (or restarts) the preview for an input. Negotiation runs
// in the background; observers read per-input State.
func (m *Manager) Open(inputID string) {
	sess := m.session(inputID, true)
	go sess.Open(context.Background())
}

// Close tears down the preview for an input. No-op when none is open.
func (m *Manager) Close(inputID string) {
	m.mu.Lock()
	sess := m.slots[inputID]
	delete(m.slots, inputID)
	m.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Swap moves a display slot to a new input: the old preview is closed
// first, then the new input negotiates.
func (m *Manager) Swap(oldInputID, newInputID string) {
	if oldInputID == newInputID {
		return
	}
	if oldInputID != "" {
		m.Close(oldInputID)
	}
	if newInputID != "" {
		m.Open(newInputID)
	}
}

// Retry re-invokes the open for an input whose last attempt failed.
func (m *Manager) Retry(inputID string) {
	m.Open(inputID)
}

// ReopenAll renegotiates every open slot.
func (m *Manager) ReopenAll() {
	for _, sess := range m.sessions() {
		go sess.Open(context.Background())
	}
}

// ReopenErrored renegotiates only the slots currently in an error state.
func (m *Manager) ReopenErrored() {
	for _, sess := range m.sessions() {
		if sess.State().Error != "" {
			go sess.Open(context.Background())
		}
	}
}

// States returns the observable state of every open slot.
func (m *Manager) States() map[string]State {
	out := make(map[string]State)
	for _, sess := range m.sessions() {
		out[sess.InputID()] = sess.State()
	}
	return out
}

// State returns one slot's state; ok is false when no preview is open
// for the input.
func (m *Manager) State(inputID string) (State, bool) {
	m.mu.Lock()
	sess := m.slots[inputID]
	m.mu.Unlock()
	if sess == nil {
		return State{}, false
	}
	return sess.State(), true
}

// CloseAll tears down every preview (shutdown path).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	slots := m.slots
	m.slots = make(map[string]*Session)
	m.mu.Unlock()
	for _, sess := range slots {
		sess.Close()
	}
}

func (m *Manager) session(inputID string, create bool) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.slots[inputID]
	if !ok && create {
		sess = NewSession(inputID, m.transport, m.iceServers, m.sink, m.onState, m.log)
		m.slots[inputID] = sess
	}
	return sess
}

func (m *Manager) sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.slots))
	for _, sess := range m.slots {
		out = append(out, sess)
	}
	return out
}

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// ICEServers builds the NAT-traversal helper set. Multiple independent
// servers are configured so no single unreachable helper blocks
// negotiation; an empty list falls back to a public STUN server.
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return defaultICE
	}
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}
