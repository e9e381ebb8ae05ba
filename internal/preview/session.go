package preview

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// State is the observable condition of one preview attempt. Loading
// false with no error means media is flowing. ConnectionType is only
// meaningful once the path reaches connected and resets to unknown on
// every renegotiation and on failure.
type State struct {
	Loading        bool           `json:"loading"`
	Error          string         `json:"error,omitempty"`
	ConnectionType ConnectionType `json:"connection_type"`
}

// MediaSink receives inbound preview media. Implementations must not
// block the pion callback goroutine.
type MediaSink interface {
	AttachTrack(inputID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	Clear(inputID string)
}

// StateListener observes preview state changes for one input.
type StateListener func(inputID string, st State)

// Session owns the negotiation and media-attach lifecycle for one camera
// input. At most one live peer connection exists per session; opening
// always tears down the previous connection first. Failures never
// propagate as errors: callers observe State.
type Session struct {
	inputID    string
	transport  SignalTransport
	iceServers []webrtc.ICEServer
	sink       MediaSink
	onState    StateListener
	log        *zap.Logger

	mu    sync.Mutex
	pc    *webrtc.PeerConnection
	state State
	// gen invalidates in-flight negotiations and late pion callbacks:
	// any completion observing a stale generation is a no-op.
	gen uint64
}

// NewSession creates a closed session for one input slot.
func NewSession(inputID string, transport SignalTransport, iceServers []webrtc.ICEServer, sink MediaSink, onState StateListener, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		inputID:    inputID,
		transport:  transport,
		iceServers: iceServers,
		sink:       sink,
		onState:    onState,
		log:        log.With(zap.String("input_id", inputID)),
		state:      State{ConnectionType: ConnectionUnknown},
	}
}

// InputID returns the camera input this session previews.
func (s *Session) InputID() string { return s.inputID }

// State returns the current observable state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open tears down any previous connection and negotiates a fresh
// receive-only peer connection for the input. Blocking; callers run it
// off the hot path. All failures land in State, never in a return value.
func (s *Session) Open(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	old := s.pc
	s.pc = nil
	s.state = State{Loading: true, ConnectionType: ConnectionUnknown}
	s.mu.Unlock()
	s.emit(State{Loading: true, ConnectionType: ConnectionUnknown})
	if old != nil {
		_ = old.Close()
		s.sink.Clear(s.inputID)
	}

	pc, err := s.negotiate(ctx, gen)
	if err != nil {
		if pc != nil {
			_ = pc.Close()
		}
		s.fail(gen, err.Error())
		return
	}
	if pc == nil {
		// Superseded mid-negotiation; the newer attempt owns the slot.
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = pc.Close()
		return
	}
	s.pc = pc
	s.mu.Unlock()
}

// negotiate runs the offer/answer exchange. A nil connection with nil
// error means the attempt was superseded and must be discarded silently.
func (s *Session) negotiate(ctx context.Context, gen uint64) (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
	if err != nil {
		return nil, err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if !s.current(gen) {
			return
		}
		s.sink.AttachTrack(s.inputID, track, receiver)
		s.setState(gen, func(st *State) { st.Loading = false })
		s.log.Debug("preview media attached", zap.String("kind", track.Kind().String()))
	})

	pc.OnConnectionStateChange(func(cs webrtc.PeerConnectionState) {
		if !s.current(gen) {
			return
		}
		switch cs {
		case webrtc.PeerConnectionStateConnected:
			ct := ClassifyPeerConnection(pc)
			s.setState(gen, func(st *State) { st.ConnectionType = ct })
			s.log.Info("preview connected", zap.String("connection_type", string(ct)))
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			s.setState(gen, func(st *State) {
				st.Loading = false
				st.Error = "connection lost"
				st.ConnectionType = ConnectionUnknown
			})
			s.log.Warn("preview path lost", zap.String("state", cs.String()))
		}
	})

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return pc, err
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return pc, err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return pc, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return pc, ctx.Err()
	}

	answer, err := s.transport.Exchange(ctx, s.inputID, pc.LocalDescription().SDP)
	if err != nil {
		return pc, err
	}
	if !s.current(gen) {
		_ = pc.Close()
		return nil, nil
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return pc, err
	}
	return pc, nil
}

// Close releases the peer connection and clears the media sink. Safe to
// call repeatedly; a close mid-negotiation invalidates the attempt.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	old := s.pc
	s.pc = nil
	s.state = State{ConnectionType: ConnectionUnknown}
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	s.sink.Clear(s.inputID)
	s.emit(State{ConnectionType: ConnectionUnknown})
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Session) fail(gen uint64, msg string) {
	s.setState(gen, func(st *State) {
		st.Loading = false
		st.Error = msg
		st.ConnectionType = ConnectionUnknown
	})
	s.log.Warn("preview open failed", zap.String("error", msg))
}

func (s *Session) setState(gen uint64, mutate func(*State)) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	mutate(&s.state)
	st := s.state
	s.mu.Unlock()
	s.emit(st)
}

func (s *Session) emit(st State) {
	if s.onState != nil {
		s.onState(s.inputID, st)
	}
}
