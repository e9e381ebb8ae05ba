// Package session owns the authoritative recording lifecycle state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/control"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
)

var (
	// ErrNotIdle is returned by Start when a session is already in flight.
	ErrNotIdle = errors.New("recording already in progress")
	// ErrNotRecording is returned by Stop when there is nothing to stop.
	ErrNotRecording = errors.New("no active recording")
)

const defaultTickInterval = 250 * time.Millisecond

// TransitionListener observes status transitions. Listeners are invoked
// synchronously after the transition is applied, in registration order.
type TransitionListener func(old, new models.Status)

// Machine is the single writer of recording status, session identity and
// per-input recording/byte state. All other components read it or call
// its operations.
type Machine struct {
	mu       sync.Mutex
	status   models.Status
	session  *models.RecordingSession
	inputs   map[string]*models.CameraInput
	order    []string
	duration time.Duration
	lastErr  string

	recorder control.Recorder
	log      *zap.Logger

	listenerMu sync.Mutex
	listeners  []TransitionListener

	tick     time.Duration
	now      func() time.Time
	tickStop chan struct{}
}

// NewMachine creates an idle machine backed by the given recorder client.
func NewMachine(recorder control.Recorder, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		status:   models.StatusIdle,
		inputs:   make(map[string]*models.CameraInput),
		recorder: recorder,
		log:      log,
		tick:     defaultTickInterval,
		now:      time.Now,
	}
}

// AddListener registers a transition observer.
func (m *Machine) AddListener(fn TransitionListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Machine) notify(old, new models.Status) {
	m.listenerMu.Lock()
	listeners := make([]TransitionListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.Unlock()
	for _, fn := range listeners {
		fn(old, new)
	}
}

// Start begins a new take. The starting state is observable immediately,
// before the appliance call resolves. On failure the machine reverts to
// idle, records the error, and returns it so the caller can offer retry.
func (m *Machine) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	if m.status != models.StatusIdle {
		m.mu.Unlock()
		return ErrNotIdle
	}
	var inputIDs []string
	for _, id := range m.order {
		if m.inputs[id].HasSignal {
			inputIDs = append(inputIDs, id)
		}
	}
	m.status = models.StatusStarting
	m.lastErr = ""
	m.mu.Unlock()
	m.notify(models.StatusIdle, models.StatusStarting)

	res, err := m.recorder.Start(ctx, name, inputIDs)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err.Error()
		m.session = nil
		m.status = models.StatusIdle
		m.mu.Unlock()
		m.notify(models.StatusStarting, models.StatusIdle)
		m.log.Error("recording start failed", zap.Error(err))
		return err
	}

	m.mu.Lock()
	startedAt := res.StartedAt
	if startedAt.IsZero() {
		startedAt = m.now()
	}
	snapshot := make([]models.CameraInput, 0, len(inputIDs))
	for _, id := range inputIDs {
		if in, ok := m.inputs[id]; ok {
			in.IsRecording = true
			snapshot = append(snapshot, in.Clone())
		}
	}
	m.session = &models.RecordingSession{
		ID:        res.SessionID,
		Name:      name,
		StartedAt: startedAt,
		Inputs:    snapshot,
	}
	m.duration = 0
	m.status = models.StatusRecording
	m.startTickerLocked()
	m.mu.Unlock()
	m.notify(models.StatusStarting, models.StatusRecording)
	m.log.Info("recording started",
		zap.String("session_id", res.SessionID),
		zap.String("name", name),
		zap.Strings("inputs", inputIDs),
	)
	return nil
}

// Stop ends the current take and returns the appliance's final result.
// On failure the machine reverts to recording: the take is presumed
// still live, so the displayed status never lies.
func (m *Machine) Stop(ctx context.Context) (control.StopResult, error) {
	m.mu.Lock()
	if m.status != models.StatusRecording {
		m.mu.Unlock()
		return control.StopResult{}, ErrNotRecording
	}
	sessionID := m.session.ID
	m.status = models.StatusStopping
	m.lastErr = ""
	m.mu.Unlock()
	m.notify(models.StatusRecording, models.StatusStopping)

	res, err := m.recorder.Stop(ctx, sessionID)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err.Error()
		m.status = models.StatusRecording
		m.mu.Unlock()
		m.notify(models.StatusStopping, models.StatusRecording)
		m.log.Error("recording stop failed", zap.String("session_id", sessionID), zap.Error(err))
		return control.StopResult{}, err
	}

	m.mu.Lock()
	// Force-clear every input, not just the session snapshot: no input may
	// report recording once the session is gone.
	for _, in := range m.inputs {
		in.IsRecording = false
		in.BytesWritten = 0
	}
	m.stopTickerLocked()
	m.session = nil
	m.duration = 0
	m.status = models.StatusIdle
	m.mu.Unlock()
	m.notify(models.StatusStopping, models.StatusIdle)
	m.log.Info("recording stopped",
		zap.String("session_id", res.SessionID),
		zap.Int64("duration_ms", res.DurationMS),
		zap.Int("files", len(res.Files)),
	)
	return res, nil
}

// UpdateFromEvent merges an out-of-band status push. Unknown input ids
// are ignored for forward compatibility, and events carrying a session
// id that does not match the live session are dropped wholesale so a
// stale push can never land on a newer take. Status never changes here.
func (m *Machine) UpdateFromEvent(ev models.StatusEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.SessionID != nil && m.session != nil && m.session.ID != *ev.SessionID {
		return
	}
	if ev.DurationMS != nil {
		m.duration = time.Duration(*ev.DurationMS) * time.Millisecond
		if m.session != nil {
			m.session.Duration = m.duration
		}
	}
	if ev.BytesWritten != nil && m.session != nil {
		m.session.BytesWritten = *ev.BytesWritten
	}
	for _, inEv := range ev.Inputs {
		in, ok := m.inputs[inEv.ID]
		if !ok {
			continue
		}
		if inEv.HasSignal != nil {
			in.HasSignal = *inEv.HasSignal
		}
		if inEv.BytesWritten != nil {
			in.BytesWritten = *inEv.BytesWritten
		}
		if inEv.Resolution != nil {
			in.Resolution = *inEv.Resolution
		}
		if inEv.Framerate != nil {
			in.Framerate = *inEv.Framerate
		}
	}
}

// UpdateInputSignal updates signal fields for one input. Nil optionals
// leave the previous value untouched; unknown ids are ignored.
func (m *Machine) UpdateInputSignal(id string, hasSignal bool, resolution *string, framerate *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.inputs[id]
	if !ok {
		return
	}
	in.HasSignal = hasSignal
	if resolution != nil {
		in.Resolution = *resolution
	}
	if framerate != nil {
		in.Framerate = *framerate
	}
}

// SetInputs replaces the input list wholesale (full refresh). Recording
// flags survive the refresh only while a session is active.
func (m *Machine) SetInputs(inputs []models.CameraInput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := m.status == models.StatusRecording || m.status == models.StatusStopping
	next := make(map[string]*models.CameraInput, len(inputs))
	order := make([]string, 0, len(inputs))
	for _, in := range inputs {
		cp := in.Clone()
		if prev, ok := m.inputs[cp.ID]; ok && active {
			cp.IsRecording = prev.IsRecording
			cp.BytesWritten = prev.BytesWritten
		} else {
			cp.IsRecording = false
		}
		next[cp.ID] = &cp
		order = append(order, cp.ID)
	}
	m.inputs = next
	m.order = order
}

// Status returns the current lifecycle state.
func (m *Machine) Status() models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Session returns a copy of the active session, or nil when idle.
func (m *Machine) Session() *models.RecordingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Duration returns the elapsed recording time.
func (m *Machine) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// FormattedDuration returns the elapsed time as HH:MM:SS.
func (m *Machine) FormattedDuration() string {
	return models.FormatDuration(m.Duration())
}

// Inputs returns a copy of every known input in refresh order.
func (m *Machine) Inputs() []models.CameraInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CameraInput, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.inputs[id].Clone())
	}
	return out
}

// SignalInputs returns only the inputs currently carrying signal.
func (m *Machine) SignalInputs() []models.CameraInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CameraInput
	for _, id := range m.order {
		if m.inputs[id].HasSignal {
			out = append(out, m.inputs[id].Clone())
		}
	}
	return out
}

// LastError returns the most recent start/stop failure message, empty
// when the last operation succeeded.
func (m *Machine) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Close stops the duration ticker. The machine is not usable afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTickerLocked()
}

// startTickerLocked launches the duration ticker. Elapsed time is always
// recomputed from the wall-clock start, never accumulated, so ticks that
// fire late cannot drift the displayed duration.
func (m *Machine) startTickerLocked() {
	m.stopTickerLocked()
	stop := make(chan struct{})
	m.tickStop = stop
	startedAt := m.session.StartedAt
	sessionID := m.session.ID
	ticker := time.NewTicker(m.tick)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				if m.session != nil && m.session.ID == sessionID {
					m.duration = m.now().Sub(startedAt)
					m.session.Duration = m.duration
				}
				m.mu.Unlock()
			}
		}
	}()
}

func (m *Machine) stopTickerLocked() {
	if m.tickStop != nil {
		close(m.tickStop)
		m.tickStop = nil
	}
}
