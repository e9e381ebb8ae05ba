package preview

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
)

// Reopener is the slice of the manager the coordinator drives.
type Reopener interface {
	ReopenAll()
	ReopenErrored()
	Swap(oldInputID, newInputID string)
}

// Coordinator decides when previews must be torn down and rebuilt. Only
// three triggers reopen a session: an input swap, recording ending while
// a preview is errored, and recording starting (after a settle delay so
// the appliance can rebuild its output tee). A healthy preview is
// otherwise left untouched.
type Coordinator struct {
	mgr      Reopener
	statusFn func() models.Status
	settle   time.Duration
	log      *zap.Logger

	mu sync.Mutex
	// gen supersedes scheduled reopens: a delayed reopen fires only if no
	// newer recording transition has happened and recording is still live.
	gen uint64
}

// NewCoordinator wires the coordinator to a preview manager and a status
// source (the session machine). Register OnStatusChange as a machine
// transition listener.
func NewCoordinator(mgr Reopener, statusFn func() models.Status, settle time.Duration, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if settle <= 0 {
		settle = 3 * time.Second
	}
	return &Coordinator{mgr: mgr, statusFn: statusFn, settle: settle, log: log}
}

// OnStatusChange reacts to session machine transitions.
func (c *Coordinator) OnStatusChange(old, new models.Status) {
	wasLive := pipelineRecording(old)
	isLive := pipelineRecording(new)
	if wasLive == isLive {
		return
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if !isLive {
		// The appliance pipeline is healthy again once recording stops;
		// errored previews can reconnect immediately.
		c.log.Info("recording ended, reopening errored previews")
		c.mgr.ReopenErrored()
		return
	}

	c.log.Info("recording started, scheduling preview reopen", zap.Duration("settle", c.settle))
	time.AfterFunc(c.settle, func() {
		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale || !pipelineRecording(c.statusFn()) {
			c.log.Debug("scheduled preview reopen skipped")
			return
		}
		c.mgr.ReopenAll()
	})
}

// OnInputChange always fully reopens the slot for the new input.
func (c *Coordinator) OnInputChange(oldInputID, newInputID string) {
	c.mgr.Swap(oldInputID, newInputID)
}

// pipelineRecording reports whether the appliance's media pipeline is in
// its recording configuration (the output tee is up for both of these).
func pipelineRecording(s models.Status) bool {
	return s == models.StatusRecording || s == models.StatusStopping
}
