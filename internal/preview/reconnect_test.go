package preview

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
)

type fakeReopener struct {
	mu        sync.Mutex
	reopenAll int
	reopenErr int
	swaps     [][2]string
}

func (f *fakeReopener) ReopenAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopenAll++
}

func (f *fakeReopener) ReopenErrored() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopenErr++
}

func (f *fakeReopener) Swap(oldID, newID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, [2]string{oldID, newID})
}

func (f *fakeReopener) counts() (all, errored int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reopenAll, f.reopenErr
}

type statusSource struct {
	mu sync.Mutex
	s  models.Status
}

func (s *statusSource) set(v models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s = v
}

func (s *statusSource) get() models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

func TestRecordingStartReopensAfterSettle(t *testing.T) {
	mgr := &fakeReopener{}
	src := &statusSource{s: models.StatusRecording}
	c := NewCoordinator(mgr, src.get, 20*time.Millisecond, nil)

	c.OnStatusChange(models.StatusStarting, models.StatusRecording)

	all, _ := mgr.counts()
	assert.Zero(t, all, "reopen must wait out the settle delay")

	assert.Eventually(t, func() bool {
		all, _ := mgr.counts()
		return all == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSettledReopenSkippedWhenRecordingAlreadyEnded(t *testing.T) {
	mgr := &fakeReopener{}
	src := &statusSource{s: models.StatusRecording}
	c := NewCoordinator(mgr, src.get, 20*time.Millisecond, nil)

	c.OnStatusChange(models.StatusStarting, models.StatusRecording)
	src.set(models.StatusIdle)
	c.OnStatusChange(models.StatusStopping, models.StatusIdle)

	time.Sleep(60 * time.Millisecond)
	all, errored := mgr.counts()
	assert.Zero(t, all, "stale scheduled reopen must not fire")
	assert.Equal(t, 1, errored, "recording end reopens errored previews immediately")
}

func TestSettledReopenRechecksStatusAtFireTime(t *testing.T) {
	mgr := &fakeReopener{}
	src := &statusSource{s: models.StatusRecording}
	c := NewCoordinator(mgr, src.get, 20*time.Millisecond, nil)

	c.OnStatusChange(models.StatusStarting, models.StatusRecording)
	// Status flips back without a transition reaching the coordinator.
	src.set(models.StatusIdle)

	time.Sleep(60 * time.Millisecond)
	all, _ := mgr.counts()
	assert.Zero(t, all)
}

func TestIntentTransitionsDoNotReopen(t *testing.T) {
	mgr := &fakeReopener{}
	src := &statusSource{s: models.StatusIdle}
	c := NewCoordinator(mgr, src.get, time.Millisecond, nil)

	// idle -> starting is not a pipeline change; neither is
	// recording -> stopping.
	c.OnStatusChange(models.StatusIdle, models.StatusStarting)
	c.OnStatusChange(models.StatusRecording, models.StatusStopping)

	time.Sleep(20 * time.Millisecond)
	all, errored := mgr.counts()
	assert.Zero(t, all)
	assert.Zero(t, errored)
}

func TestFailedStartReopensNothing(t *testing.T) {
	mgr := &fakeReopener{}
	src := &statusSource{s: models.StatusIdle}
	c := NewCoordinator(mgr, src.get, time.Millisecond, nil)

	c.OnStatusChange(models.StatusIdle, models.StatusStarting)
	c.OnStatusChange(models.StatusStarting, models.StatusIdle)

	time.Sleep(20 * time.Millisecond)
	all, errored := mgr.counts()
	assert.Zero(t, all)
	assert.Zero(t, errored)
}

func TestInputChangeSwapsSlot(t *testing.T) {
	mgr := &fakeReopener{}
	c := NewCoordinator(mgr, func() models.Status { return models.StatusIdle }, time.Millisecond, nil)

	c.OnInputChange("cam1", "cam4")

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	assert.Equal(t, [][2]string{{"cam1", "cam4"}}, mgr.swaps)
}
