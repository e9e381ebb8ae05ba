package preview

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// RTP buffer size (MTU-friendly). Used with sync.Pool to avoid per-packet allocs.
const rtpBufferSize = 1500

var rtpBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, rtpBufferSize)
		return &b
	},
}

// FlowStats counts inbound preview media per input.
type FlowStats struct {
	Packets int64 `json:"packets"`
	Bytes   int64 `json:"bytes"`
}

type flowCounter struct {
	packets atomic.Int64
	bytes   atomic.Int64
}

// DrainSink consumes inbound preview RTP and keeps per-input flow
// counters so the API can report that media is actually moving. The
// service does not render media; UIs attach to the appliance directly.
type DrainSink struct {
	mu       sync.Mutex
	counters map[string]*flowCounter
	gen      map[string]uint64
	log      *zap.Logger
}

// NewDrainSink creates an empty sink.
func NewDrainSink(log *zap.Logger) *DrainSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &DrainSink{
		counters: make(map[string]*flowCounter),
		gen:      make(map[string]uint64),
		log:      log,
	}
}

// AttachTrack starts draining a track for the input.
func (d *DrainSink) AttachTrack(inputID string, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	d.mu.Lock()
	counter, ok := d.counters[inputID]
	if !ok {
		counter = &flowCounter{}
		d.counters[inputID] = counter
	}
	gen := d.gen[inputID]
	d.mu.Unlock()

	go d.drain(inputID, gen, track, counter)
}

// Clear invalidates any running drains for the input and resets its
// counters. Late reads from an invalidated drain are dropped.
func (d *DrainSink) Clear(inputID string) {
	d.mu.Lock()
	d.gen[inputID]++
	delete(d.counters, inputID)
	d.mu.Unlock()
}

// Stats returns the flow counters for one input.
func (d *DrainSink) Stats(inputID string) FlowStats {
	d.mu.Lock()
	counter := d.counters[inputID]
	d.mu.Unlock()
	if counter == nil {
		return FlowStats{}
	}
	return FlowStats{
		Packets: counter.packets.Load(),
		Bytes:   counter.bytes.Load(),
	}
}

func (d *DrainSink) drain(inputID string, gen uint64, track *webrtc.TrackRemote, counter *flowCounter) {
	for {
		// Reuse buffer from pool to avoid per-packet allocs and bound memory.
		ptr := rtpBufferPool.Get().(*[]byte)
		n, _, err := track.Read(*ptr)
		if err != nil {
			rtpBufferPool.Put(ptr)
			return
		}
		d.mu.Lock()
		stale := d.gen[inputID] != gen
		d.mu.Unlock()
		if stale {
			rtpBufferPool.Put(ptr)
			return
		}
		counter.packets.Add(1)
		counter.bytes.Add(int64(n))
		rtpBufferPool.Put(ptr)
	}
}
