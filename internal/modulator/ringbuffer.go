package modulator

import (
	"sync"
	"time"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Outcome is one entry in a Recent-Performance Window ring buffer.
type Outcome struct {
	PnLPerContract float64
	MaxProfit      float64
	IsWin          bool
	Timestamp      time.Time
	Confidence     float64
	Membership     float64
}

// RingBuffer is the bounded, per-(instrument,direction) ring of the last N
// outcomes populated synchronously on outcome submission (spec.md §5: "an
// in-process ring buffer populated synchronously on outcome submission for
// near-real-time tail analysis"), distinct from the Memory Manager's
// reload-gated partitions.
type RingBuffer struct {
	mu       sync.Mutex
	capacity int
	entries  []Outcome
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 20 // spec.md default N
	}
	return &RingBuffer{capacity: capacity}
}

// Push appends an outcome, evicting the oldest entry once capacity is hit.
func (r *RingBuffer) Push(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, o)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

// Snapshot returns a copy of the current contents, oldest first.
func (r *RingBuffer) Snapshot() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.entries))
	copy(out, r.entries)
	return out
}

// ToVectors adapts the ring's outcomes into synthetic vectors for Analyze,
// so near-real-time submissions can extend a partition's last-reload tail
// without waiting for the next reload tick.
func (r *RingBuffer) ToVectors(instrument string, direction vectorstore.Direction) []vectorstore.Vector {
	entries := r.Snapshot()
	out := make([]vectorstore.Vector, 0, len(entries))
	for _, o := range entries {
		pnl := o.PnLPerContract
		out = append(out, vectorstore.Vector{
			Instrument:     instrument,
			Direction:      direction,
			Timestamp:      o.Timestamp,
			DataType:       vectorstore.Recent,
			PnLPerContract: &pnl,
			MaxProfit:      o.MaxProfit,
		})
	}
	return out
}

// Registry keys ring buffers by (instrument, direction) so the modulator can
// consult near-real-time tail data ahead of the next reload tick.
type Registry struct {
	mu      sync.Mutex
	buffers map[string]*RingBuffer
	capacity int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{buffers: make(map[string]*RingBuffer), capacity: capacity}
}

func (r *Registry) For(key string) *RingBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	rb, ok := r.buffers[key]
	if !ok {
		rb = NewRingBuffer(r.capacity)
		r.buffers[key] = rb
	}
	return rb
}
