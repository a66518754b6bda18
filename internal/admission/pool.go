// Package admission decides which captured frames reach detection and holds
// admitted frames in a small bounded pool until the detector takes them.
package admission

import (
	"sync"

	"github.com/ayusman/blinkwatch/internal/frame"
)

// DefaultPoolCapacity is the default number of frames waiting for detection.
const DefaultPoolCapacity = 3

// Pool is a bounded FIFO of admitted samples shared by the capture goroutine
// (producer) and the processing goroutine (consumer). Pushing past capacity
// evicts the oldest sample; it never blocks. The lock only guards append and
// evict, so evicted samples are returned to the caller for release.
type Pool struct {
	mu       sync.Mutex
	ring     []*frame.Sample
	head     int
	size     int
	evicted  uint64
	closed   bool
	notifyCh chan struct{}
}

// NewPool creates a pool holding at most capacity samples.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = DefaultPoolCapacity
	}
	return &Pool{
		ring:     make([]*frame.Sample, capacity),
		notifyCh: make(chan struct{}, 1),
	}
}

// Push appends s. It returns the sample that was evicted to make room, or s
// itself when the pool is closed; the caller owns the returned sample.
func (p *Pool) Push(s *frame.Sample) *frame.Sample {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return s
	}

	var out *frame.Sample
	if p.size == len(p.ring) {
		out = p.ring[p.head]
		p.ring[p.head] = nil
		p.head = (p.head + 1) % len(p.ring)
		p.size--
		p.evicted++
	}
	p.ring[(p.head+p.size)%len(p.ring)] = s
	p.size++
	p.mu.Unlock()

	select {
	case p.notifyCh <- struct{}{}:
	default:
	}
	return out
}

// Pop removes and returns the oldest sample, or nil when the pool is empty.
func (p *Pool) Pop() *frame.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.size == 0 {
		return nil
	}
	s := p.ring[p.head]
	p.ring[p.head] = nil
	p.head = (p.head + 1) % len(p.ring)
	p.size--
	return s
}

// Ready is signalled after a push. Consumers should Pop until empty after
// every receive.
func (p *Pool) Ready() <-chan struct{} {
	return p.notifyCh
}

// Len returns the number of waiting samples.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Capacity returns the current capacity.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ring)
}

// Evictions returns the number of samples evicted since creation.
func (p *Pool) Evictions() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evicted
}

// Resize changes the capacity, keeping the newest samples. Samples that no
// longer fit are returned oldest first for the caller to release.
func (p *Pool) Resize(capacity int) []*frame.Sample {
	if capacity < 1 {
		capacity = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if capacity == len(p.ring) {
		return nil
	}

	items := p.drainLocked()
	var out []*frame.Sample
	if len(items) > capacity {
		out = items[:len(items)-capacity]
		items = items[len(items)-capacity:]
		p.evicted += uint64(len(out))
	}

	p.ring = make([]*frame.Sample, capacity)
	copy(p.ring, items)
	p.head = 0
	p.size = len(items)
	return out
}

// Drain removes every waiting sample, oldest first.
func (p *Pool) Drain() []*frame.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drainLocked()
}

func (p *Pool) drainLocked() []*frame.Sample {
	items := make([]*frame.Sample, 0, p.size)
	for p.size > 0 {
		items = append(items, p.ring[p.head])
		p.ring[p.head] = nil
		p.head = (p.head + 1) % len(p.ring)
		p.size--
	}
	p.head = 0
	return items
}

// Open re-enables pushes after Close.
func (p *Pool) Open() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = false
}

// Close rejects further pushes and returns the samples still waiting.
func (p *Pool) Close() []*frame.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.drainLocked()
}
