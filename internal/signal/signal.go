// Package signal publishes debounced boolean state to any number of
// subscribers over bounded channels.
package signal

import (
	"sync"
	"time"
)

// DefaultWindow is the default coalescing window for rising edges.
const DefaultWindow = 75 * time.Millisecond

// Bool is a single-writer, multi-reader boolean signal. A change to true is
// published only if it is still true after the coalescing window; a change
// to false is published immediately and cancels a pending true. Subscribers
// receive values on bounded channels; a slow subscriber loses its oldest
// undelivered value, never blocking the writer.
type Bool struct {
	mu      sync.Mutex
	window  time.Duration
	value   bool
	pending bool
	gen     uint64
	timer   *time.Timer
	subs    map[int]chan bool
	nextID  int
	closed  bool
}

// NewBool creates a signal with the given coalescing window. A window of
// zero publishes every change immediately.
func NewBool(window time.Duration) *Bool {
	if window < 0 {
		window = 0
	}
	return &Bool{window: window, subs: make(map[int]chan bool)}
}

// Set records a new value from the writer.
func (b *Bool) Set(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	// A repeated true keeps the pending rise and its deadline.
	if v && b.pending {
		return
	}
	b.cancelPendingLocked()

	if v == b.value {
		return
	}
	if !v || b.window == 0 {
		b.publishLocked(v)
		return
	}

	b.pending = true
	gen := b.gen
	b.timer = time.AfterFunc(b.window, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed || !b.pending || b.gen != gen {
			return
		}
		b.pending = false
		b.publishLocked(true)
	})
}

// Value returns the last published value.
func (b *Bool) Value() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Flush publishes a pending value now.
func (b *Bool) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.pending {
		return
	}
	b.cancelPendingLocked()
	b.publishLocked(true)
}

// Subscribe returns a channel that first receives the current value and then
// every published change. size bounds the channel buffer. The returned
// function unsubscribes and closes the channel.
func (b *Bool) Subscribe(size int) (<-chan bool, func()) {
	if size < 1 {
		size = 1
	}
	ch := make(chan bool, size)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	ch <- b.value

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Close cancels any pending value and closes every subscriber channel.
func (b *Bool) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.cancelPendingLocked()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Bool) cancelPendingLocked() {
	b.gen++
	b.pending = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Bool) publishLocked(v bool) {
	b.value = v
	for _, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Full: drop the oldest value and retry. Only the writer sends, so
		// the second attempt always has room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
