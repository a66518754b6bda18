package hook

import (
	"context"
	"log"
	"sync"
	"time"
)

// queueSize bounds pending fade events. When hooks fall behind the oldest
// event is dropped.
const queueSize = 4

// Renderer runs hooks for fade events. It implements fade.Renderer.
// Hooks run on a single worker goroutine in event order, so FadeIn and
// FadeOut never block the caller.
type Renderer struct {
	manager  *Manager
	executor *Executor

	mu     sync.Mutex
	queue  []string
	notify chan struct{}
	quit   chan struct{}
	done   chan struct{}
	closed bool
}

// NewRenderer starts a Renderer for the hooks in manager.
func NewRenderer(manager *Manager, executor *Executor) *Renderer {
	r := &Renderer{
		manager:  manager,
		executor: executor,
		notify:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// FadeIn queues the fade_in event.
func (r *Renderer) FadeIn() { r.enqueue(EventFadeIn) }

// FadeOut queues the fade_out event.
func (r *Renderer) FadeOut() { r.enqueue(EventFadeOut) }

func (r *Renderer) enqueue(event string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.queue) == queueSize {
		log.Printf("hook: dropping %s event, hooks are behind", r.queue[0])
		r.queue = r.queue[1:]
	}
	r.queue = append(r.queue, event)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Renderer) next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return "", false
	}
	ev := r.queue[0]
	r.queue = r.queue[1:]
	return ev, true
}

func (r *Renderer) run() {
	defer close(r.done)
	for {
		for {
			ev, ok := r.next()
			if !ok {
				break
			}
			r.dispatch(ev)
		}
		select {
		case <-r.notify:
		case <-r.quit:
			// Drain so a final fade_out still reaches the hooks.
			for ev, ok := r.next(); ok; ev, ok = r.next() {
				r.dispatch(ev)
			}
			return
		}
	}
}

func (r *Renderer) dispatch(event string) {
	for _, h := range r.manager.For(event) {
		req := &Request{
			Event:     event,
			Timestamp: time.Now().UnixMilli(),
			Config:    h.Manifest.Config,
		}
		resp, err := r.executor.Execute(context.Background(), h, req)
		switch {
		case err != nil:
			log.Printf("hook %s: %s failed: %v", h.Manifest.Name, event, err)
		case !resp.Success:
			log.Printf("hook %s: %s reported: %s", h.Manifest.Name, event, resp.Error)
		}
	}
}

// Close runs any queued events and stops the worker.
func (r *Renderer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.quit)
	<-r.done
}
