// Package fade turns the eye signal into screen fades: once eyes stay open
// past the blink threshold the screen fades in, and it reverts the moment
// they close or tracking stops.
package fade

import (
	"context"
	"log"
	"sync"
	"time"
)

// Renderer draws the fade. Methods are called with the controller's lock
// held and must not call back into the controller.
type Renderer interface {
	FadeIn()
	FadeOut()
}

// Controller decides when to fade.
type Controller struct {
	renderer  Renderer
	threshold func() time.Duration

	mu    sync.Mutex
	open  bool
	faded bool
	gen   uint64
	timer *time.Timer
	fades uint64
}

// NewController creates a controller. threshold is read each time the eyes
// open, so preference changes apply from the next opening.
func NewController(renderer Renderer, threshold func() time.Duration) *Controller {
	return &Controller{renderer: renderer, threshold: threshold}
}

// Handle applies one eye signal value. Repeated values are ignored.
func (c *Controller) Handle(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if open == c.open {
		return
	}
	c.open = open
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if !open {
		if c.faded {
			c.faded = false
			c.renderer.FadeOut()
		}
		return
	}

	gen := c.gen
	c.timer = time.AfterFunc(c.threshold(), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || !c.open || c.faded {
			return
		}
		c.faded = true
		c.fades++
		c.renderer.FadeIn()
	})
}

// Run feeds values from ch into Handle until ctx is done or ch is closed,
// then reverts any fade.
func (c *Controller) Run(ctx context.Context, ch <-chan bool) {
	defer c.Handle(false)
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			c.Handle(v)
		}
	}
}

// Faded reports whether a fade is showing.
func (c *Controller) Faded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faded
}

// Fades returns how many fades have been shown.
func (c *Controller) Fades() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fades
}

// LogRenderer logs fades instead of drawing them.
type LogRenderer struct{}

// FadeIn implements Renderer.
func (LogRenderer) FadeIn() { log.Println("Fade: eyes open too long, fading in") }

// FadeOut implements Renderer.
func (LogRenderer) FadeOut() { log.Println("Fade: reverted") }

// Multi fans fades out to several renderers.
type Multi []Renderer

// FadeIn implements Renderer.
func (m Multi) FadeIn() {
	for _, r := range m {
		r.FadeIn()
	}
}

// FadeOut implements Renderer.
func (m Multi) FadeOut() {
	for _, r := range m {
		r.FadeOut()
	}
}
