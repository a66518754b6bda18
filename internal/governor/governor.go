// Package governor decides how much work the blink pipeline may do based on
// the power source and memory pressure of the host.
package governor

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Profile is the throttle configuration the pipeline runs with.
type Profile struct {
	// FrameSkip admits one frame out of every FrameSkip captured frames.
	FrameSkip int
	// CacheTTL is how long a cached face region may be reused.
	CacheTTL time.Duration
	// PoolCapacity is the number of admitted frames that may wait for detection.
	PoolCapacity int

	OnBattery     bool
	UnderPressure bool
}

// PowerSource reports whether the host runs on battery.
type PowerSource interface {
	OnBattery() (bool, error)
}

// MemoryMonitor reports whether the host is under memory pressure.
type MemoryMonitor interface {
	UnderPressure() (bool, error)
}

// Config holds the governor policy.
type Config struct {
	// SampleEvery is the number of observed frames between host samples.
	SampleEvery int

	BaseFrameSkip       int
	BatteryMinFrameSkip int
	// MaxFrameSkip bounds every adjustment so tracking never stalls.
	MaxFrameSkip int

	BaseCacheTTL    time.Duration
	BatteryCacheTTL time.Duration

	PoolCapacity         int
	PressurePoolCapacity int
	// PressureCooldown is how long pressure adjustments stay in place after
	// the last pressured sample.
	PressureCooldown time.Duration
}

// DefaultConfig returns the default throttle policy.
func DefaultConfig() Config {
	return Config{
		SampleEvery:          30,
		BaseFrameSkip:        1,
		BatteryMinFrameSkip:  3,
		MaxFrameSkip:         8,
		BaseCacheTTL:         500 * time.Millisecond,
		BatteryCacheTTL:      time.Second,
		PoolCapacity:         3,
		PressurePoolCapacity: 2,
		PressureCooldown:     30 * time.Second,
	}
}

// Governor samples the host every few frames and publishes a Profile.
// Profile is safe to call from any goroutine; Observe and Sample are meant
// for the processing goroutine.
type Governor struct {
	config Config
	power  PowerSource
	memory MemoryMonitor
	now    func() time.Time

	mu            sync.Mutex
	observed      int
	onBattery     bool
	pressureUntil time.Time

	profile atomic.Pointer[Profile]
}

// New creates a Governor. power and memory may be nil, meaning mains power
// and no memory pressure.
func New(config Config, power PowerSource, memory MemoryMonitor) *Governor {
	config = sanitize(config)
	g := &Governor{
		config: config,
		power:  power,
		memory: memory,
		now:    time.Now,
	}
	p := g.compute(false, false)
	g.profile.Store(&p)
	return g
}

func sanitize(c Config) Config {
	d := DefaultConfig()
	if c.SampleEvery < 1 {
		c.SampleEvery = d.SampleEvery
	}
	if c.MaxFrameSkip < 1 {
		c.MaxFrameSkip = d.MaxFrameSkip
	}
	if c.BaseFrameSkip < 1 {
		c.BaseFrameSkip = 1
	}
	if c.BatteryMinFrameSkip < 1 {
		c.BatteryMinFrameSkip = c.BaseFrameSkip
	}
	if c.BaseCacheTTL <= 0 {
		c.BaseCacheTTL = d.BaseCacheTTL
	}
	if c.BatteryCacheTTL <= 0 {
		c.BatteryCacheTTL = c.BaseCacheTTL
	}
	if c.PoolCapacity < 1 {
		c.PoolCapacity = d.PoolCapacity
	}
	if c.PressurePoolCapacity < 1 || c.PressurePoolCapacity > c.PoolCapacity {
		c.PressurePoolCapacity = c.PoolCapacity
	}
	if c.PressureCooldown < 0 {
		c.PressureCooldown = 0
	}
	return c
}

// Profile returns the current throttle profile.
func (g *Governor) Profile() Profile {
	return *g.profile.Load()
}

// Observe counts one processed frame and samples the host every
// SampleEvery frames. It returns the current profile and whether it changed.
func (g *Governor) Observe() (Profile, bool) {
	g.mu.Lock()
	g.observed++
	due := g.observed >= g.config.SampleEvery
	if due {
		g.observed = 0
	}
	g.mu.Unlock()

	if !due {
		return g.Profile(), false
	}
	return g.Sample()
}

// Sample reads the host state now and recomputes the profile.
func (g *Governor) Sample() (Profile, bool) {
	battery, pressured := g.readHost()

	g.mu.Lock()
	now := g.now()
	g.onBattery = battery
	if pressured {
		g.pressureUntil = now.Add(g.config.PressureCooldown)
	}
	underPressure := pressured || now.Before(g.pressureUntil)
	next := g.compute(g.onBattery, underPressure)
	g.mu.Unlock()

	prev := g.profile.Swap(&next)
	changed := prev == nil || *prev != next
	if changed {
		log.Printf("Throttle profile: skip=%d ttl=%s pool=%d battery=%v pressure=%v",
			next.FrameSkip, next.CacheTTL, next.PoolCapacity, next.OnBattery, next.UnderPressure)
	}
	return next, changed
}

// Reset clears the frame counter and pressure state, keeping the last
// power reading.
func (g *Governor) Reset() {
	g.mu.Lock()
	g.observed = 0
	g.pressureUntil = time.Time{}
	p := g.compute(g.onBattery, false)
	g.mu.Unlock()
	g.profile.Store(&p)
}

// readHost samples the host. A failing check keeps its previous reading.
func (g *Governor) readHost() (battery, pressured bool) {
	g.mu.Lock()
	battery = g.onBattery
	g.mu.Unlock()

	if g.power != nil {
		if b, err := g.power.OnBattery(); err != nil {
			log.Printf("Power source check failed: %v", err)
		} else {
			battery = b
		}
	}
	if g.memory != nil {
		if p, err := g.memory.UnderPressure(); err != nil {
			log.Printf("Memory pressure check failed: %v", err)
		} else {
			pressured = p
		}
	}
	return battery, pressured
}

func (g *Governor) compute(battery, pressure bool) Profile {
	c := g.config

	skip := c.BaseFrameSkip
	ttl := c.BaseCacheTTL
	pool := c.PoolCapacity

	if battery {
		if skip < c.BatteryMinFrameSkip {
			skip = c.BatteryMinFrameSkip
		}
		ttl = c.BatteryCacheTTL
	}
	if pressure {
		skip *= 2
		ttl *= 2
		pool = c.PressurePoolCapacity
	}

	return Profile{
		FrameSkip:     clamp(skip, 1, c.MaxFrameSkip),
		CacheTTL:      ttl,
		PoolCapacity:  pool,
		OnBattery:     battery,
		UnderPressure: pressure,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
