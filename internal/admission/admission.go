package admission

import (
	"sync/atomic"

	"github.com/ayusman/blinkwatch/internal/frame"
)

// StrideSource supplies the current frame stride (one admitted frame every
// n captured frames). *governor.Governor satisfies it through an adapter in
// the engine; StrideFunc adapts a plain function.
type StrideSource interface {
	FrameSkip() int
}

// StrideFunc adapts a function to StrideSource.
type StrideFunc func() int

// FrameSkip implements StrideSource.
func (f StrideFunc) FrameSkip() int { return f() }

// Stats counts admission decisions.
type Stats struct {
	Offered  uint64 `json:"offered"`
	Admitted uint64 `json:"admitted"`
	Skipped  uint64 `json:"skipped"`
	Evicted  uint64 `json:"evicted"`
	Rejected uint64 `json:"rejected"`
}

// Admission applies the stride filter on the capture goroutine and hands
// admitted samples to the pool. Every decision is O(1) and never blocks.
type Admission struct {
	stride StrideSource
	pool   *Pool

	offered  atomic.Uint64
	admitted atomic.Uint64
	skipped  atomic.Uint64
	rejected atomic.Uint64
}

// New creates an Admission feeding pool.
func New(stride StrideSource, pool *Pool) *Admission {
	return &Admission{stride: stride, pool: pool}
}

// Offer admits s iff s.Seq is a multiple of the current stride. The stride
// is read per call, so a change applies from the next evaluated frame.
// Samples that are skipped, evicted or rejected by a closed pool are released
// here; admitted samples are owned by the pool.
func (a *Admission) Offer(s *frame.Sample) bool {
	a.offered.Add(1)

	skip := a.stride.FrameSkip()
	if skip < 1 {
		skip = 1
	}
	if s.Seq%uint64(skip) != 0 {
		a.skipped.Add(1)
		s.Release()
		return false
	}

	out := a.pool.Push(s)
	if out == s {
		a.rejected.Add(1)
		s.Release()
		return false
	}
	a.admitted.Add(1)
	if out != nil {
		out.Release()
	}
	return true
}

// Stats returns the admission counters.
func (a *Admission) Stats() Stats {
	return Stats{
		Offered:  a.offered.Load(),
		Admitted: a.admitted.Load(),
		Skipped:  a.skipped.Load(),
		Evicted:  a.pool.Evictions(),
		Rejected: a.rejected.Load(),
	}
}

// Since returns the counts accumulated after base was taken.
func (s Stats) Since(base Stats) Stats {
	return Stats{
		Offered:  s.Offered - base.Offered,
		Admitted: s.Admitted - base.Admitted,
		Skipped:  s.Skipped - base.Skipped,
		Evicted:  s.Evicted - base.Evicted,
		Rejected: s.Rejected - base.Rejected,
	}
}
