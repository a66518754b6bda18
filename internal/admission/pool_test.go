package admission

import "testing"

func TestPool_EvictsOldest(t *testing.T) {
	pool := NewPool(3)

	var bufs []*trackedBuffer
	for seq := uint64(0); seq < 5; seq++ {
		s, buf := newSample(seq)
		bufs = append(bufs, buf)
		if out := pool.Push(s); out != nil {
			out.Release()
		}
	}

	if pool.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", pool.Len())
	}
	if pool.Evictions() != 2 {
		t.Errorf("Evictions() = %d, want 2", pool.Evictions())
	}
	if bufs[0].closed.Load() != 1 || bufs[1].closed.Load() != 1 {
		t.Error("the two oldest samples should have been evicted and released")
	}

	for _, want := range []uint64{2, 3, 4} {
		s := pool.Pop()
		if s == nil || s.Seq != want {
			t.Fatalf("Pop() = %v, want seq %d", s, want)
		}
		s.Release()
	}
	if pool.Pop() != nil {
		t.Error("Pop() on empty pool should return nil")
	}
}

func TestPool_Ready(t *testing.T) {
	pool := NewPool(2)

	select {
	case <-pool.Ready():
		t.Fatal("Ready should not fire before a push")
	default:
	}

	s, _ := newSample(0)
	pool.Push(s)
	s2, _ := newSample(1)
	pool.Push(s2) // second notification coalesces

	select {
	case <-pool.Ready():
	default:
		t.Fatal("Ready should fire after a push")
	}
	select {
	case <-pool.Ready():
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestPool_Resize(t *testing.T) {
	pool := NewPool(3)
	for seq := uint64(0); seq < 3; seq++ {
		s, _ := newSample(seq)
		pool.Push(s)
	}

	out := pool.Resize(2)
	if len(out) != 1 || out[0].Seq != 0 {
		t.Fatalf("Resize(2) evicted %d samples, want only seq 0", len(out))
	}
	if pool.Capacity() != 2 || pool.Len() != 2 {
		t.Errorf("Capacity() = %d, Len() = %d, want 2, 2", pool.Capacity(), pool.Len())
	}

	if out := pool.Resize(4); out != nil {
		t.Errorf("growing should not evict, got %d", len(out))
	}
	if s := pool.Pop(); s == nil || s.Seq != 1 {
		t.Errorf("Pop() after resize = %v, want seq 1", s)
	}

	s, _ := newSample(9)
	pool.Push(s)
	if pool.Len() != 2 {
		t.Errorf("Len() = %d, want 2", pool.Len())
	}
}

func TestPool_CloseAndOpen(t *testing.T) {
	pool := NewPool(3)
	s, _ := newSample(0)
	pool.Push(s)

	left := pool.Close()
	if len(left) != 1 || left[0] != s {
		t.Fatalf("Close() returned %d samples, want the waiting one", len(left))
	}

	s2, _ := newSample(1)
	if out := pool.Push(s2); out != s2 {
		t.Error("push into a closed pool should hand the sample back")
	}

	pool.Open()
	s3, _ := newSample(2)
	if out := pool.Push(s3); out != nil {
		t.Error("push after Open should be accepted")
	}
}

func TestNewPool_InvalidCapacity(t *testing.T) {
	if got := NewPool(0).Capacity(); got != DefaultPoolCapacity {
		t.Errorf("Capacity() = %d, want %d", got, DefaultPoolCapacity)
	}
}
