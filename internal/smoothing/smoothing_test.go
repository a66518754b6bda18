package smoothing

import "testing"

func feed(w *Window, verdicts ...int) bool {
	var out bool
	for _, v := range verdicts {
		out = w.Push(v == 1)
	}
	return out
}

func TestWindow_FullWindowMajority(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []int
		want     bool
	}{
		{"three of five open", []int{1, 1, 1, 0, 0}, true},
		{"two of five open", []int{1, 1, 0, 0, 0}, false},
		{"all open", []int{1, 1, 1, 1, 1}, true},
		{"all closed", []int{0, 0, 0, 0, 0}, false},
		{"latest closed but majority open", []int{0, 1, 1, 1, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := feed(New(5), tt.verdicts...); got != tt.want {
				t.Errorf("verdict after %v = %v, want %v", tt.verdicts, got, tt.want)
			}
		})
	}
}

func TestWindow_PartialReturnsRaw(t *testing.T) {
	w := New(5)
	for i, v := range []bool{true, false, true, false} {
		if got := w.Push(v); got != v {
			t.Errorf("push %d: got %v, want raw verdict %v", i, got, v)
		}
	}
	if w.Full() {
		t.Error("window should not be full after 4 pushes")
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New(5)
	feed(w, 1, 1, 1, 1, 1)

	// Each closed verdict displaces an open one.
	if got := feed(w, 0, 0); !got {
		t.Error("3/5 open should still be open")
	}
	if got := feed(w, 0); got {
		t.Error("2/5 open should be closed")
	}
	if w.Len() != 5 {
		t.Errorf("Len() = %d, want 5", w.Len())
	}
}

func TestWindow_EvenTieIsClosed(t *testing.T) {
	w := New(4)
	if got := feed(w, 1, 1, 0, 0); got {
		t.Error("exact half must resolve to closed")
	}
	if w.Mean() != 0.5 {
		t.Errorf("Mean() = %v, want 0.5", w.Mean())
	}
}

func TestWindow_Reset(t *testing.T) {
	w := New(3)
	feed(w, 1, 1, 1)
	w.Reset()

	if w.Len() != 0 || w.Full() {
		t.Fatalf("Len() = %d after Reset, want 0", w.Len())
	}
	if got := w.Push(false); got {
		t.Error("first push after Reset should return the raw verdict")
	}
}

func TestWindow_LongRunNeverExceedsCapacity(t *testing.T) {
	w := New(5)
	for i := range 1000 {
		w.Push(i%3 == 0)
		if w.Len() > w.Capacity() {
			t.Fatalf("Len() = %d exceeds capacity", w.Len())
		}
	}
}

func TestNew_InvalidCapacity(t *testing.T) {
	if got := New(0).Capacity(); got != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", got, DefaultCapacity)
	}
}
