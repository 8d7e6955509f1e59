package watch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_DeliversLatestValueOnce(t *testing.T) {
	var (
		count atomic.Int32
		mu    sync.Mutex
		got   int
	)
	d := NewDebouncer(50*time.Millisecond, func(v int) {
		count.Add(1)
		mu.Lock()
		got = v
		mu.Unlock()
	})
	defer d.Stop()

	for i := 1; i <= 10; i++ {
		d.Push(i)
		time.Sleep(5 * time.Millisecond)
	}

	// Wait for debounce window to expire
	time.Sleep(150 * time.Millisecond)

	if n := count.Load(); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if got != 10 {
		t.Errorf("expected the last value, got %d", got)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func(string) {
		count.Add(1)
	})

	d.Push("spec.yaml")
	d.Stop()
	d.Push("spec.yaml")

	time.Sleep(100 * time.Millisecond)

	if n := count.Load(); n != 0 {
		t.Errorf("expected no delivery after stop, got %d", n)
	}
}
