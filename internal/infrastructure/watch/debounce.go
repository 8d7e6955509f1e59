// Package watch re-triggers work when a spec file changes on disk.
package watch

import (
	"sync"
	"time"
)

// Debouncer delivers the most recent value once no new value has arrived
// for the window duration. Editors emit several events per save; only the
// last one is handed on.
type Debouncer[T any] struct {
	window  time.Duration
	deliver func(T)

	mu      sync.Mutex
	timer   *time.Timer
	latest  T
	stopped bool
}

func NewDebouncer[T any](window time.Duration, deliver func(T)) *Debouncer[T] {
	return &Debouncer[T]{window: window, deliver: deliver}
}

// Push records v and restarts the window.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.latest = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	v := d.latest
	d.mu.Unlock()

	d.deliver(v)
}

// Stop drops any pending value. Pushes after Stop are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
