package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces a burst of Trigger calls into a single invocation
// of its callback, fired after the configured quiet period has elapsed
// since the most recent Trigger.
type Debouncer struct {
	delay    time.Duration
	callback func()

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewDebouncer returns a Debouncer that calls callback once, delay after
// the last Trigger.
func NewDebouncer(delay time.Duration, callback func()) *Debouncer {
	return &Debouncer{delay: delay, callback: callback}
}

// Trigger (re)starts the quiet-period timer. A Trigger after Cancel is a
// no-op.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.callback)
}

// Cancel stops any pending callback and disables future Trigger calls.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
