package progress

import (
	"sync"
	"time"
)

// DefaultDebounceDelay is the write-coalescing window for remote saves.
const DefaultDebounceDelay = 1000 * time.Millisecond

// Debouncer coalesces rapid calls into one: each Call replaces the pending
// work and resets the delay timer, so only the last call within the window
// runs. Each persistence stream (progress, session position, wizard blob)
// gets its own instance so unrelated writes don't cancel each other.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
}

// NewDebouncer returns a debouncer with the given delay. A non-positive
// delay runs every call immediately, which tests rely on.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call schedules fn, replacing any pending call and resetting the timer.
func (d *Debouncer) Call(fn func()) {
	if d.delay <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Cancel drops the pending call entirely. Safe with nothing pending.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Flush runs the pending call immediately, if any, and clears the timer.
// Safe with nothing pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
