// Package debounce delays an action until its trigger has been quiet for
// a fixed period.
package debounce

import (
	"sync"
	"time"

	"github.com/atinyakov/imagedash/internal/clock"
)

// DefaultDelay is the quiet period of the search box.
const DefaultDelay = 500 * time.Millisecond

// Debouncer runs the most recently triggered function once no new trigger
// has arrived for its delay.
type Debouncer struct {
	clock clock.Clock
	delay time.Duration

	mu    sync.Mutex
	timer clock.Timer
	// gen identifies the latest trigger; a callback from an older one that
	// lost the race with Stop does nothing.
	gen uint64
}

// New returns a Debouncer on c. A nil c uses the wall clock.
func New(c clock.Clock, delay time.Duration) *Debouncer {
	if c == nil {
		c = clock.Real()
	}
	return &Debouncer{clock: c, delay: delay}
}

// Trigger cancels any pending call and schedules fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
