package chat

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long after the last keystroke the stop signal
// fires.
const DefaultQuietPeriod = 2 * time.Second

// Debouncer converts a stream of local keystrokes into the two-state
// typing protocol: one start emission when composing begins, one stop
// emission after a quiet period or on flush. States are Idle and Composing,
// starting Idle.
//
// Emissions happen under the debouncer's lock, so a flush and a firing
// timer can never both emit stop, and nothing is emitted after Flush
// returns.
type Debouncer struct {
	quiet time.Duration
	start func()
	stop  func()

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	composing bool
}

// NewDebouncer creates an idle debouncer. start and stop are called to emit
// the corresponding typing events; they must not call back into the
// debouncer.
func NewDebouncer(quiet time.Duration, start, stop func()) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{quiet: quiet, start: start, stop: stop}
}

// Keystroke records one local keystroke. The first keystroke emits start;
// every keystroke re-arms the stop timer.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.composing {
		d.composing = true
		d.start()
	} else if d.timer != nil {
		d.timer.Stop()
	}
	// The generation invalidates a superseded timer that already fired and
	// is waiting on the lock; Stop alone cannot cancel it.
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.quiet, func() { d.quietElapsed(gen) })
}

func (d *Debouncer) quietElapsed(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A keystroke or flush may have won the race after this timer fired.
	if gen != d.gen || !d.composing {
		return
	}
	d.composing = false
	d.timer = nil
	d.stop()
}

// Flush cancels the pending timer and, when composing, emits stop
// immediately. Called when the conversation closes so the remote side never
// sees a stuck typing indicator.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.composing {
		d.composing = false
		d.stop()
	}
}

// Composing reports whether the debouncer is in the Composing state.
func (d *Debouncer) Composing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.composing
}
