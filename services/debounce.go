package services

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of Trigger calls into one run of the last
// scheduled task after a quiet period. Runs never overlap.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
	running int
	idle    *sync.Cond

	run sync.Mutex
}

func NewDebouncer(delay time.Duration) *Debouncer {
	d := &Debouncer{delay: delay}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Trigger schedules fn after the delay, cancelling any task scheduled
// earlier that has not started yet.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

// Flush runs the pending task now, if any, and waits until no task is
// running, including one the timer already started.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.start()
	d.mu.Unlock()
	d.exec(fn)

	d.mu.Lock()
	for d.running > 0 {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// Stop drops the pending task without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.take()
	d.mu.Unlock()
}

// Pending reports whether a task is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		// Superseded by a later Trigger, Flush or Stop.
		d.mu.Unlock()
		return
	}
	fn := d.start()
	d.mu.Unlock()
	d.exec(fn)
}

// start takes the pending task and counts it as running. d.mu is held.
func (d *Debouncer) start() func() {
	fn := d.take()
	if fn != nil {
		d.running++
	}
	return fn
}

// exec runs fn, one task at a time.
func (d *Debouncer) exec(fn func()) {
	if fn == nil {
		return
	}
	d.run.Lock()
	defer func() {
		d.run.Unlock()
		d.mu.Lock()
		d.running--
		if d.running == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}()
	fn()
}

// take clears the schedule and returns the pending task. d.mu is held.
func (d *Debouncer) take() func() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	fn := d.pending
	d.pending = nil
	return fn
}
