package sync

import (
	"context"
)

// flight is one save that any number of callers can wait on.
type flight struct {
	trigger Trigger
	done    chan struct{}
	result  Result
}

// Save persists the live snapshot and waits for the outcome.
//
// If a save is already running the call joins the queued flight, which
// starts once the running one ends. A cancelled ctx returns Unknown
// without stopping the flight.
func (e *Engine) Save(ctx context.Context, trigger Trigger) Result {
	f := e.enqueue(trigger)

	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return Result{Outcome: Unknown, Trigger: trigger, LocalErr: ctx.Err(), Pending: e.Pending()}
	}
}

// enqueue returns the flight the caller should wait on, starting a drain
// goroutine when nothing is running.
func (e *Engine) enqueue(trigger Trigger) *flight {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()

	if e.queued != nil {
		if trigger > e.queued.trigger {
			e.queued.trigger = trigger
		}
		return e.queued
	}

	f := &flight{trigger: trigger, done: make(chan struct{})}
	if e.inflight == nil {
		e.inflight = f
		e.drains.Add(1)
		go e.drain(f)
		return f
	}
	e.queued = f
	return f
}

// drain runs f and then every flight queued behind it.
func (e *Engine) drain(f *flight) {
	defer e.drains.Done()

	for f != nil {
		e.flightMu.Lock()
		trigger := f.trigger
		e.flightMu.Unlock()

		f.result = e.save(trigger)
		close(f.done)
		e.notify(f.result)

		e.flightMu.Lock()
		f = e.queued
		e.queued = nil
		e.inflight = f
		e.flightMu.Unlock()
	}
}
