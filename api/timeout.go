// File: api/timeout.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline and time-budget tracking for a single logical operation.

package api

import "time"

// Infinite is returned by Remaining when the budget never runs out.
const Infinite time.Duration = -1

// Timeout tracks the time budget of one logical operation (one connect
// attempt, one send, one receive). A negative budget blocks forever, a zero
// budget never blocks. An optional absolute deadline further bounds the
// budget. A Timeout is owned by the call that created it.
type Timeout struct {
	start    time.Time
	budget   time.Duration
	deadline time.Time
	now      func() time.Time
}

// NewTimeout returns a started Timeout with the given total budget.
func NewTimeout(budget time.Duration) *Timeout {
	t := &Timeout{budget: budget, now: time.Now}
	t.Start()
	return t
}

// NewDeadline returns a started Timeout bounded only by an absolute deadline.
func NewDeadline(deadline time.Time) *Timeout {
	t := &Timeout{budget: Infinite, deadline: deadline, now: time.Now}
	t.Start()
	return t
}

// WithDeadline bounds t by an absolute deadline in addition to its budget.
func (t *Timeout) WithDeadline(deadline time.Time) *Timeout {
	t.deadline = deadline
	return t
}

// Start records the beginning of the budget window.
func (t *Timeout) Start() {
	if t.now == nil {
		t.now = time.Now
	}
	t.start = t.clock()
}

// Budget returns the configured total budget.
func (t *Timeout) Budget() time.Duration { return t.budget }

// Deadline returns the absolute deadline, if any.
func (t *Timeout) Deadline() (time.Time, bool) {
	return t.deadline, !t.deadline.IsZero()
}

// Infinite reports whether the budget never runs out.
func (t *Timeout) Infinite() bool {
	return t.budget < 0 && t.deadline.IsZero()
}

// Remaining returns the budget left, Infinite for an unbounded timeout,
// never a negative finite value.
func (t *Timeout) Remaining() time.Duration {
	if t.Infinite() {
		return Infinite
	}
	now := t.clock()
	rem := Infinite
	if t.budget >= 0 {
		rem = t.budget - now.Sub(t.start)
		if rem < 0 {
			rem = 0
		}
	}
	if !t.deadline.IsZero() {
		d := t.deadline.Sub(now)
		if d < 0 {
			d = 0
		}
		if rem < 0 || d < rem {
			rem = d
		}
	}
	return rem
}

// IsExpired reports whether a finite budget has been used up.
func (t *Timeout) IsExpired() bool {
	return !t.Infinite() && t.Remaining() == 0
}

// WaitDuration is Remaining for multiplexers that take a duration.
func (t *Timeout) WaitDuration() time.Duration {
	return t.Remaining()
}

// WaitMillis converts the remaining budget into poll(2) units: -1 blocks
// indefinitely, 0 returns at once. Sub-millisecond remainders round up so a
// live budget never turns into a busy loop.
func (t *Timeout) WaitMillis() int {
	rem := t.Remaining()
	if rem < 0 {
		return -1
	}
	ms := rem / time.Millisecond
	if rem%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}

// Elapsed returns the time spent since Start.
func (t *Timeout) Elapsed() time.Duration {
	return t.clock().Sub(t.start)
}

func (t *Timeout) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}
