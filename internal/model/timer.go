package model

import "time"

// Timer is the round timer. It stores only wall-clock timestamps; remaining
// time is always derived, never counted down, so it survives process
// restarts as long as wall-clock time is used consistently.
type Timer struct {
	StartedAt time.Time  `json:"started_at"`
	StopAt    time.Time  `json:"stop_at"`
	PausedAt  *time.Time `json:"paused_at,omitempty"`
	Stopped   bool       `json:"stopped"`
}

// NewTimer starts a timer running for d from now.
func NewTimer(now time.Time, d time.Duration) Timer {
	return Timer{StartedAt: now, StopAt: now.Add(d)}
}

// Pause captures the pause timestamp. No-op if already paused or stopped.
func (t *Timer) Pause(now time.Time) {
	if t.Stopped || t.PausedAt != nil {
		return
	}
	paused := now
	t.PausedAt = &paused
}

// Resume shifts the planned stop forward by exactly the wall-clock duration
// the timer was paused, so total live time is conserved across any number
// of pause/resume cycles. No-op if not paused.
func (t *Timer) Resume(now time.Time) {
	if t.Stopped || t.PausedAt == nil {
		return
	}
	t.StopAt = t.StopAt.Add(now.Sub(*t.PausedAt))
	t.PausedAt = nil
}

// Paused reports whether the timer is currently paused.
func (t Timer) Paused() bool { return t.PausedAt != nil }

// Remaining returns the live time left on the timer at now. For a paused
// timer the reference point is the pause timestamp.
func (t Timer) Remaining(now time.Time) time.Duration {
	if t.Stopped {
		return 0
	}
	ref := now
	if t.PausedAt != nil {
		ref = *t.PausedAt
	}
	d := t.StopAt.Sub(ref)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the timer's live time has fully elapsed.
func (t Timer) Expired(now time.Time) bool {
	return !t.Stopped && t.Remaining(now) <= 0
}

// Stop terminates the timer permanently.
func (t *Timer) Stop() {
	t.Stopped = true
	t.PausedAt = nil
}
