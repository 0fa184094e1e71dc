package service

import "time"

// Options are the tunable durations of the state machine. The round
// duration itself is per-room (Settings.RoundMinutes); these cover the
// fixed-length windows.
type Options struct {
	AccusationVoteDuration time.Duration
	FinalVoteDuration      time.Duration
	LastChanceDuration     time.Duration
	DisconnectGrace        time.Duration
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		AccusationVoteDuration: 60 * time.Second,
		FinalVoteDuration:      2 * time.Minute,
		LastChanceDuration:     45 * time.Second,
		DisconnectGrace:        90 * time.Second,
	}
}

// timeoutGrace is how far ahead of a stored deadline a timeout handler
// accepts a firing task. It tolerates delayed workers and clock skew;
// anything earlier is a stale task and gets dropped.
const timeoutGrace = 2 * time.Second
