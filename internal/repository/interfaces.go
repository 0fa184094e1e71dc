// Package repository defines the capability interfaces the runtime mode
// selects an implementation pair for: room storage, the room accessor, and
// the task scheduler. Business logic depends only on these interfaces and
// never branches on which backend is active.
package repository

import (
	"context"
	"time"

	"github.com/spyword/server/internal/model"
)

// RoomStore creates and deletes room records. Loading and saving happen
// inside the accessor's critical section and are not exposed separately.
type RoomStore interface {
	// Create inserts a new room, failing if the code is already taken.
	Create(ctx context.Context, room *model.Room) error
	// Exists reports whether a live (non-deleted) room has this code.
	Exists(ctx context.Context, code string) (bool, error)
	// Delete removes a room record outright.
	Delete(ctx context.Context, code string) error
}

// RoomAccessor is the single entry point through which business logic
// touches a room. Execute acquires exclusive access to the room's body,
// runs fn against it, and on success commits with a version bump and a
// fresh last-changed timestamp. Access is released on every exit path.
//
// Implementations guarantee that no two Execute callbacks ever run
// concurrently against the same room, including across processes for the
// distributed backend. Validation inside fn must complete before any field
// is mutated, so an error result guarantees the room is unchanged.
type RoomAccessor interface {
	Execute(ctx context.Context, code string, fn func(*model.Room) error) error
	// Read runs fn against a committed snapshot without bumping the version.
	Read(ctx context.Context, code string, fn func(*model.Room)) error
	// IsInactive reports whether the room has not changed for threshold.
	IsInactive(ctx context.Context, code string, threshold time.Duration) (bool, error)
}

// TaskScheduler schedules logical tasks keyed by (type, room, target).
// Scheduling an already-pending key replaces its due time; cancelling
// removes it. A due task is removed atomically before it runs, so it fires
// at most once even with multiple workers polling.
type TaskScheduler interface {
	Schedule(ctx context.Context, task Task, delay time.Duration) error
	Cancel(ctx context.Context, task Task) error
}

// TaskRunner is the game-logic re-entry point a scheduler worker hands due
// tasks to. A run failure is logged and the task dropped: timeout tasks are
// re-derivable from room state, so loss is self-healing.
type TaskRunner interface {
	RunTask(ctx context.Context, task Task) error
}
