package repository

import (
	"fmt"
	"strings"
)

// TaskType is the logical kind of a scheduled timeout task.
type TaskType string

const (
	TaskRoundTimeout      TaskType = "round_timeout"
	TaskVotingTimeout     TaskType = "voting_timeout"
	TaskLastChanceTimeout TaskType = "last_chance_timeout"
	TaskDisconnectTimeout TaskType = "disconnect_timeout"
)

// globalTarget marks room-wide tasks in the identity key.
const globalTarget = "global"

// Task is a deferred action fired once at or after its due time. Target is
// empty for room-wide tasks and a public player id for per-player ones.
type Task struct {
	Type   TaskType `json:"type"`
	Room   string   `json:"room"`
	Target string   `json:"target,omitempty"`
}

// Key is the idempotency identity: scheduling the same key again replaces
// the pending due time instead of duplicating the entry. The key is also
// the member stored in the distributed scheduler's ordered set, so a task
// is fully reconstructable from it.
func (t Task) Key() string {
	target := t.Target
	if target == "" {
		target = globalTarget
	}
	return string(t.Type) + "|" + t.Room + "|" + target
}

// ParseTaskKey reconstructs a task from its identity key.
func ParseTaskKey(key string) (Task, error) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Task{}, fmt.Errorf("malformed task key %q", key)
	}
	t := Task{Type: TaskType(parts[0]), Room: parts[1]}
	if parts[2] != globalTarget {
		t.Target = parts[2]
	}
	return t, nil
}
