package event

import (
	"time"

	"github.com/spyword/server/internal/repository"
)

// Kind tags the pending-outcome union.
type Kind int

const (
	KindAddToGroup Kind = iota
	KindRemoveFromGroup
	KindPublishRoom
	KindPublishConn
	KindScheduleTask
	KindCancelTask
)

// Pending is one declared outcome of a room mutation. Which fields are
// meaningful depends on Kind; the dispatcher switches exhaustively.
type Pending struct {
	Kind   Kind
	ConnID string
	Room   string
	Event  Envelope
	Task   repository.Task
	Delay  time.Duration
}

// Context accumulates declared outcomes during a single room accessor
// execution. State-machine code appends to it instead of performing I/O;
// the dispatcher flushes it only after the mutation has committed. On a
// failed mutation the context is cleared so no partial side effects leak.
type Context struct {
	pending []Pending
}

// NewContext creates an empty event context for one command.
func NewContext() *Context {
	return &Context{}
}

// AddToGroup declares that a connection joins a room's broadcast group.
func (c *Context) AddToGroup(connID, room string) {
	c.pending = append(c.pending, Pending{Kind: KindAddToGroup, ConnID: connID, Room: room})
}

// RemoveFromGroup declares that a connection leaves a room's broadcast group.
func (c *Context) RemoveFromGroup(connID, room string) {
	c.pending = append(c.pending, Pending{Kind: KindRemoveFromGroup, ConnID: connID, Room: room})
}

// PublishRoom declares a broadcast to every connection in the room group.
func (c *Context) PublishRoom(room, eventType string, data any) {
	c.pending = append(c.pending, Pending{
		Kind:  KindPublishRoom,
		Room:  room,
		Event: Envelope{Type: eventType, Room: room, Data: data},
	})
}

// PublishConn declares a unicast to one connection.
func (c *Context) PublishConn(connID, room, eventType string, data any) {
	c.pending = append(c.pending, Pending{
		Kind:   KindPublishConn,
		ConnID: connID,
		Event:  Envelope{Type: eventType, Room: room, Data: data},
	})
}

// Schedule declares that a task should fire after delay.
func (c *Context) Schedule(task repository.Task, delay time.Duration) {
	c.pending = append(c.pending, Pending{Kind: KindScheduleTask, Task: task, Delay: delay})
}

// Cancel declares that a pending task should be removed.
func (c *Context) Cancel(task repository.Task) {
	c.pending = append(c.pending, Pending{Kind: KindCancelTask, Task: task})
}

// HasEvents reports whether anything has been declared.
func (c *Context) HasEvents() bool {
	return len(c.pending) > 0
}

// Clear drops all declared outcomes. Called when a mutation fails.
func (c *Context) Clear() {
	c.pending = nil
}

// Drain returns the declared outcomes in declaration order and empties the
// context.
func (c *Context) Drain() []Pending {
	out := c.pending
	c.pending = nil
	return out
}
