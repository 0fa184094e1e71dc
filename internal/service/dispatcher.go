package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/event"
	"github.com/spyword/server/internal/repository"
)

// GroupPublisher fans events out to connected clients. Implemented by the
// WebSocket hub.
type GroupPublisher interface {
	AddToGroup(connID, room string)
	RemoveFromGroup(connID, room string)
	PublishRoom(room string, env event.Envelope)
	PublishConn(connID string, env event.Envelope)
}

// NoopPublisher is a no-op implementation for tests or headless runs.
type NoopPublisher struct{}

func (NoopPublisher) AddToGroup(string, string)          {}
func (NoopPublisher) RemoveFromGroup(string, string)     {}
func (NoopPublisher) PublishRoom(string, event.Envelope) {}
func (NoopPublisher) PublishConn(string, event.Envelope) {}

// Dispatcher flushes an event context after a room mutation has committed.
// It never runs inside the accessor's critical section, so slow publishes
// cannot extend lock hold time. Batches for the same room flush in the
// order they were handed in, so clients observe commits in commit order.
type Dispatcher struct {
	pub   GroupPublisher
	sched repository.TaskScheduler

	mu     sync.Mutex
	queues map[string][][]event.Pending

	// syncMode makes DispatchAsync flush inline; set by tests that assert
	// on the published stream.
	syncMode bool
}

// NewDispatcher creates a Dispatcher. A nil publisher becomes a no-op.
func NewDispatcher(pub GroupPublisher, sched repository.TaskScheduler) *Dispatcher {
	if pub == nil {
		pub = NoopPublisher{}
	}
	return &Dispatcher{pub: pub, sched: sched, queues: make(map[string][][]event.Pending)}
}

// DispatchAsync drains the context and performs its outcomes in
// declaration order, off the caller's goroutine. Batches are queued per
// room; a single drainer goroutine per room works its queue in FIFO order.
func (d *Dispatcher) DispatchAsync(ec *event.Context) {
	pending := ec.Drain()
	if len(pending) == 0 {
		return
	}
	if d.syncMode {
		d.flush(context.Background(), pending)
		return
	}

	room := batchRoom(pending)
	d.mu.Lock()
	d.queues[room] = append(d.queues[room], pending)
	first := len(d.queues[room]) == 1
	d.mu.Unlock()
	if first {
		go d.drainRoom(room)
	}
}

// batchRoom picks the queue key for a batch. Task-only batches carry the
// room inside the task key.
func batchRoom(pending []event.Pending) string {
	for _, p := range pending {
		if p.Room != "" {
			return p.Room
		}
		if p.Task.Room != "" {
			return p.Task.Room
		}
	}
	return ""
}

// drainRoom flushes queued batches for one room until the queue empties.
// The head entry stays in the queue while it flushes, so concurrent
// DispatchAsync calls never spawn a second drainer for the room.
func (d *Dispatcher) drainRoom(room string) {
	for {
		d.mu.Lock()
		batch := d.queues[room][0]
		d.mu.Unlock()

		d.flush(context.Background(), batch)

		d.mu.Lock()
		rest := d.queues[room][1:]
		if len(rest) == 0 {
			delete(d.queues, room)
			d.mu.Unlock()
			return
		}
		d.queues[room] = rest
		d.mu.Unlock()
	}
}

func (d *Dispatcher) flush(ctx context.Context, pending []event.Pending) {
	for _, p := range pending {
		switch p.Kind {
		case event.KindAddToGroup:
			d.pub.AddToGroup(p.ConnID, p.Room)
		case event.KindRemoveFromGroup:
			d.pub.RemoveFromGroup(p.ConnID, p.Room)
		case event.KindPublishRoom:
			d.pub.PublishRoom(p.Room, p.Event)
		case event.KindPublishConn:
			d.pub.PublishConn(p.ConnID, p.Event)
		case event.KindScheduleTask:
			if err := d.sched.Schedule(ctx, p.Task, p.Delay); err != nil {
				log.Error().Err(err).Str("task", p.Task.Key()).Msg("Task scheduling failed")
			}
		case event.KindCancelTask:
			if err := d.sched.Cancel(ctx, p.Task); err != nil {
				log.Error().Err(err).Str("task", p.Task.Key()).Msg("Task cancellation failed")
			}
		default:
			// A kind the dispatcher does not know is a handler/dispatcher
			// version mismatch. Fail loud.
			panic(fmt.Sprintf("dispatcher: unknown pending event kind %d", p.Kind))
		}
	}
}
