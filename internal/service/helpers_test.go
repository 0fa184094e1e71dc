package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/spyword/server/internal/event"
	"github.com/spyword/server/internal/model"
	"github.com/spyword/server/internal/repository"
	"github.com/spyword/server/internal/repository/memory"
)

var testBase = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// recordingPublisher captures every fan-out call for assertions.
type recordingPublisher struct {
	mu      sync.Mutex
	added   []string // "connID room"
	removed []string
	room    []event.Envelope
	conn    map[string][]event.Envelope
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{conn: make(map[string][]event.Envelope)}
}

func (p *recordingPublisher) AddToGroup(connID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, connID+" "+room)
}

func (p *recordingPublisher) RemoveFromGroup(connID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, connID+" "+room)
}

func (p *recordingPublisher) PublishRoom(room string, env event.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.room = append(p.room, env)
}

func (p *recordingPublisher) PublishConn(connID string, env event.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn[connID] = append(p.conn[connID], env)
}

func (p *recordingPublisher) roomEvents(eventType string) []event.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Envelope
	for _, env := range p.room {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (p *recordingPublisher) lastRoomEvent(t *testing.T, eventType string) event.Envelope {
	t.Helper()
	evs := p.roomEvents(eventType)
	if len(evs) == 0 {
		t.Fatalf("no %s event published", eventType)
	}
	return evs[len(evs)-1]
}

// recordingScheduler keeps the scheduled tasks in a table, mirroring the
// replace-by-key contract.
type recordingScheduler struct {
	mu      sync.Mutex
	pending map[string]time.Duration
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{pending: make(map[string]time.Duration)}
}

func (s *recordingScheduler) Schedule(_ context.Context, task repository.Task, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[task.Key()] = delay
	return nil
}

func (s *recordingScheduler) Cancel(_ context.Context, task repository.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, task.Key())
	return nil
}

func (s *recordingScheduler) delayFor(task repository.Task) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pending[task.Key()]
	return d, ok
}

// fixture is the wiring every service test uses: memory store, recording
// publisher and scheduler, and a synchronous dispatcher so assertions can
// run immediately after a command returns.
type fixture struct {
	store *memory.Store
	pub   *recordingPublisher
	sched *recordingScheduler
	rooms *RoomService
	game  *GameService
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		pub:   newRecordingPublisher(),
		sched: newRecordingScheduler(),
		now:   testBase,
	}
	disp := NewDispatcher(f.pub, f.sched)
	disp.syncMode = true
	opts := DefaultOptions()
	f.rooms = NewRoomService(f.store, f.store, disp, opts)
	f.game = NewGameService(f.store, disp, opts)

	f.rooms.now = func() time.Time { return f.now }
	f.game.now = func() time.Time { return f.now }
	f.rooms.rnd = rand.New(rand.NewSource(1))
	f.game.rnd = rand.New(rand.NewSource(1))
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// seedRoom creates a room with n connected players. Player i has conn id
// "conn-i", public id "p-i", and player 0 is host. Settings get a single
// one-word category so round starts are deterministic.
func (f *fixture) seedRoom(t *testing.T, code string, n int) {
	t.Helper()
	room := model.NewRoom(code, f.now)
	room.Settings.Categories = []model.WordCategory{
		{Name: "places", Words: []string{"harbor"}},
	}
	for i := 0; i < n; i++ {
		room.Players = append(room.Players, &model.Player{
			ConnID:    connID(i),
			ID:        playerID(i),
			Name:      "player" + string(rune('0'+i)),
			Connected: true,
			Host:      i == 0,
		})
	}
	if err := f.store.Create(context.Background(), room); err != nil {
		t.Fatalf("seed room: %v", err)
	}
}

func connID(i int) string   { return "conn-" + string(rune('0'+i)) }
func playerID(i int) string { return "p-" + string(rune('0'+i)) }

// startRound seeds a room and starts a round in it, returning the spy's
// player index.
func (f *fixture) startRound(t *testing.T, code string, n int) int {
	t.Helper()
	f.seedRoom(t, code, n)
	if err := f.game.StartGame(context.Background(), code, connID(0)); err != nil {
		t.Fatalf("start game: %v", err)
	}
	spy := -1
	f.read(t, code, func(r *model.Room) {
		for i, p := range r.Players {
			if p.IsSpy {
				if spy != -1 {
					t.Fatalf("expected a single spy with default settings")
				}
				spy = i
			}
		}
	})
	if spy == -1 {
		t.Fatal("no spy assigned")
	}
	return spy
}

func (f *fixture) read(t *testing.T, code string, fn func(*model.Room)) {
	t.Helper()
	if err := f.store.Read(context.Background(), code, fn); err != nil {
		t.Fatalf("read room: %v", err)
	}
}

// civilians returns the player indexes that are not the spy.
func civilians(n, spy int) []int {
	var out []int
	for i := 0; i < n; i++ {
		if i != spy {
			out = append(out, i)
		}
	}
	return out
}
