// Package memory implements the single-process backend: rooms live in a
// map, serialization is a per-room mutex, and scheduled tasks sit in an
// in-process delay queue. No I/O happens anywhere in this package.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/model"
)

type roomEntry struct {
	mu   sync.Mutex
	room *model.Room
}

// Store holds all rooms in process memory. It implements both
// repository.RoomStore and repository.RoomAccessor: the per-room mutex in
// each entry is the serialization primitive the accessor contract requires.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*roomEntry),
		now:   time.Now,
	}
}

// Create inserts a new room, failing if the code is taken.
func (s *Store) Create(_ context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return apperr.ActionFailed("room code %s already exists", room.Code)
	}
	s.rooms[room.Code] = &roomEntry{room: room}
	return nil
}

// Exists reports whether a live room has this code.
func (s *Store) Exists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[code]
	return ok && !e.room.Deleted, nil
}

// Delete removes a room outright.
func (s *Store) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}

func (s *Store) entry(code string) *roomEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[code]
}

// Execute runs fn under the room's mutex. On success the version counter
// bumps and the last-changed timestamp refreshes inside the same critical
// section. The mutex is released on every exit path.
func (s *Store) Execute(_ context.Context, code string, fn func(*model.Room) error) error {
	e := s.entry(code)
	if e == nil {
		return apperr.NotFound("room %s not found", code)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room.Deleted {
		return apperr.NotFound("room %s not found", code)
	}
	if err := fn(e.room); err != nil {
		return err
	}
	e.room.Version++
	e.room.ChangedAt = s.now()
	return nil
}

// Read runs fn against the committed room body without a version bump.
func (s *Store) Read(_ context.Context, code string, fn func(*model.Room)) error {
	e := s.entry(code)
	if e == nil {
		return apperr.NotFound("room %s not found", code)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room.Deleted {
		return apperr.NotFound("room %s not found", code)
	}
	fn(e.room)
	return nil
}

// IsInactive reports whether the room has not changed for threshold.
func (s *Store) IsInactive(_ context.Context, code string, threshold time.Duration) (bool, error) {
	e := s.entry(code)
	if e == nil {
		return false, apperr.NotFound("room %s not found", code)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.now().Sub(e.room.ChangedAt) >= threshold, nil
}

// StartJanitor sweeps inactive rooms on the given interval until ctx is
// cancelled. The redis backend relies on record TTLs instead.
func (s *Store) StartJanitor(ctx context.Context, threshold, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("threshold", threshold).Msg("Room janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Room janitor stopped")
			return
		case <-ticker.C:
			s.sweep(threshold)
		}
	}
}

func (s *Store) sweep(threshold time.Duration) {
	s.mu.RLock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	s.mu.RUnlock()

	now := s.now()
	for _, code := range codes {
		e := s.entry(code)
		if e == nil {
			continue
		}
		e.mu.Lock()
		stale := now.Sub(e.room.ChangedAt) >= threshold
		if stale {
			e.room.Deleted = true
		}
		e.mu.Unlock()
		if stale {
			s.mu.Lock()
			delete(s.rooms, code)
			s.mu.Unlock()
			log.Info().Str("room", code).Msg("Swept inactive room")
		}
	}
}
