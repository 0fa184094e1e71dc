// Package model holds the room aggregate and everything serialized with it.
// All fields are plain data; mutation happens only inside a room accessor
// callback, so nothing here carries its own locking.
package model

import "time"

// RoomStatus is the lifecycle status of a room.
type RoomStatus string

const (
	RoomStatusLobby  RoomStatus = "lobby"
	RoomStatusInGame RoomStatus = "in_game"
	RoomStatusEnded  RoomStatus = "ended"
)

// Room is the root aggregate, keyed by a short unique code. Version is
// owned by the accessor's commit path: it increments by exactly one per
// successful mutation and never moves otherwise.
type Room struct {
	Code      string     `json:"code"`
	Status    RoomStatus `json:"status"`
	Players   []*Player  `json:"players"`
	Settings  Settings   `json:"settings"`
	Game      *GameState `json:"game,omitempty"`
	Version   int64      `json:"version"`
	ChangedAt time.Time  `json:"changed_at"`
	CreatedAt time.Time  `json:"created_at"`
	Deleted   bool       `json:"deleted,omitempty"`
}

// NewRoom creates a lobby room with default settings and no players.
func NewRoom(code string, now time.Time) *Room {
	return &Room{
		Code:      code,
		Status:    RoomStatusLobby,
		Settings:  DefaultSettings(),
		CreatedAt: now,
		ChangedAt: now,
	}
}

// PlayerByConn returns the player bound to a connection id, or nil.
func (r *Room) PlayerByConn(connID string) *Player {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// PlayerByID returns the player with the given public id, or nil.
func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Host returns the current host, or nil for an empty room.
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.Host {
			return p
		}
	}
	return nil
}

// RemovePlayer removes the player with the given public id and reports
// whether it was present.
func (r *Room) RemovePlayer(id string) bool {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

// ConnectedCount returns the number of connected players.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// AliveCount returns the number of players not eliminated this round.
func (r *Room) AliveCount() int {
	n := 0
	for _, p := range r.Players {
		if !p.IsDead {
			n++
		}
	}
	return n
}

// AliveSpyCount returns the number of alive spies.
func (r *Room) AliveSpyCount() int {
	n := 0
	for _, p := range r.Players {
		if p.IsSpy && !p.IsDead {
			n++
		}
	}
	return n
}

// SpyCount returns how many players were assigned spy this round.
func (r *Room) SpyCount() int {
	n := 0
	for _, p := range r.Players {
		if p.IsSpy {
			n++
		}
	}
	return n
}

// EligibleVoters returns players that may cast votes under the given basis.
// Eliminated players never vote.
func (r *Room) EligibleVoters(basis VoteBasis) []*Player {
	var out []*Player
	for _, p := range r.Players {
		if p.IsDead {
			continue
		}
		if basis == VoteBasisConnected && !p.Connected {
			continue
		}
		out = append(out, p)
	}
	return out
}
