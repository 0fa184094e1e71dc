// Package event defines the typed events the core emits toward connected
// clients and the per-command context that batches them until a room
// mutation has committed.
package event

import "time"

// Event types carried in the envelope's Type field.
const (
	TypePlayerJoined        = "player_joined"
	TypePlayerLeft          = "player_left"
	TypePlayerConnected     = "player_connected"
	TypePlayerDisconnected  = "player_disconnected"
	TypePlayerRenamed       = "player_renamed"
	TypePlayerAvatarChanged = "player_avatar_changed"
	TypePlayerReadyChanged  = "player_ready_changed"
	TypeHostChanged         = "host_changed"
	TypeSettingsUpdated     = "settings_updated"
	TypeChatMessage         = "chat_message"
	TypeGameStarted         = "game_started"
	TypeRoundTimer          = "round_timer"
	TypeStopTimerVote       = "stop_timer_vote"
	TypeVotingStarted       = "voting_started"
	TypeVoteCast            = "vote_cast"
	TypeVotingResolved      = "voting_resolved"
	TypeSpyCaught           = "spy_caught"
	TypePlayerEliminated    = "player_eliminated"
	TypeGameEnded           = "game_ended"
	TypeReturnedToLobby     = "returned_to_lobby"
	TypeRoomState           = "room_state"
)

// Envelope is the wire frame for every event sent to clients.
type Envelope struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data any    `json:"data"`
}

// PlayerInfo is the public view of a player, with round secrets stripped.
type PlayerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarID  int    `json:"avatar_id"`
	Connected bool   `json:"connected"`
	Host      bool   `json:"host"`
	Ready     bool   `json:"ready"`
	IsDead    bool   `json:"is_dead"`
}

// PlayerData identifies the subject of a player lifecycle event.
type PlayerData struct {
	Player PlayerInfo `json:"player"`
}

// PlayerRefData carries just a player id.
type PlayerRefData struct {
	PlayerID string `json:"player_id"`
}

// ChatData is an in-room chat message.
type ChatData struct {
	PlayerID string    `json:"player_id"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// GameStartedData is the per-recipient round-start payload. Word is empty
// for spies; Category is shown to spies only when the room allows it;
// FellowSpies is populated only for spies in spies-know-each-other rooms.
type GameStartedData struct {
	IsSpy       bool      `json:"is_spy"`
	Word        string    `json:"word,omitempty"`
	Category    string    `json:"category,omitempty"`
	FellowSpies []string  `json:"fellow_spies,omitempty"`
	StopAt      time.Time `json:"stop_at"`
}

// TimerData describes the round timer's externally visible state.
type TimerData struct {
	State            string    `json:"state"` // running, paused, stopped
	StopAt           time.Time `json:"stop_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// StopTimerVoteData is the running tally of the end-search-early vote.
type StopTimerVoteData struct {
	PlayerID string `json:"player_id"`
	Votes    int    `json:"votes"`
	Required int    `json:"required"`
}

// VotingStartedData announces an opened voting round.
type VotingStartedData struct {
	Kind        string    `json:"kind"`
	InitiatorID string    `json:"initiator_id,omitempty"`
	TargetID    string    `json:"target_id,omitempty"`
	Required    int       `json:"required"`
	EndsAt      time.Time `json:"ends_at"`
}

// VoteCastData announces a recorded ballot without revealing its content
// for final votes.
type VoteCastData struct {
	VoterID string `json:"voter_id"`
	Choice  string `json:"choice,omitempty"`
	Votes   int    `json:"votes"`
}

// VotingResolvedData announces the outcome of a voting round.
type VotingResolvedData struct {
	Kind     string `json:"kind"`
	Passed   bool   `json:"passed"`
	TargetID string `json:"target_id,omitempty"`
}

// SpyCaughtData opens the last-chance window.
type SpyCaughtData struct {
	SpyID string    `json:"spy_id"`
	Until time.Time `json:"until"`
}

// GameEndedData carries the full reveal sent when a round ends.
type GameEndedData struct {
	Winner string   `json:"winner"`
	Reason string   `json:"reason"`
	Word   string   `json:"word"`
	SpyIDs []string `json:"spy_ids"`
}

// RoomStateData is the full public snapshot plus version, sent to a
// connection on join or reconnect so it can catch up in one frame.
type RoomStateData struct {
	Code    string       `json:"code"`
	Status  string       `json:"status"`
	Version int64        `json:"version"`
	Players []PlayerInfo `json:"players"`
	Phase   string       `json:"phase,omitempty"`
	SelfID  string       `json:"self_id,omitempty"`
	Timer   *TimerData   `json:"timer,omitempty"`
}
