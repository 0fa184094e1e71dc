package model

// Player is a room member. ConnID is transport-session-scoped and changes
// on reconnect; ID is room-scoped and survives reconnects.
type Player struct {
	ConnID    string `json:"conn_id"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarID  int    `json:"avatar_id"`
	Connected bool   `json:"connected"`
	Host      bool   `json:"host"`
	Ready     bool   `json:"ready"`

	// Per-round state, reset when a round starts.
	IsSpy          bool `json:"is_spy"`
	IsDead         bool `json:"is_dead"`
	UsedAccusation bool `json:"used_accusation"`
	VotedToStop    bool `json:"voted_to_stop"`
}

// ResetRound clears all per-round flags.
func (p *Player) ResetRound() {
	p.IsSpy = false
	p.IsDead = false
	p.UsedAccusation = false
	p.VotedToStop = false
}
