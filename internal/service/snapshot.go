package service

import (
	"time"

	"github.com/spyword/server/internal/event"
	"github.com/spyword/server/internal/model"
)

// playerInfo strips a player down to its public view. Spy assignments are
// never exposed here; they travel only in per-recipient round-start frames
// and the end-of-round reveal.
func playerInfo(p *model.Player) event.PlayerInfo {
	return event.PlayerInfo{
		ID:        p.ID,
		Name:      p.Name,
		AvatarID:  p.AvatarID,
		Connected: p.Connected,
		Host:      p.Host,
		Ready:     p.Ready,
		IsDead:    p.IsDead,
	}
}

func playersInfo(r *model.Room) []event.PlayerInfo {
	out := make([]event.PlayerInfo, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, playerInfo(p))
	}
	return out
}

func timerData(t model.Timer, now time.Time) event.TimerData {
	state := "running"
	switch {
	case t.Stopped:
		state = "stopped"
	case t.Paused():
		state = "paused"
	}
	return event.TimerData{
		State:            state,
		StopAt:           t.StopAt,
		RemainingSeconds: int(t.Remaining(now) / time.Second),
	}
}

// roomState builds the catch-up snapshot sent to a single connection.
func roomState(r *model.Room, selfID string, now time.Time) event.RoomStateData {
	data := event.RoomStateData{
		Code:    r.Code,
		Status:  string(r.Status),
		Version: r.Version,
		Players: playersInfo(r),
		SelfID:  selfID,
	}
	if r.Game != nil {
		data.Phase = string(r.Game.Phase)
		td := timerData(r.Game.Timer, now)
		data.Timer = &td
	}
	return data
}

// gameStartedData builds the per-recipient round-start payload for p.
func gameStartedData(r *model.Room, p *model.Player) event.GameStartedData {
	g := r.Game
	data := event.GameStartedData{
		IsSpy:  p.IsSpy,
		StopAt: g.Timer.StopAt,
	}
	if !p.IsSpy {
		data.Word = g.Word
		data.Category = g.Category
		return data
	}
	if r.Settings.ShowCategoryToSpy {
		data.Category = g.Category
	}
	if r.Settings.SpiesKnowEachOther {
		for _, other := range r.Players {
			if other.IsSpy && other.ID != p.ID {
				data.FellowSpies = append(data.FellowSpies, other.ID)
			}
		}
	}
	return data
}
