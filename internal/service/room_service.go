package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/event"
	"github.com/spyword/server/internal/model"
	"github.com/spyword/server/internal/repository"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCodeAttempts  = 10

	maxNameLength = 24
	maxChatLength = 500
)

// RoomService handles everything outside a running round: room creation,
// join/leave/reconnect, the disconnect grace window, host reassignment,
// profile and settings changes, and chat.
type RoomService struct {
	store repository.RoomStore
	acc   repository.RoomAccessor
	disp  *Dispatcher
	opts  Options

	now func() time.Time
	rnd *rand.Rand
}

// NewRoomService creates a RoomService.
func NewRoomService(store repository.RoomStore, acc repository.RoomAccessor, disp *Dispatcher, opts Options) *RoomService {
	return &RoomService{
		store: store,
		acc:   acc,
		disp:  disp,
		opts:  opts,
		now:   time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RoomService) run(ctx context.Context, code string, ec *event.Context, fn func(*model.Room) error) error {
	if err := s.acc.Execute(ctx, code, fn); err != nil {
		ec.Clear()
		return err
	}
	s.disp.DispatchAsync(ec)
	return nil
}

// CreateRoom allocates a fresh room with a collision-checked short code.
func (s *RoomService) CreateRoom(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := s.newCode()
		room := model.NewRoom(code, s.now())
		err := s.store.Create(ctx, room)
		if err == nil {
			log.Info().Str("room", code).Msg("Room created")
			return code, nil
		}
		if !apperr.IsKind(err, apperr.KindActionFailed) {
			return "", err
		}
	}
	return "", apperr.New(apperr.KindUnknown, "could not allocate a room code")
}

func (s *RoomService) newCode() string {
	b := make([]byte, roomCodeLength)
	for i := range b {
		b[i] = roomCodeAlphabet[s.rnd.Intn(len(roomCodeAlphabet))]
	}
	return string(b)
}

// Join adds a connection to a lobby room as a new player. The first player
// in becomes host. The joining connection gets the full snapshot.
func (s *RoomService) Join(ctx context.Context, code, connID, name string, avatarID int) error {
	name = strings.TrimSpace(name)
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		if name == "" || len(name) > maxNameLength {
			return apperr.ValidationFailed("name must be 1-%d characters", maxNameLength)
		}
		if r.Status != model.RoomStatusLobby {
			return apperr.ActionFailed("game already in progress")
		}
		if len(r.Players) >= r.Settings.MaxPlayers {
			return apperr.ActionFailed("room is full")
		}
		if r.PlayerByConn(connID) != nil {
			return apperr.ActionFailed("connection already joined")
		}

		p := &model.Player{
			ConnID:    connID,
			ID:        uuid.NewString(),
			Name:      name,
			AvatarID:  avatarID,
			Connected: true,
			Host:      len(r.Players) == 0,
		}
		r.Players = append(r.Players, p)

		ec.AddToGroup(connID, code)
		ec.PublishRoom(code, event.TypePlayerJoined, event.PlayerData{Player: playerInfo(p)})
		ec.PublishConn(connID, code, event.TypeRoomState, roomState(r, p.ID, s.now()))
		return nil
	})
}

// Reconnect rebinds a disconnected player to a fresh connection. The
// disconnect grace task is cancelled and the connection catches up with a
// snapshot, including its role frame if a round is running.
func (s *RoomService) Reconnect(ctx context.Context, code, playerID, connID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByID(playerID)
		if p == nil {
			return apperr.NotFound("player not found")
		}
		if p.Connected {
			return apperr.ActionFailed("player is already connected")
		}

		p.ConnID = connID
		p.Connected = true

		ec.Cancel(disconnectTask(code, playerID))
		ec.AddToGroup(connID, code)
		ec.PublishRoom(code, event.TypePlayerConnected, event.PlayerRefData{PlayerID: playerID})
		ec.PublishConn(connID, code, event.TypeRoomState, roomState(r, playerID, s.now()))
		if r.Status == model.RoomStatusInGame && r.Game != nil {
			ec.PublishConn(connID, code, event.TypeGameStarted, gameStartedData(r, p))
		}
		return nil
	})
}

// Leave removes the player bound to a connection. An empty room is soft
// deleted; during a round the departure may end the game.
func (s *RoomService) Leave(ctx context.Context, code, connID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByConn(connID)
		if p == nil {
			return apperr.NotFound("player not in room")
		}
		s.removePlayer(r, ec, p)
		return nil
	})
}

// Disconnected marks a connection's player as gone and opens the grace
// window. Called by the transport when a socket drops.
func (s *RoomService) Disconnected(ctx context.Context, code, connID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByConn(connID)
		if p == nil {
			return apperr.NotFound("player not in room")
		}
		if !p.Connected {
			return apperr.ActionFailed("player already disconnected")
		}

		p.Connected = false
		ec.RemoveFromGroup(connID, code)
		ec.PublishRoom(code, event.TypePlayerDisconnected, event.PlayerRefData{PlayerID: p.ID})
		ec.Schedule(disconnectTask(code, p.ID), s.opts.DisconnectGrace)
		checkEndConditions(r, ec)
		return nil
	})
}

// handleDisconnectTimeout removes a player whose grace window expired
// without a reconnect.
func (s *RoomService) handleDisconnectTimeout(ctx context.Context, code, playerID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByID(playerID)
		if p == nil {
			return apperr.NotFound("player already removed")
		}
		if p.Connected {
			return apperr.ActionFailed("player reconnected in time")
		}
		s.removePlayer(r, ec, p)
		return nil
	})
}

// removePlayer is the shared leave/kick/grace-expiry path: drop the
// player, hand off the host role, soft-delete an emptied room, and run the
// end-of-round checks if a round is live.
func (s *RoomService) removePlayer(r *model.Room, ec *event.Context, p *model.Player) {
	wasHost := p.Host
	r.RemovePlayer(p.ID)

	ec.Cancel(disconnectTask(r.Code, p.ID))
	ec.RemoveFromGroup(p.ConnID, r.Code)
	ec.PublishRoom(r.Code, event.TypePlayerLeft, event.PlayerRefData{PlayerID: p.ID})

	if len(r.Players) == 0 {
		r.Deleted = true
		ec.Cancel(roundTask(r.Code))
		ec.Cancel(votingTask(r.Code))
		ec.Cancel(lastChanceTask(r.Code))
		log.Info().Str("room", r.Code).Msg("Room emptied, marked deleted")
		return
	}

	if wasHost {
		next := r.Players[0]
		for _, candidate := range r.Players {
			if candidate.Connected {
				next = candidate
				break
			}
		}
		next.Host = true
		ec.PublishRoom(r.Code, event.TypeHostChanged, event.PlayerRefData{PlayerID: next.ID})
	}

	checkEndConditions(r, ec)
}

// Kick removes another player from a lobby. Host only.
func (s *RoomService) Kick(ctx context.Context, code, connID, targetID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		actor := r.PlayerByConn(connID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if !actor.Host {
			return apperr.Forbidden("only the host can kick players")
		}
		if r.Status != model.RoomStatusLobby {
			return apperr.ActionFailed("cannot kick during a round")
		}
		if targetID == actor.ID {
			return apperr.ValidationFailed("cannot kick yourself")
		}
		target := r.PlayerByID(targetID)
		if target == nil {
			return apperr.NotFound("target player not found")
		}
		s.removePlayer(r, ec, target)
		return nil
	})
}

// SetName renames the acting player.
func (s *RoomService) SetName(ctx context.Context, code, connID, name string) error {
	name = strings.TrimSpace(name)
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByConn(connID)
		if p == nil {
			return apperr.NotFound("player not in room")
		}
		if name == "" || len(name) > maxNameLength {
			return apperr.ValidationFailed("name must be 1-%d characters", maxNameLength)
		}
		p.Name = name
		ec.PublishRoom(code, event.TypePlayerRenamed, event.PlayerData{Player: playerInfo(p)})
		return nil
	})
}

// SetAvatar changes the acting player's avatar.
func (s *RoomService) SetAvatar(ctx context.Context, code, connID string, avatarID int) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByConn(connID)
		if p == nil {
			return apperr.NotFound("player not in room")
		}
		if avatarID < 0 {
			return apperr.ValidationFailed("invalid avatar id")
		}
		p.AvatarID = avatarID
		ec.PublishRoom(code, event.TypePlayerAvatarChanged, event.PlayerData{Player: playerInfo(p)})
		return nil
	})
}

// SetReady toggles the acting player's lobby ready flag.
func (s *RoomService) SetReady(ctx context.Context, code, connID string, ready bool) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByConn(connID)
		if p == nil {
			return apperr.NotFound("player not in room")
		}
		if r.Status != model.RoomStatusLobby {
			return apperr.ActionFailed("ready state only applies in the lobby")
		}
		p.Ready = ready
		ec.PublishRoom(code, event.TypePlayerReadyChanged, event.PlayerData{Player: playerInfo(p)})
		return nil
	})
}

// UpdateSettings replaces the room settings. Host only, lobby only.
func (s *RoomService) UpdateSettings(ctx context.Context, code, connID string, settings model.Settings) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		actor := r.PlayerByConn(connID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if !actor.Host {
			return apperr.Forbidden("only the host can change settings")
		}
		if r.Status != model.RoomStatusLobby {
			return apperr.ActionFailed("settings are locked during a round")
		}
		if err := validateSettings(settings, len(r.Players)); err != nil {
			return err
		}
		if settings.VoteBasis == "" {
			settings.VoteBasis = model.VoteBasisConnected
		}
		r.Settings = settings
		ec.PublishRoom(code, event.TypeSettingsUpdated, settings)
		return nil
	})
}

func validateSettings(s model.Settings, playerCount int) error {
	if s.RoundMinutes < 1 || s.RoundMinutes > 30 {
		return apperr.ValidationFailed("round duration must be 1-30 minutes")
	}
	if s.SpiesMin < 1 || s.SpiesMax < s.SpiesMin {
		return apperr.ValidationFailed("invalid spy count range")
	}
	if s.MaxPlayers < 3 || s.MaxPlayers > 20 {
		return apperr.ValidationFailed("max players must be 3-20")
	}
	if s.MaxPlayers < playerCount {
		return apperr.ValidationFailed("max players below current player count")
	}
	if s.VoteBasis != "" && s.VoteBasis != model.VoteBasisAll && s.VoteBasis != model.VoteBasisConnected {
		return apperr.ValidationFailed("invalid vote basis %q", s.VoteBasis)
	}
	return nil
}

// Chat broadcasts an in-room message.
func (s *RoomService) Chat(ctx context.Context, code, connID, text string) error {
	text = strings.TrimSpace(text)
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		p := r.PlayerByConn(connID)
		if p == nil {
			return apperr.NotFound("player not in room")
		}
		if text == "" || len(text) > maxChatLength {
			return apperr.ValidationFailed("message must be 1-%d characters", maxChatLength)
		}
		ec.PublishRoom(code, event.TypeChatMessage, event.ChatData{
			PlayerID: p.ID,
			Name:     p.Name,
			Text:     text,
			SentAt:   s.now(),
		})
		return nil
	})
}

// Snapshot returns the room's public state for the HTTP surface. A caller
// holding sinceVersion gets nil when nothing changed, which is the cheap
// "did anything happen" check the version counter exists for.
func (s *RoomService) Snapshot(ctx context.Context, code string, sinceVersion int64) (*event.RoomStateData, error) {
	var data *event.RoomStateData
	err := s.acc.Read(ctx, code, func(r *model.Room) {
		if sinceVersion > 0 && r.Version == sinceVersion {
			return
		}
		snap := roomState(r, "", s.now())
		data = &snap
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
