package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/event"
	"github.com/spyword/server/internal/model"
	"github.com/spyword/server/internal/repository"
)

// TimeoutHandler is the scheduler's re-entry point into game logic. Every
// handler re-validates, against current room state, that the condition
// that justified scheduling still holds and that the deadline has actually
// passed before acting: workers can be delayed, clocks can skew, and a
// task can outlive the phase that scheduled it.
type TimeoutHandler struct {
	game  *GameService
	rooms *RoomService
}

// NewTimeoutHandler creates the task runner over both services.
func NewTimeoutHandler(game *GameService, rooms *RoomService) *TimeoutHandler {
	return &TimeoutHandler{game: game, rooms: rooms}
}

// RunTask dispatches a due task under the same room accessor discipline as
// user commands. A stale task (its condition no longer holds) is dropped
// silently; that is the second line of defense after explicit cancellation.
func (h *TimeoutHandler) RunTask(ctx context.Context, task repository.Task) error {
	var err error
	switch task.Type {
	case repository.TaskRoundTimeout:
		err = h.game.handleRoundTimeout(ctx, task.Room)
	case repository.TaskVotingTimeout:
		err = h.game.handleVotingTimeout(ctx, task.Room)
	case repository.TaskLastChanceTimeout:
		err = h.game.handleLastChanceTimeout(ctx, task.Room)
	case repository.TaskDisconnectTimeout:
		err = h.rooms.handleDisconnectTimeout(ctx, task.Room, task.Target)
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindActionFailed || kind == apperr.KindNotFound {
			log.Debug().Str("task", task.Key()).Str("reason", err.Error()).Msg("Dropping stale task")
			return nil
		}
		return err
	}
	return nil
}

// deadlinePassed accepts a firing slightly ahead of the stored deadline.
func deadlinePassed(now, deadline time.Time) bool {
	return !now.Add(timeoutGrace).Before(deadline)
}

// handleRoundTimeout fires when the round timer's planned stop arrives.
// In paranoia mode surviving the search phase is itself the civilian win;
// otherwise the round moves into final voting.
func (s *GameService) handleRoundTimeout(ctx context.Context, code string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		if r.Status != model.RoomStatusInGame || r.Game == nil || r.Game.Phase != model.PhaseSearch {
			return apperr.ActionFailed("round timer no longer relevant")
		}
		g := r.Game
		if g.Timer.Paused() || g.Timer.Stopped {
			return apperr.ActionFailed("round timer is not running")
		}
		if !deadlinePassed(s.now(), g.Timer.StopAt) {
			return apperr.ActionFailed("round timer has not elapsed yet")
		}

		if r.Settings.Paranoia {
			endGame(r, ec, model.TeamCivilians, model.ReasonParanoiaSurvived)
			return nil
		}
		beginFinalVote(r, ec, s.now(), s.opts)
		return nil
	})
}

// handleVotingTimeout closes whichever voting variant is active when its
// window expires. An accusation that timed out without quorum fails; a
// final vote resolves with the ballots cast so far.
func (s *GameService) handleVotingTimeout(ctx context.Context, code string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		if r.Status != model.RoomStatusInGame || r.Game == nil || r.Game.Voting == nil {
			return apperr.ActionFailed("no vote in progress")
		}
		v := r.Game.Voting
		now := s.now()
		if !deadlinePassed(now, v.EndsAt) {
			return apperr.ActionFailed("vote window has not closed yet")
		}

		switch v.Kind {
		case model.VotingAccusation:
			s.resolveAccusation(r, ec, now, v.YesCount() >= requiredVotes(r))
		case model.VotingFinal:
			s.resolveFinalVote(r, ec, now)
		}
		return nil
	})
}

// handleLastChanceTimeout treats an expired guess window as a wrong guess.
func (s *GameService) handleLastChanceTimeout(ctx context.Context, code string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		if r.Status != model.RoomStatusInGame || r.Game == nil || r.Game.Phase != model.PhaseLastChance {
			return apperr.ActionFailed("no last-chance window open")
		}
		g := r.Game
		if g.LastChanceUntil == nil || !deadlinePassed(s.now(), *g.LastChanceUntil) {
			return apperr.ActionFailed("last-chance window has not closed yet")
		}
		s.eliminateCaughtSpy(r, ec, s.now())
		return nil
	})
}
