package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/event"
	"github.com/spyword/server/internal/model"
	"github.com/spyword/server/internal/repository"
)

// GameService runs the in-round state machine: round start, accusations,
// both voting variants, the last-chance guess, and the timeout re-entries.
// Every operation goes through the room accessor; declared outcomes are
// flushed only after the mutation commits.
type GameService struct {
	acc  repository.RoomAccessor
	disp *Dispatcher
	opts Options

	now func() time.Time
	rnd *rand.Rand
}

// NewGameService creates a GameService.
func NewGameService(acc repository.RoomAccessor, disp *Dispatcher, opts Options) *GameService {
	return &GameService{
		acc:  acc,
		disp: disp,
		opts: opts,
		now:  time.Now,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// run executes fn through the accessor and flushes the event context on
// success. On failure the context is cleared so no partial side effects
// leak from a rejected command.
func (s *GameService) run(ctx context.Context, code string, ec *event.Context, fn func(*model.Room) error) error {
	if err := s.acc.Execute(ctx, code, fn); err != nil {
		ec.Clear()
		return err
	}
	s.disp.DispatchAsync(ec)
	return nil
}

// StartGame begins a round. Host-only, lobby-only, needs at least three
// players and a word set with content.
func (s *GameService) StartGame(ctx context.Context, code, connID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		actor := r.PlayerByConn(connID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if !actor.Host {
			return apperr.Forbidden("only the host can start the game")
		}
		if r.Status != model.RoomStatusLobby {
			return apperr.ActionFailed("game already in progress")
		}
		if len(r.Players) < 3 {
			return apperr.ActionFailed("need at least 3 players")
		}
		if !r.Settings.HasWords() {
			return apperr.ActionFailed("no word categories configured")
		}
		var categories []model.WordCategory
		for _, c := range r.Settings.Categories {
			if len(c.Words) > 0 {
				categories = append(categories, c)
			}
		}

		category := categories[s.rnd.Intn(len(categories))]
		word := category.Words[s.rnd.Intn(len(category.Words))]

		for _, p := range r.Players {
			p.ResetRound()
		}
		assignSpies(s.rnd, r.Players, spyCountFor(s.rnd, r.Settings, len(r.Players)))
		spies := r.SpyCount()

		now := s.now()
		duration := time.Duration(r.Settings.RoundMinutes) * time.Minute
		r.Status = model.RoomStatusInGame
		r.Game = &model.GameState{
			Word:     word,
			Category: category.Name,
			SpyCount: spies,
			Phase:    model.PhaseSearch,
			Timer:    model.NewTimer(now, duration),
		}

		for _, p := range r.Players {
			ec.PublishConn(p.ConnID, code, event.TypeGameStarted, gameStartedData(r, p))
		}
		ec.PublishRoom(code, event.TypeRoundTimer, timerData(r.Game.Timer, now))
		ec.Schedule(roundTask(code), duration)

		log.Info().Str("room", code).Str("category", category.Name).
			Int("players", len(r.Players)).Int("spies", spies).
			Msg("Round started")
		return nil
	})
}

// StartAccusation opens an accusation vote against a target. Search phase
// only, once per player per round, never against yourself. The round timer
// pauses for the duration of the vote.
func (s *GameService) StartAccusation(ctx context.Context, code, connID, targetID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		actor, err := inPhase(r, connID, model.PhaseSearch)
		if err != nil {
			return err
		}
		if actor.UsedAccusation {
			return apperr.ActionFailed("accusation already used this round")
		}
		if targetID == actor.ID {
			return apperr.ValidationFailed("cannot accuse yourself")
		}
		target := r.PlayerByID(targetID)
		if target == nil {
			return apperr.NotFound("target player not found")
		}
		if target.IsDead {
			return apperr.ActionFailed("target is already eliminated")
		}

		now := s.now()
		actor.UsedAccusation = true
		g := r.Game
		g.Timer.Pause(now)
		g.Phase = model.PhaseAccusation
		g.Voting = model.NewAccusationVoting(actor.ID, targetID, now, s.opts.AccusationVoteDuration)

		ec.Cancel(roundTask(code))
		ec.Schedule(votingTask(code), s.opts.AccusationVoteDuration)
		ec.PublishRoom(code, event.TypeRoundTimer, timerData(g.Timer, now))
		ec.PublishRoom(code, event.TypeVotingStarted, event.VotingStartedData{
			Kind:        string(model.VotingAccusation),
			InitiatorID: actor.ID,
			TargetID:    targetID,
			Required:    requiredVotes(r),
			EndsAt:      g.Voting.EndsAt,
		})

		// The pre-seeded Yes can already be quorum in a tiny room.
		s.maybeResolveAccusation(r, ec, now)
		return nil
	})
}

// CastVote records an accusation ballot. The target parameter must match
// the active accusation; a voter's first ballot is final.
func (s *GameService) CastVote(ctx context.Context, code, connID, targetID string, choice model.VoteChoice) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		voter, err := inPhase(r, connID, model.PhaseAccusation)
		if err != nil {
			return err
		}
		switch choice {
		case model.VoteYes, model.VoteNo, model.VoteSkip:
		default:
			return apperr.ValidationFailed("invalid vote choice %q", choice)
		}
		v := r.Game.Voting
		if v == nil || v.Kind != model.VotingAccusation {
			return apperr.ActionFailed("no accusation vote in progress")
		}
		if targetID != v.TargetID {
			return apperr.ActionFailed("vote does not match the active accusation")
		}
		if !v.CastChoice(voter.ID, choice) {
			return apperr.ActionFailed("vote already cast")
		}

		ec.PublishRoom(code, event.TypeVoteCast, event.VoteCastData{
			VoterID: voter.ID,
			Choice:  string(choice),
			Votes:   v.YesCount(),
		})
		s.maybeResolveAccusation(r, ec, s.now())
		return nil
	})
}

// maybeResolveAccusation resolves the active accusation early when quorum
// is reached or has become mathematically unreachable.
func (s *GameService) maybeResolveAccusation(r *model.Room, ec *event.Context, now time.Time) {
	v := r.Game.Voting
	required := requiredVotes(r)
	yes := v.YesCount()
	if yes >= required {
		s.resolveAccusation(r, ec, now, true)
		return
	}
	uncast := 0
	for _, p := range r.EligibleVoters(r.Settings.VoteBasis) {
		if !v.HasVoted(p.ID) {
			uncast++
		}
	}
	if yes+uncast < required {
		s.resolveAccusation(r, ec, now, false)
	}
}

// resolveAccusation closes the accusation vote. Success against a spy
// opens the last-chance window; success against a civilian ends the round
// for the spies; failure returns to Search with the timer resumed.
func (s *GameService) resolveAccusation(r *model.Room, ec *event.Context, now time.Time, passed bool) {
	g := r.Game
	v := g.Voting
	ec.Cancel(votingTask(r.Code))
	ec.PublishRoom(r.Code, event.TypeVotingResolved, event.VotingResolvedData{
		Kind:     string(model.VotingAccusation),
		Passed:   passed,
		TargetID: v.TargetID,
	})

	if !passed {
		g.Voting = nil
		s.resumeSearch(r, ec, now)
		return
	}

	target := r.PlayerByID(v.TargetID)
	g.Voting = nil
	if target == nil || !target.IsSpy {
		endGame(r, ec, model.TeamSpies, model.ReasonCivilianAccused)
		return
	}
	s.openLastChance(r, ec, now, target.ID)
}

// openLastChance moves the round into the caught spy's guess window. The
// round timer stays paused; whether it resumes depends on the guess.
func (s *GameService) openLastChance(r *model.Room, ec *event.Context, now time.Time, spyID string) {
	g := r.Game
	g.Phase = model.PhaseLastChance
	g.CaughtSpyID = spyID
	until := now.Add(s.opts.LastChanceDuration)
	g.LastChanceUntil = &until

	ec.Schedule(lastChanceTask(r.Code), s.opts.LastChanceDuration)
	ec.PublishRoom(r.Code, event.TypeSpyCaught, event.SpyCaughtData{
		SpyID: spyID,
		Until: until,
	})
}

// resumeSearch puts the room back into Search with the paused round timer
// resumed; if the timer's live time had already fully elapsed, the round
// goes straight to final voting instead.
func (s *GameService) resumeSearch(r *model.Room, ec *event.Context, now time.Time) {
	g := r.Game
	if g.Timer.Stopped || g.Timer.Expired(now) {
		beginFinalVote(r, ec, now, s.opts)
		return
	}
	g.Timer.Resume(now)
	g.Phase = model.PhaseSearch
	ec.Schedule(roundTask(r.Code), g.Timer.Remaining(now))
	ec.PublishRoom(r.Code, event.TypeRoundTimer, timerData(g.Timer, now))
}

// CastFinalVote records a final-vote ballot. An empty target is a skip.
func (s *GameService) CastFinalVote(ctx context.Context, code, connID, targetID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		voter, err := inPhase(r, connID, model.PhaseFinalVote)
		if err != nil {
			return err
		}
		v := r.Game.Voting
		if v == nil || v.Kind != model.VotingFinal {
			return apperr.ActionFailed("no final vote in progress")
		}
		if targetID != "" {
			target := r.PlayerByID(targetID)
			if target == nil {
				return apperr.NotFound("target player not found")
			}
			if target.IsDead {
				return apperr.ActionFailed("target is already eliminated")
			}
		}
		if !v.CastBallot(voter.ID, targetID) {
			return apperr.ActionFailed("vote already cast")
		}

		ec.PublishRoom(code, event.TypeVoteCast, event.VoteCastData{
			VoterID: voter.ID,
			Votes:   len(v.Ballots),
		})

		if len(v.Ballots) >= len(r.EligibleVoters(r.Settings.VoteBasis)) {
			s.resolveFinalVote(r, ec, s.now())
		}
		return nil
	})
}

// resolveFinalVote closes the final vote: most votes wins, ties broken by
// first-vote order. All-skip is a loss for the accusers unless the room
// runs in paranoia mode.
func (s *GameService) resolveFinalVote(r *model.Room, ec *event.Context, now time.Time) {
	g := r.Game
	v := g.Voting
	top, allSkipped := v.TopTarget()

	ec.Cancel(votingTask(r.Code))
	ec.PublishRoom(r.Code, event.TypeVotingResolved, event.VotingResolvedData{
		Kind:     string(model.VotingFinal),
		Passed:   !allSkipped,
		TargetID: top,
	})
	g.Voting = nil

	if allSkipped {
		if r.Settings.Paranoia {
			endGame(r, ec, model.TeamCivilians, model.ReasonParanoiaSurvived)
		} else {
			endGame(r, ec, model.TeamSpies, model.ReasonAllSkipped)
		}
		return
	}

	target := r.PlayerByID(top)
	if target == nil || !target.IsSpy {
		endGame(r, ec, model.TeamSpies, model.ReasonCivilianVotedOut)
		return
	}
	s.openLastChance(r, ec, now, target.ID)
}

// GuessWord is the caught spy's last-chance guess. A correct guess wins
// the round for the spies on the spot.
func (s *GameService) GuessWord(ctx context.Context, code, connID, word string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		actor, err := inPhase(r, connID, model.PhaseLastChance)
		if err != nil {
			return err
		}
		g := r.Game
		if actor.ID != g.CaughtSpyID {
			return apperr.Forbidden("only the caught spy may guess")
		}
		if strings.TrimSpace(word) == "" {
			return apperr.ValidationFailed("guess must not be empty")
		}

		ec.Cancel(lastChanceTask(code))
		if strings.EqualFold(strings.TrimSpace(word), g.Word) {
			endGame(r, ec, model.TeamSpies, model.ReasonSpyGuessedWord)
			return nil
		}
		s.eliminateCaughtSpy(r, ec, s.now())
		return nil
	})
}

// eliminateCaughtSpy handles a wrong (or absent) last-chance guess: the
// caught spy dies, and the round either ends or resumes depending on the
// team configuration and who is left.
func (s *GameService) eliminateCaughtSpy(r *model.Room, ec *event.Context, now time.Time) {
	g := r.Game
	spy := r.PlayerByID(g.CaughtSpyID)
	g.CaughtSpyID = ""
	g.LastChanceUntil = nil
	if spy != nil {
		spy.IsDead = true
		ec.PublishRoom(r.Code, event.TypePlayerEliminated, event.PlayerRefData{PlayerID: spy.ID})
	}

	if r.Settings.SpiesPlayAsTeam {
		// The spies win or lose together; one wrong guess sinks them all.
		endGame(r, ec, model.TeamCivilians, model.ReasonWrongGuessAsTeam)
		return
	}
	if checkEndConditions(r, ec) {
		return
	}
	s.resumeSearch(r, ec, now)
}

// VoteStopTimer registers a vote to end the search phase early. A majority
// of alive connected players moves the round straight into final voting.
func (s *GameService) VoteStopTimer(ctx context.Context, code, connID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		actor, err := inPhase(r, connID, model.PhaseSearch)
		if err != nil {
			return err
		}
		if actor.VotedToStop {
			return apperr.ActionFailed("stop-timer vote already cast")
		}

		actor.VotedToStop = true
		eligible := r.EligibleVoters(model.VoteBasisConnected)
		votes := 0
		for _, p := range eligible {
			if p.VotedToStop {
				votes++
			}
		}
		required := majority(len(eligible))
		ec.PublishRoom(code, event.TypeStopTimerVote, event.StopTimerVoteData{
			PlayerID: actor.ID,
			Votes:    votes,
			Required: required,
		})
		if votes >= required {
			beginFinalVote(r, ec, s.now(), s.opts)
		}
		return nil
	})
}

// ReturnToLobby resets an ended room for another round, keeping the room
// and its players.
func (s *GameService) ReturnToLobby(ctx context.Context, code, connID string) error {
	ec := event.NewContext()
	return s.run(ctx, code, ec, func(r *model.Room) error {
		actor := r.PlayerByConn(connID)
		if actor == nil {
			return apperr.NotFound("player not in room")
		}
		if !actor.Host {
			return apperr.Forbidden("only the host can return the room to the lobby")
		}
		if r.Status != model.RoomStatusEnded {
			return apperr.ActionFailed("round is still running")
		}

		r.Status = model.RoomStatusLobby
		r.Game = nil
		for _, p := range r.Players {
			p.ResetRound()
			p.Ready = false
		}
		ec.PublishRoom(code, event.TypeReturnedToLobby, event.RoomStateData{
			Code:    code,
			Status:  string(r.Status),
			Players: playersInfo(r),
		})
		return nil
	})
}

// inPhase validates the common preconditions of in-round commands: the
// actor exists, is alive, and the room is in the expected phase.
func inPhase(r *model.Room, connID string, phase model.Phase) (*model.Player, error) {
	actor := r.PlayerByConn(connID)
	if actor == nil {
		return nil, apperr.NotFound("player not in room")
	}
	if r.Status != model.RoomStatusInGame || r.Game == nil {
		return nil, apperr.ActionFailed("no round in progress")
	}
	if actor.IsDead {
		return nil, apperr.ActionFailed("eliminated players cannot act")
	}
	if r.Game.Phase != phase {
		return nil, apperr.ActionFailed("not allowed in the %s phase", r.Game.Phase)
	}
	return actor, nil
}
