package service

import (
	"math/rand"
	"time"

	"github.com/spyword/server/internal/event"
	"github.com/spyword/server/internal/model"
	"github.com/spyword/server/internal/repository"
)

// majority is the quorum rule: required votes among n eligible voters.
// The floor of 1 keeps an empty room from passing votes with zero ballots.
func majority(n int) int {
	if n <= 0 {
		return 1
	}
	return n/2 + 1
}

// requiredVotes computes the quorum for the room under its configured
// voting basis.
func requiredVotes(r *model.Room) int {
	return majority(len(r.EligibleVoters(r.Settings.VoteBasis)))
}

// spyCountFor picks the number of spies for a round: uniform in the
// configured [min,max], clamped to [1, players-1].
func spyCountFor(rnd *rand.Rand, s model.Settings, players int) int {
	lo, hi := s.SpiesMin, s.SpiesMax
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	n := lo
	if hi > lo {
		n = lo + rnd.Intn(hi-lo+1)
	}
	if n > players-1 {
		n = players - 1
	}
	if n < 1 {
		n = 1
	}
	return n
}

// assignSpies flags count players as spies via a partial Fisher-Yates
// shuffle, which is unbiased and deterministic under a seeded source.
func assignSpies(rnd *rand.Rand, players []*model.Player, count int) {
	idx := make([]int, len(players))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < count && i < len(idx); i++ {
		j := i + rnd.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		players[idx[i]].IsSpy = true
	}
}

func roundTask(code string) repository.Task {
	return repository.Task{Type: repository.TaskRoundTimeout, Room: code}
}

func votingTask(code string) repository.Task {
	return repository.Task{Type: repository.TaskVotingTimeout, Room: code}
}

func lastChanceTask(code string) repository.Task {
	return repository.Task{Type: repository.TaskLastChanceTimeout, Room: code}
}

func disconnectTask(code, playerID string) repository.Task {
	return repository.Task{Type: repository.TaskDisconnectTimeout, Room: code, Target: playerID}
}

// endGame closes the round: the winner and reason are set exactly once,
// the timer stops, voting and last-chance state clear, the round-scoped
// tasks are cancelled, and the full reveal is broadcast. Disconnect grace
// tasks stay pending: a vanished player should still be removed from the
// lobby that follows.
func endGame(r *model.Room, ec *event.Context, winner model.Team, reason model.EndReason) {
	g := r.Game
	r.Status = model.RoomStatusEnded
	g.Phase = model.PhaseNone
	g.Timer.Stop()
	g.Voting = nil
	g.CaughtSpyID = ""
	g.LastChanceUntil = nil
	g.Winner = winner
	g.Reason = reason

	ec.Cancel(roundTask(r.Code))
	ec.Cancel(votingTask(r.Code))
	ec.Cancel(lastChanceTask(r.Code))

	var spies []string
	for _, p := range r.Players {
		if p.IsSpy {
			spies = append(spies, p.ID)
		}
	}
	ec.PublishRoom(r.Code, event.TypeGameEnded, event.GameEndedData{
		Winner: string(winner),
		Reason: string(reason),
		Word:   g.Word,
		SpyIDs: spies,
	})
}

// checkEndConditions applies the end-of-round checks that run after every
// state-affecting event. Returns true if it ended the game.
func checkEndConditions(r *model.Room, ec *event.Context) bool {
	if r.Status != model.RoomStatusInGame || r.Game == nil {
		return false
	}
	alive := r.AliveCount()
	aliveSpies := r.AliveSpyCount()

	winnerByNumbers := model.TeamCivilians
	if aliveSpies > 0 {
		winnerByNumbers = model.TeamSpies
	}

	switch {
	case r.ConnectedCount() < 2:
		endGame(r, ec, winnerByNumbers, model.ReasonNotEnoughPlayers)
	case alive < 2:
		endGame(r, ec, winnerByNumbers, model.ReasonNotEnoughPlayers)
	case aliveSpies == 0 && r.Game.SpyCount > 0:
		// Compared against the roster assigned at round start, not the
		// current member list, so a spy leaving the room outright still
		// ends the round.
		endGame(r, ec, model.TeamCivilians, model.ReasonSpiesEliminated)
	case alive == 2 && aliveSpies == 1:
		// One civilian facing one spy cannot win a vote. Standoff.
		endGame(r, ec, model.TeamSpies, model.ReasonStandoff)
	default:
		return false
	}
	return true
}

// beginFinalVote moves the round into its final voting phase: the round
// timer terminates and every eligible voter gets one ballot.
func beginFinalVote(r *model.Room, ec *event.Context, now time.Time, opts Options) {
	g := r.Game
	g.Timer.Stop()
	g.Phase = model.PhaseFinalVote
	g.Voting = model.NewFinalVoting(now, opts.FinalVoteDuration)

	ec.Cancel(roundTask(r.Code))
	ec.Schedule(votingTask(r.Code), opts.FinalVoteDuration)
	ec.PublishRoom(r.Code, event.TypeRoundTimer, event.TimerData{
		State:  "stopped",
		StopAt: g.Timer.StopAt,
	})
	ec.PublishRoom(r.Code, event.TypeVotingStarted, event.VotingStartedData{
		Kind:     string(model.VotingFinal),
		Required: len(r.EligibleVoters(r.Settings.VoteBasis)),
		EndsAt:   g.Voting.EndsAt,
	})
}
