package service

import (
	"context"
	"testing"
	"time"

	"github.com/spyword/server/internal/model"
	"github.com/spyword/server/internal/repository"
)

func newTimeoutFixture(t *testing.T) (*fixture, *TimeoutHandler) {
	t.Helper()
	f := newFixture(t)
	return f, NewTimeoutHandler(f.game, f.rooms)
}

func TestRoundTimeoutOpensFinalVote(t *testing.T) {
	f, h := newTimeoutFixture(t)
	f.startRound(t, "ROOM1", 4)
	ctx := context.Background()

	f.advance(5 * time.Minute)
	if err := h.RunTask(ctx, roundTask("ROOM1")); err != nil {
		t.Fatalf("run task: %v", err)
	}

	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Game.Phase != model.PhaseFinalVote {
			t.Errorf("expected final vote after round timeout, got %s", r.Game.Phase)
		}
		if !r.Game.Timer.Stopped {
			t.Error("expected round timer terminated")
		}
	})
}

func TestRoundTimeoutParanoia(t *testing.T) {
	f, h := newTimeoutFixture(t)
	ctx := context.Background()
	f.seedRoom(t, "ROOM1", 4)
	f.store.Execute(ctx, "ROOM1", func(r *model.Room) error {
		r.Settings.Paranoia = true
		return nil
	})
	if err := f.game.StartGame(ctx, "ROOM1", connID(0)); err != nil {
		t.Fatalf("start game: %v", err)
	}

	f.advance(5 * time.Minute)
	if err := h.RunTask(ctx, roundTask("ROOM1")); err != nil {
		t.Fatalf("run task: %v", err)
	}

	// Surviving the whole search phase is the paranoia-mode civilian win.
	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Game.Winner != model.TeamCivilians || r.Game.Reason != model.ReasonParanoiaSurvived {
			t.Errorf("expected civilians win, got %s / %s", r.Game.Winner, r.Game.Reason)
		}
	})
}

func TestEarlyRoundTimeoutIsStale(t *testing.T) {
	f, h := newTimeoutFixture(t)
	f.startRound(t, "ROOM1", 4)
	ctx := context.Background()

	// Fires a minute early: dropped without touching the round.
	f.advance(time.Minute)
	if err := h.RunTask(ctx, roundTask("ROOM1")); err != nil {
		t.Fatalf("stale task must be swallowed, got %v", err)
	}
	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Game.Phase != model.PhaseSearch {
			t.Errorf("expected round untouched, got %s", r.Game.Phase)
		}
	})
}

func TestRoundTimeoutDuringAccusationIsStale(t *testing.T) {
	f, h := newTimeoutFixture(t)
	spy := f.startRound(t, "ROOM1", 4)
	ctx := context.Background()

	accuser := civilians(4, spy)[0]
	if err := f.game.StartAccusation(ctx, "ROOM1", connID(accuser), playerID(spy)); err != nil {
		t.Fatalf("start accusation: %v", err)
	}

	f.advance(10 * time.Minute)
	if err := h.RunTask(ctx, roundTask("ROOM1")); err != nil {
		t.Fatalf("stale task must be swallowed, got %v", err)
	}
	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Game.Phase != model.PhaseAccusation {
			t.Errorf("expected accusation phase untouched, got %s", r.Game.Phase)
		}
	})
}

func TestRoundTimeoutForUnknownRoomIsStale(t *testing.T) {
	_, h := newTimeoutFixture(t)
	if err := h.RunTask(context.Background(), roundTask("NOPE")); err != nil {
		t.Fatalf("task for a vanished room must be swallowed, got %v", err)
	}
}

func TestVotingTimeoutFailsAccusationWithoutQuorum(t *testing.T) {
	f, h := newTimeoutFixture(t)
	spy := f.startRound(t, "ROOM1", 4)
	ctx := context.Background()

	accuser := civilians(4, spy)[0]
	f.advance(time.Minute)
	if err := f.game.StartAccusation(ctx, "ROOM1", connID(accuser), playerID(spy)); err != nil {
		t.Fatalf("start accusation: %v", err)
	}

	f.advance(f.game.opts.AccusationVoteDuration)
	if err := h.RunTask(ctx, votingTask("ROOM1")); err != nil {
		t.Fatalf("run task: %v", err)
	}

	// One yes out of a required three: the accusation lapses and the round
	// resumes.
	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Game.Phase != model.PhaseSearch {
			t.Errorf("expected search resumed, got %s", r.Game.Phase)
		}
		if got := r.Game.Timer.Remaining(f.now); got != 4*time.Minute {
			t.Errorf("expected paused minute returned, got %v remaining", got)
		}
	})
}

func TestVotingTimeoutResolvesFinalVote(t *testing.T) {
	f, h := newTimeoutFixture(t)
	spy := f.startRound(t, "ROOM1", 4)
	ctx := context.Background()
	civs := civilians(4, spy)
	f.beginFinal(t, "ROOM1", spy)

	// Only two ballots arrive before the window closes.
	f.game.CastFinalVote(ctx, "ROOM1", connID(civs[0]), playerID(civs[1]))
	f.game.CastFinalVote(ctx, "ROOM1", connID(civs[1]), "")

	f.advance(f.game.opts.FinalVoteDuration)
	if err := h.RunTask(ctx, votingTask("ROOM1")); err != nil {
		t.Fatalf("run task: %v", err)
	}

	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Game.Winner != model.TeamSpies || r.Game.Reason != model.ReasonCivilianVotedOut {
			t.Errorf("expected resolution with cast ballots, got %s / %s", r.Game.Winner, r.Game.Reason)
		}
	})
}

func TestLastChanceTimeoutEliminatesSpy(t *testing.T) {
	f, h := newTimeoutFixture(t)
	spy := f.startRound(t, "ROOM1", 4)
	ctx := context.Background()
	f.catchSpy(t, "ROOM1", spy)

	f.advance(f.game.opts.LastChanceDuration)
	if err := h.RunTask(ctx, lastChanceTask("ROOM1")); err != nil {
		t.Fatalf("run task: %v", err)
	}

	// An expired window counts as a wrong guess.
	f.read(t, "ROOM1", func(r *model.Room) {
		if !r.PlayerByID(playerID(spy)).IsDead {
			t.Error("expected caught spy eliminated on timeout")
		}
		if r.Game.Winner != model.TeamCivilians || r.Game.Reason != model.ReasonSpiesEliminated {
			t.Errorf("expected civilians win, got %s / %s", r.Game.Winner, r.Game.Reason)
		}
	})
}

func TestDisconnectTimeoutRemovesPlayer(t *testing.T) {
	f, h := newTimeoutFixture(t)
	f.seedRoom(t, "ROOM1", 3)
	ctx := context.Background()

	if err := f.rooms.Disconnected(ctx, "ROOM1", connID(2)); err != nil {
		t.Fatalf("disconnected: %v", err)
	}
	if _, ok := f.sched.delayFor(disconnectTask("ROOM1", playerID(2))); !ok {
		t.Fatal("expected disconnect grace task scheduled")
	}

	f.advance(f.rooms.opts.DisconnectGrace)
	if err := h.RunTask(ctx, disconnectTask("ROOM1", playerID(2))); err != nil {
		t.Fatalf("run task: %v", err)
	}

	f.read(t, "ROOM1", func(r *model.Room) {
		if r.PlayerByID(playerID(2)) != nil {
			t.Error("expected player removed after grace expiry")
		}
	})
}

func TestDisconnectTimeoutAfterReconnectIsStale(t *testing.T) {
	f, h := newTimeoutFixture(t)
	f.seedRoom(t, "ROOM1", 3)
	ctx := context.Background()

	f.rooms.Disconnected(ctx, "ROOM1", connID(2))
	if err := f.rooms.Reconnect(ctx, "ROOM1", playerID(2), "conn-new"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	f.advance(f.rooms.opts.DisconnectGrace)
	if err := h.RunTask(ctx, disconnectTask("ROOM1", playerID(2))); err != nil {
		t.Fatalf("stale grace task must be swallowed, got %v", err)
	}
	f.read(t, "ROOM1", func(r *model.Room) {
		if r.PlayerByID(playerID(2)) == nil {
			t.Error("reconnected player must not be removed")
		}
	})
}

func TestRunTaskUnknownType(t *testing.T) {
	_, h := newTimeoutFixture(t)
	err := h.RunTask(context.Background(), repository.Task{Type: "bogus", Room: "ROOM1"})
	if err == nil {
		t.Fatal("expected error for unknown task type")
	}
}

func TestSpyGraceExpiryEndsRound(t *testing.T) {
	f, h := newTimeoutFixture(t)
	spy := f.startRound(t, "ROOM1", 5)
	ctx := context.Background()

	if err := f.rooms.Disconnected(ctx, "ROOM1", connID(spy)); err != nil {
		t.Fatalf("disconnected: %v", err)
	}
	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Status != model.RoomStatusInGame {
			t.Fatalf("expected round still running during grace, got %s", r.Status)
		}
	})

	f.advance(f.rooms.opts.DisconnectGrace)
	if err := h.RunTask(ctx, disconnectTask("ROOM1", playerID(spy))); err != nil {
		t.Fatalf("run task: %v", err)
	}

	f.read(t, "ROOM1", func(r *model.Room) {
		if r.Status != model.RoomStatusEnded {
			t.Fatalf("expected round ended after the spy's removal, got %s", r.Status)
		}
		if r.Game.Winner != model.TeamCivilians || r.Game.Reason != model.ReasonSpiesEliminated {
			t.Errorf("expected civilian win, got %s / %s", r.Game.Winner, r.Game.Reason)
		}
	})
}
