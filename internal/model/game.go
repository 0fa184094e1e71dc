package model

import "time"

// Phase is the stage of an in-progress round.
type Phase string

const (
	PhaseNone       Phase = "none"
	PhaseSearch     Phase = "search"
	PhaseAccusation Phase = "accusation"
	PhaseFinalVote  Phase = "final_vote"
	PhaseLastChance Phase = "last_chance"
)

// Team identifies a winning side.
type Team string

const (
	TeamSpies     Team = "spies"
	TeamCivilians Team = "civilians"
)

// EndReason explains why a round ended.
type EndReason string

const (
	ReasonSpyGuessedWord   EndReason = "spy_guessed_word"
	ReasonSpiesEliminated  EndReason = "all_spies_eliminated"
	ReasonCivilianAccused  EndReason = "civilian_accused"
	ReasonCivilianVotedOut EndReason = "civilian_voted_out"
	ReasonWrongGuessAsTeam EndReason = "spy_team_wrong_guess"
	ReasonNotEnoughPlayers EndReason = "not_enough_players"
	ReasonStandoff         EndReason = "standoff"
	ReasonAllSkipped       EndReason = "all_skipped"
	ReasonParanoiaSurvived EndReason = "paranoia_survived"
)

// GameState exists only while a round is running or just ended.
//
// Invariants: Voting is non-nil only in phases Accusation and FinalVote;
// CaughtSpyID is non-empty only in phase LastChance; Winner/Reason are set
// exactly once, when the round ends. SpyCount is fixed at round start and
// does not shrink when a spy leaves the room.
type GameState struct {
	Word            string     `json:"word"`
	Category        string     `json:"category"`
	SpyCount        int        `json:"spy_count"`
	Phase           Phase      `json:"phase"`
	Timer           Timer      `json:"timer"`
	Voting          *Voting    `json:"voting,omitempty"`
	CaughtSpyID     string     `json:"caught_spy_id,omitempty"`
	LastChanceUntil *time.Time `json:"last_chance_until,omitempty"`
	Winner          Team       `json:"winner,omitempty"`
	Reason          EndReason  `json:"reason,omitempty"`
}
