package model

import "time"

// VotingKind tags the two voting variants. Call sites switch exhaustively
// on the kind rather than inspecting which map happens to be populated.
type VotingKind string

const (
	VotingAccusation VotingKind = "accusation"
	VotingFinal      VotingKind = "final"
)

// VoteChoice is a ballot in an accusation vote.
type VoteChoice string

const (
	VoteYes  VoteChoice = "yes"
	VoteNo   VoteChoice = "no"
	VoteSkip VoteChoice = "skip"
)

// Voting is the active voting object, a tagged union of the accusation and
// final-vote variants sharing start/end timestamps.
//
// A voter id appears at most once in either map: the first vote wins and
// later votes from the same voter are rejected, never overwritten.
type Voting struct {
	Kind      VotingKind `json:"kind"`
	StartedAt time.Time  `json:"started_at"`
	EndsAt    time.Time  `json:"ends_at"`

	// Accusation variant.
	InitiatorID string                `json:"initiator_id,omitempty"`
	TargetID    string                `json:"target_id,omitempty"`
	Choices     map[string]VoteChoice `json:"choices,omitempty"`

	// Final variant. An empty target is a skip. TargetOrder records targets
	// in first-vote order and is the deterministic tie-break for resolution.
	Ballots     map[string]string `json:"ballots,omitempty"`
	TargetOrder []string          `json:"target_order,omitempty"`
}

// NewAccusationVoting opens an accusation against targetID, pre-seeded with
// the initiator's own Yes vote.
func NewAccusationVoting(initiatorID, targetID string, now time.Time, d time.Duration) *Voting {
	return &Voting{
		Kind:        VotingAccusation,
		StartedAt:   now,
		EndsAt:      now.Add(d),
		InitiatorID: initiatorID,
		TargetID:    targetID,
		Choices:     map[string]VoteChoice{initiatorID: VoteYes},
	}
}

// NewFinalVoting opens a final vote.
func NewFinalVoting(now time.Time, d time.Duration) *Voting {
	return &Voting{
		Kind:      VotingFinal,
		StartedAt: now,
		EndsAt:    now.Add(d),
		Ballots:   map[string]string{},
	}
}

// HasVoted reports whether the voter already cast a ballot in this voting.
func (v *Voting) HasVoted(voterID string) bool {
	switch v.Kind {
	case VotingAccusation:
		_, ok := v.Choices[voterID]
		return ok
	case VotingFinal:
		_, ok := v.Ballots[voterID]
		return ok
	}
	return false
}

// CastChoice records an accusation ballot. Returns false if the voter
// already voted; the first vote is preserved unchanged.
func (v *Voting) CastChoice(voterID string, choice VoteChoice) bool {
	if _, ok := v.Choices[voterID]; ok {
		return false
	}
	v.Choices[voterID] = choice
	return true
}

// CastBallot records a final-vote ballot ("" = skip). Returns false if the
// voter already voted.
func (v *Voting) CastBallot(voterID, targetID string) bool {
	if _, ok := v.Ballots[voterID]; ok {
		return false
	}
	v.Ballots[voterID] = targetID
	if targetID != "" && !containsString(v.TargetOrder, targetID) {
		v.TargetOrder = append(v.TargetOrder, targetID)
	}
	return true
}

// YesCount returns the number of Yes ballots in an accusation vote.
func (v *Voting) YesCount() int {
	n := 0
	for _, c := range v.Choices {
		if c == VoteYes {
			n++
		}
	}
	return n
}

// TopTarget returns the final-vote target with the most ballots, ties
// broken by first-vote order, and whether every cast ballot was a skip.
func (v *Voting) TopTarget() (targetID string, allSkipped bool) {
	counts := make(map[string]int, len(v.TargetOrder))
	for _, t := range v.Ballots {
		if t != "" {
			counts[t]++
		}
	}
	if len(counts) == 0 {
		return "", true
	}
	best := ""
	for _, t := range v.TargetOrder {
		if best == "" || counts[t] > counts[best] {
			best = t
		}
	}
	return best, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
