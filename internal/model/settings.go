package model

// VoteBasis selects which players count toward a voting quorum.
type VoteBasis string

const (
	VoteBasisAll       VoteBasis = "all"
	VoteBasisConnected VoteBasis = "connected"
)

// WordCategory is an opaque content pack: a named list of candidate words.
type WordCategory struct {
	Name  string   `json:"name"`
	Words []string `json:"words"`
}

// Settings are the host-editable room options.
type Settings struct {
	RoundMinutes       int            `json:"round_minutes"`
	SpiesMin           int            `json:"spies_min"`
	SpiesMax           int            `json:"spies_max"`
	MaxPlayers         int            `json:"max_players"`
	SpiesKnowEachOther bool           `json:"spies_know_each_other"`
	SpiesPlayAsTeam    bool           `json:"spies_play_as_team"`
	ShowCategoryToSpy  bool           `json:"show_category_to_spy"`
	Paranoia           bool           `json:"paranoia"`
	VoteBasis          VoteBasis      `json:"vote_basis"`
	Categories         []WordCategory `json:"categories"`
}

// DefaultSettings returns the settings a fresh room starts with.
func DefaultSettings() Settings {
	return Settings{
		RoundMinutes: 5,
		SpiesMin:     1,
		SpiesMax:     1,
		MaxPlayers:   10,
		VoteBasis:    VoteBasisConnected,
	}
}

// HasWords reports whether at least one category contains at least one word.
func (s Settings) HasWords() bool {
	for _, c := range s.Categories {
		if len(c.Words) > 0 {
			return true
		}
	}
	return false
}
