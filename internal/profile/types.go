package profile

import (
	"strings"
	"time"
)

// Mode is the persona/privilege state of an account. It decides which history
// log a turn lands in and whether dual-log context merging applies.
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeUncensored Mode = "uncensored"
	ModeAll        Mode = "all" // selector for deletion ops, never stored
)

// NormalizeMode maps arbitrary input to a valid stored mode.
func NormalizeMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeUncensored:
		return ModeUncensored
	default:
		return ModeNormal
	}
}

// NormalizeModeSelector is NormalizeMode plus the "all" selector used by the
// deletion operations.
func NormalizeModeSelector(raw string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(raw))) == ModeAll {
		return ModeAll
	}
	return NormalizeMode(raw)
}

// Turn is one user/assistant exchange. Immutable once appended.
type Turn struct {
	At        time.Time `json:"at"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
}

// Summary is the lossy digest of a compacted chunk of old turns.
type Summary struct {
	At              time.Time `json:"at"`
	Text            string    `json:"text"`
	SourceTurnCount int       `json:"sourceTurnCount"`
}

// MemoryItem is a long-term memory subject to decay-based forgetting.
type MemoryItem struct {
	Text             string    `json:"text"`
	Weight           float64   `json:"weight"`
	Quality          float64   `json:"quality"`
	Mode             Mode      `json:"mode"`
	Tag              string    `json:"tag,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	LastReinforcedAt time.Time `json:"lastReinforcedAt"`
}

// Note is a short per-mode annotation, kept in a rolling window.
type Note struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
	Mode Mode      `json:"mode"`
}

// TrainingExample is a curated user/assistant pair. Not subject to decay.
type TrainingExample struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	Source    string    `json:"source"`
	Accepted  bool      `json:"accepted"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

// ModeExtras holds free-text instructions/memories the user supplies for the
// privileged mode.
type ModeExtras struct {
	UncensoredInstructions []string `json:"uncensoredInstructions"`
	UncensoredMemories     []string `json:"uncensoredMemories"`
}

// Profile is the per-account identity and mode state.
type Profile struct {
	Mode              Mode               `json:"mode"`
	CharacterID       string             `json:"characterId"`
	PreferredName     string             `json:"preferredName,omitempty"`
	ModeExtras        ModeExtras         `json:"modeExtras"`
	SettingsOverrides map[string]float64 `json:"settingsOverrides,omitempty"`
}

// Account is everything stored for one account id.
type Account struct {
	Profile             Profile           `json:"profile"`
	History             []Turn            `json:"history"`
	UncensoredHistory   []Turn            `json:"uncensoredHistory"`
	Summaries           []Summary         `json:"summaries"`
	UncensoredSummaries []Summary         `json:"uncensoredSummaries"`
	Memories            []MemoryItem      `json:"memories"`
	Notes               []Note            `json:"notes"`
	TrainingExamples    []TrainingExample `json:"trainingExamples"`
}

// HistoryFor returns the live log for the given mode.
func (a *Account) HistoryFor(mode Mode) *[]Turn {
	if mode == ModeUncensored {
		return &a.UncensoredHistory
	}
	return &a.History
}

// SummariesFor returns the summary list for the given mode.
func (a *Account) SummariesFor(mode Mode) *[]Summary {
	if mode == ModeUncensored {
		return &a.UncensoredSummaries
	}
	return &a.Summaries
}

// Document is the root persisted document: all accounts plus schema version.
type Document struct {
	Version  int                 `json:"version"`
	Accounts map[string]*Account `json:"users"`
}

// SchemaVersion is bumped whenever the stored shape changes; Registry.Load
// migrates older documents forward.
const SchemaVersion = 2

func NewAccount(defaultCharacterID string) *Account {
	return &Account{
		Profile: Profile{
			Mode:        ModeNormal,
			CharacterID: defaultCharacterID,
		},
	}
}
