package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/lunafall/companion/internal/profile"
)

// Character describes one persona: its display name, per-mode tones and the
// domain used to pick fallback/snapshot behavior.
type Character struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Domain   string            `json:"domain,omitempty"`
	Language string            `json:"language,omitempty"`
	Tones    map[string]string `json:"tones"`
	Missions map[string]string `json:"missions,omitempty"`
}

// IsTrading reports whether the character operates in a trading domain.
func (c Character) IsTrading() bool {
	domain := strings.ToLower(strings.TrimSpace(c.Domain))
	if domain != "" {
		return domain == "trading" || domain == "trade"
	}
	return tradingPattern.MatchString(strings.ToLower(c.Missions["normal"]))
}

var tradingPattern = regexp.MustCompile(`(trade|trading|broker|portfolio)`)

// ModeState is the resolved persona view for one mode, returned by mode and
// chat operations.
type ModeState struct {
	Mode        profile.Mode `json:"mode"`
	Character   string       `json:"character"`
	CharacterID string       `json:"characterId"`
	Tone        string       `json:"tone"`
	Language    string       `json:"language,omitempty"`
	Definition  Character    `json:"characterDefinition"`
}

// Repository holds the configured characters and the default fallback id.
type Repository struct {
	characters map[string]Character
	defaultID  string
}

var idPattern = regexp.MustCompile(`^[a-z0-9_-]{2,32}$`)

// Load reads a characters file when configured and falls back to the built-in
// set otherwise. An unknown default id falls back to the built-in default.
func Load(path, defaultID string) (*Repository, error) {
	r := &Repository{characters: builtinCharacters(), defaultID: "luna"}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read characters file: %w", err)
			}
		} else {
			var loaded []Character
			if err := json.Unmarshal(data, &loaded); err != nil {
				return nil, fmt.Errorf("parse characters file: %w", err)
			}
			for _, c := range loaded {
				id := strings.ToLower(strings.TrimSpace(c.ID))
				if id == "" {
					continue
				}
				c.ID = id
				r.characters[id] = c
			}
		}
	}

	id := strings.ToLower(strings.TrimSpace(defaultID))
	if _, ok := r.characters[id]; ok {
		r.defaultID = id
	}
	return r, nil
}

func (r *Repository) DefaultID() string {
	return r.defaultID
}

// Normalize maps arbitrary input to a known character id, falling back to the
// default for empty, malformed or unknown ids.
func (r *Repository) Normalize(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	if !idPattern.MatchString(id) {
		return r.defaultID
	}
	if _, ok := r.characters[id]; !ok {
		return r.defaultID
	}
	return id
}

func (r *Repository) Get(raw string) Character {
	return r.characters[r.Normalize(raw)]
}

func (r *Repository) All() []Character {
	out := make([]Character, 0, len(r.characters))
	for _, c := range r.characters {
		out = append(out, c)
	}
	return out
}

// ModeState resolves the persona view for one mode/character pair.
func (r *Repository) ModeState(mode profile.Mode, characterID string) ModeState {
	c := r.Get(characterID)
	return ModeState{
		Mode:        mode,
		Character:   c.Name,
		CharacterID: c.ID,
		Tone:        c.Tones[string(mode)],
		Language:    c.Language,
		Definition:  c,
	}
}

func builtinCharacters() map[string]Character {
	return map[string]Character{
		"luna": {
			ID:       "luna",
			Name:     "Luna",
			Domain:   "personal",
			Language: "en",
			Tones: map[string]string{
				"normal":     "warm, upbeat, lightly playful; short actionable answers",
				"uncensored": "direct, unfiltered, still helpful; drops the pleasantries",
			},
			Missions: map[string]string{
				"normal": "organize the user's day: appointments, todos, decisions",
			},
		},
		"astra": {
			ID:       "astra",
			Name:     "Astra",
			Domain:   "trading",
			Language: "en",
			Tones: map[string]string{
				"normal":     "calm, numbers-first, risk-aware",
				"uncensored": "blunt trading desk voice, zero hedging language",
			},
			Missions: map[string]string{
				"normal": "track the paper trading account and keep risk per trade small",
			},
		},
	}
}
