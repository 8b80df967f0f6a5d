package llm

import (
	"strings"

	"github.com/lunafall/companion/internal/config"
	"github.com/lunafall/companion/internal/persona"
)

// SearchPlan is the decision whether a web search would fire for a message.
// The search engine itself lives outside this core; the plan only feeds the
// preview surface and the webSearchUsed reply metadata.
type SearchPlan struct {
	Use      bool   `json:"use"`
	Query    string `json:"query,omitempty"`
	MaxItems int    `json:"maxItems,omitempty"`
}

// SearchPlanner gates search by configuration and character, then applies a
// freshness heuristic to the message.
type SearchPlanner struct {
	enabled      bool
	characterIDs map[string]bool
	maxItems     int
}

func NewSearchPlanner(cfg config.AssistantConfig) *SearchPlanner {
	ids := make(map[string]bool, len(cfg.WebSearchCharacters))
	for _, id := range cfg.WebSearchCharacters {
		ids[strings.ToLower(strings.TrimSpace(id))] = true
	}
	return &SearchPlanner{
		enabled:      cfg.WebSearchEnabled,
		characterIDs: ids,
		maxItems:     cfg.WebSearchMaxItems,
	}
}

var freshnessSignals = []string{
	"news", "today", "latest", "current", "now", "price", "prices",
	"weather", "stock", "market", "happened", "update", "score",
	"this week", "tonight", "tomorrow",
}

func (p *SearchPlanner) Plan(state persona.ModeState, message string) SearchPlan {
	if !p.enabled || !p.characterIDs[state.CharacterID] {
		return SearchPlan{}
	}
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return SearchPlan{}
	}
	for _, signal := range freshnessSignals {
		if strings.Contains(text, signal) {
			return SearchPlan{
				Use:      true,
				Query:    strings.TrimSpace(message),
				MaxItems: p.maxItems,
			}
		}
	}
	return SearchPlan{}
}
