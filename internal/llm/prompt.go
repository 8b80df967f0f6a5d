package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lunafall/companion/internal/memory"
	"github.com/lunafall/companion/internal/profile"
	"github.com/lunafall/companion/internal/settings"
)

// PromptBuilder assembles the system prompt from the persona definition, the
// account's durable memories and the rolling summaries.
type PromptBuilder struct {
	settings *settings.Settings
}

func NewPromptBuilder(s *settings.Settings) *PromptBuilder {
	return &PromptBuilder{settings: s}
}

func (b *PromptBuilder) BuildSystemPrompt(req Request, plan SearchPlan) string {
	var sb strings.Builder
	acct := req.Account
	state := req.ModeState

	fmt.Fprintf(&sb, "You are %s, a personal companion assistant.\n", state.Character)
	if state.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s.\n", state.Tone)
	}
	if state.Language != "" {
		fmt.Fprintf(&sb, "Answer in language: %s.\n", state.Language)
	}
	if mission := state.Definition.Missions[string(profile.ModeNormal)]; mission != "" {
		fmt.Fprintf(&sb, "Mission: %s.\n", mission)
	}
	if acct != nil && acct.Profile.PreferredName != "" {
		fmt.Fprintf(&sb, "Address the user as %s.\n", acct.Profile.PreferredName)
	}

	if req.Mode == profile.ModeUncensored && acct != nil {
		extras := acct.Profile.ModeExtras
		if len(extras.UncensoredInstructions) > 0 {
			sb.WriteString("\nUser-defined instructions for this mode:\n")
			for _, line := range extras.UncensoredInstructions {
				sb.WriteString("- " + line + "\n")
			}
		}
		if len(extras.UncensoredMemories) > 0 {
			sb.WriteString("\nUser-defined memories for this mode:\n")
			for _, line := range extras.UncensoredMemories {
				sb.WriteString("- " + line + "\n")
			}
		}
	}

	if acct != nil {
		b.writeMemories(&sb, acct, req.Mode)
		b.writeNotes(&sb, acct, req.Mode)
		b.writeSummaries(&sb, acct, req.Mode)
	}

	writeSnapshot(&sb, req.Snapshot)

	if plan.Use {
		fmt.Fprintf(&sb, "\nA web search for %q may be used to ground the answer.\n", plan.Query)
	}

	if req.TransientInstruction != "" {
		sb.WriteString("\n" + req.TransientInstruction + "\n")
	}

	return sb.String()
}

// writeMemories includes the strongest surviving long-term memories for the
// active mode, ordered by weight then current decayed score.
func (b *PromptBuilder) writeMemories(sb *strings.Builder, acct *profile.Account, mode profile.Mode) {
	now := time.Now()
	decayDays := b.settings.MemoryDecayDays()

	items := make([]profile.MemoryItem, 0, len(acct.Memories))
	for _, m := range acct.Memories {
		if m.Mode == mode || m.Mode == profile.ModeNormal {
			items = append(items, m)
		}
	}
	if len(items) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Weight != items[j].Weight {
			return items[i].Weight > items[j].Weight
		}
		return memory.DecayedScore(items[i], now, decayDays) > memory.DecayedScore(items[j], now, decayDays)
	})

	sb.WriteString("\nDurable memories about the user:\n")
	for _, m := range items {
		sb.WriteString("- " + m.Text + "\n")
	}
}

func (b *PromptBuilder) writeNotes(sb *strings.Builder, acct *profile.Account, mode profile.Mode) {
	var lines []string
	for _, n := range acct.Notes {
		if n.Mode == mode {
			lines = append(lines, n.Text)
		}
	}
	if len(lines) == 0 {
		return
	}
	sb.WriteString("\nRecent feedback notes:\n")
	for _, line := range lines {
		sb.WriteString("- " + line + "\n")
	}
}

// writeSummaries appends the tail of the rolling summaries so long-gone turns
// still shape the reply.
func (b *PromptBuilder) writeSummaries(sb *strings.Builder, acct *profile.Account, mode profile.Mode) {
	sums := *acct.SummariesFor(mode)
	window := b.settings.SummaryContextWindow()
	if len(sums) > window {
		sums = sums[len(sums)-window:]
	}
	if len(sums) == 0 {
		return
	}
	sb.WriteString("\nEarlier conversation summaries:\n")
	for _, s := range sums {
		sb.WriteString("- " + s.Text + "\n")
	}
}

func writeSnapshot(sb *strings.Builder, snap Snapshot) {
	switch snap.Scope {
	case "trading":
		fmt.Fprintf(sb, "\nAccount snapshot: equity %s, cash %s, open orders %d, positions %d.\n",
			orNA(snap.Equity), orNA(snap.Cash), snap.OpenOrders, snap.Positions)
	case "personal":
		if snap.Date != "" {
			fmt.Fprintf(sb, "\nToday is %s.\n", snap.Date)
		}
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}
	return s
}
