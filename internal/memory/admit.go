package memory

import (
	"strings"

	"github.com/lunafall/companion/internal/profile"
)

// AddPinnedMemory admits a long-term memory when it passes the length and
// quality gates. Re-pinning an existing text in the same mode reinforces the
// item instead of duplicating it. Returns whether the memory was stored.
func (l *Lifecycle) AddPinnedMemory(acct *profile.Account, text string, weight, quality float64, mode profile.Mode) bool {
	text = strings.TrimSpace(text)
	if len(text) < l.settings.MemoryMinLength() || len(text) > l.settings.MemoryMaxLength() {
		return false
	}
	if quality < l.settings.MemoryQualityThreshold() {
		return false
	}
	if quality > 1 {
		quality = 1
	}

	now := l.now()
	for i := range acct.Memories {
		item := &acct.Memories[i]
		if item.Mode == mode && item.Text == text {
			item.LastReinforcedAt = now
			if quality > item.Quality {
				item.Quality = quality
			}
			if weight > item.Weight {
				item.Weight = weight
			}
			return true
		}
	}

	acct.Memories = append(acct.Memories, profile.MemoryItem{
		Text:             text,
		Weight:           weight,
		Quality:          quality,
		Mode:             mode,
		CreatedAt:        now,
		LastReinforcedAt: now,
	})
	return true
}

// AddNote appends a short per-mode note; the rolling cap is enforced on the
// next lifecycle pass.
func (l *Lifecycle) AddNote(acct *profile.Account, text string, mode profile.Mode) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	acct.Notes = append(acct.Notes, profile.Note{
		At:   l.now(),
		Text: text,
		Mode: mode,
	})
	l.capNotes(acct)
}
