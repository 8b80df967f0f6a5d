package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lunafall/companion/internal/profile"
)

// ErrValidation marks a malformed deletion payload. Validation failures never
// mutate the account.
var ErrValidation = errors.New("validation error")

// Overview counts the stored items per category and mode, returned by every
// deletion operation so the caller can confirm the effect.
type Overview struct {
	Turns            map[string]int `json:"turns"`
	Summaries        map[string]int `json:"summaries"`
	PinnedMemories   map[string]int `json:"pinnedMemories"`
	Notes            map[string]int `json:"notes"`
	TrainingExamples map[string]int `json:"trainingExamples"`
}

// BuildOverview computes the current overview for an account.
func BuildOverview(acct *profile.Account) Overview {
	o := Overview{
		Turns:            map[string]int{},
		Summaries:        map[string]int{},
		PinnedMemories:   map[string]int{},
		Notes:            map[string]int{},
		TrainingExamples: map[string]int{},
	}
	o.Turns["normal"] = len(acct.History)
	o.Turns["uncensored"] = len(acct.UncensoredHistory)
	o.Summaries["normal"] = len(acct.Summaries)
	o.Summaries["uncensored"] = len(acct.UncensoredSummaries)
	for _, m := range acct.Memories {
		o.PinnedMemories[string(m.Mode)]++
	}
	for _, n := range acct.Notes {
		o.Notes[string(n.Mode)]++
	}
	for _, e := range acct.TrainingExamples {
		o.TrainingExamples[string(e.Mode)]++
	}
	return o
}

func modesFor(selector profile.Mode) []profile.Mode {
	if selector == profile.ModeAll {
		return []profile.Mode{profile.ModeNormal, profile.ModeUncensored}
	}
	return []profile.Mode{selector}
}

// PruneByDays removes turns older than the given number of days from the
// selected logs.
func (l *Lifecycle) PruneByDays(acct *profile.Account, days int, selector profile.Mode) (Overview, error) {
	if days <= 0 {
		return Overview{}, fmt.Errorf("%w: days must be positive", ErrValidation)
	}
	cutoff := l.now().AddDate(0, 0, -days)
	for _, mode := range modesFor(selector) {
		logRef := acct.HistoryFor(mode)
		kept := (*logRef)[:0]
		for _, turn := range *logRef {
			if !turn.At.Before(cutoff) {
				kept = append(kept, turn)
			}
		}
		*logRef = kept
	}
	return BuildOverview(acct), nil
}

// DeleteByDate removes turns, notes and memories created on the given
// calendar day (YYYY-MM-DD).
func (l *Lifecycle) DeleteByDate(acct *profile.Account, day string, selector profile.Mode) (Overview, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(day))
	if err != nil {
		return Overview{}, fmt.Errorf("%w: unparseable date %q", ErrValidation, day)
	}
	target := parsed.Format("2006-01-02")

	for _, mode := range modesFor(selector) {
		logRef := acct.HistoryFor(mode)
		kept := (*logRef)[:0]
		for _, turn := range *logRef {
			if turn.At.Format("2006-01-02") != target {
				kept = append(kept, turn)
			}
		}
		*logRef = kept
	}

	keptNotes := acct.Notes[:0]
	for _, n := range acct.Notes {
		if n.At.Format("2006-01-02") != target || !selectorMatches(selector, n.Mode) {
			keptNotes = append(keptNotes, n)
		}
	}
	acct.Notes = keptNotes

	keptMems := acct.Memories[:0]
	for _, m := range acct.Memories {
		if m.CreatedAt.Format("2006-01-02") != target || !selectorMatches(selector, m.Mode) {
			keptMems = append(keptMems, m)
		}
	}
	acct.Memories = keptMems

	return BuildOverview(acct), nil
}

// DeleteRecentDays removes turns newer than the cutoff, the inverse of
// PruneByDays.
func (l *Lifecycle) DeleteRecentDays(acct *profile.Account, days int, selector profile.Mode) (Overview, error) {
	if days <= 0 {
		return Overview{}, fmt.Errorf("%w: days must be positive", ErrValidation)
	}
	cutoff := l.now().AddDate(0, 0, -days)
	for _, mode := range modesFor(selector) {
		logRef := acct.HistoryFor(mode)
		kept := (*logRef)[:0]
		for _, turn := range *logRef {
			if turn.At.Before(cutoff) {
				kept = append(kept, turn)
			}
		}
		*logRef = kept
	}
	return BuildOverview(acct), nil
}

// DeleteByTag removes long-term memories carrying the tag.
func (l *Lifecycle) DeleteByTag(acct *profile.Account, tag string, selector profile.Mode) (Overview, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return Overview{}, fmt.Errorf("%w: tag is required", ErrValidation)
	}
	kept := acct.Memories[:0]
	for _, m := range acct.Memories {
		if strings.ToLower(m.Tag) != tag || !selectorMatches(selector, m.Mode) {
			kept = append(kept, m)
		}
	}
	acct.Memories = kept
	return BuildOverview(acct), nil
}

// DeleteItem removes a single item by exact text. A missing target is a no-op;
// an unknown memory type is a validation error.
func (l *Lifecycle) DeleteItem(acct *profile.Account, memoryType, text string, selector profile.Mode) (Overview, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Overview{}, fmt.Errorf("%w: text is required", ErrValidation)
	}

	switch strings.ToLower(strings.TrimSpace(memoryType)) {
	case "memory":
		for i, m := range acct.Memories {
			if m.Text == text && selectorMatches(selector, m.Mode) {
				acct.Memories = append(acct.Memories[:i], acct.Memories[i+1:]...)
				break
			}
		}
	case "note":
		for i, n := range acct.Notes {
			if n.Text == text && selectorMatches(selector, n.Mode) {
				acct.Notes = append(acct.Notes[:i], acct.Notes[i+1:]...)
				break
			}
		}
	case "training":
		for i, e := range acct.TrainingExamples {
			if (e.User == text || e.Assistant == text || e.ID == text) && selectorMatches(selector, e.Mode) {
				acct.TrainingExamples = append(acct.TrainingExamples[:i], acct.TrainingExamples[i+1:]...)
				break
			}
		}
	default:
		return Overview{}, fmt.Errorf("%w: unknown memory type %q", ErrValidation, memoryType)
	}

	return BuildOverview(acct), nil
}

func selectorMatches(selector, mode profile.Mode) bool {
	return selector == profile.ModeAll || selector == mode
}
