package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/lunafall/companion/internal/profile"
	"github.com/lunafall/companion/internal/settings"
)

// Lifecycle owns retention, compaction and decay over an account's in-memory
// state. Every pass is a pure transform; the caller persists the account
// afterwards in one write.
type Lifecycle struct {
	settings *settings.Settings
	now      func() time.Time
}

func New(s *settings.Settings) *Lifecycle {
	return &Lifecycle{settings: s, now: time.Now}
}

// ApplyRetentionAndCompaction runs the full maintenance pass for one log:
// hard time-boxed retention first, capacity-triggered compaction second, then
// decay-based forgetting of long-term memories. Retention and compaction are
// independent; a turn can survive retention and still be compacted.
func (l *Lifecycle) ApplyRetentionAndCompaction(acct *profile.Account, mode profile.Mode) {
	l.applyRetention(acct, mode)
	l.applyCompaction(acct, mode)
	l.forgetDecayed(acct)
	l.capNotes(acct)
}

func (l *Lifecycle) applyRetention(acct *profile.Account, mode profile.Mode) {
	logRef := acct.HistoryFor(mode)
	cutoff := l.now().AddDate(0, 0, -l.settings.HistoryRetentionDays())

	kept := (*logRef)[:0]
	for _, turn := range *logRef {
		if !turn.At.Before(cutoff) {
			kept = append(kept, turn)
		}
	}
	*logRef = kept
}

func (l *Lifecycle) applyCompaction(acct *profile.Account, mode profile.Mode) {
	logRef := acct.HistoryFor(mode)
	sumRef := acct.SummariesFor(mode)
	limit := l.settings.HistoryStoreLimit()
	chunkSize := l.settings.SummaryChunkSize()

	for len(*logRef) > limit {
		n := chunkSize
		if n > len(*logRef) {
			n = len(*logRef)
		}
		chunk := (*logRef)[:n]
		*sumRef = append(*sumRef, profile.Summary{
			At:              l.now(),
			Text:            summarizeTurns(chunk),
			SourceTurnCount: len(chunk),
		})
		*logRef = (*logRef)[n:]
	}

	if max := l.settings.SummaryLimit(); len(*sumRef) > max {
		*sumRef = (*sumRef)[len(*sumRef)-max:]
	}
}

func (l *Lifecycle) capNotes(acct *profile.Account) {
	limit := l.settings.NotesLimit()
	for _, mode := range []profile.Mode{profile.ModeNormal, profile.ModeUncensored} {
		count := 0
		for _, n := range acct.Notes {
			if n.Mode == mode {
				count++
			}
		}
		for count > limit {
			for i, n := range acct.Notes {
				if n.Mode == mode {
					acct.Notes = append(acct.Notes[:i], acct.Notes[i+1:]...)
					count--
					break
				}
			}
		}
	}
}

// summarizeTurns builds a deterministic digest of a compacted chunk. The
// lifecycle must stay suspension-free, so no model call happens here; the
// digest keeps the time span and the user-side gist of each turn.
func summarizeTurns(turns []profile.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s to %s: ",
		turns[0].At.Format("2006-01-02"),
		turns[len(turns)-1].At.Format("2006-01-02"))

	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		gist := strings.TrimSpace(t.User)
		if gist == "" {
			gist = strings.TrimSpace(t.Assistant)
		}
		if len(gist) > 60 {
			gist = gist[:60]
		}
		if gist != "" {
			parts = append(parts, gist)
		}
	}
	sb.WriteString(strings.Join(parts, " | "))
	return sb.String()
}
