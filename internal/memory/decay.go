package memory

import (
	"time"

	"github.com/lunafall/companion/internal/profile"
)

// DecayedScore is the item's current relevance: quality reduced by a linear
// ramp that reaches zero at the decay horizon. Weight does not participate in
// forgetting; it only orders prompt inclusion.
func DecayedScore(item profile.MemoryItem, now time.Time, decayDays int) float64 {
	if decayDays <= 0 {
		return item.Quality
	}
	elapsed := now.Sub(item.LastReinforcedAt)
	if elapsed <= 0 {
		return item.Quality
	}
	days := elapsed.Hours() / 24
	factor := 1 - days/float64(decayDays)
	if factor < 0 {
		factor = 0
	}
	return item.Quality * factor
}

// forgetDecayed drops long-term memories whose decayed score fell below the
// forget threshold. This is what keeps memory bounded over time.
func (l *Lifecycle) forgetDecayed(acct *profile.Account) {
	now := l.now()
	decayDays := l.settings.MemoryDecayDays()
	threshold := l.settings.MemoryForgetThreshold()

	kept := acct.Memories[:0]
	for _, item := range acct.Memories {
		if DecayedScore(item, now, decayDays) > threshold {
			kept = append(kept, item)
		}
	}
	acct.Memories = kept
}
