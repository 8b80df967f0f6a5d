package session

import (
	"sort"
	"strings"

	"github.com/lunafall/companion/internal/llm"
	"github.com/lunafall/companion/internal/profile"
)

// recentReplyWindow is how many trailing assistant replies feed the
// repetition guard.
const recentReplyWindow = 4

// mergedTurns returns the turns visible to the given mode in chronological
// order. The privileged mode merges both logs; the normal mode only ever sees
// its own. The isolation runs one way only.
func mergedTurns(acct *profile.Account, mode profile.Mode) []profile.Turn {
	if mode != profile.ModeUncensored {
		out := make([]profile.Turn, len(acct.History))
		copy(out, acct.History)
		return out
	}

	merged := make([]profile.Turn, 0, len(acct.History)+len(acct.UncensoredHistory))
	merged = append(merged, acct.History...)
	merged = append(merged, acct.UncensoredHistory...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].At.Before(merged[j].At)
	})
	return merged
}

// buildContext windows the visible turns to the last `window` and flattens
// them into alternating user/assistant messages. The chronological order must
// survive exactly; the model depends on it.
func buildContext(acct *profile.Account, mode profile.Mode, window int) []llm.Message {
	turns := mergedTurns(acct, mode)
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	out := make([]llm.Message, 0, len(turns)*2)
	for _, t := range turns {
		out = append(out,
			llm.Message{Role: "user", Content: t.User},
			llm.Message{Role: "assistant", Content: t.Assistant},
		)
	}
	return out
}

// recentAssistantReplies collects the trailing assistant texts the repetition
// guard compares against, computed over the same merged view as the context.
func recentAssistantReplies(acct *profile.Account, mode profile.Mode) []string {
	turns := mergedTurns(acct, mode)
	if len(turns) > recentReplyWindow {
		turns = turns[len(turns)-recentReplyWindow:]
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		if reply := strings.TrimSpace(t.Assistant); reply != "" {
			out = append(out, reply)
		}
	}
	return out
}
