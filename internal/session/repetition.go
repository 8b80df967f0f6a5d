package session

import "strings"

// minRepeatLength is the shortest normalized reply that can be flagged;
// anything shorter is too small to count as meaningful repetition.
const minRepeatLength = 12

// repeatHeadLength is how many leading characters are compared to catch
// boilerplate openings that repeat even when the tail differs.
const repeatHeadLength = 120

// normalizeForRepeatCheck lowercases, collapses whitespace runs, strips
// zero-width characters and trims. Applying it twice yields the same result.
func normalizeForRepeatCheck(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	lastSpace := false
	for _, r := range strings.ToLower(text) {
		if (r >= '\u200b' && r <= '\u200d') || r == '\ufeff' {
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		lastSpace = false
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}

// isRepetitive reports whether the candidate reply near-duplicates any of the
// recent assistant replies: exact normalized match, or matching first
// repeatHeadLength characters.
func isRepetitive(candidate string, recentReplies []string) bool {
	current := normalizeForRepeatCheck(candidate)
	if len(current) < minRepeatLength {
		return false
	}

	currentHead := head(current, repeatHeadLength)
	for _, old := range recentReplies {
		normalized := normalizeForRepeatCheck(old)
		if normalized == "" {
			continue
		}
		if normalized == current {
			return true
		}
		if head(normalized, repeatHeadLength) == currentHead {
			return true
		}
	}
	return false
}

func head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
