package memory

import (
	"regexp"
	"strings"

	"github.com/lunafall/companion/internal/profile"
)

var preferredNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcall me ([\p{L}][\p{L} '-]{1,30})`),
	regexp.MustCompile(`(?i)\bmy name is ([\p{L}][\p{L} '-]{1,30})`),
}

// UpdateProfileFromMessage captures durable profile facts stated in passing,
// currently the preferred name ("call me X", "my name is X").
func (l *Lifecycle) UpdateProfileFromMessage(acct *profile.Account, message string) {
	for _, pat := range preferredNamePatterns {
		if m := pat.FindStringSubmatch(message); m != nil {
			name := strings.TrimSpace(m[1])
			if idx := strings.IndexAny(name, ".,!?\n"); idx > 0 {
				name = strings.TrimSpace(name[:idx])
			}
			if name != "" {
				acct.Profile.PreferredName = name
			}
			return
		}
	}
}

// SetPreferredName stores the explicit preferred name.
func (l *Lifecycle) SetPreferredName(acct *profile.Account, name string) {
	acct.Profile.PreferredName = strings.TrimSpace(name)
}

// SetModeExtras replaces the per-mode free-text instructions and memories.
// Nil slices keep the existing values.
func (l *Lifecycle) SetModeExtras(acct *profile.Account, instructions, memories []string) {
	if instructions != nil {
		acct.Profile.ModeExtras.UncensoredInstructions = cleanLines(instructions)
	}
	if memories != nil {
		acct.Profile.ModeExtras.UncensoredMemories = cleanLines(memories)
	}
}

func cleanLines(in []string) []string {
	out := make([]string, 0, len(in))
	for _, line := range in {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
