package session

import (
	"regexp"
	"strings"

	"github.com/lunafall/companion/internal/profile"
)

// transientShiftInstruction is injected into the system prompt when the user
// drops out of roleplay into a plain task request mid-session.
const transientShiftInstruction = "Context shift detected: the user is no longer roleplaying. Leave the roleplay/flirt register immediately and answer the current request factually, precisely and task-oriented."

var taskSignals = []string{
	"trading", "trade", "order", "orders", "position", "positions", "risk",
	"drawdown", "entry", "exit", "stop", "take profit", "account",
	"status", "api", "strategy", "setup", "chart", "market",
	"portfolio", "balance", "equity", "cash", "analysis",
	"help", "why", "how", "please",
	"appointment", "calendar", "to-do", "todo", "task", "plan",
	"remind", "message", "reply", "mail", "priority",
}

var roleplaySignals = []string{
	"roleplay", "naughty", "horny", "sex", "sexy", "kiss",
	"naked", "dominant", "flirt", "*",
}

var explicitRoleplayExit = regexp.MustCompile(`(?i)(no|stop|without|end)\s+(roleplay|flirt|sexy|sex|naughty)|(roleplay|flirt|sexy|sex|naughty)\s+(off|over|stop|end)`)

// isRoleplayToTaskShift reports whether a privileged-mode message signals a
// switch from roleplay back to plain task talk.
func isRoleplayToTaskShift(message string, mode profile.Mode) bool {
	if mode != profile.ModeUncensored {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return false
	}

	if explicitRoleplayExit.MatchString(text) {
		return true
	}

	hasTask := false
	for _, token := range taskSignals {
		if strings.Contains(text, token) {
			hasTask = true
			break
		}
	}
	if !hasTask {
		return false
	}
	for _, token := range roleplaySignals {
		if strings.Contains(text, token) {
			return false
		}
	}
	return true
}
