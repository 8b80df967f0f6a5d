package llm

import (
	"fmt"
	"strings"

	"github.com/lunafall/companion/internal/persona"
	"github.com/lunafall/companion/internal/profile"
)

// FallbackReply produces the deterministic template used when the model is
// disabled or unavailable. The turn is still recorded with this text.
func FallbackReply(state persona.ModeState, acct *profile.Account, snap Snapshot, mode profile.Mode, message string, contextShift bool) string {
	trading := state.Definition.IsTrading()
	name := "you"
	if acct != nil && acct.Profile.PreferredName != "" {
		name = acct.Profile.PreferredName
	}

	if contextShift {
		if trading {
			return fmt.Sprintf("%s: Understood, back to plain task mode. Give me your goal, risk and time horizon and I'll lay out the next steps.", state.Character)
		}
		return fmt.Sprintf("%s: Understood, back to plain task mode. Tell me your goal for the day or your next appointment and I'll structure it.", state.Character)
	}

	text := strings.ToLower(message)
	if strings.Contains(text, "status") || strings.Contains(text, "update") {
		if trading {
			if mode == profile.ModeUncensored {
				return fmt.Sprintf("%s: Equity %s, cash %s, %d open orders. Focus: keep risk small.", state.Character, orNA(snap.Equity), orNA(snap.Cash), snap.OpenOrders)
			}
			return fmt.Sprintf("Hey %s, equity %s, cash %s, %d open orders.", name, orNA(snap.Equity), orNA(snap.Cash), snap.OpenOrders)
		}
		return fmt.Sprintf("%s: I'm here. Tell me your focus (appointments, todos or just talk) and I'll set up a clear plan.", state.Character)
	}

	if mode == profile.ModeUncensored {
		if trading {
			return fmt.Sprintf("%s: Ready. Ask for status, the day's plan or a risk setup.", state.Character)
		}
		return fmt.Sprintf("%s: Ready. Tell me what to organize or draft for you.", state.Character)
	}

	if trading {
		return fmt.Sprintf("Hey %s, I'm ready. Ask me about status, the day's plan or a risk setup.", name)
	}
	return fmt.Sprintf("Hey %s, I'm ready. Ask me about appointments, the day's plan, messages or decisions.", name)
}
