package llm

import "time"

// Snapshot is the situational brief handed to the model alongside the
// message: trading figures for trading personas, a planner scope otherwise.
// Values are preformatted strings so the prompt never does number formatting.
type Snapshot struct {
	Scope      string `json:"scope"`
	Equity     string `json:"equity,omitempty"`
	Cash       string `json:"cash,omitempty"`
	OpenOrders int    `json:"openOrders,omitempty"`
	Positions  int    `json:"positions,omitempty"`
	Date       string `json:"date,omitempty"`
}

// PersonalSnapshot is the default brief for non-trading personas.
func PersonalSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Scope: "personal",
		Date:  now.Format("2006-01-02"),
	}
}
