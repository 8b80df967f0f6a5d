package session

import (
	"github.com/lunafall/companion/internal/memory"
	"github.com/lunafall/companion/internal/persona"
	"github.com/lunafall/companion/internal/profile"
	"github.com/lunafall/companion/internal/settings"
)

// SettingsView is the settings payload returned to callers: current runtime
// values plus a memory overview so the user sees what the tunables govern.
type SettingsView struct {
	ModeState  persona.ModeState  `json:"modeState"`
	Runtime    settings.Values    `json:"runtime"`
	Applied    map[string]float64 `json:"applied,omitempty"`
	Overview   memory.Overview    `json:"memoryOverview"`
	LLMEnabled bool               `json:"llmEnabled"`
}

// GetSettings returns the live tunables and the account's memory overview.
func (s *Service) GetSettings(accountID string) (SettingsView, error) {
	state, err := s.gate.ResolveMode(accountID)
	if err != nil {
		return SettingsView{}, err
	}
	doc, err := s.registry.Load()
	if err != nil {
		return SettingsView{}, err
	}
	acct := s.registry.Account(doc, accountID)
	return SettingsView{
		ModeState:  state,
		Runtime:    s.settings.Snapshot(),
		Overview:   memory.BuildOverview(acct),
		LLMEnabled: s.client.Enabled(),
	}, nil
}

// UpdateSettings applies numeric overrides to the live tunables. Unknown keys
// and non-numeric values are ignored; applied values come back clamped. The
// overrides are also recorded on the profile so they survive restarts.
func (s *Service) UpdateSettings(accountID string, updates map[string]any) (SettingsView, error) {
	applied, _ := s.settings.Update(updates)

	doc, err := s.registry.Load()
	if err != nil {
		return SettingsView{}, err
	}
	acct := s.registry.Account(doc, accountID)
	if len(applied) > 0 {
		if acct.Profile.SettingsOverrides == nil {
			acct.Profile.SettingsOverrides = make(map[string]float64, len(applied))
		}
		for key, value := range applied {
			acct.Profile.SettingsOverrides[key] = value
		}
		if err := s.registry.Save(doc); err != nil {
			return SettingsView{}, err
		}
	}

	state := s.personas.ModeState(acct.Profile.Mode, acct.Profile.CharacterID)
	return SettingsView{
		ModeState:  state,
		Runtime:    s.settings.Snapshot(),
		Applied:    applied,
		Overview:   memory.BuildOverview(acct),
		LLMEnabled: s.client.Enabled(),
	}, nil
}

// RestoreSettingsOverrides replays persisted per-profile overrides onto the
// live tunables. Called once at startup.
func (s *Service) RestoreSettingsOverrides(accountID string) error {
	doc, err := s.registry.Load()
	if err != nil {
		return err
	}
	acct := s.registry.Account(doc, accountID)
	if len(acct.Profile.SettingsOverrides) == 0 {
		return nil
	}
	updates := make(map[string]any, len(acct.Profile.SettingsOverrides))
	for key, value := range acct.Profile.SettingsOverrides {
		updates[key] = value
	}
	s.settings.Update(updates)
	return nil
}

// MemoryOverview returns the per-mode item counts without mutating anything.
func (s *Service) MemoryOverview(accountID string) (memory.Overview, error) {
	doc, err := s.registry.Load()
	if err != nil {
		return memory.Overview{}, err
	}
	return memory.BuildOverview(s.registry.Account(doc, accountID)), nil
}

// memoryOp loads the account, runs one lifecycle mutation and saves the
// document when it succeeds.
func (s *Service) memoryOp(accountID string, fn func(acct *profile.Account) (memory.Overview, error)) (memory.Overview, error) {
	doc, err := s.registry.Load()
	if err != nil {
		return memory.Overview{}, err
	}
	acct := s.registry.Account(doc, accountID)

	overview, err := fn(acct)
	if err != nil {
		return memory.Overview{}, err
	}
	if err := s.registry.Save(doc); err != nil {
		return memory.Overview{}, err
	}
	return overview, nil
}

// PruneMemoryByAge drops turns, notes and memories older than the given
// number of days.
func (s *Service) PruneMemoryByAge(accountID string, days int, modeSelector string) (memory.Overview, error) {
	selector := profile.NormalizeModeSelector(modeSelector)
	return s.memoryOp(accountID, func(acct *profile.Account) (memory.Overview, error) {
		return s.lifecycle.PruneByDays(acct, days, selector)
	})
}

// DeleteMemoryByDate removes everything recorded on one calendar day
// (YYYY-MM-DD).
func (s *Service) DeleteMemoryByDate(accountID, day, modeSelector string) (memory.Overview, error) {
	selector := profile.NormalizeModeSelector(modeSelector)
	return s.memoryOp(accountID, func(acct *profile.Account) (memory.Overview, error) {
		return s.lifecycle.DeleteByDate(acct, day, selector)
	})
}

// DeleteMemoryRecentDays removes everything from the last N days.
func (s *Service) DeleteMemoryRecentDays(accountID string, days int, modeSelector string) (memory.Overview, error) {
	selector := profile.NormalizeModeSelector(modeSelector)
	return s.memoryOp(accountID, func(acct *profile.Account) (memory.Overview, error) {
		return s.lifecycle.DeleteRecentDays(acct, days, selector)
	})
}

// DeleteMemoryByTag removes pinned memories carrying the tag.
func (s *Service) DeleteMemoryByTag(accountID, tag, modeSelector string) (memory.Overview, error) {
	selector := profile.NormalizeModeSelector(modeSelector)
	return s.memoryOp(accountID, func(acct *profile.Account) (memory.Overview, error) {
		return s.lifecycle.DeleteByTag(acct, tag, selector)
	})
}

// DeleteMemoryItem removes a single memory, note or training example by its
// exact text.
func (s *Service) DeleteMemoryItem(accountID, memoryType, text, modeSelector string) (memory.Overview, error) {
	selector := profile.NormalizeModeSelector(modeSelector)
	return s.memoryOp(accountID, func(acct *profile.Account) (memory.Overview, error) {
		return s.lifecycle.DeleteItem(acct, memoryType, text, selector)
	})
}

// Maintain runs the retention, compaction and decay sweep over every account.
// The nightly job calls this; it is safe to run at any time.
func (s *Service) Maintain() (int, error) {
	doc, err := s.registry.Load()
	if err != nil {
		return 0, err
	}
	for _, acct := range doc.Accounts {
		s.lifecycle.ApplyRetentionAndCompaction(acct, profile.ModeNormal)
		s.lifecycle.ApplyRetentionAndCompaction(acct, profile.ModeUncensored)
	}
	if err := s.registry.Save(doc); err != nil {
		return 0, err
	}
	return len(doc.Accounts), nil
}
