package settings

import (
	"encoding/json"
	"testing"
)

func TestDefaults(t *testing.T) {
	s := New()
	v := s.Snapshot()

	if v.HistoryWindow != 10 {
		t.Errorf("HistoryWindow = %d, want 10", v.HistoryWindow)
	}
	if v.HistoryStoreLimit != 40 {
		t.Errorf("HistoryStoreLimit = %d, want 40", v.HistoryStoreLimit)
	}
	if v.HistoryRetentionDays != 45 {
		t.Errorf("HistoryRetentionDays = %d, want 45", v.HistoryRetentionDays)
	}
	if v.MemoryQualityThreshold != 0.55 {
		t.Errorf("MemoryQualityThreshold = %v, want 0.55", v.MemoryQualityThreshold)
	}
	if v.MemoryForgetThreshold != 0.35 {
		t.Errorf("MemoryForgetThreshold = %v, want 0.35", v.MemoryForgetThreshold)
	}
}

func TestUpdate_AppliesAndClamps(t *testing.T) {
	s := New()

	applied, effective := s.Update(map[string]any{
		"historyWindow":          float64(3),
		"memoryQualityThreshold": float64(1.8), // clamped to 1
		"summaryChunkSize":       float64(-5),  // clamped to 1
	})

	if got := applied["historyWindow"]; got != 3 {
		t.Errorf("applied historyWindow = %v, want 3", got)
	}
	if got := applied["memoryQualityThreshold"]; got != 1 {
		t.Errorf("applied memoryQualityThreshold = %v, want 1 (clamped)", got)
	}
	if got := applied["summaryChunkSize"]; got != 1 {
		t.Errorf("applied summaryChunkSize = %v, want 1 (clamped)", got)
	}
	if effective.HistoryWindow != 3 {
		t.Errorf("effective HistoryWindow = %d, want 3", effective.HistoryWindow)
	}
}

func TestUpdate_IgnoresUnknownKeys(t *testing.T) {
	s := New()

	applied, effective := s.Update(map[string]any{
		"noSuchSetting": float64(99),
	})

	if len(applied) != 0 {
		t.Errorf("applied = %v, want empty", applied)
	}
	if effective != Defaults() {
		t.Errorf("effective changed for unknown key")
	}
}

func TestUpdate_NonNumericKeepsPrevious(t *testing.T) {
	s := New()
	s.Update(map[string]any{"historyWindow": float64(7)})

	applied, effective := s.Update(map[string]any{
		"historyWindow": "not a number",
		"notesLimit":    true,
	})

	if len(applied) != 0 {
		t.Errorf("applied = %v, want empty", applied)
	}
	if effective.HistoryWindow != 7 {
		t.Errorf("HistoryWindow = %d, want previous value 7", effective.HistoryWindow)
	}
	if effective.NotesLimit != 10 {
		t.Errorf("NotesLimit = %d, want default 10", effective.NotesLimit)
	}
}

func TestUpdate_StringAndJSONNumbers(t *testing.T) {
	s := New()

	applied, _ := s.Update(map[string]any{
		"historyWindow":   "12",
		"memoryDecayDays": json.Number("60"),
	})

	if applied["historyWindow"] != 12 {
		t.Errorf("historyWindow = %v, want 12", applied["historyWindow"])
	}
	if applied["memoryDecayDays"] != 60 {
		t.Errorf("memoryDecayDays = %v, want 60", applied["memoryDecayDays"])
	}
}

func TestLiveAccessors_SeeUpdates(t *testing.T) {
	s := New()

	if s.HistoryWindow() != 10 {
		t.Fatalf("HistoryWindow = %d, want 10", s.HistoryWindow())
	}

	s.Update(map[string]any{"historyWindow": float64(2), "memoryForgetThreshold": float64(0.5)})

	if s.HistoryWindow() != 2 {
		t.Errorf("HistoryWindow = %d, want 2 after update", s.HistoryWindow())
	}
	if s.MemoryForgetThreshold() != 0.5 {
		t.Errorf("MemoryForgetThreshold = %v, want 0.5 after update", s.MemoryForgetThreshold())
	}
}

func TestNewWith_Clamps(t *testing.T) {
	v := Defaults()
	v.MemoryQualityThreshold = 3
	v.HistoryWindow = 0

	s := NewWith(v)
	got := s.Snapshot()

	if got.MemoryQualityThreshold != 1 {
		t.Errorf("MemoryQualityThreshold = %v, want 1", got.MemoryQualityThreshold)
	}
	if got.HistoryWindow != 1 {
		t.Errorf("HistoryWindow = %d, want 1", got.HistoryWindow)
	}
}
