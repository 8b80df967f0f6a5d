package memory

import (
	"errors"
	"testing"

	"github.com/lunafall/companion/internal/profile"
)

func seededAccount() *profile.Account {
	acct := profile.NewAccount("luna")
	acct.History = []profile.Turn{
		{At: testNow.AddDate(0, 0, -10), User: "old normal"},
		{At: testNow.AddDate(0, 0, -1), User: "new normal"},
	}
	acct.UncensoredHistory = []profile.Turn{
		{At: testNow.AddDate(0, 0, -10), User: "old uncensored"},
		{At: testNow.AddDate(0, 0, -1), User: "new uncensored"},
	}
	acct.Memories = []profile.MemoryItem{
		{Text: "tagged memory", Tag: "travel", Mode: profile.ModeNormal, CreatedAt: testNow.AddDate(0, 0, -10)},
		{Text: "plain memory", Mode: profile.ModeNormal, CreatedAt: testNow.AddDate(0, 0, -1)},
	}
	acct.Notes = []profile.Note{
		{At: testNow.AddDate(0, 0, -10), Text: "old note", Mode: profile.ModeNormal},
	}
	acct.TrainingExamples = []profile.TrainingExample{
		{ID: "ex-1", User: "q", Assistant: "a", Mode: profile.ModeNormal},
	}
	return acct
}

func TestPruneByDays(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	overview, err := l.PruneByDays(acct, 5, profile.ModeAll)
	if err != nil {
		t.Fatalf("PruneByDays error: %v", err)
	}
	if len(acct.History) != 1 || acct.History[0].User != "new normal" {
		t.Errorf("normal history = %+v, want only the recent turn", acct.History)
	}
	if len(acct.UncensoredHistory) != 1 {
		t.Errorf("uncensored history len = %d, want 1", len(acct.UncensoredHistory))
	}
	if overview.Turns["normal"] != 1 || overview.Turns["uncensored"] != 1 {
		t.Errorf("overview turns = %v", overview.Turns)
	}
}

func TestPruneByDays_SelectorLimitsScope(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	if _, err := l.PruneByDays(acct, 5, profile.ModeNormal); err != nil {
		t.Fatalf("PruneByDays error: %v", err)
	}
	if len(acct.History) != 1 {
		t.Errorf("normal history len = %d, want 1", len(acct.History))
	}
	if len(acct.UncensoredHistory) != 2 {
		t.Errorf("uncensored history should be untouched, len = %d", len(acct.UncensoredHistory))
	}
}

func TestPruneByDays_Validation(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	_, err := l.PruneByDays(acct, 0, profile.ModeAll)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(acct.History) != 2 {
		t.Error("validation failure must not mutate the account")
	}
}

func TestDeleteByDate(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()
	day := testNow.AddDate(0, 0, -10).Format("2006-01-02")

	if _, err := l.DeleteByDate(acct, day, profile.ModeAll); err != nil {
		t.Fatalf("DeleteByDate error: %v", err)
	}
	if len(acct.History) != 1 || acct.History[0].User != "new normal" {
		t.Errorf("normal history = %+v, want only the recent turn", acct.History)
	}
	if len(acct.Notes) != 0 {
		t.Errorf("note from that day should be gone, got %d", len(acct.Notes))
	}
	if len(acct.Memories) != 1 || acct.Memories[0].Text != "plain memory" {
		t.Errorf("memories = %+v, want only the recent one", acct.Memories)
	}
}

func TestDeleteByDate_BadDate(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	if _, err := l.DeleteByDate(acct, "not-a-date", profile.ModeAll); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDeleteRecentDays(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	if _, err := l.DeleteRecentDays(acct, 5, profile.ModeAll); err != nil {
		t.Fatalf("DeleteRecentDays error: %v", err)
	}
	if len(acct.History) != 1 || acct.History[0].User != "old normal" {
		t.Errorf("normal history = %+v, want only the old turn", acct.History)
	}
}

func TestDeleteByTag(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	if _, err := l.DeleteByTag(acct, "Travel", profile.ModeAll); err != nil {
		t.Fatalf("DeleteByTag error: %v", err)
	}
	if len(acct.Memories) != 1 || acct.Memories[0].Text != "plain memory" {
		t.Errorf("memories = %+v, want tagged one removed", acct.Memories)
	}

	if _, err := l.DeleteByTag(acct, "  ", profile.ModeAll); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty tag: err = %v, want ErrValidation", err)
	}
}

func TestDeleteItem(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	if _, err := l.DeleteItem(acct, "memory", "plain memory", profile.ModeAll); err != nil {
		t.Fatalf("DeleteItem error: %v", err)
	}
	if len(acct.Memories) != 1 {
		t.Errorf("memories len = %d, want 1", len(acct.Memories))
	}

	if _, err := l.DeleteItem(acct, "note", "old note", profile.ModeAll); err != nil {
		t.Fatalf("DeleteItem error: %v", err)
	}
	if len(acct.Notes) != 0 {
		t.Errorf("notes len = %d, want 0", len(acct.Notes))
	}

	// Training examples match by id as well as text.
	if _, err := l.DeleteItem(acct, "training", "ex-1", profile.ModeAll); err != nil {
		t.Fatalf("DeleteItem error: %v", err)
	}
	if len(acct.TrainingExamples) != 0 {
		t.Errorf("examples len = %d, want 0", len(acct.TrainingExamples))
	}
}

func TestDeleteItem_MissingTargetIsNoop(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	if _, err := l.DeleteItem(acct, "memory", "does not exist", profile.ModeAll); err != nil {
		t.Fatalf("DeleteItem error: %v", err)
	}
	if len(acct.Memories) != 2 {
		t.Errorf("memories len = %d, want 2 (untouched)", len(acct.Memories))
	}
}

func TestDeleteItem_UnknownType(t *testing.T) {
	l := newTestLifecycle(t, nil)
	acct := seededAccount()

	if _, err := l.DeleteItem(acct, "dreams", "whatever", profile.ModeAll); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestBuildOverview(t *testing.T) {
	acct := seededAccount()
	o := BuildOverview(acct)

	if o.Turns["normal"] != 2 || o.Turns["uncensored"] != 2 {
		t.Errorf("turns = %v", o.Turns)
	}
	if o.PinnedMemories["normal"] != 2 {
		t.Errorf("pinned memories = %v", o.PinnedMemories)
	}
	if o.Notes["normal"] != 1 {
		t.Errorf("notes = %v", o.Notes)
	}
	if o.TrainingExamples["normal"] != 1 {
		t.Errorf("training examples = %v", o.TrainingExamples)
	}
}
