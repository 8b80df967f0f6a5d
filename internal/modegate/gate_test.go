package modegate

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lunafall/companion/internal/persona"
	"github.com/lunafall/companion/internal/profile"
	"github.com/lunafall/companion/internal/store"
)

func newTestGate(t *testing.T, secret string) *Gate {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry := profile.NewRegistry(st, "assistant:memory", "luna")
	personas, err := persona.Load("", "luna")
	if err != nil {
		t.Fatalf("load personas: %v", err)
	}
	return New(registry, personas, secret, 5*time.Minute, 5)
}

func TestSetMode_NormalNeedsNoSecret(t *testing.T) {
	g := newTestGate(t, "hunter2")

	state, err := g.SetMode("u1", "normal", "", "1.2.3.4")
	if err != nil {
		t.Fatalf("SetMode error: %v", err)
	}
	if state.Mode != profile.ModeNormal {
		t.Errorf("Mode = %q, want normal", state.Mode)
	}
}

func TestSetMode_CorrectSecret(t *testing.T) {
	g := newTestGate(t, "hunter2")

	state, err := g.SetMode("u1", "uncensored", "hunter2", "1.2.3.4")
	if err != nil {
		t.Fatalf("SetMode error: %v", err)
	}
	if state.Mode != profile.ModeUncensored {
		t.Errorf("Mode = %q, want uncensored", state.Mode)
	}

	// Persisted.
	resolved, err := g.ResolveMode("u1")
	if err != nil {
		t.Fatalf("ResolveMode error: %v", err)
	}
	if resolved.Mode != profile.ModeUncensored {
		t.Errorf("resolved Mode = %q, want uncensored", resolved.Mode)
	}
}

func TestSetMode_WrongSecret(t *testing.T) {
	g := newTestGate(t, "hunter2")

	_, err := g.SetMode("u1", "uncensored", "wrong", "1.2.3.4")
	if !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("err = %v, want ErrInvalidSecret", err)
	}

	resolved, _ := g.ResolveMode("u1")
	if resolved.Mode != profile.ModeNormal {
		t.Errorf("mode should stay normal after a failed attempt, got %q", resolved.Mode)
	}
}

func TestSetMode_NoSecretConfigured(t *testing.T) {
	g := newTestGate(t, "")

	state, err := g.SetMode("u1", "uncensored", "", "1.2.3.4")
	if err != nil {
		t.Fatalf("SetMode error: %v", err)
	}
	if state.Mode != profile.ModeUncensored {
		t.Errorf("Mode = %q, want uncensored when no secret is configured", state.Mode)
	}
}

func TestSetMode_RateLimit(t *testing.T) {
	g := newTestGate(t, "hunter2")

	for i := 0; i < 5; i++ {
		if _, err := g.SetMode("u1", "uncensored", "wrong", "9.9.9.9"); !errors.Is(err, ErrInvalidSecret) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidSecret", i+1, err)
		}
	}

	// Sixth attempt is blocked before the secret is even checked, so the
	// correct secret does not help.
	if _, err := g.SetMode("u1", "uncensored", "hunter2", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// A different client is unaffected.
	if _, err := g.SetMode("u1", "uncensored", "hunter2", "8.8.8.8"); err != nil {
		t.Errorf("different client should not be limited: %v", err)
	}
}

func TestSetMode_RateLimitWindowExpires(t *testing.T) {
	g := newTestGate(t, "hunter2")

	base := time.Now()
	g.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		g.SetMode("u1", "uncensored", "wrong", "9.9.9.9")
	}
	if _, err := g.SetMode("u1", "uncensored", "hunter2", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// After the window the counter resets.
	g.now = func() time.Time { return base.Add(5*time.Minute + time.Second) }
	if _, err := g.SetMode("u1", "uncensored", "hunter2", "9.9.9.9"); err != nil {
		t.Errorf("window expiry should clear the limit: %v", err)
	}
}

func TestSetMode_SuccessClearsFailures(t *testing.T) {
	g := newTestGate(t, "hunter2")

	for i := 0; i < 4; i++ {
		g.SetMode("u1", "uncensored", "wrong", "9.9.9.9")
	}
	if _, err := g.SetMode("u1", "uncensored", "hunter2", "9.9.9.9"); err != nil {
		t.Fatalf("SetMode error: %v", err)
	}

	// Counter starts over after success.
	for i := 0; i < 4; i++ {
		if _, err := g.SetMode("u1", "uncensored", "wrong", "9.9.9.9"); !errors.Is(err, ErrInvalidSecret) {
			t.Fatalf("attempt %d after clear: err = %v, want ErrInvalidSecret", i+1, err)
		}
	}
}

func TestResolveMode_NormalizesStaleCharacter(t *testing.T) {
	g := newTestGate(t, "")

	doc, _ := g.registry.Load()
	acct := g.registry.Account(doc, "u1")
	acct.Profile.CharacterID = "deleted-character"
	if err := g.registry.Save(doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, err := g.ResolveMode("u1")
	if err != nil {
		t.Fatalf("ResolveMode error: %v", err)
	}
	if state.CharacterID != "luna" {
		t.Errorf("CharacterID = %q, want luna", state.CharacterID)
	}

	// The normalization is persisted.
	doc, _ = g.registry.Load()
	if got := g.registry.Account(doc, "u1").Profile.CharacterID; got != "luna" {
		t.Errorf("persisted CharacterID = %q, want luna", got)
	}
}

func TestSetCharacter(t *testing.T) {
	g := newTestGate(t, "")

	state, err := g.SetCharacter("u1", "astra")
	if err != nil {
		t.Fatalf("SetCharacter error: %v", err)
	}
	if state.CharacterID != "astra" {
		t.Errorf("CharacterID = %q, want astra", state.CharacterID)
	}
	if state.Mode != profile.ModeNormal {
		t.Errorf("Mode = %q, want normal (unchanged)", state.Mode)
	}

	state, err = g.SetCharacter("u1", "nonsense")
	if err != nil {
		t.Fatalf("SetCharacter error: %v", err)
	}
	if state.CharacterID != "luna" {
		t.Errorf("unknown character should fall back to default, got %q", state.CharacterID)
	}
}

func TestSecretMatches(t *testing.T) {
	if !secretMatches("abc", "abc") {
		t.Error("equal secrets should match")
	}
	if secretMatches("abc", "abd") {
		t.Error("different secrets should not match")
	}
	if secretMatches("", "abc") {
		t.Error("empty presented secret should not match")
	}
}
