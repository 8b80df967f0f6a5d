package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lunafall/companion/internal/profile"
)

func TestLoad_Builtins(t *testing.T) {
	r, err := Load("", "luna")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if r.DefaultID() != "luna" {
		t.Errorf("DefaultID = %q, want luna", r.DefaultID())
	}
	if len(r.All()) != 2 {
		t.Errorf("expected 2 builtin characters, got %d", len(r.All()))
	}
}

func TestLoad_UnknownDefaultFallsBack(t *testing.T) {
	r, err := Load("", "nobody")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if r.DefaultID() != "luna" {
		t.Errorf("DefaultID = %q, want luna", r.DefaultID())
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.json")
	data := `[{"id":"Nova","name":"Nova","domain":"trading","tones":{"normal":"crisp"}}]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r, err := Load(path, "nova")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if r.DefaultID() != "nova" {
		t.Errorf("DefaultID = %q, want nova", r.DefaultID())
	}
	c := r.Get("nova")
	if c.Name != "Nova" {
		t.Errorf("Name = %q, want Nova", c.Name)
	}
	if !c.IsTrading() {
		t.Error("nova should be a trading character")
	}
}

func TestLoad_MissingFileUsesBuiltins(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "nope.json"), "luna")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(r.All()) != 2 {
		t.Errorf("expected builtin characters, got %d", len(r.All()))
	}
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path, "luna"); err == nil {
		t.Error("expected error for malformed characters file")
	}
}

func TestNormalize(t *testing.T) {
	r, _ := Load("", "luna")

	tests := []struct {
		in   string
		want string
	}{
		{"luna", "luna"},
		{" ASTRA ", "astra"},
		{"", "luna"},
		{"unknown", "luna"},
		{"bad id!", "luna"},
		{"x", "luna"}, // too short
	}
	for _, tt := range tests {
		if got := r.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestModeState_PicksTonePerMode(t *testing.T) {
	r, _ := Load("", "luna")

	normal := r.ModeState(profile.ModeNormal, "luna")
	priv := r.ModeState(profile.ModeUncensored, "luna")

	if normal.Character != "Luna" {
		t.Errorf("Character = %q, want Luna", normal.Character)
	}
	if normal.Tone == "" || priv.Tone == "" {
		t.Fatal("both tones should be set")
	}
	if normal.Tone == priv.Tone {
		t.Error("normal and uncensored tones should differ")
	}
	if priv.Mode != profile.ModeUncensored {
		t.Errorf("Mode = %q, want uncensored", priv.Mode)
	}
}

func TestIsTrading(t *testing.T) {
	if !(Character{Domain: "trading"}).IsTrading() {
		t.Error("trading domain should be trading")
	}
	if (Character{Domain: "personal"}).IsTrading() {
		t.Error("personal domain should not be trading")
	}
	byMission := Character{Missions: map[string]string{"normal": "watch the portfolio"}}
	if !byMission.IsTrading() {
		t.Error("portfolio mission should imply trading")
	}
	if (Character{}).IsTrading() {
		t.Error("empty character should not be trading")
	}
}
