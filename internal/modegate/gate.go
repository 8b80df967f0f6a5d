package modegate

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lunafall/companion/internal/persona"
	"github.com/lunafall/companion/internal/profile"
)

var (
	// ErrInvalidSecret is returned on a wrong gate secret. The caller may retry
	// until rate limited.
	ErrInvalidSecret = errors.New("invalid secret for uncensored mode")
	// ErrRateLimited is returned once a client has exhausted its failed
	// attempts inside the window.
	ErrRateLimited = errors.New("too many failed secret attempts")
)

type attemptState struct {
	count          int
	firstAttemptAt time.Time
}

// Gate resolves and switches the per-account mode. The privileged transition
// is guarded by a configured secret and a per-client sliding-window failure
// counter. The counter table is process-lifetime state keyed by client IP;
// accounts behind one IP share it.
type Gate struct {
	registry    *profile.Registry
	personas    *persona.Repository
	secret      string
	window      time.Duration
	maxAttempts int

	mu       sync.Mutex
	attempts map[string]*attemptState
	now      func() time.Time
}

func New(registry *profile.Registry, personas *persona.Repository, secret string, window time.Duration, maxAttempts int) *Gate {
	return &Gate{
		registry:    registry,
		personas:    personas,
		secret:      strings.TrimSpace(secret),
		window:      window,
		maxAttempts: maxAttempts,
		attempts:    make(map[string]*attemptState),
		now:         time.Now,
	}
}

// SecretConfigured reports whether the privileged transition needs a secret.
func (g *Gate) SecretConfigured() bool {
	return g.secret != ""
}

// ResolveMode returns the persisted mode state for the account, normalizing a
// stale character id to the configured default.
func (g *Gate) ResolveMode(accountID string) (persona.ModeState, error) {
	doc, err := g.registry.Load()
	if err != nil {
		return persona.ModeState{}, err
	}
	acct := g.registry.Account(doc, accountID)
	mode := profile.NormalizeMode(string(acct.Profile.Mode))

	normalized := g.personas.Normalize(acct.Profile.CharacterID)
	if normalized != acct.Profile.CharacterID || mode != acct.Profile.Mode {
		acct.Profile.CharacterID = normalized
		acct.Profile.Mode = mode
		if err := g.registry.Save(doc); err != nil {
			return persona.ModeState{}, err
		}
	}
	return g.personas.ModeState(mode, acct.Profile.CharacterID), nil
}

// SetMode switches the account's mode. Requesting the privileged mode with a
// configured secret runs the rate-limit check first, then a constant-time
// secret comparison; an unprivileged request or an unconfigured gate always
// succeeds.
func (g *Gate) SetMode(accountID, requestedMode, presentedSecret, clientIP string) (persona.ModeState, error) {
	mode := profile.NormalizeMode(requestedMode)

	if mode == profile.ModeUncensored && g.SecretConfigured() {
		if g.isRateLimited(clientIP) {
			return persona.ModeState{}, ErrRateLimited
		}
		if !secretMatches(presentedSecret, g.secret) {
			g.registerFailure(clientIP)
			return persona.ModeState{}, ErrInvalidSecret
		}
		g.clearFailures(clientIP)
	}

	doc, err := g.registry.Load()
	if err != nil {
		return persona.ModeState{}, err
	}
	acct := g.registry.Account(doc, accountID)
	acct.Profile.Mode = mode
	acct.Profile.CharacterID = g.personas.Normalize(acct.Profile.CharacterID)
	if err := g.registry.Save(doc); err != nil {
		return persona.ModeState{}, err
	}

	log.Printf("[modegate] account %s switched to %s", accountID, mode)
	return g.personas.ModeState(mode, acct.Profile.CharacterID), nil
}

// SetCharacter switches the account's persona without touching the mode.
func (g *Gate) SetCharacter(accountID, characterID string) (persona.ModeState, error) {
	doc, err := g.registry.Load()
	if err != nil {
		return persona.ModeState{}, err
	}
	acct := g.registry.Account(doc, accountID)
	acct.Profile.CharacterID = g.personas.Normalize(characterID)
	if err := g.registry.Save(doc); err != nil {
		return persona.ModeState{}, err
	}
	return g.personas.ModeState(profile.NormalizeMode(string(acct.Profile.Mode)), acct.Profile.CharacterID), nil
}

func (g *Gate) isRateLimited(clientIP string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweepLocked(now)

	state, ok := g.attempts[clientIP]
	if !ok {
		return false
	}
	return state.count >= g.maxAttempts
}

func (g *Gate) registerFailure(clientIP string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	state, ok := g.attempts[clientIP]
	if !ok || now.Sub(state.firstAttemptAt) > g.window {
		g.attempts[clientIP] = &attemptState{count: 1, firstAttemptAt: now}
		return
	}
	state.count++
}

func (g *Gate) clearFailures(clientIP string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, clientIP)
}

// sweepLocked drops entries older than the window so the table stays bounded
// under normal traffic. Caller holds the mutex.
func (g *Gate) sweepLocked(now time.Time) {
	for ip, state := range g.attempts {
		if state == nil || now.Sub(state.firstAttemptAt) > g.window {
			delete(g.attempts, ip)
		}
	}
}

// secretMatches hashes both sides before the constant-time comparison so the
// comparison length never depends on either input.
func secretMatches(presented, expected string) bool {
	ph := sha256.Sum256([]byte(presented))
	eh := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(ph[:], eh[:]) == 1
}
