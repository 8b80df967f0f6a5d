package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lunafall/companion/internal/config"
	"github.com/lunafall/companion/internal/llm"
	"github.com/lunafall/companion/internal/memory"
	"github.com/lunafall/companion/internal/modegate"
	"github.com/lunafall/companion/internal/persona"
	"github.com/lunafall/companion/internal/profile"
	"github.com/lunafall/companion/internal/settings"
)

// retryInstruction is appended to the user message for the single repetition
// retry.
const retryInstruction = "[Internal quality hint: phrase this answer clearly differently this time, without repeating the opening or sentence patterns.]"

const emptyReplyText = "I couldn't come up with a reply just now."

// Service is the per-turn orchestrator: it resolves the mode, maintains the
// account's memory, assembles context, invokes the model, guards against
// repetition and persists the turn. One instance serves all accounts; callers
// must serialize per-account if they need strict turn ordering.
type Service struct {
	registry  *profile.Registry
	personas  *persona.Repository
	gate      *modegate.Gate
	lifecycle *memory.Lifecycle
	client    llm.Client
	search    *llm.SearchPlanner
	settings  *settings.Settings
	now       func() time.Time
}

func New(registry *profile.Registry, personas *persona.Repository, gate *modegate.Gate, lifecycle *memory.Lifecycle, client llm.Client, cfg *config.Config, s *settings.Settings) *Service {
	return &Service{
		registry:  registry,
		personas:  personas,
		gate:      gate,
		lifecycle: lifecycle,
		client:    client,
		search:    llm.NewSearchPlanner(cfg.Assistant),
		settings:  s,
		now:       time.Now,
	}
}

func (s *Service) Gate() *modegate.Gate          { return s.gate }
func (s *Service) Personas() *persona.Repository { return s.personas }

// ChatRequest is one inbound turn.
type ChatRequest struct {
	AccountID string
	Message   string
	Mode      string        // optional override; empty keeps the profile mode
	Snapshot  *llm.Snapshot // optional situational brief
}

// ChatResult is the completed turn.
type ChatResult struct {
	Reply      string            `json:"reply"`
	Meta       llm.Meta          `json:"meta"`
	Mode       profile.Mode      `json:"mode"`
	ModeState  persona.ModeState `json:"modeState"`
	Profile    profile.Profile   `json:"profile"`
	LLMEnabled bool              `json:"llmEnabled"`
}

// Chat runs the full turn pipeline. The model call is the only suspend point;
// a failed or timed-out call falls back to a deterministic template and the
// turn is recorded either way.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	doc, err := s.registry.Load()
	if err != nil {
		return nil, err
	}
	acct := s.registry.Account(doc, req.AccountID)

	activeMode := profile.NormalizeMode(req.Mode)
	if strings.TrimSpace(req.Mode) == "" {
		activeMode = profile.NormalizeMode(string(acct.Profile.Mode))
	}
	acct.Profile.Mode = activeMode
	acct.Profile.CharacterID = s.personas.Normalize(acct.Profile.CharacterID)
	modeState := s.personas.ModeState(activeMode, acct.Profile.CharacterID)

	contextShift := isRoleplayToTaskShift(req.Message, activeMode)
	transient := ""
	if contextShift {
		transient = transientShiftInstruction
	}

	s.lifecycle.UpdateProfileFromMessage(acct, req.Message)
	s.lifecycle.ApplyRetentionAndCompaction(acct, profile.ModeNormal)
	s.lifecycle.ApplyRetentionAndCompaction(acct, profile.ModeUncensored)

	history := buildContext(acct, activeMode, s.settings.HistoryWindow())
	recent := recentAssistantReplies(acct, activeMode)

	snapshot := llm.PersonalSnapshot(s.now())
	if req.Snapshot != nil {
		snapshot = *req.Snapshot
	}

	llmReq := llm.Request{
		Account:              acct,
		ModeState:            modeState,
		Mode:                 activeMode,
		Message:              req.Message,
		Snapshot:             snapshot,
		History:              history,
		TransientInstruction: transient,
	}

	result := s.generateOrFallback(ctx, llmReq, acct, modeState, contextShift)
	reply := strings.TrimSpace(result.Reply)
	if reply == "" {
		reply = emptyReplyText
	}

	if s.client.Enabled() && isRepetitive(reply, recent) {
		retryReq := llmReq
		retryReq.Message = strings.TrimSpace(req.Message) + "\n\n" + retryInstruction
		if retry, err := s.client.Generate(ctx, retryReq); err == nil {
			retryText := strings.TrimSpace(retry.Reply)
			if retryText != "" && !isRepetitive(retryText, recent) {
				result = retry
				reply = retryText
			}
		} else {
			log.Printf("[session] repetition retry failed, keeping first reply: %v", err)
		}
	}

	maxChars := s.settings.MaxMessageChars()
	reply = truncateChars(reply, maxChars)

	logRef := acct.HistoryFor(activeMode)
	*logRef = append(*logRef, profile.Turn{
		At:        s.now(),
		User:      truncateChars(req.Message, maxChars),
		Assistant: reply,
	})
	s.lifecycle.ApplyRetentionAndCompaction(acct, activeMode)

	if err := s.registry.Save(doc); err != nil {
		return nil, err
	}

	return &ChatResult{
		Reply:      reply,
		Meta:       result.Meta,
		Mode:       activeMode,
		ModeState:  modeState,
		Profile:    acct.Profile,
		LLMEnabled: s.client.Enabled(),
	}, nil
}

// generateOrFallback invokes the model when enabled and degrades to the
// deterministic template on any model error. Model errors never surface to
// the caller.
func (s *Service) generateOrFallback(ctx context.Context, req llm.Request, acct *profile.Account, modeState persona.ModeState, contextShift bool) *llm.Result {
	if s.client.Enabled() {
		result, err := s.client.Generate(ctx, req)
		if err == nil {
			return result
		}
		log.Printf("[session] model unavailable, using fallback reply: %v", err)
	}
	return &llm.Result{
		Reply: llm.FallbackReply(modeState, acct, req.Snapshot, req.Mode, req.Message, contextShift),
		Meta:  llm.Meta{WebSearchUsed: false},
	}
}

func truncateChars(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(runes[:n]))
}

// LLMEnabled reports whether a real model backend is configured.
func (s *Service) LLMEnabled() bool {
	return s.client.Enabled()
}

// WebSearchPreview returns the search plan that would apply to a message.
func (s *Service) WebSearchPreview(accountID, message string) (llm.SearchPlan, error) {
	state, err := s.gate.ResolveMode(accountID)
	if err != nil {
		return llm.SearchPlan{}, err
	}
	return s.search.Plan(state, message), nil
}

// FeedbackInput is an explicit thumbs up/down on an assistant reply.
type FeedbackInput struct {
	Value            string
	Mode             string
	AssistantMessage string
	UserMessage      string
}

// FeedbackResult reports what was stored.
type FeedbackResult struct {
	Stored bool         `json:"stored"`
	Value  string       `json:"value"`
	Mode   profile.Mode `json:"mode"`
}

// Feedback pins a preferred-answer-style memory on thumbs up and records an
// improvement note on thumbs down.
func (s *Service) Feedback(accountID string, in FeedbackInput) (FeedbackResult, error) {
	value := strings.ToLower(strings.TrimSpace(in.Value))
	if value != "up" && value != "down" {
		return FeedbackResult{}, fmt.Errorf("%w: feedback value must be up or down", memory.ErrValidation)
	}
	assistant := strings.TrimSpace(in.AssistantMessage)
	if assistant == "" {
		return FeedbackResult{}, fmt.Errorf("%w: assistantMessage is required", memory.ErrValidation)
	}

	doc, err := s.registry.Load()
	if err != nil {
		return FeedbackResult{}, err
	}
	acct := s.registry.Account(doc, accountID)

	mode := profile.NormalizeMode(in.Mode)
	if strings.TrimSpace(in.Mode) == "" {
		mode = profile.NormalizeMode(string(acct.Profile.Mode))
	}

	shortAssistant := truncateChars(assistant, 120)
	shortUser := truncateChars(strings.TrimSpace(in.UserMessage), 180)

	if value == "up" {
		s.lifecycle.AddPinnedMemory(acct, "Preferred answer style from assistant: "+shortAssistant, 40, 0.92, mode)
		note := "Feedback up: answer quality was good"
		if shortUser != "" {
			note += fmt.Sprintf(" for prompt %q", shortUser)
		}
		s.lifecycle.AddNote(acct, note+".", mode)
	} else {
		note := "Feedback down: improve clarity/accuracy"
		if shortUser != "" {
			note += fmt.Sprintf(" for prompt %q", shortUser)
		}
		s.lifecycle.AddNote(acct, note+".", mode)
	}

	if err := s.registry.Save(doc); err != nil {
		return FeedbackResult{}, err
	}
	return FeedbackResult{Stored: true, Value: value, Mode: mode}, nil
}

// AddTrainingExample appends a curated example to the account.
func (s *Service) AddTrainingExample(accountID string, in memory.TrainingInput) (profile.TrainingExample, error) {
	doc, err := s.registry.Load()
	if err != nil {
		return profile.TrainingExample{}, err
	}
	acct := s.registry.Account(doc, accountID)

	ex, err := s.lifecycle.AddTrainingExample(acct, in)
	if err != nil {
		return profile.TrainingExample{}, err
	}
	if err := s.registry.Save(doc); err != nil {
		return profile.TrainingExample{}, err
	}
	return ex, nil
}

// SetPreferredName stores the user's preferred name.
func (s *Service) SetPreferredName(accountID, name string) (profile.Profile, error) {
	doc, err := s.registry.Load()
	if err != nil {
		return profile.Profile{}, err
	}
	acct := s.registry.Account(doc, accountID)
	s.lifecycle.SetPreferredName(acct, name)
	if err := s.registry.Save(doc); err != nil {
		return profile.Profile{}, err
	}
	return acct.Profile, nil
}

// SetModeExtras replaces the privileged-mode free-text instructions/memories.
func (s *Service) SetModeExtras(accountID string, instructions, memories []string) (profile.Profile, error) {
	doc, err := s.registry.Load()
	if err != nil {
		return profile.Profile{}, err
	}
	acct := s.registry.Account(doc, accountID)
	s.lifecycle.SetModeExtras(acct, instructions, memories)
	if err := s.registry.Save(doc); err != nil {
		return profile.Profile{}, err
	}
	return acct.Profile, nil
}

// ModeView is the mode payload returned to callers.
type ModeView struct {
	ModeState persona.ModeState `json:"modeState"`
	Profile   profile.Profile   `json:"profile"`
}

// GetMode resolves the persisted mode state plus profile.
func (s *Service) GetMode(accountID string) (ModeView, error) {
	state, err := s.gate.ResolveMode(accountID)
	if err != nil {
		return ModeView{}, err
	}
	doc, err := s.registry.Load()
	if err != nil {
		return ModeView{}, err
	}
	acct := s.registry.Account(doc, accountID)
	return ModeView{ModeState: state, Profile: acct.Profile}, nil
}

// SetMode switches the mode through the gate.
func (s *Service) SetMode(accountID, mode, secret, clientIP string) (ModeView, error) {
	state, err := s.gate.SetMode(accountID, mode, secret, clientIP)
	if err != nil {
		return ModeView{}, err
	}
	doc, err := s.registry.Load()
	if err != nil {
		return ModeView{}, err
	}
	acct := s.registry.Account(doc, accountID)
	return ModeView{ModeState: state, Profile: acct.Profile}, nil
}

// SetCharacter switches the persona.
func (s *Service) SetCharacter(accountID, characterID string) (ModeView, error) {
	state, err := s.gate.SetCharacter(accountID, characterID)
	if err != nil {
		return ModeView{}, err
	}
	doc, err := s.registry.Load()
	if err != nil {
		return ModeView{}, err
	}
	acct := s.registry.Account(doc, accountID)
	return ModeView{ModeState: state, Profile: acct.Profile}, nil
}

// Reset replaces the account with a fresh profile.
func (s *Service) Reset(accountID string) (profile.Profile, error) {
	acct, err := s.registry.Reset(accountID)
	if err != nil {
		return profile.Profile{}, err
	}
	return acct.Profile, nil
}

// ResetAll drops the whole store document and recreates the account.
func (s *Service) ResetAll(accountID string) (profile.Profile, error) {
	if err := s.registry.ResetAll(); err != nil {
		return profile.Profile{}, err
	}
	return s.Reset(accountID)
}
