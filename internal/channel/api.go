package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lunafall/companion/internal/bus"
	"github.com/lunafall/companion/internal/config"
	"github.com/lunafall/companion/internal/llm"
	"github.com/lunafall/companion/internal/memory"
	"github.com/lunafall/companion/internal/modegate"
	"github.com/lunafall/companion/internal/session"
)

const apiChannelName = "api"

// APIChannel serves the JSON HTTP surface. Chat and management calls go
// straight to the session service so responses are synchronous; only the
// channel plumbing (start/stop, allowlist) runs through the shared base.
type APIChannel struct {
	BaseChannel
	host   string
	port   int
	svc    *session.Service
	server *http.Server
}

func NewAPIChannel(cfg config.APIConfig, gwCfg config.GatewayConfig, b *bus.MessageBus, svc *session.Service) (*APIChannel, error) {
	if svc == nil {
		return nil, fmt.Errorf("api channel requires a session service")
	}
	port := gwCfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return &APIChannel{
		BaseChannel: NewBaseChannel(apiChannelName, b, cfg.AllowFrom),
		host:        gwCfg.Host,
		port:        port,
		svc:         svc,
	}, nil
}

func (a *APIChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assistant/message", a.handleChat)
	mux.HandleFunc("GET /api/assistant/mode", a.handleGetMode)
	mux.HandleFunc("POST /api/assistant/mode", a.handleSetMode)
	mux.HandleFunc("POST /api/assistant/character", a.handleSetCharacter)
	mux.HandleFunc("GET /api/assistant/characters", a.handleCharacters)
	mux.HandleFunc("POST /api/assistant/mode-extras", a.handleModeExtras)
	mux.HandleFunc("POST /api/assistant/profile/name", a.handleSetName)
	mux.HandleFunc("GET /api/assistant/settings", a.handleGetSettings)
	mux.HandleFunc("POST /api/assistant/settings", a.handleUpdateSettings)
	mux.HandleFunc("GET /api/assistant/memory", a.handleMemoryOverview)
	mux.HandleFunc("POST /api/assistant/memory/delete", a.handleMemoryDelete)
	mux.HandleFunc("POST /api/assistant/feedback", a.handleFeedback)
	mux.HandleFunc("POST /api/assistant/training-example", a.handleTraining)
	mux.HandleFunc("GET /api/assistant/web-search/preview", a.handleSearchPreview)
	mux.HandleFunc("POST /api/assistant/reset", a.handleReset)

	a.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.host, a.port),
		Handler: a.withAccess(mux),
	}

	go func() {
		log.Printf("[api] listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	return nil
}

func (a *APIChannel) Stop() error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	log.Printf("[api] stopped")
	return nil
}

// Send is a no-op: API responses are written inline by the handlers.
func (a *APIChannel) Send(msg bus.OutboundMessage) error { return nil }

// withAccess enforces the sender allowlist by client IP.
func (a *APIChannel) withAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.IsAllowed(clientIP(r)) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop so the gate's rate limiter
// sees the real caller behind a reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func accountID(r *http.Request, body map[string]any) string {
	if body != nil {
		if id, ok := body["userId"].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	if id := strings.TrimSpace(r.URL.Query().Get("userId")); id != "" {
		return id
	}
	return "default"
}

func decodeBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	body := make(map[string]any)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("parse request body: %w", err)
	}
	return body, nil
}

func stringField(body map[string]any, key string) string {
	if v, ok := body[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intField(body map[string]any, key string) int {
	switch v := body[key].(type) {
	case float64:
		return int(v)
	case string:
		var n int
		fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

func stringSlice(body map[string]any, key string) []string {
	raw, ok := body[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the service sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, modegate.ErrInvalidSecret):
		writeError(w, http.StatusUnauthorized, "invalid password")
	case errors.Is(err, modegate.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
	case errors.Is(err, memory.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[api] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *APIChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	message := stringField(body, "message")
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	var snapshot *llm.Snapshot
	if raw, ok := body["snapshot"].(map[string]any); ok {
		data, _ := json.Marshal(raw)
		snap := llm.Snapshot{}
		if err := json.Unmarshal(data, &snap); err == nil {
			snapshot = &snap
		}
	}

	result, err := a.svc.Chat(r.Context(), session.ChatRequest{
		AccountID: accountID(r, body),
		Message:   message,
		Mode:      stringField(body, "mode"),
		Snapshot:  snapshot,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *APIChannel) handleGetMode(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetMode(accountID(r, nil))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *APIChannel) handleSetMode(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.svc.SetMode(accountID(r, body), stringField(body, "mode"), stringField(body, "password"), clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *APIChannel) handleSetCharacter(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.svc.SetCharacter(accountID(r, body), stringField(body, "characterId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *APIChannel) handleCharacters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"characters": a.svc.Personas().All()})
}

func (a *APIChannel) handleModeExtras(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var instructions, memories []string
	if _, ok := body["instructions"]; ok {
		instructions = stringSlice(body, "instructions")
	}
	if _, ok := body["memories"]; ok {
		memories = stringSlice(body, "memories")
	}
	prof, err := a.svc.SetModeExtras(accountID(r, body), instructions, memories)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": prof})
}

func (a *APIChannel) handleSetName(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := stringField(body, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	prof, err := a.svc.SetPreferredName(accountID(r, body), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": prof})
}

func (a *APIChannel) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetSettings(accountID(r, nil))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *APIChannel) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updates, _ := body["settings"].(map[string]any)
	if updates == nil {
		updates = body
	}
	view, err := a.svc.UpdateSettings(accountID(r, body), updates)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *APIChannel) handleMemoryOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := a.svc.MemoryOverview(accountID(r, nil))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *APIChannel) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := accountID(r, body)
	selector := stringField(body, "mode")

	var overview memory.Overview
	switch action := stringField(body, "action"); action {
	case "prune":
		overview, err = a.svc.PruneMemoryByAge(id, intField(body, "days"), selector)
	case "date":
		overview, err = a.svc.DeleteMemoryByDate(id, stringField(body, "date"), selector)
	case "recent":
		overview, err = a.svc.DeleteMemoryRecentDays(id, intField(body, "days"), selector)
	case "tag":
		overview, err = a.svc.DeleteMemoryByTag(id, stringField(body, "tag"), selector)
	case "item":
		overview, err = a.svc.DeleteMemoryItem(id, stringField(body, "type"), stringField(body, "text"), selector)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *APIChannel) handleFeedback(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.svc.Feedback(accountID(r, body), session.FeedbackInput{
		Value:            stringField(body, "value"),
		Mode:             stringField(body, "mode"),
		AssistantMessage: stringField(body, "assistantMessage"),
		UserMessage:      stringField(body, "userMessage"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *APIChannel) handleTraining(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	accepted := true
	if v, ok := body["accepted"].(bool); ok {
		accepted = v
	}
	example, err := a.svc.AddTrainingExample(accountID(r, body), memory.TrainingInput{
		Mode:      stringField(body, "mode"),
		Source:    stringField(body, "source"),
		Accepted:  accepted,
		User:      stringField(body, "user"),
		Assistant: stringField(body, "assistant"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"example": example})
}

func (a *APIChannel) handleSearchPreview(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	plan, err := a.svc.WebSearchPreview(accountID(r, nil), message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *APIChannel) handleReset(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := accountID(r, body)

	var prof any
	if all, _ := body["all"].(bool); all {
		prof, err = a.svc.ResetAll(id)
	} else {
		prof, err = a.svc.Reset(id)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": prof})
}
