package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lunafall/companion/internal/config"
	"github.com/lunafall/companion/internal/persona"
	"github.com/lunafall/companion/internal/profile"
	"github.com/lunafall/companion/internal/settings"
)

// Message is one flattened history entry in chronological order.
type Message struct {
	Role    string
	Content string
}

// Request carries everything the model needs for one reply.
type Request struct {
	Account              *profile.Account
	ModeState            persona.ModeState
	Mode                 profile.Mode
	Message              string
	Snapshot             Snapshot
	History              []Message
	TransientInstruction string
}

// Meta reports side effects of a generation.
type Meta struct {
	WebSearchUsed bool `json:"webSearchUsed"`
}

// Result is the model reply plus metadata.
type Result struct {
	Reply string
	Meta  Meta
}

// Client is the single suspend point of the turn pipeline. Implementations
// must be safe for concurrent calls and must not assume call ordering.
type Client interface {
	Enabled() bool
	Generate(ctx context.Context, req Request) (*Result, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint; Ollama
// is reached through its /v1 compatibility surface, so one code path serves
// both providers.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	temperature float32
	topP        float32
	enabled     bool
	prompts     *PromptBuilder
	search      *SearchPlanner
}

func NewOpenAIClient(cfg *config.Config, s *settings.Settings) *OpenAIClient {
	providerType := strings.ToLower(strings.TrimSpace(cfg.Provider.Type))

	var clientCfg openai.ClientConfig
	enabled := false
	switch providerType {
	case "openai":
		clientCfg = openai.DefaultConfig(cfg.Provider.APIKey)
		if cfg.Provider.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.Provider.BaseURL, "/")
		}
		enabled = cfg.Provider.APIKey != ""
	default: // "ollama" or empty
		clientCfg = openai.DefaultConfig("ollama")
		clientCfg.BaseURL = strings.TrimRight(cfg.Provider.OllamaHost, "/") + "/v1"
		enabled = cfg.Provider.OllamaHost != ""
	}
	clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.Provider.TimeoutSecs) * time.Second}

	return &OpenAIClient{
		api:         openai.NewClientWithConfig(clientCfg),
		model:       cfg.Provider.Model,
		temperature: float32(cfg.Provider.Temperature),
		topP:        float32(cfg.Provider.TopP),
		enabled:     enabled,
		prompts:     NewPromptBuilder(s),
		search:      NewSearchPlanner(cfg.Assistant),
	}
}

func (c *OpenAIClient) Enabled() bool {
	return c.enabled
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Result, error) {
	plan := c.search.Plan(req.ModeState, req.Message)
	system := c.prompts.BuildSystemPrompt(req, plan)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	return &Result{
		Reply: strings.TrimSpace(resp.Choices[0].Message.Content),
		Meta:  Meta{WebSearchUsed: plan.Use},
	}, nil
}
