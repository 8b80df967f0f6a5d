package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultProvider         = "ollama"
	DefaultModel            = "llama3.1:8b"
	DefaultOllamaHost       = "http://127.0.0.1:11434"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultTemperature      = 0.72
	DefaultTopP             = 0.9
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 18620
	DefaultBufSize          = 100
	DefaultGateWindowMs     = 5 * 60 * 1000
	DefaultGateMaxAttempts  = 5
	DefaultWebSearchMax     = 3
	DefaultStoreKey         = "assistant:memory"
	DefaultCharacterID      = "luna"
	DefaultMaintenanceCron  = "0 30 3 * * *"
	DefaultModelTimeoutSecs = 60
)

type Config struct {
	Provider    ProviderConfig  `json:"provider"`
	Assistant   AssistantConfig `json:"assistant"`
	Gate        GateConfig      `json:"gate"`
	Channels    ChannelsConfig  `json:"channels"`
	Gateway     GatewayConfig   `json:"gateway"`
	Store       StoreConfig     `json:"store"`
	Maintenance Maintenance     `json:"maintenance"`
}

type ProviderConfig struct {
	Type        string  `json:"type,omitempty"` // "ollama" (default) or "openai"
	Model       string  `json:"model,omitempty"`
	OllamaHost  string  `json:"ollamaHost,omitempty"`
	BaseURL     string  `json:"baseUrl,omitempty"`
	APIKey      string  `json:"apiKey,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
	TimeoutSecs int     `json:"timeoutSecs,omitempty"`
}

type AssistantConfig struct {
	DefaultCharacterID  string   `json:"defaultCharacterId,omitempty"`
	CharactersFile      string   `json:"charactersFile,omitempty"`
	WebSearchEnabled    bool     `json:"webSearchEnabled"`
	WebSearchCharacters []string `json:"webSearchCharacters,omitempty"`
	WebSearchMaxItems   int      `json:"webSearchMaxItems,omitempty"`
}

type GateConfig struct {
	UncensoredSecret string `json:"uncensoredSecret,omitempty"`
	WindowMs         int64  `json:"windowMs,omitempty"`
	MaxAttempts      int    `json:"maxAttempts,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	API      APIConfig      `json:"api"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

type APIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
	Key    string `json:"key,omitempty"`
}

type Maintenance struct {
	SweepCron string `json:"sweepCron,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Type:        DefaultProvider,
			Model:       DefaultModel,
			OllamaHost:  DefaultOllamaHost,
			Temperature: DefaultTemperature,
			TopP:        DefaultTopP,
			TimeoutSecs: DefaultModelTimeoutSecs,
		},
		Assistant: AssistantConfig{
			DefaultCharacterID:  DefaultCharacterID,
			WebSearchCharacters: []string{DefaultCharacterID},
			WebSearchMaxItems:   DefaultWebSearchMax,
		},
		Gate: GateConfig{
			WindowMs:    DefaultGateWindowMs,
			MaxAttempts: DefaultGateMaxAttempts,
		},
		Channels: ChannelsConfig{
			API: APIConfig{Enabled: true},
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Store: StoreConfig{
			Key: DefaultStoreKey,
		},
		Maintenance: Maintenance{
			SweepCron: DefaultMaintenanceCron,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".companion")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.Provider.Type = strings.ToLower(v)
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Provider.OllamaHost = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ASSISTANT_UNCENSORED_PASSWORD"); v != "" {
		cfg.Gate.UncensoredSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("UNCENSORED_AUTH_WINDOW_MS"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			cfg.Gate.WindowMs = parsed
		}
	}
	if v := os.Getenv("UNCENSORED_AUTH_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Gate.MaxAttempts = parsed
		}
	}
	if v := os.Getenv("ASSISTANT_WEB_SEARCH_ENABLED"); v != "" {
		cfg.Assistant.WebSearchEnabled = isTruthy(v)
	}
	if v := os.Getenv("ASSISTANT_WEB_SEARCH_CHARACTERS"); v != "" {
		ids := make([]string, 0)
		for _, part := range strings.Split(v, ",") {
			if id := strings.ToLower(strings.TrimSpace(part)); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Assistant.WebSearchCharacters = ids
	}
	if v := os.Getenv("COMPANION_TELEGRAM_TOKEN"); v != "" {
		cfg.Channels.Telegram.Token = v
	}
	if v := os.Getenv("COMPANION_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = DefaultProvider
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Provider.OllamaHost == "" {
		cfg.Provider.OllamaHost = DefaultOllamaHost
	}
	if cfg.Provider.Temperature <= 0 {
		cfg.Provider.Temperature = DefaultTemperature
	}
	if cfg.Provider.TopP <= 0 {
		cfg.Provider.TopP = DefaultTopP
	}
	if cfg.Provider.TimeoutSecs <= 0 {
		cfg.Provider.TimeoutSecs = DefaultModelTimeoutSecs
	}
	if cfg.Assistant.DefaultCharacterID == "" {
		cfg.Assistant.DefaultCharacterID = DefaultCharacterID
	}
	if cfg.Assistant.WebSearchMaxItems <= 0 {
		cfg.Assistant.WebSearchMaxItems = DefaultWebSearchMax
	}
	if cfg.Gate.WindowMs <= 0 {
		cfg.Gate.WindowMs = DefaultGateWindowMs
	}
	if cfg.Gate.MaxAttempts <= 0 {
		cfg.Gate.MaxAttempts = DefaultGateMaxAttempts
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(ConfigDir(), "data", "assistant.db")
	}
	if cfg.Store.Key == "" {
		cfg.Store.Key = DefaultStoreKey
	}
	if cfg.Maintenance.SweepCron == "" {
		cfg.Maintenance.SweepCron = DefaultMaintenanceCron
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
