// Package config loads the service configuration from YAML with
// environment-variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all enkai configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	LINE     LINEConfig     `yaml:"line"`
	Places   PlacesConfig   `yaml:"places"`
	Triggers TriggersConfig `yaml:"triggers"`
	Prompts  PromptsConfig  `yaml:"prompts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LLMConfig configures the reasoning backend.
type LLMConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	TurnTimeout string `yaml:"turn_timeout"`
}

// LINEConfig carries the messaging channel credentials.
type LINEConfig struct {
	ChannelToken  string `yaml:"channel_token"`
	ChannelSecret string `yaml:"channel_secret"`
	BaseURL       string `yaml:"base_url"`
}

// PlacesConfig configures the venue search provider.
type PlacesConfig struct {
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
	Language   string `yaml:"language"`
}

// TriggersConfig lists the exact phrases that drive the session state
// machine from the group thread.
type TriggersConfig struct {
	Start    []string `yaml:"start"`
	Decision []string `yaml:"decision"`
	Reset    []string `yaml:"reset"`
}

// PromptsConfig carries the priming instructions for the two thread kinds.
type PromptsConfig struct {
	Group      string `yaml:"group"`
	Individual string `yaml:"individual"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

const defaultGroupPrompt = `あなたは飲み会・食事会の幹事を手伝うアシスタント「エンカイ」です。
グループトークで出てくる全員共通の希望（場所・日程・ジャンルなど）を聞き取り、整理してください。
希望が曖昧なときは選択肢つきの質問で確認し、共通の希望が出そろったと判断したら個別ヒアリングへ移行してください。
必ず日本語で、親しみやすく簡潔に応答してください。`

const defaultIndividualPrompt = `あなたは飲み会・食事会の幹事を手伝うアシスタント「エンカイ」です。
これは1対1のトークです。相手の個別の希望（予算・苦手な食べ物・アレルギーなど）を聞き取ってください。
聞いた内容は後でお店選びに使います。必ず日本語で、親しみやすく簡潔に応答してください。`

// DefaultConfig returns the built-in defaults. Credentials are expected
// from the environment or the YAML file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			TurnTimeout: "30s",
		},
		LINE: LINEConfig{
			BaseURL: "https://api.line.me/v2/bot",
		},
		Places: PlacesConfig{
			MaxResults: 3,
			Language:   "ja",
		},
		Triggers: TriggersConfig{
			Start:    []string{"start", "スタート", "調整スタート"},
			Decision: []string{"decide", "お店を決める！"},
			Reset:    []string{"reset", "リセット"},
		},
		Prompts: PromptsConfig{
			Group:      defaultGroupPrompt,
			Individual: defaultIndividualPrompt,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults if
// the file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if token := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"); token != "" {
		c.LINE.ChannelToken = token
	}
	if secret := os.Getenv("LINE_CHANNEL_SECRET"); secret != "" {
		c.LINE.ChannelSecret = secret
	}
	if key := os.Getenv("PLACES_API_KEY"); key != "" {
		c.Places.APIKey = key
	}
	if addr := os.Getenv("ENKAI_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// Validate checks that the configuration is complete enough to serve.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set GEMINI_API_KEY)")
	}
	if c.LINE.ChannelToken == "" {
		return fmt.Errorf("line.channel_token is required (or set LINE_CHANNEL_ACCESS_TOKEN)")
	}
	if c.LINE.ChannelSecret == "" {
		return fmt.Errorf("line.channel_secret is required (or set LINE_CHANNEL_SECRET)")
	}
	if c.Places.APIKey == "" {
		return fmt.Errorf("places.api_key is required (or set PLACES_API_KEY)")
	}
	if _, err := c.TurnTimeout(); err != nil {
		return fmt.Errorf("llm.turn_timeout: %w", err)
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	if len(c.Triggers.Start) == 0 || len(c.Triggers.Decision) == 0 || len(c.Triggers.Reset) == 0 {
		return fmt.Errorf("triggers must not be empty")
	}
	return nil
}

// TurnTimeout parses the configured per-turn deadline.
func (c *Config) TurnTimeout() (time.Duration, error) {
	return time.ParseDuration(c.LLM.TurnTimeout)
}

// ShutdownTimeout parses the configured graceful-shutdown deadline.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.ShutdownTimeout)
}
