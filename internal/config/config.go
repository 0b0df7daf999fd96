// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type SMSConfig struct {
	Provider   string `yaml:"provider"` // twilio | noop
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

type AIConfig struct {
	OpenAIKey       string        `yaml:"openai_key"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	Model           string        `yaml:"model"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBase       time.Duration `yaml:"retry_base"`
}

type DispatchConfig struct {
	Workers    int           `yaml:"workers"`
	JobTimeout time.Duration `yaml:"job_timeout"` // per-job delivery SLA
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

type ConversationConfig struct {
	ConfidenceThreshold    float64       `yaml:"confidence_threshold"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	HandoffKeywords        []string      `yaml:"handoff_keywords"`
	HistoryCharBudget      int           `yaml:"history_char_budget"`
	MaxMessageLength       int           `yaml:"max_message_length"`
	LockTTL                time.Duration `yaml:"lock_ttl"`
	InboundRateLimit       int           `yaml:"inbound_rate_limit"`
	InboundRateWindow      time.Duration `yaml:"inbound_rate_window"`
	PromptCacheTTL         time.Duration `yaml:"prompt_cache_ttl"`
}

type WebConfig struct {
	Port        int    `yaml:"port"`
	BearerToken string `yaml:"bearer_token"`
}

type Config struct {
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	SMS          SMSConfig          `yaml:"sms"`
	AI           AIConfig           `yaml:"ai"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Retry        RetryConfig        `yaml:"retry"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Conversation ConversationConfig `yaml:"conversation"`
	Web          WebConfig          `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.SMS.Provider == "twilio" && (cfg.SMS.AccountSID == "" || cfg.SMS.AuthToken == "" || cfg.SMS.From == "") {
		return nil, errors.New("sms.account_sid, sms.auth_token and sms.from are required for the twilio provider")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.SMS.Provider == "" {
		cfg.SMS.Provider = "twilio"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}
	if cfg.AI.MaxRetries < 0 {
		cfg.AI.MaxRetries = 0
	} else if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = 2
	}
	if cfg.AI.RetryBase <= 0 {
		cfg.AI.RetryBase = 500 * time.Millisecond
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = 100
	}
	if cfg.Dispatch.JobTimeout <= 0 {
		cfg.Dispatch.JobTimeout = 5 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.Multiplier <= 1 {
		cfg.Retry.Multiplier = 2.0
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 60 * time.Second
	}
	if cfg.Breaker.Threshold <= 0 {
		cfg.Breaker.Threshold = 5
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		cfg.Breaker.ResetTimeout = 30 * time.Second
	}
	if cfg.Conversation.ConfidenceThreshold <= 0 {
		cfg.Conversation.ConfidenceThreshold = 0.7
	}
	if cfg.Conversation.MaxConsecutiveFailures <= 0 {
		cfg.Conversation.MaxConsecutiveFailures = 3
	}
	if len(cfg.Conversation.HandoffKeywords) == 0 {
		cfg.Conversation.HandoffKeywords = []string{"speak to human", "talk to a person", "real person", "agent", "representative"}
	}
	if cfg.Conversation.HistoryCharBudget <= 0 {
		cfg.Conversation.HistoryCharBudget = 4000
	}
	if cfg.Conversation.MaxMessageLength <= 0 {
		cfg.Conversation.MaxMessageLength = 1600
	}
	if cfg.Conversation.LockTTL <= 0 {
		cfg.Conversation.LockTTL = 30 * time.Second
	}
	if cfg.Conversation.InboundRateLimit <= 0 {
		cfg.Conversation.InboundRateLimit = 10
	}
	if cfg.Conversation.InboundRateWindow <= 0 {
		cfg.Conversation.InboundRateWindow = time.Minute
	}
	if cfg.Conversation.PromptCacheTTL <= 0 {
		cfg.Conversation.PromptCacheTTL = 30 * time.Second
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 9090
	}
}
