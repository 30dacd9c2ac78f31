package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
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
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	BotToken  string        `yaml:"bot_token"`  // used to verify Mini-App initData
	JWTSecret string        `yaml:"jwt_secret"` // HS256 signing secret, >=32 chars
	TokenTTL  time.Duration `yaml:"token_ttl"`
	AdminKey  string        `yaml:"admin_key"` // bearer key for direct subscription grants; empty disables the route
}

type AIConfig struct {
	OpenAIKey    string        `yaml:"openai_key"`
	GeminiKey    string        `yaml:"gemini_key"`
	GeminiURL    string        `yaml:"gemini_url"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxPromptTok int           `yaml:"max_prompt_tokens"`
}

type PaymentConfig struct {
	YooKassa struct {
		ShopID        string `yaml:"shop_id"`
		SecretKey     string `yaml:"secret_key"`
		ReturnURL     string `yaml:"return_url"`
		WebhookSecret string `yaml:"webhook_secret"` // optional HMAC signature check
	} `yaml:"yookassa"`
	Timeout time.Duration `yaml:"timeout"`
}

type SchedConfig struct {
	ExpiryInterval     time.Duration `yaml:"expiry_interval"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	ReconcileStaleFrom time.Duration `yaml:"reconcile_stale_from"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	AI       AIConfig       `yaml:"ai"`
	Payment  PaymentConfig  `yaml:"payment"`
	Sched    SchedConfig    `yaml:"sched"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Secrets that ship as placeholder examples all over the internet. A JWT
// secret matching any of them is treated as unset.
var weakSecrets = []string{
	"secret",
	"jwt-secret",
	"jwt_secret",
	"changeme",
	"password",
	"your-256-bit-secret",
	"your-secret-key",
	"supersecret",
	"secret-key",
	"00000000000000000000000000000000",
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
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}
	if cfg.AI.MaxPromptTok <= 0 {
		cfg.AI.MaxPromptTok = 2048
	}
	if cfg.Payment.Timeout <= 0 {
		cfg.Payment.Timeout = 10 * time.Second
	}
	if cfg.Sched.ExpiryInterval <= 0 {
		cfg.Sched.ExpiryInterval = time.Hour
	}
	if cfg.Sched.ReconcileInterval <= 0 {
		cfg.Sched.ReconcileInterval = time.Minute
	}
	if cfg.Sched.ReconcileStaleFrom <= 0 {
		cfg.Sched.ReconcileStaleFrom = 10 * time.Minute
	}
}

// Validate enforces the minimum the process cannot run without.
func (cfg *Config) Validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Auth.BotToken == "" {
		return errors.New("auth.bot_token is required")
	}
	if err := ValidateJWTSecret(cfg.Auth.JWTSecret); err != nil {
		return err
	}
	return nil
}

// ValidateJWTSecret rejects short or well-known placeholder secrets.
func ValidateJWTSecret(secret string) error {
	low := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if low == weak {
			return errors.New("auth.jwt_secret is a known-weak value")
		}
	}
	if len(secret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters")
	}
	return nil
}
