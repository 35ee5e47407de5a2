package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, overridable with AIHUB_CONFIG.
var ConfigPath = envOr("AIHUB_CONFIG", "config.yaml")

// Provider kinds.
const (
	KindOpenAI = "openai"
	KindClaude = "claude"
)

// ProviderConfig declares one chat backend.
type ProviderConfig struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	BaseURL      string `yaml:"baseURL"`
	Model        string `yaml:"model"`
	ValidatePath string `yaml:"validatePath"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string           `yaml:"port"`
	LogLevel               string           `yaml:"logLevel"`
	DatabaseDriver         string           `yaml:"databaseDriver"`
	DatabaseURL            string           `yaml:"databaseURL"`
	RedisAddr              string           `yaml:"redisAddr"`
	RedisPassword          string           `yaml:"redisPassword"`
	SummaryCacheTTL        string           `yaml:"summaryCacheTTL"`
	JWTSecret              string           `yaml:"jwtSecret"`
	JWTIssuer              string           `yaml:"jwtIssuer"`
	JWTAudience            string           `yaml:"jwtAudience"`
	JWTLeeway              string           `yaml:"jwtLeeway"`
	CredentialKey          string           `yaml:"credentialKey"`
	TurnRateLimitPerMinute int              `yaml:"turnRateLimitPerMinute"`
	BroadcastConcurrency   int              `yaml:"broadcastConcurrency"`
	ProviderTimeout        string           `yaml:"providerTimeout"`
	CORSOrigins            []string         `yaml:"corsOrigins"`
	TrustedProxies         []string         `yaml:"trustedProxies"`
	Providers              []ProviderConfig `yaml:"providers"`
}

// Load reads config from path (defaults to config.yaml). A .env file next to
// the config file is loaded first; variables already set in the environment win.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Override with environment variables
func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("AIHUB_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("AIHUB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("AIHUB_DATABASE_DRIVER"); v != "" {
		cfg.DatabaseDriver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AIHUB_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("AIHUB_CREDENTIAL_KEY"); v != "" {
		cfg.CredentialKey = v
	}
	if v := os.Getenv("AIHUB_TURN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TurnRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("AIHUB_BROADCAST_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BroadcastConcurrency = n
		}
	}
	if v := os.Getenv("AIHUB_PROVIDER_TIMEOUT"); v != "" {
		cfg.ProviderTimeout = v
	}
	if v := os.Getenv("AIHUB_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
}

// DefaultProviders returns the four built-in backends.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "ChatGPT", Kind: KindOpenAI, BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", ValidatePath: "/models"},
		{Name: "Gemini", Kind: KindOpenAI, BaseURL: "https://openrouter.ai/api/v1", Model: "google/gemini-2.0-flash-exp:free", ValidatePath: "/key"},
		{Name: "Claude", Kind: KindClaude, BaseURL: "https://api.anthropic.com/v1", Model: "claude-3-5-sonnet-latest"},
		{Name: "DeepSeek", Kind: KindOpenAI, BaseURL: "https://openrouter.ai/api/v1", Model: "deepseek/deepseek-chat-v3.1:free", ValidatePath: "/key"},
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver)) {
	case "", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported databaseDriver %q (postgres or mysql)", cfg.DatabaseDriver)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set AIHUB_JWT_SECRET)")
	}
	if cfg.DatabaseURL != "" && strings.TrimSpace(cfg.CredentialKey) == "" {
		return errors.New("config: credentialKey is required with a database (set AIHUB_CREDENTIAL_KEY)")
	}
	if cfg.TurnRateLimitPerMinute < 0 {
		return errors.New("config: turnRateLimitPerMinute must be >= 0")
	}
	if cfg.TurnRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when turnRateLimitPerMinute is set")
	}
	if cfg.BroadcastConcurrency < 0 {
		return errors.New("config: broadcastConcurrency must be >= 0")
	}
	for _, raw := range []struct{ name, value string }{
		{"jwtLeeway", cfg.JWTLeeway},
		{"providerTimeout", cfg.ProviderTimeout},
		{"summaryCacheTTL", cfg.SummaryCacheTTL},
	} {
		if _, err := ParseDuration(raw.name, raw.value); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("config: providers[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("config: duplicate provider %q", name)
		}
		seen[name] = true
		switch p.Kind {
		case KindOpenAI, KindClaude:
		default:
			return fmt.Errorf("config: provider %q has unsupported kind %q (openai or claude)", name, p.Kind)
		}
	}
	return nil
}

// ParseDuration parses an optional duration setting; empty means 0.
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
