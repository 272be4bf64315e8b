package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	LineChannelSecret      string `env:"LINE_CHANNEL_SECRET,required"`
	LineChannelAccessToken string `env:"LINE_CHANNEL_ACCESS_TOKEN,required"`
	LineAPIBaseURL         string `env:"LINE_API_BASE_URL" envDefault:"https://api.line.me"`
	LineDataAPIBaseURL     string `env:"LINE_DATA_API_BASE_URL" envDefault:"https://api-data.line.me"`

	AppName             string `env:"APP_NAME" envDefault:"linebot_adk_app"`
	AgentBackend        string `env:"AGENT_BACKEND" envDefault:"openai"`
	AgentModel          string `env:"AGENT_MODEL" envDefault:"gpt-4o-mini"`
	AgentInstruction    string `env:"AGENT_INSTRUCTION"`
	AgentTimeoutSeconds int    `env:"AGENT_TIMEOUT_SECONDS" envDefault:"0"`
	VisionModel         string `env:"VISION_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIAPIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `env:"OPENAI_BASE_URL"`
	OllamaHost          string `env:"OLLAMA_HOST" envDefault:"http://127.0.0.1:11434"`

	RegistryBackend     string `env:"REGISTRY_BACKEND" envDefault:"memory"`
	SessionStoreBackend string `env:"SESSION_STORE_BACKEND" envDefault:"memory"`
	SessionTTLSeconds   int    `env:"SESSION_TTL_SECONDS" envDefault:"3600"`
	HistoryMaxTurns     int    `env:"HISTORY_MAX_TURNS" envDefault:"20"`

	RedisURL            string `env:"REDIS_URL"`
	DatabaseURL         string `env:"DATABASE_URL"`
	AdminPasswordHash   string `env:"ADMIN_PASSWORD_HASH"`
	UserRateLimitPerMin int    `env:"USER_RATE_LIMIT_PER_MIN" envDefault:"20"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) UsesRedis() bool {
	return c.RegistryBackend == StoreRedis || c.SessionStoreBackend == StoreRedis || c.RedisURL != ""
}

func (c *Config) Validate() error {
	switch c.AgentBackend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AGENT_BACKEND=%s", BackendOpenAI)
		}
	case BackendOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("OLLAMA_HOST is required when AGENT_BACKEND=%s", BackendOllama)
		}
	default:
		return fmt.Errorf("AGENT_BACKEND must be %q or %q, got %q", BackendOpenAI, BackendOllama, c.AgentBackend)
	}

	for name, value := range map[string]string{
		"REGISTRY_BACKEND":      c.RegistryBackend,
		"SESSION_STORE_BACKEND": c.SessionStoreBackend,
	} {
		if value != StoreMemory && value != StoreRedis {
			return fmt.Errorf("%s must be %q or %q, got %q", name, StoreMemory, StoreRedis, value)
		}
		if value == StoreRedis && c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when %s=%s", name, StoreRedis)
		}
	}

	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
		if c.DatabaseURL == "" {
			log.Warn().Msg("ADMIN_PASSWORD_HASH is set but DATABASE_URL is empty: namecard admin API disabled")
		}
	}

	if c.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is empty: namecard images cannot be parsed")
	}

	if c.HistoryMaxTurns < 0 {
		return fmt.Errorf("HISTORY_MAX_TURNS must not be negative")
	}

	return nil
}

// Load reads envFile (or ./.env when envFile is empty and the file exists)
// into the process environment, then parses the environment. Variables that
// are already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load default env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
