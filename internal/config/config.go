package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingAPIKey is fatal at startup.
var ErrMissingAPIKey = errors.New("OPENROUTER_API_KEY is not set")

type Config struct {
	AppEnv   string
	LogLevel string

	Port           string
	DBPath         string
	AllowedOrigins []string

	APIKey           string
	BaseURL          string
	Model            string
	SentimentModel   string
	ProviderTimeout  time.Duration
	MaxHistoryTokens int
}

func Default() Config {
	return Config{
		AppEnv:           "development",
		LogLevel:         "info",
		Port:             "8000",
		DBPath:           "chatbot.db",
		AllowedOrigins:   []string{"*"},
		BaseURL:          "https://openrouter.ai/api/v1",
		Model:            "meta-llama/llama-3.1-8b-instruct:free",
		ProviderTimeout:  30 * time.Second,
		MaxHistoryTokens: 3000,
	}
}

// Load reads .env (outside production) and the process environment on top of
// the defaults, then validates the result.
func Load() (Config, error) {
	cfg := Default()
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.AppEnv = v
	}
	if !cfg.IsProduction() {
		// a missing .env is fine; the environment may carry everything
		_ = godotenv.Load()
	}
	cfg.loadFromEnv()

	if cfg.SentimentModel == "" {
		cfg.SentimentModel = cfg.Model
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.AppEnv = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	c.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		c.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("OPENROUTER_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("SENTIMENT_MODEL"); v != "" {
		c.SentimentModel = v
	}
	if v := os.Getenv("PROVIDER_TIMEOUT_SECONDS"); v != "" {
		c.ProviderTimeout = time.Duration(atoiOr(v, int(c.ProviderTimeout/time.Second))) * time.Second
	}
	if v := os.Getenv("MAX_HISTORY_TOKENS"); v != "" {
		c.MaxHistoryTokens = atoiOr(v, c.MaxHistoryTokens)
	}
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.BaseURL == "" {
		return errors.New("OPENROUTER_BASE_URL must not be empty")
	}
	if c.Model == "" {
		return errors.New("OPENROUTER_MODEL must not be empty")
	}
	if c.ProviderTimeout < 0 {
		return errors.New("PROVIDER_TIMEOUT_SECONDS must be >= 0")
	}
	if c.MaxHistoryTokens < 0 {
		return errors.New("MAX_HISTORY_TOKENS must be >= 0")
	}
	if c.Port == "" || c.DBPath == "" {
		return errors.New("PORT and DB_PATH must not be empty")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// NewLogger builds the process logger: JSON in production, console otherwise.
func (c Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if c.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	if c.LogLevel != "" {
		level, err := zapcore.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

func atoiOr(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
