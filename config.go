package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configDir = ".news-digest"

//go:embed config/settings.yaml
var defaultSettings string

// Settings represents the YAML configuration structure
type Settings struct {
	LogLevel string `yaml:"log_level"`
	Cache    struct {
		Backend     string        `yaml:"backend"`
		MaxArticles int           `yaml:"max_articles"`
		MaxAge      time.Duration `yaml:"max_age"`
		RedisDB     int           `yaml:"redis_db"`
	} `yaml:"cache"`
	Delivery struct {
		Quota     int    `yaml:"quota"`
		FromEmail string `yaml:"from_email"`
		FromName  string `yaml:"from_name"`
		Subject   string `yaml:"subject"`
	} `yaml:"delivery"`
	RateLimit struct {
		PerMinute int `yaml:"per_minute"`
		PerDay    int `yaml:"per_day"`
	} `yaml:"rate_limit"`
	Summarizer struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"summarizer"`
	NewsAPI struct {
		Endpoint            string  `yaml:"endpoint"`
		ArticlesPerCategory int     `yaml:"articles_per_category"`
		RequestsPerSecond   float64 `yaml:"requests_per_second"`
	} `yaml:"news_api"`
	Timeouts struct {
		Call time.Duration `yaml:"call"`
	} `yaml:"timeouts"`
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
}

// Secrets holds credentials read from the environment
type Secrets struct {
	NewsAPIKey    string
	GeminiAPIKey  string
	AnthropicKey  string
	SendGridKey   string
	DatabaseURL   string
	RedisAddress  string
	RedisPassword string
}

// Config holds settings and secrets
type Config struct {
	Settings *Settings
	Secrets  Secrets
}

// NewConfig loads settings from path, or from the default location when path is empty
func NewConfig(path string, logger Logger) (*Config, error) {
	if path == "" {
		if err := ensureConfigExists(); err != nil {
			return nil, err
		}
		path = getConfigPath("settings.yaml")
	}

	settings, err := loadSettings(path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	return &Config{
		Settings: settings,
		Secrets:  loadSecrets(),
	}, nil
}

// loadSettings reads a settings file and replaces invalid values with defaults
func loadSettings(path string, logger Logger) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	return parseSettings(data, logger)
}

func parseSettings(data []byte, logger Logger) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}
	settings.applyDefaults(logger)
	return &settings, nil
}

func (s *Settings) applyDefaults(logger Logger) {
	warn := func(field string, got any, def any) {
		logger.Warn("Invalid setting, using default",
			String("field", field),
			String("value", fmt.Sprint(got)),
			String("default", fmt.Sprint(def)),
		)
	}

	if s.Cache.MaxArticles <= 0 {
		warn("cache.max_articles", s.Cache.MaxArticles, defaultMaxArticles)
		s.Cache.MaxArticles = defaultMaxArticles
	}
	if s.Cache.MaxAge <= 0 {
		warn("cache.max_age", s.Cache.MaxAge, defaultMaxAge)
		s.Cache.MaxAge = defaultMaxAge
	}
	if s.Delivery.Quota <= 0 {
		warn("delivery.quota", s.Delivery.Quota, defaultQuota)
		s.Delivery.Quota = defaultQuota
	}
	if s.RateLimit.PerMinute <= 0 {
		warn("rate_limit.per_minute", s.RateLimit.PerMinute, defaultRequestsPerMinute)
		s.RateLimit.PerMinute = defaultRequestsPerMinute
	}
	if s.RateLimit.PerDay <= 0 {
		warn("rate_limit.per_day", s.RateLimit.PerDay, defaultRequestsPerDay)
		s.RateLimit.PerDay = defaultRequestsPerDay
	}
	if s.Timeouts.Call <= 0 {
		warn("timeouts.call", s.Timeouts.Call, defaultCallTimeout)
		s.Timeouts.Call = defaultCallTimeout
	}

	s.Cache.Backend = strings.ToLower(strings.TrimSpace(s.Cache.Backend))
	if s.Cache.Backend == "" {
		s.Cache.Backend = "memory"
	}
	s.Summarizer.Provider = strings.ToLower(strings.TrimSpace(s.Summarizer.Provider))
	if s.Summarizer.Provider == "" {
		s.Summarizer.Provider = "gemini"
	}
	if s.Server.Address == "" {
		s.Server.Address = ":5003"
	}
}

// Validate checks the choices that have no safe default
func (s *Settings) Validate() error {
	var errs []error
	switch s.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be memory or redis, got %q", s.Cache.Backend))
	}
	switch s.Summarizer.Provider {
	case "gemini", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("summarizer.provider must be gemini or anthropic, got %q", s.Summarizer.Provider))
	}
	return errors.Join(errs...)
}

// loadSecrets reads credentials from the environment, loading .env first if present
func loadSecrets() Secrets {
	_ = godotenv.Load()

	return Secrets{
		NewsAPIKey:    os.Getenv("NEWS_API_KEY"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
		SendGridKey:   os.Getenv("SENDGRID_API_KEY"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
}

// getConfigPath returns the path to a config file in the .news-digest directory
func getConfigPath(filename string) string {
	return filepath.Join(configDir, filename)
}

// ensureConfigExists creates the config directory and default settings if they don't exist
func ensureConfigExists() error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("failed to write default settings: %w", err)
		}
	}
	return nil
}
