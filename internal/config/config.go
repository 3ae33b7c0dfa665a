package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Database   Database   `yaml:"database"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Generation Generation `yaml:"generation"`
	Trends     Trends     `yaml:"trends"`
	Publish    Publish    `yaml:"publish"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Database struct {
	DataDir string `yaml:"data_dir"`
	File    string `yaml:"file" validate:"required"`
}

type Scheduler struct {
	ToleranceWindow time.Duration `yaml:"tolerance_window" validate:"gte=1s"`
	DuePostLimit    int           `yaml:"due_post_limit" validate:"gte=1,lte=500"`
	Interval        time.Duration `yaml:"interval" validate:"gte=1s"`
	StaleClaimAfter time.Duration `yaml:"stale_claim_after" validate:"gte=0s"`
	DefaultTimes    []string      `yaml:"default_times" validate:"dive,datetime=15:04"`
}

type Generation struct {
	Provider        string `yaml:"provider" validate:"oneof=ollama openai anthropic"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url" validate:"omitempty,url"`
	OpenAIModel     string `yaml:"openai_model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	AnthropicModel  string `yaml:"anthropic_model"`
	AnthropicKeyEnv string `yaml:"anthropic_key_env"`
	MaxTokens       int    `yaml:"max_tokens" validate:"gte=50,lte=8192"`
}

type Trends struct {
	Enabled      bool              `yaml:"enabled"`
	DaysBack     int               `yaml:"days_back" validate:"gte=1,lte=30"`
	FetchPages   bool              `yaml:"fetch_pages"`
	FetchTimeout time.Duration     `yaml:"fetch_timeout"`
	Feeds        map[string][]Feed `yaml:"feeds" validate:"dive,dive"`
	NewsAPI      NewsAPIConfig     `yaml:"newsapi"`
}

type Feed struct {
	URL  string `yaml:"url" validate:"required,url"`
	Name string `yaml:"name"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Publish struct {
	Mode      string            `yaml:"mode" validate:"oneof=log http"`
	Endpoints map[string]string `yaml:"endpoints" validate:"dive,keys,oneof=linkedin facebook instagram pinterest twitter,endkeys,url"`
	TokenEnv  string            `yaml:"token_env"`
	Timeout   time.Duration     `yaml:"timeout"`
	Breaker   Breaker           `yaml:"breaker"`
}

// Breaker configures the per-platform circuit breaker of the HTTP publisher.
type Breaker struct {
	FailureThreshold uint          `yaml:"failure_threshold" validate:"gte=1"`
	FailureWindow    uint          `yaml:"failure_window" validate:"gtefield=FailureThreshold"`
	SuccessThreshold uint          `yaml:"success_threshold" validate:"gte=1"`
	Delay            time.Duration `yaml:"delay"`
}

type Server struct {
	Port      int    `yaml:"port" validate:"gte=1,lte=65535"`
	SecretEnv string `yaml:"secret_env" validate:"required"`
}

type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format" validate:"oneof=text json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ConfigDir returns the XDG config directory for autoposter.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "autoposter")
}

// DataDir returns the XDG data directory for autoposter.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "autoposter")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/autoposter/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'autoposter init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Database: Database{File: "autoposter.db"},
		Scheduler: Scheduler{
			ToleranceWindow: 6 * time.Minute,
			DuePostLimit:    25,
			Interval:        5 * time.Minute,
			StaleClaimAfter: 30 * time.Minute,
			DefaultTimes:    []string{"08:00", "14:00", "19:00"},
		},
		Generation: Generation{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicModel:  "claude-3-5-haiku-latest",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:       600,
		},
		Trends: Trends{
			Enabled:      true,
			DaysBack:     3,
			FetchPages:   true,
			FetchTimeout: 15 * time.Second,
			NewsAPI:      NewsAPIConfig{APIKeyEnv: "NEWSAPI_KEY"},
		},
		Publish: Publish{
			Mode:     "log",
			TokenEnv: "AUTOPOSTER_PUBLISH_TOKEN",
			Timeout:  30 * time.Second,
			Breaker: Breaker{
				FailureThreshold: 3,
				FailureWindow:    5,
				SuccessThreshold: 1,
				Delay:            2 * time.Minute,
			},
		},
		Server:  Server{Port: 8000, SecretEnv: "CRON_SECRET"},
		Logging: Logging{Level: "info", Format: "text", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 28},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	// A slot must stay inside the window for at least one tick.
	if c.Scheduler.ToleranceWindow <= c.Scheduler.Interval {
		return fmt.Errorf("invalid config: scheduler.tolerance_window (%s) must exceed scheduler.interval (%s)",
			c.Scheduler.ToleranceWindow, c.Scheduler.Interval)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Database.DataDir != "" {
		return c.Database.DataDir
	}
	return DataDir()
}

// DatabasePath returns the SQLite file path.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database.File) {
		return c.Database.File
	}
	return filepath.Join(c.GetDataDir(), c.Database.File)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
