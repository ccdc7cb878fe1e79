// Package config loads leaknote settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pbaille/leaknote/internal/domain"
)

// Config is the full application configuration
type Config struct {
	DB          string             `mapstructure:"db"`
	LLM         LLM                `mapstructure:"llm"`
	Classifier  Classifier         `mapstructure:"classifier"`
	Thresholds  map[string]float64 `mapstructure:"thresholds"`
	Clarify     Clarify            `mapstructure:"clarify"`
	Maintenance Maintenance        `mapstructure:"maintenance"`
	Enrich      Enrich             `mapstructure:"enrich"`
	Embedding   Embedding          `mapstructure:"embedding"`
	Server      Server             `mapstructure:"server"`
	Bot         Bot                `mapstructure:"bot"`
}

// LLM selects the completion service
type LLM struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

type Classifier struct {
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type Clarify struct {
	Horizon time.Duration `mapstructure:"horizon"`
}

type Maintenance struct {
	Schedule     string        `mapstructure:"schedule"`
	AdminDoneAge time.Duration `mapstructure:"admin_done_age"`
}

type Enrich struct {
	Enabled    bool `mapstructure:"enabled"`
	QueueSize  int  `mapstructure:"queue_size"`
	FetchLinks bool `mapstructure:"fetch_links"`
}

type Embedding struct {
	APIKey string `mapstructure:"api_key"`
	URL    string `mapstructure:"url"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Bot struct {
	OwnerID string `mapstructure:"owner_id"`
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("db", filepath.Join(home, ".leaknote", "leaknote.db"))

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 500)

	v.SetDefault("classifier.retry_delay", 2*time.Second)

	v.SetDefault("thresholds.default", 0.6)
	v.SetDefault("thresholds.ideas", 0.5)

	v.SetDefault("clarify.horizon", 7*24*time.Hour)

	v.SetDefault("maintenance.schedule", "0 3 * * 0")
	v.SetDefault("maintenance.admin_done_age", 30*24*time.Hour)

	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.queue_size", 64)
	v.SetDefault("enrich.fetch_links", true)

	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.url", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("bot.owner_id", "")
}

// Load reads configuration. An empty path looks for leaknote.yaml in
// $HOME/.leaknote and the working directory; a missing file is fine there.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LEAKNOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider key names shared with other tools
	if err := v.BindEnv("keys.anthropic", "ANTHROPIC_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("keys.openai", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("embedding.api_key", "LEAKNOTE_EMBEDDING_API_KEY", "VOYAGE_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("leaknote")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".leaknote"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKey = v.GetString("keys.anthropic")
		case "openai":
			cfg.LLM.APIKey = v.GetString("keys.openai")
		}
	}
	return &cfg, nil
}

// Validate reports every invalid or missing value at once. Completion
// service settings are checked separately by ValidateLLM.
func (c *Config) Validate() error {
	var errs []error

	if c.DB == "" {
		errs = append(errs, errors.New("db: path is required"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout: must be positive"))
	}

	for key, v := range c.Thresholds {
		if key != "default" && !domain.Category(key).Valid() {
			errs = append(errs, fmt.Errorf("thresholds.%s: unknown category", key))
			continue
		}
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("thresholds.%s: %v is outside [0, 1]", key, v))
		}
	}

	if c.Clarify.Horizon <= 0 {
		errs = append(errs, errors.New("clarify.horizon: must be positive"))
	}
	if c.Enrich.QueueSize <= 0 {
		errs = append(errs, errors.New("enrich.queue_size: must be positive"))
	}

	return errors.Join(errs...)
}

// ValidateLLM checks the settings needed to classify notes
func (c *Config) ValidateLLM() error {
	var errs []error

	switch c.LLM.Provider {
	case "anthropic":
	case "openai":
		if c.LLM.BaseURL == "" {
			errs = append(errs, errors.New("llm.base_url: required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key: not set (or set ANTHROPIC_API_KEY / OPENAI_API_KEY)"))
	}

	return errors.Join(errs...)
}

// DefaultThreshold returns thresholds.default
func (c *Config) DefaultThreshold() float64 {
	if v, ok := c.Thresholds["default"]; ok {
		return v
	}
	return 0.6
}

// CategoryThresholds returns the per-category overrides
func (c *Config) CategoryThresholds() map[domain.Category]float64 {
	out := make(map[domain.Category]float64)
	for key, v := range c.Thresholds {
		if cat := domain.Category(key); cat.Valid() {
			out[cat] = v
		}
	}
	return out
}
