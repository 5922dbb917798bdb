// Package config defines all configuration for the weather bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// credentials overridable via WX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Kalshi   KalshiConfig        `mapstructure:"kalshi"`
	Synoptic SynopticConfig      `mapstructure:"synoptic"`
	Series   map[string][]string `mapstructure:"event_series"` // consumer → series prefixes
	Rollover RolloverConfig      `mapstructure:"event_rollover"`
	Bot      BotConfig           `mapstructure:"bot"`
	Storage  StorageConfig       `mapstructure:"storage"`
	Logging  LoggingConfig       `mapstructure:"logging"`
}

// KalshiConfig holds exchange endpoints and credential locations. The
// private key is a PEM file on disk; the key id may come from WX_KALSHI_API_KEY_ID.
type KalshiConfig struct {
	BaseURL        string `mapstructure:"base_url"` // e.g. https://api.elections.kalshi.com/trade-api/v2
	WSURL          string `mapstructure:"ws_url"`   // e.g. wss://api.elections.kalshi.com/trade-api/ws/v2
	APIKeyID       string `mapstructure:"api_key_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // REST timeout, default 30
}

// SynopticConfig holds the weather push feed credentials. The token is read
// from TokenPath (one line) or WX_SYNOPTIC_TOKEN.
type SynopticConfig struct {
	TokenPath string   `mapstructure:"token_path"`
	Token     string   `mapstructure:"token"`
	Vars      []string `mapstructure:"vars"` // default ["air_temp"]
}

// RolloverConfig controls periodic market rediscovery.
type RolloverConfig struct {
	RediscoverIntervalSeconds int    `mapstructure:"rediscover_interval_seconds"`
	EventSelection            string `mapstructure:"event_selection"` // active | next | consecutive
}

// StrategyDef is one entry of bot.strategies.
type StrategyDef struct {
	ID        string         `mapstructure:"id"`
	ClassName string         `mapstructure:"class_name"`
	Targets   []string       `mapstructure:"targets"`
	Params    map[string]any `mapstructure:"params"`
}

// BotConfig holds the decision-layer configuration.
type BotConfig struct {
	PaperMode  bool          `mapstructure:"paper_mode"`
	Strategies []StrategyDef `mapstructure:"strategies"`
}

// StorageConfig sets where fill logs are written.
type StorageConfig struct {
	DataDir              string `mapstructure:"data_dir"`
	FlushIntervalSeconds int    `mapstructure:"flush_interval_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Credentials use env vars: WX_KALSHI_API_KEY_ID, WX_KALSHI_PRIVATE_KEY_PATH,
// WX_SYNOPTIC_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("WX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("WX_KALSHI_API_KEY_ID"); key != "" {
		cfg.Kalshi.APIKeyID = key
	}
	if p := os.Getenv("WX_KALSHI_PRIVATE_KEY_PATH"); p != "" {
		cfg.Kalshi.PrivateKeyPath = p
	}
	if tok := os.Getenv("WX_SYNOPTIC_TOKEN"); tok != "" {
		cfg.Synoptic.Token = tok
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Kalshi.TimeoutSeconds <= 0 {
		c.Kalshi.TimeoutSeconds = 30
	}
	if c.Rollover.RediscoverIntervalSeconds <= 0 {
		c.Rollover.RediscoverIntervalSeconds = 300
	}
	if c.Rollover.EventSelection == "" {
		c.Rollover.EventSelection = "active"
	}
	if len(c.Synoptic.Vars) == 0 {
		c.Synoptic.Vars = []string{"air_temp"}
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.FlushIntervalSeconds <= 0 {
		c.Storage.FlushIntervalSeconds = 300
	}
}

// SeriesFor returns the series list for a consumer key (e.g. "weather_bot"),
// falling back to the "default" key.
func (c *Config) SeriesFor(consumer string) []string {
	if s, ok := c.Series[consumer]; ok && len(s) > 0 {
		return s
	}
	return c.Series["default"]
}

// SynopticToken resolves the weather feed token: inline value first, then
// the token file.
func (c *Config) SynopticToken() (string, error) {
	if c.Synoptic.Token != "" {
		return c.Synoptic.Token, nil
	}
	if c.Synoptic.TokenPath == "" {
		return "", fmt.Errorf("synoptic token not configured (set synoptic.token_path or WX_SYNOPTIC_TOKEN)")
	}
	data, err := os.ReadFile(c.Synoptic.TokenPath)
	if err != nil {
		return "", fmt.Errorf("read synoptic token: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("synoptic token file %s is empty", c.Synoptic.TokenPath)
	}
	return tok, nil
}

// Validate checks all required fields. Failures here are the only fatal
// conditions in the engine.
func (c *Config) Validate() error {
	if c.Kalshi.BaseURL == "" {
		return fmt.Errorf("kalshi.base_url is required")
	}
	if c.Kalshi.WSURL == "" {
		return fmt.Errorf("kalshi.ws_url is required")
	}
	if c.Kalshi.APIKeyID == "" {
		return fmt.Errorf("kalshi.api_key_id is required (set WX_KALSHI_API_KEY_ID)")
	}
	if c.Kalshi.PrivateKeyPath == "" {
		return fmt.Errorf("kalshi.private_key_path is required (set WX_KALSHI_PRIVATE_KEY_PATH)")
	}
	if len(c.SeriesFor("weather_bot")) == 0 {
		return fmt.Errorf("event_series.weather_bot must list at least one series")
	}
	if len(c.Bot.Strategies) == 0 {
		return fmt.Errorf("bot.strategies must define at least one strategy")
	}
	switch c.Rollover.EventSelection {
	case "active", "next", "consecutive":
	default:
		return fmt.Errorf("event_rollover.event_selection must be one of: active, next, consecutive")
	}
	return nil
}
