// Package config loads the bot configuration from YAML with environment
// variable expansion and .env file support.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/ytdl"
)

// envVarPattern matches ${VAR_NAME} and ${VAR_NAME:-default} references
// in config values. Group 1 is the variable name, group 2 the default.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Config is the root configuration for the bot.
type Config struct {
	Prefix  string   `yaml:"prefix"`
	Admins  []string `yaml:"admins"`
	Channel string   `yaml:"channel"` // "whatsapp" or "discord"

	Channels   ChannelsConfig   `yaml:"channels"`
	Logging    LoggingConfig    `yaml:"logging"`
	Scratch    ScratchConfig    `yaml:"scratch"`
	Downloader DownloaderConfig `yaml:"downloader"`
	History    HistoryConfig    `yaml:"history"`
	Reply      ReplyConfig      `yaml:"reply"`
}

// ChannelsConfig holds per-channel connection settings.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// WhatsAppConfig configures the whatsmeow session store.
type WhatsAppConfig struct {
	SessionPath string `yaml:"session_path"`
	DeviceName  string `yaml:"device_name"`
}

// DiscordConfig configures the Discord gateway connection.
type DiscordConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ScratchConfig controls the temporary file store.
type ScratchConfig struct {
	Dir                  string `yaml:"dir"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	MaxAgeSeconds        int    `yaml:"max_age_seconds"`
}

// SweepInterval returns the sweep interval as a duration.
func (s ScratchConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// MaxAge returns the file retention limit as a duration.
func (s ScratchConfig) MaxAge() time.Duration {
	return time.Duration(s.MaxAgeSeconds) * time.Second
}

// DownloaderConfig overrides the media downloader endpoints and limits.
// Zero values fall back to the downloader defaults.
type DownloaderConfig struct {
	SearchURL              string `yaml:"search_url"`
	ResolveURL             string `yaml:"resolve_url"`
	DirectURL              string `yaml:"direct_url"`
	DownloadTimeoutSeconds int    `yaml:"download_timeout_seconds"`
	MaxDownloadBytes       int64  `yaml:"max_download_bytes"`
}

// HistoryConfig configures the download history database.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables history
}

// ReplyConfig configures pending-reply bookkeeping.
type ReplyConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the pending-reply lifetime as a duration.
func (r ReplyConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// Default returns a config with working defaults for everything that
// does not require credentials.
func Default() *Config {
	return &Config{
		Prefix:  "!",
		Channel: "whatsapp",
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				SessionPath: "goatrelay-session.db",
				DeviceName:  "GoatRelay",
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Scratch: ScratchConfig{
			Dir:                  "scratch",
			SweepIntervalSeconds: 600,
			MaxAgeSeconds:        1800,
		},
		History: HistoryConfig{Path: "goatrelay-history.db"},
		Reply:   ReplyConfig{TTLSeconds: 3600},
	}
}

// Load reads a YAML config file, expanding ${VAR} references after
// loading .env files from the working directory.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Channel {
	case "whatsapp", "discord":
	default:
		return fmt.Errorf("unknown channel %q (want whatsapp or discord)", c.Channel)
	}
	if c.Channel == "discord" && c.Channels.Discord.Token == "" {
		return fmt.Errorf("discord channel selected but channels.discord.token is empty")
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix must not be empty")
	}
	if c.Scratch.MaxAgeSeconds <= 0 {
		return fmt.Errorf("scratch.max_age_seconds must be positive")
	}
	return nil
}

// DownloaderClientConfig maps the YAML overrides onto the downloader's
// own config, keeping its defaults where the YAML is silent.
func (c *Config) DownloaderClientConfig() ytdl.Config {
	dc := ytdl.DefaultConfig()
	if c.Downloader.SearchURL != "" {
		dc.SearchURL = c.Downloader.SearchURL
	}
	if c.Downloader.ResolveURL != "" {
		dc.ResolveURL = c.Downloader.ResolveURL
	}
	if c.Downloader.DirectURL != "" {
		dc.DirectURL = c.Downloader.DirectURL
	}
	if c.Downloader.DownloadTimeoutSeconds > 0 {
		dc.DownloadTimeout = time.Duration(c.Downloader.DownloadTimeoutSeconds) * time.Second
	}
	if c.Downloader.MaxDownloadBytes > 0 {
		dc.MaxDownloadBytes = c.Downloader.MaxDownloadBytes
	}
	return dc
}

// FindConfigFile searches for a config file in standard locations and
// returns the first that exists, or "".
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"goatrelay.yaml",
		"goatrelay.yml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnvFiles loads .env files from standard locations. godotenv does
// not overwrite variables already present in the environment.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} references with the
// environment's values. Unset variables without a default expand to "".
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
}
