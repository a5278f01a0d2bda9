package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const appName = "linkreader"

// Config holds all application configuration
type Config struct {
	Discord DiscordConfig `mapstructure:"discord"`
	Spotify SpotifyConfig `mapstructure:"spotify"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Bot     BotConfig     `mapstructure:"bot"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DiscordConfig holds the chat connection settings
type DiscordConfig struct {
	Token string `mapstructure:"token"`
	// ModeratorPermissions: holding any of these bits allows moderator commands
	ModeratorPermissions int64 `mapstructure:"moderator_permissions"`
}

// SpotifyConfig holds the Spotify application credentials
type SpotifyConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	APIURL       string `mapstructure:"api_url"`
}

// CacheConfig sizes the playlist membership cache
type CacheConfig struct {
	Size int `mapstructure:"size"` // playlists kept in memory
}

// BotConfig holds command behaviour
type BotConfig struct {
	DefaultPrefix string        `mapstructure:"default_prefix"`
	ValidPrefixes []string      `mapstructure:"valid_prefixes"`
	FillCooldown  time.Duration `mapstructure:"fill_cooldown"`
	ResetCooldown time.Duration `mapstructure:"reset_cooldown"`
}

// StorageConfig holds the guild settings database location
type StorageConfig struct {
	Path string `mapstructure:"path"` // empty keeps settings in memory
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"` // empty logs to stderr
	Level string `mapstructure:"level"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // e.g. ":9090"; empty disables
}

// Permission bits from the Discord API: kick, ban, manage channels,
// manage guild, view audit log, manage roles
const defaultModeratorPermissions int64 = 1<<1 | 1<<2 | 1<<4 | 1<<5 | 1<<7 | 1<<28

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			ModeratorPermissions: defaultModeratorPermissions,
		},
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8888/callback",
			APIURL:      "https://api.spotify.com/v1",
		},
		Cache: CacheConfig{
			Size: 5,
		},
		Bot: BotConfig{
			DefaultPrefix: "!",
			ValidPrefixes: []string{"!", "!!", ".", "..", "?", "??", "&", "&&", "+", "++"},
			FillCooldown:  3 * time.Hour,
			ResetCooldown: 3 * time.Hour,
		},
		Storage: StorageConfig{
			Path: filepath.Join(defaultDataPath(), appName+".db"),
		},
		Logging: LoggingConfig{
			File:  "",
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", appName)
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultConfigFile is where SaveConfig writes when no file was given
func DefaultConfigFile() string {
	return filepath.Join(defaultConfigPath(), "config.yaml")
}

// New returns a viper instance with defaults and environment overrides set up.
// Environment variables use the LINKREADER_ prefix, e.g. LINKREADER_DISCORD_TOKEN.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("discord.token", cfg.Discord.Token)
	v.SetDefault("discord.moderator_permissions", cfg.Discord.ModeratorPermissions)

	v.SetDefault("spotify.client_id", cfg.Spotify.ClientID)
	v.SetDefault("spotify.client_secret", cfg.Spotify.ClientSecret)
	v.SetDefault("spotify.redirect_url", cfg.Spotify.RedirectURL)
	v.SetDefault("spotify.api_url", cfg.Spotify.APIURL)

	v.SetDefault("cache.size", cfg.Cache.Size)

	v.SetDefault("bot.default_prefix", cfg.Bot.DefaultPrefix)
	v.SetDefault("bot.valid_prefixes", cfg.Bot.ValidPrefixes)
	v.SetDefault("bot.fill_cooldown", cfg.Bot.FillCooldown)
	v.SetDefault("bot.reset_cooldown", cfg.Bot.ResetCooldown)

	v.SetDefault("storage.path", cfg.Storage.Path)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// flagKeys maps command-line flags to config keys
var flagKeys = map[string]string{
	"cache-size":        "cache.size",
	"discord-bot-token": "discord.token",
	"spotify-id":        "spotify.client_id",
	"spotify-secret":    "spotify.client_secret",
	"data":              "storage.path",
	"log-level":         "logging.level",
	"metrics-addr":      "metrics.addr",
}

// RegisterFlags adds the flags that override config values
func RegisterFlags(fs *pflag.FlagSet) {
	fs.IntP("cache-size", "c", 5, "number of playlists kept in the membership cache")
	fs.StringP("discord-bot-token", "d", "", "Discord bot token")
	fs.StringP("spotify-id", "i", "", "Spotify application client ID")
	fs.StringP("spotify-secret", "s", "", "Spotify application client secret")
	fs.String("data", "", "path of the settings database (empty keeps settings in memory)")
	fs.String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	fs.String("metrics-addr", "", "listen address for /metrics, e.g. :9090")
}

// BindFlags makes flags the user set take precedence over file and environment
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// LoadConfig reads configuration from file and environment into v.
// An empty file searches the default config directory and the working directory.
func LoadConfig(v *viper.Viper, file string) (*Config, error) {
	cfg := DefaultConfig()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to file, or to the file v was loaded from, or to the default location
func SaveConfig(v *viper.Viper, cfg *Config, file string) error {
	if file == "" {
		file = v.ConfigFileUsed()
	}
	if file == "" {
		file = DefaultConfigFile()
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("discord.token", cfg.Discord.Token)
	v.Set("discord.moderator_permissions", cfg.Discord.ModeratorPermissions)

	v.Set("spotify.client_id", cfg.Spotify.ClientID)
	v.Set("spotify.client_secret", cfg.Spotify.ClientSecret)
	v.Set("spotify.redirect_url", cfg.Spotify.RedirectURL)
	v.Set("spotify.api_url", cfg.Spotify.APIURL)

	v.Set("cache.size", cfg.Cache.Size)

	v.Set("bot.default_prefix", cfg.Bot.DefaultPrefix)
	v.Set("bot.valid_prefixes", cfg.Bot.ValidPrefixes)
	v.Set("bot.fill_cooldown", cfg.Bot.FillCooldown.String())
	v.Set("bot.reset_cooldown", cfg.Bot.ResetCooldown.String())

	v.Set("storage.path", cfg.Storage.Path)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	v.Set("metrics.addr", cfg.Metrics.Addr)

	if err := v.WriteConfigAs(file); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	// Contains secrets
	if err := os.Chmod(file, 0600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside the bot
func (c *Config) Validate() error {
	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be at least 1, got %d", c.Cache.Size)
	}
	if len(c.Bot.ValidPrefixes) == 0 {
		return errors.New("bot.valid_prefixes must not be empty")
	}
	for _, p := range c.Bot.ValidPrefixes {
		if p == "" || strings.ContainsAny(p, " \t\n") {
			return fmt.Errorf("bot.valid_prefixes contains invalid prefix %q", p)
		}
	}
	if !slices.Contains(c.Bot.ValidPrefixes, c.Bot.DefaultPrefix) {
		return fmt.Errorf("bot.default_prefix %q is not one of bot.valid_prefixes", c.Bot.DefaultPrefix)
	}
	if c.Bot.FillCooldown < 0 || c.Bot.ResetCooldown < 0 {
		return errors.New("bot cooldowns must not be negative")
	}
	if c.Discord.ModeratorPermissions == 0 {
		return errors.New("discord.moderator_permissions must not be zero")
	}
	return nil
}

// MissingCredentials lists the credential keys that are still empty
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "discord.token")
	}
	if c.Spotify.ClientID == "" {
		missing = append(missing, "spotify.client_id")
	}
	if c.Spotify.ClientSecret == "" {
		missing = append(missing, "spotify.client_secret")
	}
	return missing
}

// IsConfigured returns true if every credential is set
func (c *Config) IsConfigured() bool {
	return len(c.MissingCredentials()) == 0
}
