package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// Config is the application configuration, constructed once at startup and
// passed to every component. Precedence: embedded defaults, then an optional
// TOML override file, then environment variables.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify"`
	Email    EmailConfig    `toml:"email"`
	Playlist PlaylistConfig `toml:"playlist"`
	Cache    CacheConfig    `toml:"cache"`
	Runtime  RuntimeConfig  `toml:"runtime"`
}

// SpotifyConfig contains Spotify API credentials.
//
// RefreshToken is the long-lived token minted once by the `auth` command;
// scheduled runs exchange it for short-lived access tokens.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" validate:"required"`
	ClientSecret string `toml:"client_secret" validate:"required"`
	RefreshToken string `toml:"refresh_token" validate:"required"`
	RedirectURI  string `toml:"redirect_uri"`
}

// EmailConfig contains the reminder email addresses and SES region.
type EmailConfig struct {
	Sender    string `toml:"sender" validate:"required,email"`
	Recipient string `toml:"recipient" validate:"required,email"`
	Region    string `toml:"region"`
}

// PlaylistConfig controls ranking and publishing.
//
// NameTemplate may contain a "{date}" placeholder expanded to YYYY-MM-DD.
type PlaylistConfig struct {
	NameTemplate string `toml:"name_template" validate:"required"`
	TopN         int    `toml:"top_n" validate:"gt=0,lte=100"`
	LookbackDays int    `toml:"lookback_days" validate:"gt=0"`
	Public       bool   `toml:"public"`
}

// CacheConfig selects the optional run-cache backend.
type CacheConfig struct {
	Backend  string `toml:"backend" validate:"oneof=none sqlite redis"`
	Path     string `toml:"path"`
	RedisURL string `toml:"redis_url"`
}

// RuntimeConfig bounds a single invocation.
type RuntimeConfig struct {
	DeadlineSeconds int `toml:"deadline_seconds" validate:"gt=0"`
}

// Window returns the lookback window as a [time.Duration].
func (p PlaylistConfig) Window() time.Duration {
	return time.Duration(p.LookbackDays) * 24 * time.Hour
}

// RenderName expands the "{date}" placeholder in the name template.
func (p PlaylistConfig) RenderName(now time.Time) string {
	return strings.ReplaceAll(p.NameTemplate, "{date}", now.Format("2006-01-02"))
}

// Deadline returns the overall invocation deadline as a [time.Duration].
func (r RuntimeConfig) Deadline() time.Duration {
	return time.Duration(r.DeadlineSeconds) * time.Second
}

// DefaultConfig returns a Config populated from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// LoadConfig builds the effective configuration: defaults, overridden by the
// TOML file at path when it exists, overridden by environment variables, then
// validated. A missing file is not an error; credentials usually arrive via
// the environment on scheduled runs.
func LoadConfig(path string) (*Config, error) {
	config, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ReadConfig resolves the configuration layers without validating the result.
// Used by commands that run before credentials exist, like auth.
func ReadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrConfiguration, path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrConfiguration, path, err)
		}
	}

	config.applyEnv()
	return config, nil
}

// applyEnv overlays environment variables onto the config. Variable names
// follow the deployment's convention (SPOTIFY_*, SENDER_EMAIL, etc.).
func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString(&c.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.Spotify.RefreshToken, "SPOTIFY_REFRESH_TOKEN")
	setString(&c.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")

	setString(&c.Email.Sender, "SENDER_EMAIL")
	setString(&c.Email.Recipient, "RECIPIENT_EMAIL")
	setString(&c.Email.Region, "AWS_REGION")

	setString(&c.Playlist.NameTemplate, "PLAYLIST_NAME")
	setInt(&c.Playlist.TopN, "PLAYLIST_TOP_N")
	setInt(&c.Playlist.LookbackDays, "LOOKBACK_DAYS")
	setBool(&c.Playlist.Public, "PLAYLIST_PUBLIC")

	setString(&c.Cache.Backend, "CACHE_BACKEND")
	setString(&c.Cache.Path, "CACHE_PATH")
	setString(&c.Cache.RedisURL, "REDIS_URL")

	setInt(&c.Runtime.DeadlineSeconds, "RUN_DEADLINE_SECONDS")
}

// Validate checks required values and formats. All violations are reported
// together, wrapped in [ErrConfiguration].
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(fields, ", "))
	}

	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		return fmt.Errorf("%w: cache.path required for the sqlite backend", ErrConfiguration)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("%w: cache.redis_url required for the redis backend", ErrConfiguration)
	}
	return nil
}

// CreateConfigFile writes the embedded example config to path for local setup.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
