package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Storage    StorageConfig     `yaml:"storage"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Highlights HighlightsConfig  `yaml:"highlights"`
	Events     EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Highlights.Validate(); err != nil {
		return err
	}
	return c.Events.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig controls where uploaded PDFs live.
type StorageConfig struct {
	Path           string `yaml:"path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// Watch imports PDFs dropped into Path by other programs.
	Watch bool `yaml:"watch"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1))),
	)
}

// SQLiteConfig holds the document catalog database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// HighlightsConfig sets the highlight defaults and overlay styling.
type HighlightsConfig struct {
	DefaultColor string  `yaml:"default_color"`
	Opacity      float64 `yaml:"opacity"`
	BlendMode    string  `yaml:"blend_mode"`
}

// Validate validates the highlight configuration. The default color is
// normalised to its canonical palette spelling.
func (c *HighlightsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Opacity, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.BlendMode, validation.In(render.BlendModes()...)),
	); err != nil {
		return err
	}
	if c.DefaultColor == "" {
		c.DefaultColor = string(models.DefaultColor)
		return nil
	}
	color, err := models.ParseColor(c.DefaultColor)
	if err != nil {
		return fmt.Errorf("highlights: default_color: %w", err)
	}
	c.DefaultColor = string(color)
	return nil
}

// EventsConfig tunes the SSE broker.
type EventsConfig struct {
	// Throttle is the minimum gap between overlays.invalidated events.
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Path:           "./documents",
			MaxUploadBytes: 10 << 20,
			Watch:          true,
		},
		SQLite: SQLiteConfig{
			Path: "./marginalia.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Highlights: HighlightsConfig{
			DefaultColor: string(models.DefaultColor),
			Opacity:      render.DefaultOpacity,
			BlendMode:    render.DefaultBlendMode,
		},
		Events: EventsConfig{
			Throttle: 250 * time.Millisecond,
		},
	}
}
