package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tally/internal/board"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/metastore"
	"github.com/starford/tally/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Board    BoardConfig       `yaml:"board"`
	Metadata MetadataConfig    `yaml:"metadata"`
	Calc     CalcConfig        `yaml:"calc"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Board.Validate(); err != nil {
		return err
	}
	if err := c.Metadata.Validate(); err != nil {
		return err
	}
	if err := c.Calc.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// BoardConfig holds the board directory and watcher settings.
type BoardConfig struct {
	Path          string        `yaml:"path"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Validate validates the board configuration.
func (c *BoardConfig) Validate() error {
	if c.WatchDebounce == 0 {
		c.WatchDebounce = board.DefaultDebounce
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.WatchDebounce, validation.Min(time.Millisecond)),
	)
}

// MetadataConfig selects where the calculator index is persisted.
type MetadataConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Key    string `yaml:"key"`
}

// Validate validates the metadata configuration.
func (c *MetadataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(metastore.DriverSQLite, metastore.DriverBadger)),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Key, validation.Required),
	)
}

// CalcConfig holds calculator note placement and styling.
type CalcConfig struct {
	PlacementOffset float64      `yaml:"placement_offset"`
	DerivedStyle    models.Style `yaml:"derived_style"`
}

// Validate validates the calculator configuration.
func (c *CalcConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PlacementOffset, validation.Required, validation.Min(0.0).Exclusive()),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Board: BoardConfig{
			Path:          "./board",
			WatchDebounce: board.DefaultDebounce,
		},
		Metadata: MetadataConfig{
			Driver: metastore.DriverSQLite,
			Path:   "./tally.db",
			Key:    engine.DefaultMetadataKey,
		},
		Calc: CalcConfig{
			PlacementOffset: 150,
			DerivedStyle: models.Style{
				FillColor: "#fff9b1",
				TextColor: "#1a1a1a",
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
