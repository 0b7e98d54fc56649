package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/adrg/xdg"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/provider"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var (
	httpURL = regexp.MustCompile(`^https?://`)
	idRule  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Notes   NotesConfig       `yaml:"notes"`
	Local   LocalConfig       `yaml:"local"`
	Goa     []GoaConfig       `yaml:"goa"`
	Memo    []MemoConfig      `yaml:"memo"`
	Index   IndexConfig       `yaml:"index"`
	Manager ManagerConfig     `yaml:"manager"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Notes.Validate(); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	if err := c.Local.Validate(); err != nil {
		return fmt.Errorf("local: %w", err)
	}
	seen := map[string]bool{}
	for i := range c.Goa {
		if err := c.Goa[i].Validate(); err != nil {
			return fmt.Errorf("goa[%d]: %w", i, err)
		}
		if seen["goa:"+c.Goa[i].ID] {
			return fmt.Errorf("goa[%d]: duplicate id %q", i, c.Goa[i].ID)
		}
		seen["goa:"+c.Goa[i].ID] = true
	}
	for i := range c.Memo {
		if err := c.Memo[i].Validate(); err != nil {
			return fmt.Errorf("memo[%d]: %w", i, err)
		}
		if seen["memo:"+c.Memo[i].ID] {
			return fmt.Errorf("memo[%d]: duplicate id %q", i, c.Memo[i].ID)
		}
		seen["memo:"+c.Memo[i].ID] = true
	}
	if err := c.Manager.Validate(); err != nil {
		return fmt.Errorf("manager: %w", err)
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

// NotesConfig holds settings that apply across providers.
type NotesConfig struct {
	// DefaultProvider receives new notes; empty means "local".
	DefaultProvider string `yaml:"default_provider"`
	// DefaultColor is applied to new notes that support color.
	DefaultColor string `yaml:"default_color"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultColor, validation.By(func(v any) error {
			if s, _ := v.(string); s != "" {
				_, err := models.ParseRGBA(s)
				return err
			}
			return nil
		})),
	)
}

// Color returns the parsed default color.
func (c *NotesConfig) Color() (models.RGBA, bool) {
	if c.DefaultColor == "" {
		return models.RGBA{}, false
	}
	col, err := models.ParseRGBA(c.DefaultColor)
	return col, err == nil
}

// LocalConfig configures the local directory provider.
type LocalConfig struct {
	// Path is the notes directory; empty means $XDG_DATA_HOME/quire.
	Path    string          `yaml:"path"`
	Pattern string          `yaml:"pattern"`
	Format  provider.Format `yaml:"format"`
	// Watch keeps the search index in step with edits made by other programs.
	Watch bool `yaml:"watch"`
}

// Validate validates the local configuration.
func (c *LocalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Format, validation.In(provider.FormatXML, provider.FormatPlain)),
	)
}

// Root resolves the notes directory.
func (c *LocalConfig) Root() string {
	if c.Path == "" {
		return provider.DefaultLocalRoot()
	}
	return c.Path
}

// GoaConfig configures one WebDAV-backed online account.
type GoaConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Root is the folder below the endpoint; default "Notes".
	Root    string `yaml:"root"`
	Pattern string `yaml:"pattern"`
}

// Validate validates the account configuration.
func (c *GoaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required, validation.Match(idRule)),
		validation.Field(&c.Endpoint, validation.Required, validation.Match(httpURL)),
	)
}

// MemoConfig configures one CalDAV memo account.
type MemoConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Calendar pins the calendar path; empty picks the first one that
	// holds journals.
	Calendar string `yaml:"calendar"`
}

// Validate validates the account configuration.
func (c *MemoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required, validation.Match(idRule)),
		validation.Field(&c.Endpoint, validation.Required, validation.Match(httpURL)),
	)
}

// IndexConfig holds the SQLite search index configuration.
type IndexConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the database file; empty means $XDG_CACHE_HOME/quire/index.db.
	Path string `yaml:"path"`
}

// DSN resolves the database path.
func (c *IndexConfig) DSN() string {
	if c.Path == "" {
		return filepath.Join(xdg.CacheHome, "quire", "index.db")
	}
	return c.Path
}

// ManagerConfig tunes the note manager.
type ManagerConfig struct {
	Workers int `yaml:"workers"`
}

// Validate validates the manager configuration.
func (c *ManagerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(1), validation.Max(64)),
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
	// Normalise empty mode to "disabled".
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return errors.New("auth: mode is \"token\" but token is empty")
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
		Notes: NotesConfig{
			DefaultProvider: provider.LocalUID,
		},
		Local: LocalConfig{
			Pattern: "*.note",
			Format:  provider.FormatXML,
			Watch:   true,
		},
		Index: IndexConfig{
			Enabled: true,
		},
		Manager: ManagerConfig{
			Workers: 4,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
