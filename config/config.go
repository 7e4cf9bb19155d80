// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/ByLCY/ogimage/fonts"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("config: file not found")
	ErrConfigParse    = errors.New("config: failed to parse")
	ErrInvalidConfig  = errors.New("config: invalid value")
)

// MaxFileSize limits the config file size.
const MaxFileSize = 1 << 20

// Config holds the settings of the HTTP service and the CLI.
type Config struct {
	Listen         string        `yaml:"listen"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxMarkupBytes int64         `yaml:"max_markup_bytes"` // request body and query markup limit
	Compress       bool          `yaml:"compress"`         // brotli for clients that accept it
	MinifySVG      bool          `yaml:"minify_svg"`
	LogLevel       string        `yaml:"log_level"` // debug, info, warn, error
	FallbackFont   FallbackFont  `yaml:"fallback_font"`
}

// FallbackFont configures the font fetched when a request supplies none.
type FallbackFont struct {
	Family         string `yaml:"family"`
	FetchWeight    int    `yaml:"fetch_weight"`
	DeclaredWeight int    `yaml:"declared_weight"`
	CSSURL         string `yaml:"css_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxMarkupBytes: 256 << 10,
		Compress:       true,
		MinifySVG:      true,
		LogLevel:       "info",
		FallbackFont: FallbackFont{
			Family:         fonts.DefaultFallback.Family,
			FetchWeight:    fonts.DefaultFallback.FetchWeight,
			DeclaredWeight: fonts.DefaultFallback.DeclaredWeight,
			CSSURL:         fonts.DefaultCSSURL,
		},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigParse, len(data), MaxFileSize)
	}
	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "":
		return fmt.Errorf("%w: listen is empty", ErrInvalidConfig)
	case c.ReadTimeout < 0 || c.WriteTimeout < 0:
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	case c.MaxMarkupBytes <= 0:
		return fmt.Errorf("%w: max_markup_bytes must be positive", ErrInvalidConfig)
	case c.FallbackFont.Family == "":
		return fmt.Errorf("%w: fallback_font.family is empty", ErrInvalidConfig)
	case !validWeight(c.FallbackFont.FetchWeight) || !validWeight(c.FallbackFont.DeclaredWeight):
		return fmt.Errorf("%w: fallback_font weights must be between 100 and 900", ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func validWeight(w int) bool { return w >= 100 && w <= 900 }

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

// Fallback returns the font resolver fallback.
func (c *Config) Fallback() fonts.Fallback {
	return fonts.Fallback{
		Family:         c.FallbackFont.Family,
		FetchWeight:    c.FallbackFont.FetchWeight,
		DeclaredWeight: c.FallbackFont.DeclaredWeight,
		Style:          fonts.DefaultFallback.Style,
	}
}

// Resolver returns a font resolver fetching the configured fallback.
func (c *Config) Resolver() *fonts.Resolver {
	return &fonts.Resolver{
		Loader:   &fonts.GoogleLoader{CSSURL: c.FallbackFont.CSSURL},
		Fallback: c.Fallback(),
	}
}
