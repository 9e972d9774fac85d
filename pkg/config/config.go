package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/node-composer/pkg/genai"
	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/logging"
	"github.com/ritzau/node-composer/pkg/render"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "composer.toml"

// EnvPrefix prefixes environment overrides, e.g. COMPOSER_GEMINI_APIKEY.
const EnvPrefix = "COMPOSER_"

// Generation backends.
const (
	BackendGemini      = "gemini"
	BackendPlaceholder = "placeholder"
)

// apiKeyEnv are the conventional key variables consulted when gemini.apikey is unset.
var apiKeyEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

var ErrInvalid = errors.New("config: invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	Port        int                `koanf:"port"`
	OpenBrowser bool               `koanf:"open"`
	Verbosity   string             `koanf:"verbosity"`
	VerboseCnt  int                `koanf:"verbose"`
	Log         LogConfig          `koanf:"log"`
	Backend     string             `koanf:"backend"`
	Gemini      genai.GeminiConfig `koanf:"gemini"`
	Zoom        geom.Limits        `koanf:"zoom"`
	Layout      render.Layout      `koanf:"layout"`
	Inbox       InboxConfig        `koanf:"inbox"`
}

// LogConfig selects the log output format.
type LogConfig struct {
	Format string `koanf:"format"` // "text" or "json"
}

// InboxConfig enables the watched inbox directory.
type InboxConfig struct {
	Dir string `koanf:"dir"` // Empty disables the inbox
}

// RegisterFlags adds the command-line flags Load understands.
func RegisterFlags(f *pflag.FlagSet) {
	f.String("config", DefaultFile, "Path to the TOML config file")
	f.Int("port", 8080, "Port for the web server")
	f.Bool("open", true, "Open the editor in a browser")
	f.String("verbosity", "", "Log level: trace, debug, info, warn or error")
	f.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	f.String("log-format", "text", "Log format: text or json")
	f.String("backend", BackendGemini, "Generation backend: gemini or placeholder")
	f.String("inbox", "", "Directory whose new images become upload nodes")
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"log-format": "log.format",
	"inbox":      "inbox.dir",
	"config":     "",
}

func defaults() map[string]interface{} {
	gemini := genai.DefaultGeminiConfig
	return map[string]interface{}{
		"port":      8080,
		"open":      true,
		"verbosity": "",
		"verbose":   0,
		"log":       map[string]interface{}{"format": "text"},
		"backend":   BackendGemini,
		"gemini": map[string]interface{}{
			"endpoint":   gemini.Endpoint,
			"apiversion": gemini.APIVersion,
			"imagemodel": gemini.ImageModel,
			"textmodel":  gemini.TextModel,
			"apikey":     "",
			"timeout":    gemini.Timeout.String(),
		},
		"zoom": map[string]interface{}{
			"min":    geom.DefaultLimits.Min,
			"max":    geom.DefaultLimits.Max,
			"factor": geom.DefaultLimits.Factor,
		},
		"layout": map[string]interface{}{
			"nodewidth":    render.DefaultLayout.NodeWidth,
			"nodeheight":   render.DefaultLayout.NodeHeight,
			"headerheight": render.DefaultLayout.HeaderHeight,
			"curveoffset":  render.DefaultLayout.CurveOffset,
		},
		"inbox": map[string]interface{}{"dir": ""},
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional). Only an explicitly named file must exist.
	path, explicit := DefaultFile, false
	if f != nil {
		if fl := f.Lookup("config"); fl != nil {
			path, explicit = fl.Value.String(), fl.Changed
		}
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// 3. Environment Variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
			key, renamed := flagKeys[fl.Name]
			if !renamed {
				key = fl.Name
			}
			return key, posflag.FlagVal(f, fl)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Gemini.APIKey == "" {
		for _, name := range apiKeyEnv {
			if v := os.Getenv(name); v != "" {
				cfg.Gemini.APIKey = v
				break
			}
		}
	}

	return &cfg, nil
}

// Validate rejects configurations the editor cannot start with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if err := c.Zoom.Validate(); err != nil {
		return fmt.Errorf("%w: zoom: %w", ErrInvalid, err)
	}
	if c.Layout.NodeWidth <= 0 || c.Layout.NodeHeight <= 0 || c.Layout.HeaderHeight > c.Layout.NodeHeight {
		return fmt.Errorf("%w: layout %+v", ErrInvalid, c.Layout)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	switch c.Backend {
	case BackendPlaceholder:
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("%w: the gemini backend needs gemini.apikey (or GEMINI_API_KEY)", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Level resolves the log level from verbosity, falling back to the -v count.
func (c *Config) Level() (slog.Level, error) {
	return logging.ParseLevel(c.Verbosity, c.VerboseCnt)
}

// Helper to use map as a provider.
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
