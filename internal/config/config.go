// Package config handles optsync daemon configuration from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Storefront StorefrontConfig `yaml:"storefront"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Journal    JournalConfig    `yaml:"journal"`
	Admin      AdminConfig      `yaml:"admin"`
	Engine     EngineConfig     `yaml:"engine"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Mode             string        `yaml:"mode"` // headless | headful
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	XvfbScreen       string        `yaml:"xvfb_screen"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// StorefrontConfig names the page the engine runs on.
type StorefrontConfig struct {
	URL string `yaml:"url"`
}

// CatalogConfig selects the product catalog. With neither File nor DB set the
// built-in catalog is used.
type CatalogConfig struct {
	File           string        `yaml:"file"`
	DB             string        `yaml:"db"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
}

// JournalConfig lists the event sinks.
type JournalConfig struct {
	Buffer int          `yaml:"buffer"`
	Sinks  []SinkConfig `yaml:"sinks"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string        `yaml:"type"` // stdout | webhook | sqlite
	URL     string        `yaml:"url"`
	Path    string        `yaml:"path"`
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
}

// AdminConfig controls the admin HTTP server. An empty Listen disables it.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// EngineConfig holds the engine timings.
type EngineConfig struct {
	WaitInterval time.Duration `yaml:"wait_interval"`
	WaitAttempts int           `yaml:"wait_attempts"`
	RebindDelay  time.Duration `yaml:"rebind_delay"`
	RemoveDelay  time.Duration `yaml:"remove_delay"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"images", "fonts", "media"}
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.XvfbScreen == "" {
		c.Browser.XvfbScreen = "1920x1080x24"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Catalog.ReloadInterval <= 0 {
		c.Catalog.ReloadInterval = 5 * time.Second
	}
	if c.Catalog.ReloadDebounce <= 0 {
		c.Catalog.ReloadDebounce = time.Second
	}
	if c.Journal.Buffer <= 0 {
		c.Journal.Buffer = 256
	}
	if len(c.Journal.Sinks) == 0 {
		c.Journal.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	for i := range c.Journal.Sinks {
		s := &c.Journal.Sinks[i]
		if s.Type == "webhook" {
			if s.Retries <= 0 {
				s.Retries = 3
			}
			if s.Backoff <= 0 {
				s.Backoff = time.Second
			}
		}
	}
	if c.Engine.WaitInterval <= 0 {
		c.Engine.WaitInterval = 100 * time.Millisecond
	}
	if c.Engine.WaitAttempts <= 0 {
		c.Engine.WaitAttempts = 50
	}
	if c.Engine.RebindDelay <= 0 {
		c.Engine.RebindDelay = 100 * time.Millisecond
	}
	if c.Engine.RemoveDelay <= 0 {
		c.Engine.RemoveDelay = 100 * time.Millisecond
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		errs = append(errs, fmt.Sprintf("browser.mode %q: want headless or headful", c.Browser.Mode))
	}
	if c.Catalog.File != "" && c.Catalog.DB != "" {
		errs = append(errs, "catalog: file and db are mutually exclusive")
	}
	for i, s := range c.Journal.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Sprintf("journal.sinks[%d]: webhook without url", i))
			}
		case "sqlite":
			if s.Path == "" {
				errs = append(errs, fmt.Sprintf("journal.sinks[%d]: sqlite without path", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("journal.sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
