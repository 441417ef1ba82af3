package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"sprintdesk/internal/countdown"
)

// Config models sprintdesk.yml.
type Config struct {
	Studio struct {
		Name string `yaml:"name" json:"name"`
	} `yaml:"studio" json:"studio"`
	Countdown struct {
		Urgent   string `yaml:"urgent" json:"urgent"`
		Soon     string `yaml:"soon" json:"soon"`
		Upcoming string `yaml:"upcoming" json:"upcoming"`
	} `yaml:"countdown" json:"countdown"`
	DailyDeadline string `yaml:"daily_deadline" json:"daily_deadline"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"countdown.urgent":   c.Countdown.Urgent,
		"countdown.soon":     c.Countdown.Soon,
		"countdown.upcoming": c.Countdown.Upcoming,
	} {
		if v == "" {
			return fmt.Errorf("config.%s is required", name)
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config.%s: %w", name, err)
		}
	}
	if c.DailyDeadline != "" {
		if _, err := time.Parse("15:04", c.DailyDeadline); err != nil {
			return fmt.Errorf("config.daily_deadline must be HH:MM: %w", err)
		}
	}
	return nil
}

// Thresholds converts the configured urgency bands. Validate must have
// passed first.
func (c *Config) Thresholds() countdown.Thresholds {
	t := countdown.DefaultThresholds()
	if d, err := time.ParseDuration(c.Countdown.Urgent); err == nil {
		t.Urgent = d
	}
	if d, err := time.ParseDuration(c.Countdown.Soon); err == nil {
		t.Soon = d
	}
	if d, err := time.ParseDuration(c.Countdown.Upcoming); err == nil {
		t.Upcoming = d
	}
	return t
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sprintdesk.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sd config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `studio:
  name: sprintdesk

countdown:
  urgent: 4h
  soon: 24h
  upcoming: 72h

daily_deadline: "17:00"
`
