package flow

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/sindicoapp/sindico/internal/models"
)

// Config overrides the built-in flow definitions and intent patterns.
// Both sections are optional; an absent section keeps the defaults.
type Config struct {
	Flows   []models.FlowDefinition `yaml:"flows"`
	Intents []IntentConfig          `yaml:"intents"`
}

// IntentConfig is one trigger pattern in the YAML override file.
type IntentConfig struct {
	Type    models.DocumentType `yaml:"type"`
	Pattern string              `yaml:"pattern"`
}

// LoadConfig reads and parses a YAML override file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: failed to read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadConfig: failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Apply installs the overrides into a registry and compiles the intent
// patterns. It returns the detector to use (the default one when the
// config carries no intents section).
func (c *Config) Apply(registry *Registry) (*IntentDetector, error) {
	for _, def := range c.Flows {
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}
	if len(c.Intents) == 0 {
		return NewIntentDetector(), nil
	}
	patterns := make([]IntentPattern, 0, len(c.Intents))
	for _, ic := range c.Intents {
		if !models.IsValidDocumentType(ic.Type) {
			return nil, fmt.Errorf("Config.Apply: intent pattern %q: %w", ic.Pattern, models.ErrInvalidDocumentType)
		}
		re, err := regexp.Compile(ic.Pattern)
		if err != nil {
			return nil, fmt.Errorf("Config.Apply: invalid intent pattern %q: %w", ic.Pattern, err)
		}
		patterns = append(patterns, IntentPattern{Type: ic.Type, Pattern: re})
	}
	return NewIntentDetectorWithPatterns(patterns), nil
}
