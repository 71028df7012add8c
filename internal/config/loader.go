package config

import (
	"fmt"
	"os"

	"medcmd/internal/dialogue"
	"medcmd/internal/entity"
	"medcmd/internal/intent"

	"gopkg.in/yaml.v3"
)

// DomainConfig holds the medical tables that are tuned per deployment.
// Every section is optional and falls back to the built-in defaults.
type DomainConfig struct {
	// MedicationsFile points at a formulary YAML. Empty uses the built-in one.
	MedicationsFile string `yaml:"medications_file"`
	// Schemas replace whole intent schemas by intent name.
	Schemas dialogue.Schemas `yaml:"schemas"`
	// Keywords replace the keyword fallback table when non-empty.
	Keywords []intent.KeywordRule `yaml:"keywords"`
	// Lexicons add terms to the rule-based entity source.
	Lexicons []entity.Lexicon `yaml:"lexicons"`
}

// LoadDomainConfig reads the domain YAML at path. An empty path yields the defaults.
func LoadDomainConfig(path string) (*DomainConfig, error) {
	cfg := &DomainConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	if err := cfg.DialogueSchemas().Validate(); err != nil {
		return nil, fmt.Errorf("invalid dialogue schema in %s: %w", path, err)
	}
	for _, rule := range cfg.Keywords {
		if rule.Intent == "" || len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("keyword rule in %s needs an intent and keywords", path)
		}
	}
	return cfg, nil
}

// DialogueSchemas merges the configured schemas over the defaults.
func (c *DomainConfig) DialogueSchemas() dialogue.Schemas {
	return dialogue.DefaultSchemas().With(c.Schemas)
}

// KeywordRules returns the configured keyword table or the default one.
func (c *DomainConfig) KeywordRules() []intent.KeywordRule {
	if len(c.Keywords) == 0 {
		return intent.DefaultKeywordRules
	}
	return c.Keywords
}
