package src

import (
	"fmt"

	"medcmd/src/model"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogConfig          model.LogConfig          `envconfig:""`
	NLUConfig          model.NLUConfig          `envconfig:""`
	ConversationConfig model.ConversationConfig `envconfig:""`
	SourcesConfig      model.SourcesConfig      `envconfig:""`
	ServerConfig       model.ServerConfig       `envconfig:""`
}

func LoadConfig() (*Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.ConversationConfig.Backend {
	case "memory":
	case "redis":
		if c.ConversationConfig.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CONTEXT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported CONTEXT_BACKEND %q", c.ConversationConfig.Backend)
	}

	if c.ConversationConfig.TTL <= 0 {
		return fmt.Errorf("CONTEXT_TTL must be positive, got %s", c.ConversationConfig.TTL)
	}

	if c.NLUConfig.Enabled() && c.NLUConfig.Provider != "ollama" && c.NLUConfig.APIKey == "" {
		return fmt.Errorf("NLU_API_KEY is required for provider %q", c.NLUConfig.Provider)
	}

	return nil
}
