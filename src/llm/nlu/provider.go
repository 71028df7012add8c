package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"medcmd/src/model"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/ollama/ollama/api"
)

// ErrUnknownProvider is returned for an unsupported NLU_PROVIDER value.
var ErrUnknownProvider = errors.New("unknown NLU provider")

// NewChatModel builds the chat model for cfg.Provider.
func NewChatModel(ctx context.Context, cfg model.NLUConfig) (einomodel.BaseChatModel, error) {
	maxTokens := cfg.MaxTokens
	temperature := float32(cfg.Temperature)

	switch cfg.Provider {
	case "openai", "openrouter":
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.RequestTimeout,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating openai chat model: %w", err)
		}
		return m, nil

	case "ollama":
		m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.RequestTimeout,
			Format:  json.RawMessage(`"json"`),
			Options: &api.Options{
				Temperature: temperature,
				NumPredict:  maxTokens,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ollama chat model: %w", err)
		}
		return m, nil

	case "deepseek":
		m, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.RequestTimeout,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating deepseek chat model: %w", err)
		}
		return m, nil

	case "ark":
		timeout := cfg.RequestTimeout
		m, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     &timeout,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ark chat model: %w", err)
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}
