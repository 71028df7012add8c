package model

import "time"

// ----------------------------------------------------
// ================ Config ================

// NLUConfig selects and tunes the generative backend.
// Provider is one of: openai, openrouter, ollama, deepseek, ark. Empty disables the backend.
type NLUConfig struct {
	Provider       string        `envconfig:"NLU_PROVIDER" default:""`
	Model          string        `envconfig:"NLU_MODEL" default:"openai/gpt-4o-mini"`
	APIKey         string        `envconfig:"NLU_API_KEY"`
	BaseURL        string        `envconfig:"NLU_BASE_URL" default:"https://openrouter.ai/api/v1"`
	MaxTokens      int           `envconfig:"NLU_MAX_TOKENS" default:"800"`
	Temperature    float64       `envconfig:"NLU_TEMPERATURE" default:"0.1"`
	RequestTimeout time.Duration `envconfig:"NLU_REQUEST_TIMEOUT" default:"20s"`
	ContextTurns   int           `envconfig:"NLU_CONTEXT_TURNS" default:"5"`
	// ReviewMedication asks the backend for advisory notes once a prescription is complete.
	ReviewMedication bool `envconfig:"NLU_REVIEW_MEDICATION" default:"false"`
}

// Enabled reports whether a generative provider is configured.
func (c NLUConfig) Enabled() bool {
	return c.Provider != ""
}

// SourcesConfig controls the entity sources and intent classifiers feeding each turn.
type SourcesConfig struct {
	Timeout time.Duration `envconfig:"SOURCE_TIMEOUT" default:"5s"`
	// Rules enables the built-in lexicon and regex entity source.
	Rules bool `envconfig:"SOURCE_RULES" default:"true"`
	// KeywordFallback classifies by keywords when every other classifier fails.
	KeywordFallback bool `envconfig:"SOURCE_KEYWORD_FALLBACK" default:"true"`
	// SpanModelURL points at an HTTP span-extraction model server.
	SpanModelURL string `envconfig:"SPAN_MODEL_URL"`
	// SpanThreshold is the minimum score requested from the span model.
	SpanThreshold float64 `envconfig:"SPAN_MODEL_THRESHOLD" default:"0.3"`
	// ZeroShotURL points at an HTTP zero-shot label scoring server.
	ZeroShotURL string `envconfig:"ZERO_SHOT_URL"`
	// MinIntentConfidence maps weaker primary intents to unknown.
	MinIntentConfidence float64 `envconfig:"MIN_INTENT_CONFIDENCE" default:"0"`
}
