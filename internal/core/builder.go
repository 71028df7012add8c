package core

import (
	"context"
	"fmt"

	"medcmd/internal/config"
	"medcmd/internal/dialogue"
	"medcmd/internal/entity"
	"medcmd/internal/intent"
	"medcmd/internal/medication"
	"medcmd/internal/storage"
	"medcmd/src"
	"medcmd/src/conversation"
	"medcmd/src/llm/nlu"
	"medcmd/src/logger"
)

// medicationLexiconConfidence is the score of formulary names found by the rule source.
const medicationLexiconConfidence = 0.9

// Closer releases what Build opened.
type Closer func() error

// Build wires a Processor from environment and domain configuration.
//
// Classifiers are asked in order: zero-shot model, generative backend, keywords.
// Entity sources run together: rules, span model, generative backend.
func Build(ctx context.Context, cfg *src.Config, domain *config.DomainConfig) (*Processor, Closer, error) {
	if domain == nil {
		domain = &config.DomainConfig{}
	}

	kb, err := medication.LoadKnowledgeBase(domain.MedicationsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load medication knowledge base: %w", err)
	}

	schemas := domain.DialogueSchemas()
	if err := schemas.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid dialogue schemas: %w", err)
	}

	var (
		sources     []entity.Source
		classifiers []intent.Classifier
		reviewer    medication.Reviewer
	)

	if cfg.SourcesConfig.Rules {
		lexicons := append([]entity.Lexicon{}, domain.Lexicons...)
		lexicons = append(lexicons, entity.Lexicon{Label: "medication", Terms: kb.Names(), Confidence: medicationLexiconConfidence})
		rules, err := entity.NewRuleSource(lexicons...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build rule source: %w", err)
		}
		sources = append(sources, rules)
	}

	if url := cfg.SourcesConfig.SpanModelURL; url != "" {
		sources = append(sources, entity.NewRemoteSource(url, entity.Labels, cfg.SourcesConfig.SpanThreshold))
		logger.Info().Str("url", url).Msg("Span model source enabled")
	}

	if url := cfg.SourcesConfig.ZeroShotURL; url != "" {
		classifiers = append(classifiers, intent.NewRemoteClassifier(url, nil))
		logger.Info().Str("url", url).Msg("Zero-shot classifier enabled")
	}

	if cfg.NLUConfig.Enabled() {
		chat, err := nlu.NewChatModel(ctx, cfg.NLUConfig)
		if err != nil {
			return nil, nil, err
		}
		backend, err := nlu.NewBackend(ctx, chat, conversation.NewNLUContextStrategy(cfg.NLUConfig.ContextTurns))
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, backend)
		classifiers = append(classifiers, backend)
		if cfg.NLUConfig.ReviewMedication {
			reviewer = backend
		}
		logger.Info().Str("provider", cfg.NLUConfig.Provider).Str("model", cfg.NLUConfig.Model).Msg("Generative backend enabled")
	}

	if cfg.SourcesConfig.KeywordFallback {
		classifiers = append(classifiers, intent.NewKeywordClassifier(domain.KeywordRules()...))
	}

	store, closer, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var commands storage.CommandLog
	if dir := cfg.ServerConfig.CommandLogDir; dir != "" {
		commands = storage.NewJSONCommandLog(dir)
	}

	p := NewProcessor(Dependencies{
		Resolver:      intent.NewResolver(cfg.SourcesConfig.Timeout, cfg.SourcesConfig.MinIntentConfidence, classifiers...),
		Sources:       sources,
		Engine:        dialogue.NewEngine(schemas),
		Workflow:      medication.NewWorkflow(kb),
		Reviewer:      reviewer,
		Contexts:      conversation.NewManager(store, conversation.WithTTL(cfg.ConversationConfig.TTL)),
		Commands:      commands,
		SourceTimeout: cfg.SourcesConfig.Timeout,
		HistoryLen:    cfg.ConversationConfig.HistoryLen,

		CommandRetention: cfg.ServerConfig.CommandLogRetention,
	})

	logger.Info().
		Int("sources", len(sources)).
		Int("classifiers", len(classifiers)).
		Int("medications", len(kb.Names())).
		Str("context_backend", cfg.ConversationConfig.Backend).
		Msg("Processor ready")
	return p, closer, nil
}

func newStore(ctx context.Context, cfg *src.Config) (conversation.Store, Closer, error) {
	opts := []conversation.Option{conversation.WithTTL(cfg.ConversationConfig.TTL)}

	if cfg.ConversationConfig.Backend == "redis" {
		store, err := conversation.NewRedisStore(ctx, cfg.ConversationConfig.RedisURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return conversation.NewMemoryStore(opts...), func() error { return nil }, nil
}
