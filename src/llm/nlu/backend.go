package nlu

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"medcmd/internal/entity"
	"medcmd/internal/medication"
	"medcmd/pkg"
	"medcmd/src/conversation"
	"medcmd/src/logger"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// defaultGenerativeConfidence is used when the model omits a confidence.
const defaultGenerativeConfidence = 0.5

// Backend runs intent, entity and review prompts through one chat model.
// It serves as an entity source, an intent classifier and a medication reviewer.
type Backend struct {
	intentChain compose.Runnable[map[string]any, *schema.Message]
	entityChain compose.Runnable[map[string]any, *schema.Message]
	reviewChain compose.Runnable[map[string]any, *schema.Message]
	strategy    conversation.ContextStrategy
}

type intentPayload struct {
	PrimaryIntent string  `json:"primary_intent"`
	Confidence    float64 `json:"confidence"`
	Alternatives  []struct {
		Intent string  `json:"intent"`
		Score  float64 `json:"score"`
	} `json:"alternatives"`
}

type entityPayload map[string][]struct {
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
}

type reviewPayload struct {
	IsValid           bool     `json:"is_valid"`
	Missing           []string `json:"missing"`
	SafetyConcerns    []string `json:"safety_concerns"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// bucketAliases folds the long category names some models prefer.
var bucketAliases = map[string]pkg.Category{
	"patient_information":  pkg.CategoryPatient,
	"medical_information":  pkg.CategoryMedical,
	"temporal_information": pkg.CategoryTemporal,
	"location_information": pkg.CategoryLocation,
}

// NewBackend compiles the prompt chains over chat. A nil strategy keeps five turns.
func NewBackend(ctx context.Context, chat einomodel.BaseChatModel, strategy conversation.ContextStrategy) (*Backend, error) {
	if strategy == nil {
		strategy = conversation.NewNLUContextStrategy(0)
	}

	b := &Backend{strategy: strategy}
	var err error
	if b.intentChain, err = compile(ctx, intentTemplate, chat); err != nil {
		return nil, fmt.Errorf("error creating intent chain: %w", err)
	}
	if b.entityChain, err = compile(ctx, entityTemplate, chat); err != nil {
		return nil, fmt.Errorf("error creating entity chain: %w", err)
	}
	if b.reviewChain, err = compile(ctx, reviewTemplate, chat); err != nil {
		return nil, fmt.Errorf("error creating review chain: %w", err)
	}
	return b, nil
}

func compile(ctx context.Context, user string, chat einomodel.BaseChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	return compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(newTemplate(user)).
		AppendChatModel(chat).
		Compile(ctx)
}

func (b *Backend) Name() string { return "generative" }

// Classify returns unknown with zero confidence when the response cannot be parsed.
func (b *Backend) Classify(ctx context.Context, text string) (pkg.IntentResult, error) {
	content, err := b.invoke(ctx, b.intentChain, map[string]any{
		"intents":    strings.Join(append(append([]string{}, pkg.SupportedIntents...), pkg.IntentUnknown), ", "),
		"input_text": b.strategy.BuildContext(conversation.HistoryFrom(ctx), text),
	})
	if err != nil {
		return pkg.UnknownIntent(), err
	}

	payload := parseWithSchema(content, intentSchema, intentPayload{PrimaryIntent: pkg.IntentUnknown})
	result := pkg.IntentResult{
		PrimaryIntent: strings.ToLower(strings.TrimSpace(payload.PrimaryIntent)),
		Confidence:    payload.Confidence,
	}
	for _, alt := range payload.Alternatives {
		result.Alternatives = append(result.Alternatives, pkg.IntentScore{Intent: alt.Intent, Score: alt.Score})
	}
	return result, nil
}

// Extract returns the entities named in the response, flattened in bucket order.
func (b *Backend) Extract(ctx context.Context, text string) ([]pkg.ExtractedEntity, error) {
	content, err := b.invoke(ctx, b.entityChain, map[string]any{
		"labels":     strings.Join(entity.Labels, ", "),
		"input_text": b.strategy.BuildContext(conversation.HistoryFrom(ctx), text),
	})
	if err != nil {
		return nil, err
	}

	payload := parseWithSchema(content, entitySchema, entityPayload{})
	buckets := make(map[pkg.Category][]pkg.ExtractedEntity, len(payload))
	var extras []pkg.ExtractedEntity
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cat, known := bucketOf(key)
		for _, item := range payload[key] {
			e := pkg.ExtractedEntity{
				Text:       item.Text,
				RawLabel:   item.Type,
				Category:   cat,
				Confidence: defaultGenerativeConfidence,
				Source:     pkg.SourceGenerative,
			}
			if item.Confidence != nil {
				e.Confidence = *item.Confidence
			}
			if e.RawLabel == "" {
				e.RawLabel = string(cat)
			}
			if known {
				buckets[cat] = append(buckets[cat], e)
			} else {
				extras = append(extras, e)
			}
		}
	}

	var out []pkg.ExtractedEntity
	for _, cat := range pkg.Categories {
		out = append(out, buckets[cat]...)
	}
	return append(out, extras...), nil
}

// ReviewMedication asks for safety notes on a complete prescription.
func (b *Backend) ReviewMedication(ctx context.Context, in medication.Input) ([]string, error) {
	content, err := b.invoke(ctx, b.reviewChain, map[string]any{
		"medication": orNone(in.Medication),
		"dosage":     orNone(in.Dosage),
		"frequency":  orNone(in.Frequency),
	})
	if err != nil {
		return nil, err
	}

	payload := parseWithSchema(content, reviewSchema, reviewPayload{IsValid: true})
	var notes []string
	for _, m := range payload.Missing {
		notes = append(notes, "Missing: "+m)
	}
	notes = append(notes, payload.SafetyConcerns...)
	notes = append(notes, payload.FollowUpQuestions...)
	return notes, nil
}

func (b *Backend) invoke(ctx context.Context, chain compose.Runnable[map[string]any, *schema.Message], vars map[string]any) (string, error) {
	out, err := chain.Invoke(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("generative call failed: %w", err)
	}
	logger.Debug().Int("response_length", len(out.Content)).Msg("Generative response received")
	return out.Content, nil
}

func bucketOf(key string) (pkg.Category, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if cat, ok := bucketAliases[key]; ok {
		return cat, true
	}
	for _, cat := range pkg.Categories {
		if key == string(cat) {
			return cat, true
		}
	}
	return pkg.CategoryOther, false
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
