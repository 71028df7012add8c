package nlu

import (
	"context"
	"errors"
	"strings"
	"testing"

	"medcmd/internal/entity"
	"medcmd/internal/medication"
	"medcmd/pkg"
	"medcmd/src/conversation"
	"medcmd/src/model"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChat answers by prompt kind and records the last user prompt.
type fakeChat struct {
	intent, entities, review string
	err                      error
	lastPrompt               string
}

func (f *fakeChat) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	user := input[len(input)-1].Content
	f.lastPrompt = user

	switch {
	case strings.HasPrefix(user, "Classify"):
		return schema.AssistantMessage(f.intent, nil), nil
	case strings.HasPrefix(user, "Extract"):
		return schema.AssistantMessage(f.entities, nil), nil
	default:
		return schema.AssistantMessage(f.review, nil), nil
	}
}

func (f *fakeChat) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newTestBackend(t *testing.T, chat *fakeChat) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), chat, conversation.NewNLUContextStrategy(2))
	require.NoError(t, err)
	return b
}

func TestBackendClassify(t *testing.T) {
	chat := &fakeChat{intent: "```json\n{\"primary_intent\": \"Assign_Medication\", \"confidence\": 0.92, \"alternatives\": [{\"intent\": \"order_test\", \"score\": 0.05}]}\n```"}
	b := newTestBackend(t, chat)

	got, err := b.Classify(context.Background(), "Prescribe Metformin")
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentAssignMedication, got.PrimaryIntent)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	require.Len(t, got.Alternatives, 1)
	assert.Equal(t, pkg.IntentOrderTest, got.Alternatives[0].Intent)

	assert.Contains(t, chat.lastPrompt, "Prescribe Metformin")
	assert.Contains(t, chat.lastPrompt, pkg.IntentScheduleFollowup)
}

func TestBackendClassifyMalformedFallsBackToUnknown(t *testing.T) {
	b := newTestBackend(t, &fakeChat{intent: "I think they want to prescribe something."})

	got, err := b.Classify(context.Background(), "Prescribe Metformin")
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentUnknown, got.PrimaryIntent)
}

func TestBackendClassifyUsesHistory(t *testing.T) {
	chat := &fakeChat{intent: `{"primary_intent": "assign_medication", "confidence": 0.8}`}
	b := newTestBackend(t, chat)

	ctx := conversation.WithHistory(context.Background(), []string{"Prescribe Metformin"})
	_, err := b.Classify(ctx, "500mg")
	require.NoError(t, err)
	assert.Contains(t, chat.lastPrompt, "<conversation_context>\nUserMessage(Prescribe Metformin)")
	assert.Contains(t, chat.lastPrompt, "UserMessage(500mg)")
}

func TestBackendExtract(t *testing.T) {
	chat := &fakeChat{entities: `Here you go:
{
  "patient_information": [{"text": "John Doe", "type": "patient_name", "confidence": 0.95}],
  "medical_info": [{"text": "metformin", "type": "medication"}],
  "temporal_info": [],
  "location_info": []
}`}
	b := newTestBackend(t, chat)

	got, err := b.Extract(context.Background(), "Prescribe metformin for John Doe")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "John Doe", got[0].Text)
	assert.Equal(t, pkg.CategoryPatient, got[0].Category)
	assert.Equal(t, pkg.SourceGenerative, got[0].Source)
	assert.InDelta(t, 0.95, got[0].Confidence, 1e-9)

	assert.Equal(t, "metformin", got[1].Text)
	assert.Equal(t, defaultGenerativeConfidence, got[1].Confidence)
}

func TestBackendExtractUntypedKeepsBucket(t *testing.T) {
	b := newTestBackend(t, &fakeChat{entities: `{"patient_info": [{"text": "Jane Roe"}], "location_info": [{"text": "Ward 3", "type": "ward"}]}`})

	got, err := b.Extract(context.Background(), "Move Jane Roe to Ward 3")
	require.NoError(t, err)

	grouped := entity.Group(got)
	require.Len(t, grouped[pkg.CategoryPatient], 1)
	assert.Equal(t, "Jane Roe", grouped[pkg.CategoryPatient][0].Text)
	require.Len(t, grouped[pkg.CategoryLocation], 1)
	assert.Empty(t, grouped[pkg.CategoryOther])
}

func TestBackendExtractMalformedIsEmpty(t *testing.T) {
	b := newTestBackend(t, &fakeChat{entities: `{"patient_info": [{"type": "patient"}]}`})

	got, err := b.Extract(context.Background(), "Add new patient")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackendReviewMedication(t *testing.T) {
	chat := &fakeChat{review: `{"is_valid": true, "missing": [], "safety_concerns": ["Check renal function"], "follow_up_questions": []}`}
	b := newTestBackend(t, chat)

	notes, err := b.ReviewMedication(context.Background(), medication.Input{Medication: "metformin", Dosage: "500mg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Check renal function"}, notes)
	assert.Contains(t, chat.lastPrompt, "Frequency: None")
}

func TestBackendModelError(t *testing.T) {
	b := newTestBackend(t, &fakeChat{err: errors.New("rate limited")})

	got, err := b.Classify(context.Background(), "Prescribe Metformin")
	assert.Error(t, err)
	assert.Equal(t, pkg.IntentUnknown, got.PrimaryIntent)

	_, err = b.Extract(context.Background(), "Prescribe Metformin")
	assert.Error(t, err)
}

func TestNewChatModelUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), model.NLUConfig{Provider: "groq"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
