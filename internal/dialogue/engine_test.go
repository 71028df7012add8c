package dialogue

import (
	"testing"

	"medcmd/internal/entity"
	"medcmd/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grouped(entities ...pkg.ExtractedEntity) pkg.CategorizedEntities {
	return entity.Group(entities)
}

func e(text, label string) pkg.ExtractedEntity {
	return pkg.ExtractedEntity{Text: text, RawLabel: label, Confidence: 0.9, Source: pkg.SourcePattern}
}

func TestDefaultSchemasAreValid(t *testing.T) {
	require.NoError(t, DefaultSchemas().Validate())
}

func TestEvaluateAddPatientAsksForAge(t *testing.T) {
	engine := NewEngine(DefaultSchemas())

	ev := engine.Evaluate(pkg.IntentAddPatient, grouped(e("John Doe", "patient")), pkg.ContextSnapshot{})

	assert.False(t, ev.Complete)
	assert.Equal(t, "age", ev.MissingSlot)
	assert.Equal(t, "What is the patient's age?", ev.FollowUpQuestion)
	name, ok := ev.Value("name")
	assert.True(t, ok)
	assert.Equal(t, "John Doe", name)
}

func TestEvaluateInterpolatesKnownValues(t *testing.T) {
	engine := NewEngine(DefaultSchemas())

	ev := engine.Evaluate(pkg.IntentAssignMedication, grouped(e("Metformin", "medication")), pkg.ContextSnapshot{})
	assert.Equal(t, "dosage", ev.MissingSlot)
	assert.Equal(t, "What is the dosage for Metformin?", ev.FollowUpQuestion)

	ev = engine.Evaluate(pkg.IntentScheduleFollowup, grouped(), pkg.ContextSnapshot{})
	assert.Equal(t, "date", ev.MissingSlot)

	schemas := Schemas{"x": {{Name: "b", Category: pkg.CategoryOther, Labels: []string{"b"}, Prompt: "About {some_thing}?"}}}
	ev = NewEngine(schemas).Evaluate("x", grouped(), pkg.ContextSnapshot{})
	assert.Equal(t, "About the some thing?", ev.FollowUpQuestion)
}

func TestEvaluateUsesContext(t *testing.T) {
	engine := NewEngine(DefaultSchemas())
	snap := pkg.ContextSnapshot{
		ActiveIntent: pkg.IntentAssignMedication,
		CurrentMedicalInfo: []pkg.ExtractedEntity{
			{Text: "Metformin", Category: pkg.CategoryMedical, RawLabel: "medication", Confidence: 0.9},
		},
		LastMentionedDate: "next Tuesday",
	}

	ev := engine.Evaluate(pkg.IntentAssignMedication, grouped(e("500mg", "dosage")), snap)
	assert.Equal(t, "frequency", ev.MissingSlot)
	assert.Equal(t, "How often should Metformin be taken?", ev.FollowUpQuestion)
	assert.True(t, ev.Filled[0].FromContext)
	assert.False(t, ev.Filled[1].FromContext)

	ev = engine.Evaluate(pkg.IntentScheduleFollowup, grouped(e("2 PM", "time")), snap)
	assert.True(t, ev.Complete)
	assert.Empty(t, ev.FollowUpQuestion)
}

func TestEvaluateMedicalInfoOnlyWhilePending(t *testing.T) {
	engine := NewEngine(DefaultSchemas())
	snap := pkg.ContextSnapshot{
		CurrentMedicalInfo: []pkg.ExtractedEntity{
			{Text: "paracetamol", Category: pkg.CategoryMedical, RawLabel: "medication", Confidence: 0.9},
			{Text: "500mg", Category: pkg.CategoryMedical, RawLabel: "dosage", Confidence: 1.0},
			{Text: "twice a day", Category: pkg.CategoryMedical, RawLabel: "frequency", Confidence: 1.0},
		},
	}

	ev := engine.Evaluate(pkg.IntentAssignMedication, grouped(e("aspirin", "medication")), snap)
	assert.Equal(t, "dosage", ev.MissingSlot)
	assert.False(t, ev.Complete)
	_, ok := ev.Value("frequency")
	assert.False(t, ok)

	snap.ActiveIntent = pkg.IntentAssignMedication
	ev = engine.Evaluate(pkg.IntentAssignMedication, grouped(e("aspirin", "medication")), snap)
	assert.True(t, ev.Complete)
}

func TestEvaluateNewValueRestartsPendingDialogue(t *testing.T) {
	engine := NewEngine(DefaultSchemas())
	snap := pkg.ContextSnapshot{
		ActiveIntent: pkg.IntentAssignMedication,
		FilledSlots: map[string]pkg.ExtractedEntity{
			"medication": {Text: "Metformin", Category: pkg.CategoryMedical, RawLabel: "medication"},
			"dosage":     {Text: "500mg", Category: pkg.CategoryMedical, RawLabel: "dosage"},
		},
	}

	ev := engine.Evaluate(pkg.IntentAssignMedication, grouped(e("aspirin", "medication")), snap)
	assert.Equal(t, "dosage", ev.MissingSlot)

	ev = engine.Evaluate(pkg.IntentAssignMedication, grouped(e("metformin", "medication")), snap)
	assert.Equal(t, "frequency", ev.MissingSlot, "restating the same medication keeps its dosage")
}

func TestEvaluateFilledSlotsOnlyForActiveIntent(t *testing.T) {
	engine := NewEngine(DefaultSchemas())
	snap := pkg.ContextSnapshot{
		ActiveIntent: pkg.IntentAddPatient,
		FilledSlots: map[string]pkg.ExtractedEntity{
			"age": {Text: "45 years old", Category: pkg.CategoryPatient, RawLabel: "age"},
		},
	}

	ev := engine.Evaluate(pkg.IntentAddPatient, grouped(e("John Doe", "patient"), e("male", "gender")), snap)
	assert.True(t, ev.Complete)

	snap.ActiveIntent = pkg.IntentOrderTest
	ev = engine.Evaluate(pkg.IntentAddPatient, grouped(e("John Doe", "patient"), e("male", "gender")), snap)
	assert.Equal(t, "age", ev.MissingSlot)
}

func TestEvaluateUnknownIntentIsComplete(t *testing.T) {
	ev := NewEngine(DefaultSchemas()).Evaluate(pkg.IntentUnknown, grouped(), pkg.ContextSnapshot{})

	assert.True(t, ev.Complete)
	assert.Empty(t, ev.FollowUpQuestion)
	assert.Empty(t, ev.MissingSlot)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := NewEngine(DefaultSchemas())
	ents := grouped(e("fever", "symptom"), e("Jane Roe", "patient"))

	first := engine.Evaluate(pkg.IntentOrderTest, ents, pkg.ContextSnapshot{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Evaluate(pkg.IntentOrderTest, ents, pkg.ContextSnapshot{}))
	}
	assert.Equal(t, "Which test should be ordered for Jane Roe?", first.FollowUpQuestion)
}

func TestSchemasValidateRejectsBadCategory(t *testing.T) {
	bad := Schemas{"x": {{Name: "a", Category: "nowhere", Labels: []string{"a"}, Prompt: "?"}}}
	assert.Error(t, bad.Validate())

	dup := Schemas{"x": {
		{Name: "a", Category: pkg.CategoryOther, Labels: []string{"a"}, Prompt: "?"},
		{Name: "a", Category: pkg.CategoryOther, Labels: []string{"a"}, Prompt: "?"},
	}}
	assert.Error(t, dup.Validate())
}

func TestSchemasWith(t *testing.T) {
	override := Schemas{pkg.IntentQueryInfo: {}}
	merged := DefaultSchemas().With(override)

	assert.Empty(t, merged[pkg.IntentQueryInfo])
	assert.Len(t, merged[pkg.IntentAssignMedication], 3)
}
