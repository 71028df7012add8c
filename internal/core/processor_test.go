package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"medcmd/internal/dialogue"
	"medcmd/internal/entity"
	"medcmd/internal/intent"
	"medcmd/internal/medication"
	"medcmd/internal/storage"
	"medcmd/pkg"
	"medcmd/src"
	"medcmd/src/conversation"
	"medcmd/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReviewer struct {
	notes []string
	err   error
	calls int
}

func (s *stubReviewer) ReviewMedication(context.Context, medication.Input) ([]string, error) {
	s.calls++
	return s.notes, s.err
}

func newTestProcessor(t *testing.T, extra ...entity.Source) (*Processor, *storage.JSONCommandLog) {
	t.Helper()

	kb, err := medication.LoadKnowledgeBase("")
	require.NoError(t, err)
	rules, err := entity.NewRuleSource()
	require.NoError(t, err)

	commands := storage.NewJSONCommandLog(t.TempDir())
	p := NewProcessor(Dependencies{
		Resolver:      intent.NewResolver(time.Second, 0, intent.NewKeywordClassifier()),
		Sources:       append([]entity.Source{rules}, extra...),
		Engine:        dialogue.NewEngine(dialogue.DefaultSchemas()),
		Workflow:      medication.NewWorkflow(kb),
		Contexts:      conversation.NewManager(conversation.NewMemoryStore()),
		Commands:      commands,
		SourceTimeout: time.Second,
		HistoryLen:    10,
	})
	return p, commands
}

func TestProcessAddPatientAsksForAge(t *testing.T) {
	p, _ := newTestProcessor(t)

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Add new patient John Doe"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, pkg.IntentAddPatient, res.Intent.PrimaryIntent)
	require.NotEmpty(t, res.Entities[pkg.CategoryPatient])
	assert.Equal(t, "John Doe", res.Entities[pkg.CategoryPatient][0].Text)
	assert.Equal(t, "What is the patient's age?", res.FollowUpQuestion)
	assert.Equal(t, "age", res.MissingSlot)
	assert.False(t, res.Complete)
	require.NotNil(t, res.Context.CurrentPatient)
	assert.Equal(t, "John Doe", res.Context.CurrentPatient.Text)
}

func TestProcessPrescribeAsksForDosage(t *testing.T) {
	p, _ := newTestProcessor(t)

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Prescribe Metformin"})
	require.NoError(t, err)

	assert.Equal(t, pkg.IntentAssignMedication, res.Intent.PrimaryIntent)
	require.NotNil(t, res.MedicationValidation)
	assert.True(t, res.MedicationValidation.IsValid)
	assert.Equal(t, pkg.StepDosage, res.MedicationValidation.ValidationStep)
	assert.Equal(t, "What is the dosage for metformin? Valid dosages are: 500mg, 1000mg", res.MedicationValidation.FollowUpQuestion)
	assert.Equal(t, res.MedicationValidation.FollowUpQuestion, res.FollowUpQuestion)
	assert.False(t, res.Complete)
}

func TestProcessPrescribeInvalidDosage(t *testing.T) {
	p, _ := newTestProcessor(t)

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Prescribe Metformin 5000mg"})
	require.NoError(t, err)

	require.NotNil(t, res.MedicationValidation)
	assert.False(t, res.MedicationValidation.IsValid)
	assert.Equal(t, pkg.StepDosage, res.MedicationValidation.ValidationStep)
	assert.Equal(t, "dosage", res.MissingSlot)
	assert.NotContains(t, res.Context.FilledSlots, "dosage", "a rejected dosage is asked for again")
}

func TestProcessScheduleFollowupCompletes(t *testing.T) {
	p, commands := newTestProcessor(t)

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Schedule follow-up next Tuesday at 2 PM", SessionID: "sched"})
	require.NoError(t, err)

	assert.Equal(t, pkg.IntentScheduleFollowup, res.Intent.PrimaryIntent)
	assert.NotEmpty(t, res.TemporalInfo.Times)
	assert.Contains(t, res.TemporalInfo.Dates, "next Tuesday")
	assert.True(t, res.Complete)
	assert.Empty(t, res.FollowUpQuestion)
	assert.Equal(t, "next Tuesday", res.Context.LastMentionedDate)

	cmds, err := commands.Load("sched")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, pkg.IntentScheduleFollowup, cmds[0].Intent)
	assert.Equal(t, "next Tuesday", cmds[0].Slots["date"])
}

func TestProcessMedicationAcrossTurns(t *testing.T) {
	p, commands := newTestProcessor(t)
	ctx := context.Background()

	results, err := p.ProcessConversation(ctx, "rx", []string{
		"Prescribe Metformin",
		"500mg",
		"",
		"twice daily",
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	second := results[1]
	assert.Equal(t, pkg.IntentUnknown, second.Intent.PrimaryIntent)
	assert.Equal(t, pkg.IntentAssignMedication, second.ActiveIntent)
	require.NotNil(t, second.MedicationValidation)
	assert.Equal(t, pkg.StepFrequency, second.MedicationValidation.ValidationStep)
	assert.Equal(t, "frequency", second.MissingSlot)

	last := results[2]
	require.NotNil(t, last.MedicationValidation)
	assert.Equal(t, pkg.StepComplete, last.MedicationValidation.ValidationStep)
	assert.True(t, last.Complete)
	assert.Empty(t, last.Context.ActiveIntent, "a completed intent is forgotten")

	cmds, err := commands.Load("rx")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, map[string]string{"medication": "Metformin", "dosage": "500mg", "frequency": "twice daily"}, cmds[0].Slots)
}

func TestProcessNewPrescriptionStartsFresh(t *testing.T) {
	p, commands := newTestProcessor(t)

	results, err := p.ProcessConversation(context.Background(), "s1", []string{
		"Prescribe paracetamol 500mg twice a day",
		"Prescribe aspirin",
		"Prescribe ibuprofen",
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NotNil(t, results[0].MedicationValidation)
	assert.True(t, results[0].Complete)

	for _, res := range results[1:] {
		require.NotNil(t, res.MedicationValidation)
		assert.True(t, res.MedicationValidation.IsValid)
		assert.Equal(t, pkg.StepDosage, res.MedicationValidation.ValidationStep)
		assert.Empty(t, res.MedicationValidation.Dosage)
		assert.Empty(t, res.MedicationValidation.Frequency)
		assert.False(t, res.Complete)
	}
	assert.Equal(t, "aspirin", results[1].MedicationValidation.Medication)
	assert.Equal(t, "ibuprofen", results[2].MedicationValidation.Medication)

	cmds, err := commands.Load("s1")
	require.NoError(t, err)
	assert.Len(t, cmds, 1)
}

func TestProcessPrunesOldCommands(t *testing.T) {
	p, commands := newTestProcessor(t)
	p.deps.CommandRetention = 24 * time.Hour

	require.NoError(t, commands.Record(pkg.CompletedCommand{SessionID: "old", Intent: pkg.IntentQueryInfo, CompletedAt: time.Now().Add(-72 * time.Hour)}))

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Schedule follow-up next Tuesday at 2 PM", SessionID: "old"})
	require.NoError(t, err)
	require.True(t, res.Complete)

	cmds, err := commands.Load("old")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, pkg.IntentScheduleFollowup, cmds[0].Intent)

	stats, err := p.Commands().Stats("old")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCommands)
}

func TestProcessUnknownIntentIsComplete(t *testing.T) {
	p, _ := newTestProcessor(t)

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Good morning"})
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentUnknown, res.Intent.PrimaryIntent)
	assert.True(t, res.Complete)
	assert.Empty(t, res.FollowUpQuestion)
}

func TestProcessAgeIsPatientInfo(t *testing.T) {
	p, _ := newTestProcessor(t)

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Add new patient John Doe, 45 years old, male"})
	require.NoError(t, err)

	assert.Empty(t, res.TemporalInfo.Age)
	assert.NotContains(t, res.TemporalInfo.Dates, "45 years old")

	var labels []string
	for _, e := range res.Entities[pkg.CategoryPatient] {
		labels = append(labels, e.RawLabel)
	}
	assert.Contains(t, labels, "age")
	assert.True(t, res.Complete)

	simple := res.SimplifiedFormat
	assert.Equal(t, pkg.IntentAddPatient, simple.Intent)
	require.NotNil(t, simple.Entities.Patient)
	assert.Equal(t, "John Doe", *simple.Entities.Patient)
	require.NotNil(t, simple.Entities.Gender)
	assert.Equal(t, "male", *simple.Entities.Gender)
	assert.NotNil(t, simple.Entities.Age)
	assert.Nil(t, simple.Entities.Condition)
}

func TestProcessDegradesFailingSources(t *testing.T) {
	failing := entity.SourceFunc{SourceName: "broken", Fn: func(context.Context, string) ([]pkg.ExtractedEntity, error) {
		return nil, errors.New("model server down")
	}}
	panicking := entity.SourceFunc{SourceName: "panics", Fn: func(context.Context, string) ([]pkg.ExtractedEntity, error) {
		panic("boom")
	}}
	p, _ := newTestProcessor(t, failing, panicking)

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Add new patient John Doe"})
	require.NoError(t, err)
	assert.Equal(t, "What is the patient's age?", res.FollowUpQuestion)
}

func TestProcessRejectsEmptyUtterance(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "   "})
	assert.ErrorIs(t, err, ErrEmptyUtterance)

	_, err = p.Interpret(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyUtterance)
}

func TestProcessReviewerAddsNotes(t *testing.T) {
	p, _ := newTestProcessor(t)
	reviewer := &stubReviewer{notes: []string{"Check renal function"}}
	p.deps.Reviewer = reviewer

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Prescribe Metformin 500mg twice daily"})
	require.NoError(t, err)
	require.NotNil(t, res.MedicationValidation)
	assert.Equal(t, pkg.StepComplete, res.MedicationValidation.ValidationStep)
	assert.Equal(t, []string{"Check renal function"}, res.MedicationValidation.Notes)

	reviewer.err = errors.New("timeout")
	reviewer.notes = nil
	res, err = p.Process(context.Background(), pkg.TurnRequest{Utterance: "Prescribe Metformin 1000mg once daily"})
	require.NoError(t, err)
	assert.True(t, res.MedicationValidation.IsValid)
	assert.Empty(t, res.MedicationValidation.Notes)
	assert.Equal(t, 2, reviewer.calls)
}

func TestBuildWithDefaults(t *testing.T) {
	cfg := &src.Config{
		SourcesConfig: model.SourcesConfig{Timeout: time.Second, Rules: true, KeywordFallback: true},
		ConversationConfig: model.ConversationConfig{
			Backend:    "memory",
			TTL:        30 * time.Minute,
			HistoryLen: 5,
		},
		ServerConfig: model.ServerConfig{CommandLogDir: filepath.Join(t.TempDir(), "commands")},
	}

	p, closer, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	res, err := p.Process(context.Background(), pkg.TurnRequest{Utterance: "Prescribe Lisinopril"})
	require.NoError(t, err)
	require.NotNil(t, res.MedicationValidation)
	assert.Equal(t, pkg.StepDosage, res.MedicationValidation.ValidationStep)
}

func TestBuildRejectsBadProvider(t *testing.T) {
	cfg := &src.Config{
		NLUConfig:          model.NLUConfig{Provider: "groq", APIKey: "x"},
		ConversationConfig: model.ConversationConfig{Backend: "memory", TTL: time.Minute},
	}

	_, _, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}
