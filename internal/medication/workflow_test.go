package medication

import (
	"os"
	"path/filepath"
	"testing"

	"medcmd/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkflow(t *testing.T) *Workflow {
	t.Helper()
	kb, err := LoadKnowledgeBase("")
	require.NoError(t, err)
	return NewWorkflow(kb)
}

func TestDefaultFormulary(t *testing.T) {
	kb, err := LoadKnowledgeBase("")
	require.NoError(t, err)

	r, ok := kb.Lookup("  Metformin ")
	require.True(t, ok)
	assert.Equal(t, []string{"500mg", "1000mg"}, r.Dosages)
	assert.Equal(t, "metformin", kb.Names()[0])
}

func TestValidateAsksForDosage(t *testing.T) {
	got := newTestWorkflow(t).Validate(Input{Medication: "Metformin"})

	assert.True(t, got.IsValid)
	assert.Equal(t, pkg.StepDosage, got.ValidationStep)
	assert.Equal(t, "What is the dosage for metformin? Valid dosages are: 500mg, 1000mg", got.FollowUpQuestion)
}

func TestValidateRejectsDosage(t *testing.T) {
	got := newTestWorkflow(t).Validate(Input{Medication: "Metformin", Dosage: "5000mg"})

	assert.False(t, got.IsValid)
	assert.Equal(t, pkg.StepDosage, got.ValidationStep)
	assert.Equal(t, "Invalid dosage for metformin. Valid dosages are: 500mg, 1000mg", got.Message)
	assert.Equal(t, "What is the dosage for metformin? Valid dosages are: 500mg, 1000mg", got.FollowUpQuestion)
}

func TestValidateUnknownMedication(t *testing.T) {
	got := newTestWorkflow(t).Validate(Input{Medication: "Unobtainium", Dosage: "5mg"})

	assert.False(t, got.IsValid)
	assert.Equal(t, pkg.StepMedicationName, got.ValidationStep)
	assert.Contains(t, got.FollowUpQuestion, "metformin, paracetamol, ibuprofen, aspirin")
}

func TestValidateWalksToComplete(t *testing.T) {
	w := newTestWorkflow(t)

	got := w.Validate(Input{Medication: "metformin", Dosage: "500 MG"})
	assert.True(t, got.IsValid)
	assert.Equal(t, pkg.StepFrequency, got.ValidationStep)
	assert.Contains(t, got.FollowUpQuestion, "What is the frequency for metformin?")

	got = w.Validate(Input{Medication: "metformin", Dosage: "500mg", Frequency: "hourly"})
	assert.False(t, got.IsValid)
	assert.Equal(t, pkg.StepFrequency, got.ValidationStep)

	got = w.Validate(Input{Medication: "metformin", Dosage: "500mg", Frequency: "Twice  Daily"})
	assert.True(t, got.IsValid)
	assert.Equal(t, pkg.StepComplete, got.ValidationStep)
	assert.Empty(t, got.FollowUpQuestion)
	assert.Contains(t, got.Message, "2000mg")
}

func TestValidateNeverSkipsAnInvalidState(t *testing.T) {
	w := newTestWorkflow(t)
	// A valid frequency cannot carry the workflow past a rejected dosage.
	got := w.Validate(Input{Medication: "aspirin", Dosage: "1g", Frequency: "once daily"})

	assert.False(t, got.IsValid)
	assert.Equal(t, pkg.StepDosage, got.ValidationStep)
}

func TestLoadKnowledgeBaseFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
medications:
  - name: Warfarin
    dosages: ["1mg", "5mg"]
    frequencies: ["once daily"]
`), 0o644))

	kb, err := LoadKnowledgeBase(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"warfarin"}, kb.Names())
}

func TestNewKnowledgeBaseRejectsBadRecords(t *testing.T) {
	_, err := NewKnowledgeBase(Record{Name: ""})
	assert.Error(t, err)

	_, err = NewKnowledgeBase(
		Record{Name: "a", Dosages: []string{"1mg"}, Frequencies: []string{"daily"}},
		Record{Name: "A", Dosages: []string{"1mg"}, Frequencies: []string{"daily"}},
	)
	assert.Error(t, err)

	_, err = NewKnowledgeBase(Record{Name: "b"})
	assert.Error(t, err)
}
