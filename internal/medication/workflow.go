package medication

import (
	"context"
	"fmt"
	"strings"

	"medcmd/pkg"
)

// Input carries the values gathered so far for one prescription.
type Input struct {
	Medication string
	Dosage     string
	Frequency  string
}

// Reviewer gives advisory notes on a fully specified prescription.
type Reviewer interface {
	ReviewMedication(ctx context.Context, in Input) ([]string, error)
}

// Workflow walks medication_name -> dosage -> frequency -> complete.
// A state is left only when its value is present and allowed by the knowledge base.
type Workflow struct {
	kb *KnowledgeBase
}

func NewWorkflow(kb *KnowledgeBase) *Workflow {
	return &Workflow{kb: kb}
}

// KnowledgeBase exposes the formulary the workflow validates against.
func (w *Workflow) KnowledgeBase() *KnowledgeBase {
	return w.kb
}

// Validate runs the state machine over in. It never returns an error:
// rejected values are reported through IsValid and FollowUpQuestion.
func (w *Workflow) Validate(in Input) pkg.ValidationResult {
	result := pkg.ValidationResult{
		Medication: strings.TrimSpace(in.Medication),
		Dosage:     strings.TrimSpace(in.Dosage),
		Frequency:  strings.TrimSpace(in.Frequency),
	}

	known := strings.Join(w.kb.Names(), ", ")

	if result.Medication == "" {
		result.ValidationStep = pkg.StepMedicationName
		result.FollowUpQuestion = fmt.Sprintf("Which medication should be prescribed? Known medications are: %s", known)
		return result
	}

	record, ok := w.kb.Lookup(result.Medication)
	if !ok {
		result.ValidationStep = pkg.StepMedicationName
		result.Message = "Medication not found in database"
		result.FollowUpQuestion = fmt.Sprintf("Medication '%s' is not in the formulary. Known medications are: %s", result.Medication, known)
		return result
	}

	dosagePrompt := fmt.Sprintf("What is the dosage for %s? Valid dosages are: %s", record.Name, strings.Join(record.Dosages, ", "))
	if result.Dosage == "" {
		result.IsValid = true
		result.ValidationStep = pkg.StepDosage
		result.FollowUpQuestion = dosagePrompt
		return result
	}
	if !record.AllowsDosage(result.Dosage) {
		result.ValidationStep = pkg.StepDosage
		result.Message = fmt.Sprintf("Invalid dosage for %s. Valid dosages are: %s", record.Name, strings.Join(record.Dosages, ", "))
		result.FollowUpQuestion = dosagePrompt
		return result
	}

	frequencyPrompt := fmt.Sprintf("What is the frequency for %s? Valid frequencies are: %s", record.Name, strings.Join(record.Frequencies, ", "))
	if result.Frequency == "" {
		result.IsValid = true
		result.ValidationStep = pkg.StepFrequency
		result.FollowUpQuestion = frequencyPrompt
		return result
	}
	if !record.AllowsFrequency(result.Frequency) {
		result.ValidationStep = pkg.StepFrequency
		result.Message = fmt.Sprintf("Invalid frequency for %s. Valid frequencies are: %s", record.Name, strings.Join(record.Frequencies, ", "))
		result.FollowUpQuestion = frequencyPrompt
		return result
	}

	result.IsValid = true
	result.ValidationStep = pkg.StepComplete
	result.Message = "Medication validated successfully"
	if record.MaxDailyDose != "" {
		result.Message += fmt.Sprintf(" (maximum daily dose %s)", record.MaxDailyDose)
	}
	return result
}
