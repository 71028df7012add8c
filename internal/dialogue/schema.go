package dialogue

import (
	"fmt"

	"medcmd/pkg"
)

// Slot is one piece of information an intent requires.
// An entity qualifies when it sits in Category and its canonical label is in Labels.
type Slot struct {
	Name     string       `yaml:"slot"`
	Category pkg.Category `yaml:"category"`
	Labels   []string     `yaml:"labels"`
	Prompt   string       `yaml:"prompt"`
}

// Schema is the ordered slot list of an intent.
type Schema []Slot

// Schemas maps intent names to schemas. Intents without an entry need nothing.
type Schemas map[string]Schema

// DefaultSchemas returns the built-in schemas.
func DefaultSchemas() Schemas {
	patientSlot := func(prompt string) Slot {
		return Slot{Name: "patient", Category: pkg.CategoryPatient, Labels: []string{"patient"}, Prompt: prompt}
	}

	return Schemas{
		pkg.IntentAssignMedication: {
			{Name: "medication", Category: pkg.CategoryMedical, Labels: []string{"medication"}, Prompt: "Which medication should be prescribed?"},
			{Name: "dosage", Category: pkg.CategoryMedical, Labels: []string{"dosage"}, Prompt: "What is the dosage for {medication}?"},
			{Name: "frequency", Category: pkg.CategoryMedical, Labels: []string{"frequency"}, Prompt: "How often should {medication} be taken?"},
		},
		pkg.IntentAddPatient: {
			{Name: "name", Category: pkg.CategoryPatient, Labels: []string{"patient"}, Prompt: "What is the patient's name?"},
			{Name: "age", Category: pkg.CategoryPatient, Labels: []string{"age"}, Prompt: "What is the patient's age?"},
			{Name: "gender", Category: pkg.CategoryPatient, Labels: []string{"gender"}, Prompt: "What is the patient's gender?"},
		},
		pkg.IntentScheduleFollowup: {
			{Name: "date", Category: pkg.CategoryTemporal, Labels: []string{"date"}, Prompt: "What date should the follow-up be scheduled for?"},
			{Name: "time", Category: pkg.CategoryTemporal, Labels: []string{"time"}, Prompt: "What time on {date} should the follow-up be scheduled?"},
		},
		pkg.IntentUpdateRecord:  {patientSlot("Which patient's record should be updated?")},
		pkg.IntentQueryInfo:     {patientSlot("Which patient are you asking about?")},
		pkg.IntentCheckVitals:   {patientSlot("Which patient's vitals should be checked?")},
		pkg.IntentReviewResults: {patientSlot("Whose results should be reviewed?")},
		pkg.IntentOrderTest: {
			patientSlot("Which patient is the test for?"),
			{Name: "test", Category: pkg.CategoryMedical, Labels: []string{"test"}, Prompt: "Which test should be ordered for {patient}?"},
		},
	}
}

// Validate checks every schema for usable slots.
func (s Schemas) Validate() error {
	for intent, schema := range s {
		seen := make(map[string]bool)
		for i, slot := range schema {
			if slot.Name == "" {
				return fmt.Errorf("intent %q slot %d has no name", intent, i)
			}
			if seen[slot.Name] {
				return fmt.Errorf("intent %q declares slot %q twice", intent, slot.Name)
			}
			seen[slot.Name] = true
			if !validCategory(slot.Category) {
				return fmt.Errorf("intent %q slot %q has unknown category %q", intent, slot.Name, slot.Category)
			}
			if len(slot.Labels) == 0 {
				return fmt.Errorf("intent %q slot %q has no labels", intent, slot.Name)
			}
			if slot.Prompt == "" {
				return fmt.Errorf("intent %q slot %q has no prompt", intent, slot.Name)
			}
		}
	}
	return nil
}

// With returns a copy of s where overrides replace whole intent schemas.
func (s Schemas) With(overrides Schemas) Schemas {
	out := make(Schemas, len(s)+len(overrides))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func validCategory(c pkg.Category) bool {
	for _, known := range pkg.Categories {
		if c == known {
			return true
		}
	}
	return false
}
