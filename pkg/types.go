package pkg

import (
	"time"
)

// Core types shared by the interpretation pipeline, the dialogue engine and the outer adapters.

// Category is the bucket an extracted entity is filed under.
type Category string

const (
	CategoryPatient  Category = "patient_info"
	CategoryMedical  Category = "medical_info"
	CategoryTemporal Category = "temporal_info"
	CategoryLocation Category = "location_info"
	CategoryOther    Category = "other"
)

// Categories lists every bucket in output order.
var Categories = []Category{
	CategoryPatient,
	CategoryMedical,
	CategoryTemporal,
	CategoryLocation,
	CategoryOther,
}

// Source identifies which extractor produced an entity.
type Source string

const (
	SourceModel      Source = "model"
	SourcePattern    Source = "pattern"
	SourceGenerative Source = "generative"
)

// ExtractedEntity is a single span pulled out of an utterance.
type ExtractedEntity struct {
	Text       string   `json:"text"`
	Category   Category `json:"category"`
	RawLabel   string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Source     Source   `json:"source"`
}

// Supported intents.
const (
	IntentAddPatient       = "add_patient"
	IntentAssignMedication = "assign_medication"
	IntentScheduleFollowup = "schedule_followup"
	IntentUpdateRecord     = "update_record"
	IntentQueryInfo        = "query_info"
	IntentCheckVitals      = "check_vitals"
	IntentOrderTest        = "order_test"
	IntentReviewResults    = "review_results"
	IntentUnknown          = "unknown"
)

// SupportedIntents is the closed label set handed to classifiers.
var SupportedIntents = []string{
	IntentAddPatient,
	IntentAssignMedication,
	IntentScheduleFollowup,
	IntentUpdateRecord,
	IntentQueryInfo,
	IntentCheckVitals,
	IntentOrderTest,
	IntentReviewResults,
}

// IsSupportedIntent reports whether label is one of SupportedIntents.
func IsSupportedIntent(label string) bool {
	for _, intent := range SupportedIntents {
		if intent == label {
			return true
		}
	}
	return false
}

// IntentScore is one scored label from a classifier.
type IntentScore struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
}

// IntentResult is the resolved intent of one utterance.
type IntentResult struct {
	PrimaryIntent string        `json:"primary_intent"`
	Confidence    float64       `json:"confidence"`
	Alternatives  []IntentScore `json:"alternatives,omitempty"`
}

// UnknownIntent is the result used whenever classification is unavailable.
func UnknownIntent() IntentResult {
	return IntentResult{PrimaryIntent: IntentUnknown, Confidence: 0.0}
}

// TemporalInfo holds what the pattern extractor found.
type TemporalInfo struct {
	Dates              []string `json:"dates"`
	Times              []string `json:"times"`
	Age                string   `json:"age,omitempty"`
	RecurrencePatterns []string `json:"recurrence_patterns"`
}

// CategorizedEntities maps every category to its entities. All buckets are present.
type CategorizedEntities map[Category][]ExtractedEntity

// NewCategorizedEntities returns a map with every bucket initialised to an empty list.
func NewCategorizedEntities() CategorizedEntities {
	c := make(CategorizedEntities, len(Categories))
	for _, cat := range Categories {
		c[cat] = []ExtractedEntity{}
	}
	return c
}

// All flattens the buckets in category order.
func (c CategorizedEntities) All() []ExtractedEntity {
	var out []ExtractedEntity
	for _, cat := range Categories {
		out = append(out, c[cat]...)
	}
	return out
}

// Count returns the total number of entities.
func (c CategorizedEntities) Count() int {
	n := 0
	for _, list := range c {
		n += len(list)
	}
	return n
}

// ValidationStep is a state of the medication validation workflow.
type ValidationStep string

const (
	StepMedicationName ValidationStep = "medication_name"
	StepDosage         ValidationStep = "dosage"
	StepFrequency      ValidationStep = "frequency"
	StepComplete       ValidationStep = "complete"
)

// ValidationResult is the outcome of one pass through the medication workflow.
type ValidationResult struct {
	IsValid          bool           `json:"is_valid"`
	ValidationStep   ValidationStep `json:"validation_step"`
	Medication       string         `json:"medication,omitempty"`
	Dosage           string         `json:"dosage,omitempty"`
	Frequency        string         `json:"frequency,omitempty"`
	FollowUpQuestion string         `json:"follow_up_question,omitempty"`
	Message          string         `json:"message,omitempty"`
	Notes            []string       `json:"notes,omitempty"`
}

// ContextSnapshot is the read-only view of a session handed to the dialogue engine.
type ContextSnapshot struct {
	CurrentPatient     *ExtractedEntity           `json:"current_patient,omitempty"`
	CurrentMedicalInfo []ExtractedEntity          `json:"current_medical_info,omitempty"`
	LastMentionedDate  string                     `json:"last_mentioned_date,omitempty"`
	ActiveIntent       string                     `json:"active_intent,omitempty"`
	FilledSlots        map[string]ExtractedEntity `json:"filled_slots,omitempty"`
}

// TurnRequest is one utterance submitted to the processor.
type TurnRequest struct {
	Utterance       string   `json:"text"`
	SessionID       string   `json:"session_id,omitempty"`
	PriorUtterances []string `json:"conversation_history,omitempty"`
}

// TurnResult is the structured interpretation of one turn.
type TurnResult struct {
	SessionID            string              `json:"session_id"`
	Text                 string              `json:"text"`
	Intent               IntentResult        `json:"intent"`
	ActiveIntent         string              `json:"active_intent"`
	Entities             CategorizedEntities `json:"entities"`
	TemporalInfo         TemporalInfo        `json:"temporal_info"`
	SimplifiedFormat     SimplifiedFormat    `json:"simplified_format"`
	FollowUpQuestion     string              `json:"follow_up_question,omitempty"`
	MedicationValidation *ValidationResult   `json:"medication_validation,omitempty"`
	Complete             bool                `json:"complete"`
	MissingSlot          string              `json:"missing_slot,omitempty"`
	Context              ContextSnapshot     `json:"context"`
	ProcessedAt          time.Time           `json:"processed_at"`
}

// SimplifiedFormat is the compact view consumed by dashboards. Missing values are null.
type SimplifiedFormat struct {
	Intent   string             `json:"intent"`
	Entities SimplifiedEntities `json:"entities"`
}

type SimplifiedEntities struct {
	Patient   *string `json:"patient"`
	Gender    *string `json:"gender"`
	Age       *string `json:"age"`
	Condition *string `json:"condition"`
}

// CompletedCommand records a command whose required slots were all filled.
type CompletedCommand struct {
	SessionID   string            `json:"session_id"`
	Intent      string            `json:"intent"`
	Slots       map[string]string `json:"slots"`
	Utterances  []string          `json:"utterances"`
	CompletedAt time.Time         `json:"completed_at"`
}
