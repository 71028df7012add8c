package nlu

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const systemPrompt = `You are a medical task management assistant. Extract and analyze medical information accurately.
Return ONLY a JSON object. Do not add explanations.`

const intentTemplate = `Classify the primary medical intent of the current message.
Choose exactly one of: {intents}.
Use "unknown" when none of them fits.

{input_text}

Return ONLY a JSON object in this format:
{{"primary_intent": "detected_intent", "confidence": 0.0, "alternatives": [{{"intent": "other_intent", "score": 0.0}}]}}`

const entityTemplate = `Extract medical entities from the current message.
Only extract entities that are LITERALLY PRESENT in the current message text.
Use one of these entity types: {labels}.

{input_text}

Return ONLY a JSON object with exactly this structure:
{{
  "patient_info": [{{"text": "extracted text", "type": "entity_type", "confidence": 1.0}}],
  "medical_info": [{{"text": "extracted text", "type": "entity_type", "confidence": 1.0}}],
  "temporal_info": [{{"text": "extracted text", "type": "entity_type", "confidence": 1.0}}],
  "location_info": []
}}`

const reviewTemplate = `Review this medication instruction for completeness and safety.

Medication: {medication}
Dosage: {dosage}
Frequency: {frequency}

Return ONLY a JSON object in this format:
{{"is_valid": true, "missing": ["field"], "safety_concerns": ["concern"], "follow_up_questions": ["question"]}}`

func newTemplate(user string) prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(user),
	)
}

var (
	intentSchema = mustSchema(`{
  "type": "object",
  "required": ["primary_intent"],
  "properties": {
    "primary_intent": {"type": "string"},
    "confidence": {"type": "number"},
    "alternatives": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["intent"],
        "properties": {"intent": {"type": "string"}, "score": {"type": "number"}}
      }
    }
  }
}`)

	entitySchema = mustSchema(`{
  "type": "object",
  "additionalProperties": {
    "type": "array",
    "items": {
      "type": "object",
      "required": ["text"],
      "properties": {
        "text": {"type": "string"},
        "type": {"type": "string"},
        "confidence": {"type": "number"}
      }
    }
  }
}`)

	reviewSchema = mustSchema(`{
  "type": "object",
  "properties": {
    "is_valid": {"type": "boolean"},
    "missing": {"type": "array", "items": {"type": "string"}},
    "safety_concerns": {"type": "array", "items": {"type": "string"}},
    "follow_up_questions": {"type": "array", "items": {"type": "string"}}
  }
}`)
)
