package dialogue

import (
	"regexp"
	"strings"

	"medcmd/internal/entity"
	"medcmd/pkg"
)

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// FilledSlot is a slot value and where it came from.
type FilledSlot struct {
	Slot        string              `json:"slot"`
	Entity      pkg.ExtractedEntity `json:"entity"`
	FromContext bool                `json:"from_context"`
}

// Evaluation is the engine's verdict for one turn.
type Evaluation struct {
	Intent           string       `json:"intent"`
	Complete         bool         `json:"complete"`
	MissingSlot      string       `json:"missing_slot,omitempty"`
	FollowUpQuestion string       `json:"follow_up_question,omitempty"`
	Filled           []FilledSlot `json:"filled"`
}

// Value returns the text filling slot, if any.
func (ev Evaluation) Value(slot string) (string, bool) {
	for _, f := range ev.Filled {
		if f.Slot == slot {
			return f.Entity.Text, true
		}
	}
	return "", false
}

// FilledMap indexes filled slots by name.
func (ev Evaluation) FilledMap() map[string]pkg.ExtractedEntity {
	out := make(map[string]pkg.ExtractedEntity, len(ev.Filled))
	for _, f := range ev.Filled {
		out[f.Slot] = f.Entity
	}
	return out
}

// Engine decides which required slot is still missing for an intent.
// It holds no per-session state and is safe for concurrent use.
type Engine struct {
	schemas Schemas
}

func NewEngine(schemas Schemas) *Engine {
	return &Engine{schemas: schemas}
}

// Schema returns the schema of intent, empty for unknown intents.
func (e *Engine) Schema(intent string) Schema {
	return e.schemas[intent]
}

// Evaluate walks the intent's slots in order. A slot is satisfied by this
// turn's entities first, then by the session snapshot. The first unsatisfied
// slot produces the follow-up question; every satisfied slot is reported.
func (e *Engine) Evaluate(intent string, entities pkg.CategorizedEntities, snap pkg.ContextSnapshot) Evaluation {
	ev := Evaluation{Intent: intent, Filled: []FilledSlot{}}
	if replacesPendingValue(e.schemas[intent], intent, entities, snap) {
		snap.ActiveIntent = ""
		snap.FilledSlots = nil
		snap.CurrentMedicalInfo = nil
	}

	for _, slot := range e.schemas[intent] {
		if found, ok := findInTurn(slot, entities); ok {
			ev.Filled = append(ev.Filled, FilledSlot{Slot: slot.Name, Entity: found})
			continue
		}
		if found, ok := findInContext(slot, intent, snap); ok {
			ev.Filled = append(ev.Filled, FilledSlot{Slot: slot.Name, Entity: found, FromContext: true})
			continue
		}
		if ev.MissingSlot == "" {
			ev.MissingSlot = slot.Name
		}
	}

	if ev.MissingSlot == "" {
		ev.Complete = true
		return ev
	}

	for _, slot := range e.schemas[intent] {
		if slot.Name == ev.MissingSlot {
			ev.FollowUpQuestion = interpolate(slot.Prompt, ev)
			break
		}
	}
	return ev
}

func qualifies(slot Slot, e pkg.ExtractedEntity) bool {
	if e.Category != "" && e.Category != slot.Category {
		return false
	}
	label := entity.CanonicalLabel(e.RawLabel)
	for _, want := range slot.Labels {
		if entity.CanonicalLabel(want) == label {
			return true
		}
	}
	return false
}

func findInTurn(slot Slot, entities pkg.CategorizedEntities) (pkg.ExtractedEntity, bool) {
	for _, e := range entities[slot.Category] {
		if qualifies(slot, e) {
			return e, true
		}
	}
	return pkg.ExtractedEntity{}, false
}

// replacesPendingValue reports whether this turn gives a different value for a
// slot the pending dialogue already filled, such as naming another medication.
func replacesPendingValue(schema Schema, intent string, entities pkg.CategorizedEntities, snap pkg.ContextSnapshot) bool {
	if intent == "" || snap.ActiveIntent != intent {
		return false
	}
	for _, slot := range schema {
		prev, ok := snap.FilledSlots[slot.Name]
		if !ok {
			continue
		}
		if cur, ok := findInTurn(slot, entities); ok && !strings.EqualFold(strings.TrimSpace(cur.Text), strings.TrimSpace(prev.Text)) {
			return true
		}
	}
	return false
}

// findInContext looks in the session. Medical info only carries over while a
// dialogue for the same intent is still pending, so a finished command never
// fills the next one.
func findInContext(slot Slot, intent string, snap pkg.ContextSnapshot) (pkg.ExtractedEntity, bool) {
	pending := intent != "" && snap.ActiveIntent == intent
	if pending {
		if e, ok := snap.FilledSlots[slot.Name]; ok && qualifies(slot, e) {
			return e, true
		}
	}

	if snap.CurrentPatient != nil && qualifies(slot, *snap.CurrentPatient) {
		return *snap.CurrentPatient, true
	}
	if pending {
		for _, e := range snap.CurrentMedicalInfo {
			if qualifies(slot, e) {
				return e, true
			}
		}
	}

	if snap.LastMentionedDate != "" {
		date := pkg.ExtractedEntity{
			Text:       snap.LastMentionedDate,
			Category:   pkg.CategoryTemporal,
			RawLabel:   "date",
			Confidence: 1.0,
			Source:     pkg.SourcePattern,
		}
		if qualifies(slot, date) {
			return date, true
		}
	}

	return pkg.ExtractedEntity{}, false
}

// interpolate fills {slot} placeholders with known values; unknown ones read "the <slot>".
func interpolate(prompt string, ev Evaluation) string {
	return placeholder.ReplaceAllStringFunc(prompt, func(m string) string {
		name := strings.Trim(m, "{}")
		if v, ok := ev.Value(name); ok {
			return v
		}
		return "the " + strings.ReplaceAll(name, "_", " ")
	})
}
