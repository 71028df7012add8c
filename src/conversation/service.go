package conversation

import (
	"medcmd/pkg"
)

// ApplyTurn records what a turn revealed. Each key is overwritten, never merged:
// the first patient entity, the full medical list and the first date.
// Categories with nothing new leave their key untouched.
func (c *Context) ApplyTurn(entities pkg.CategorizedEntities, info pkg.TemporalInfo) error {
	if patients := entities[pkg.CategoryPatient]; len(patients) > 0 {
		if err := c.Put(KeyCurrentPatient, patients[0], 0); err != nil {
			return err
		}
	}

	if medical := entities[pkg.CategoryMedical]; len(medical) > 0 {
		if err := c.Put(KeyCurrentMedicalInfo, medical, 0); err != nil {
			return err
		}
	}

	date := ""
	if len(info.Dates) > 0 {
		date = info.Dates[0]
	} else {
		for _, e := range entities[pkg.CategoryTemporal] {
			if e.RawLabel == "date" {
				date = e.Text
				break
			}
		}
	}
	if date != "" {
		if err := c.Put(KeyLastMentionedDate, date, 0); err != nil {
			return err
		}
	}

	return nil
}

// TrackDialogue keeps the pending intent and its filled slots while the
// intent is incomplete and forgets them once it completes.
func (c *Context) TrackDialogue(intent string, complete bool, filled map[string]pkg.ExtractedEntity) error {
	if complete || intent == "" || intent == pkg.IntentUnknown {
		c.Delete(KeyActiveIntent)
		c.Delete(KeyFilledSlots)
		return nil
	}
	if err := c.Put(KeyActiveIntent, intent, 0); err != nil {
		return err
	}
	return c.Put(KeyFilledSlots, filled, 0)
}

// AppendHistory adds an utterance, keeping at most limit of the latest.
func (c *Context) AppendHistory(utterance string, limit int) error {
	history := append(c.History(), utterance)
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return c.Put(KeyHistory, history, 0)
}

// History returns stored utterances, oldest first.
func (c *Context) History() []string {
	var history []string
	c.Get(KeyHistory, &history)
	return history
}

// Snapshot decodes the dialogue-relevant keys.
func (c *Context) Snapshot() pkg.ContextSnapshot {
	var snap pkg.ContextSnapshot

	var patient pkg.ExtractedEntity
	if c.Get(KeyCurrentPatient, &patient) {
		snap.CurrentPatient = &patient
	}
	c.Get(KeyCurrentMedicalInfo, &snap.CurrentMedicalInfo)
	c.Get(KeyLastMentionedDate, &snap.LastMentionedDate)
	c.Get(KeyActiveIntent, &snap.ActiveIntent)
	c.Get(KeyFilledSlots, &snap.FilledSlots)

	return snap
}
