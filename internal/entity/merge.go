package entity

import (
	"strings"

	"medcmd/pkg"
)

// Merge combines candidate lists from several sources into one list.
//
// Candidates are grouped by slot (canonical raw label). A slot fed by a single
// source keeps all of that source's distinct values. When several sources feed
// the same slot, the source holding the highest-confidence candidate wins and
// only its values survive; ties go to the source seen first. Candidates that
// agree on a value are never duplicated: the higher-confidence copy is kept.
// Output follows the first appearance of each slot.
func Merge(lists ...[]pkg.ExtractedEntity) []pkg.ExtractedEntity {
	var order []string
	groups := make(map[string][]pkg.ExtractedEntity)

	for _, list := range lists {
		for _, e := range list {
			if strings.TrimSpace(e.Text) == "" {
				continue
			}
			slot := CanonicalLabel(e.RawLabel)
			if _, seen := groups[slot]; !seen {
				order = append(order, slot)
			}
			groups[slot] = append(groups[slot], e)
		}
	}

	merged := make([]pkg.ExtractedEntity, 0, len(order))
	for _, slot := range order {
		merged = append(merged, resolveSlot(groups[slot])...)
	}
	return merged
}

func resolveSlot(candidates []pkg.ExtractedEntity) []pkg.ExtractedEntity {
	best := 0
	for i := range candidates {
		if candidates[i].Confidence > candidates[best].Confidence {
			best = i
		}
	}
	winner := candidates[best].Source

	var keys []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c.Source != winner {
			continue
		}
		key := normalizeText(c.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}

	out := make([]pkg.ExtractedEntity, 0, len(keys))
	for _, key := range keys {
		out = append(out, strongestCopy(candidates, key))
	}
	return out
}

// strongestCopy returns the first candidate with the highest confidence for a value.
func strongestCopy(candidates []pkg.ExtractedEntity, key string) pkg.ExtractedEntity {
	var pick pkg.ExtractedEntity
	found := false
	for _, c := range candidates {
		if normalizeText(c.Text) != key {
			continue
		}
		if !found || c.Confidence > pick.Confidence {
			pick = c
			found = true
		}
	}
	return pick
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
