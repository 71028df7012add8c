package entity

import (
	"strings"

	"medcmd/pkg"
)

// labelAliases folds the label spellings produced by different extractors onto one slot name.
var labelAliases = map[string]string{
	"patient_name": "patient",
	"name":         "patient",
	"person":       "patient",
	"per":          "patient",
	"sex":          "gender",
	"drug":         "medication",
	"medicine":     "medication",
	"dose":         "dosage",
	"diagnosis":    "condition",
	"disease":      "condition",
	"lab_test":     "test",
	"physician":    "doctor",
	"hospital":     "facility",
	"clinic":       "facility",
}

var categoryTable = map[string]pkg.Category{
	"patient":    pkg.CategoryPatient,
	"doctor":     pkg.CategoryPatient,
	"gender":     pkg.CategoryPatient,
	"age":        pkg.CategoryPatient,
	"medication": pkg.CategoryMedical,
	"dosage":     pkg.CategoryMedical,
	"frequency":  pkg.CategoryMedical,
	"condition":  pkg.CategoryMedical,
	"symptom":    pkg.CategoryMedical,
	"procedure":  pkg.CategoryMedical,
	"test":       pkg.CategoryMedical,
	"vital_sign": pkg.CategoryMedical,
	"lab_result": pkg.CategoryMedical,
	"date":       pkg.CategoryTemporal,
	"time":       pkg.CategoryTemporal,
	"duration":   pkg.CategoryTemporal,
	"facility":   pkg.CategoryLocation,
	"department": pkg.CategoryLocation,
}

// Labels is the entity label set requested from model-backed sources.
var Labels = []string{
	"patient", "doctor", "medication", "dosage", "frequency", "condition",
	"symptom", "procedure", "test", "date", "time", "duration",
	"facility", "department", "vital_sign", "lab_result",
}

// CanonicalLabel lower-cases a raw label and resolves known aliases.
func CanonicalLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, "-", "_")
	if alias, ok := labelAliases[label]; ok {
		return alias
	}
	return label
}

// CategoryOf maps a raw label to its bucket. Unknown labels land in other.
func CategoryOf(raw string) pkg.Category {
	if cat, ok := categoryTable[CanonicalLabel(raw)]; ok {
		return cat
	}
	return pkg.CategoryOther
}

// Categorize returns copies of entities with Category set from their raw label.
// A label outside the table keeps the bucket its source already assigned, if any.
// Order, text, confidence and source are preserved.
func Categorize(entities []pkg.ExtractedEntity) []pkg.ExtractedEntity {
	out := make([]pkg.ExtractedEntity, len(entities))
	for i, e := range entities {
		cat := CategoryOf(e.RawLabel)
		if cat == pkg.CategoryOther && isBucket(e.Category) {
			cat = e.Category
		}
		e.Category = cat
		out[i] = e
	}
	return out
}

func isBucket(c pkg.Category) bool {
	if c == pkg.CategoryOther {
		return false
	}
	for _, known := range pkg.Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Simplify picks the first patient, gender, age and condition for the compact view.
func Simplify(intent string, entities pkg.CategorizedEntities) pkg.SimplifiedFormat {
	out := pkg.SimplifiedFormat{Intent: intent}
	first := func(label string) *string {
		for _, cat := range pkg.Categories {
			for _, e := range entities[cat] {
				if CanonicalLabel(e.RawLabel) == label {
					text := e.Text
					return &text
				}
			}
		}
		return nil
	}
	out.Entities.Patient = first("patient")
	out.Entities.Gender = first("gender")
	out.Entities.Age = first("age")
	out.Entities.Condition = first("condition")
	return out
}

// Group categorizes entities and files them into buckets.
func Group(entities []pkg.ExtractedEntity) pkg.CategorizedEntities {
	grouped := pkg.NewCategorizedEntities()
	for _, e := range Categorize(entities) {
		grouped[e.Category] = append(grouped[e.Category], e)
	}
	return grouped
}
