// Package temporal pulls dates, clock times, ages and recurrence keywords out of
// free text with fixed regular expressions.
package temporal

import (
	"regexp"
	"sort"
	"strings"

	"medcmd/pkg"
)

// PatternConfidence is the confidence given to entities produced here.
const PatternConfidence = 1.0

const (
	monthNames = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`
	dayNames   = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
)

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:` + monthNames + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:` + monthNames + `)\.?(?:,?\s+\d{4})?\b`),
		regexp.MustCompile(`(?i)\b(?:today|tomorrow|day after tomorrow|(?:next|this|coming)\s+(?:week|month)|in\s+\d+\s+(?:days?|weeks?|months?)|(?:(?:next|this|coming)\s+)?(?:` + dayNames + `))\b`),
	}

	agePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d{1,3}\s*-?\s*(?:years?|yrs?)(?:\s*-\s*|\s+)old\b`),
		regexp.MustCompile(`(?i)\b\d{1,3}\s*(?:y/o|y\.o\.|yo\b)`),
		regexp.MustCompile(`(?i)\baged?\s+\d{1,3}\b`),
	}

	twelveHour = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:1[0-2]|0?[1-9])(?::[0-5]\d)?\s*(?:[ap]\.m\.|[ap]\.m\b|[ap]m\b)`),
		regexp.MustCompile(`(?i)\b(?:noon|midnight)\b`),
	}
	twentyFourHour = regexp.MustCompile(`\b(?:[01]?\d|2[0-3]):[0-5]\d\b`)
)

// RecurrenceVocabulary is matched as substrings of the lower-cased text, in this order.
var RecurrenceVocabulary = []string{
	"daily",
	"twice",
	"once",
	"weekly",
	"monthly",
	"every",
	"times a day",
	"times a week",
	"hours",
	"hourly",
	"nightly",
}

type match struct {
	start, end int
	text       string
}

// Extract scans text for temporal expressions. It is deterministic:
// the same text always yields the same result.
//
// An age phrase is never reported as a date. A clock time matched in
// 12-hour form is not reported again in 24-hour form.
func Extract(text string) pkg.TemporalInfo {
	info := pkg.TemporalInfo{
		Dates:              []string{},
		Times:              []string{},
		RecurrencePatterns: []string{},
	}

	ages := findAll(text, agePatterns, nil)
	if len(ages) > 0 {
		info.Age = ages[0].text
	}

	dates := findAll(text, datePatterns, ages)
	info.Dates = texts(dates)

	taken := append(append([]match{}, ages...), dates...)
	times := findAll(text, twelveHour, taken)
	times = append(times, findAll(text, []*regexp.Regexp{twentyFourHour}, append(taken, times...))...)
	sortByPosition(times)
	info.Times = texts(times)

	lower := strings.ToLower(text)
	for _, keyword := range RecurrenceVocabulary {
		if strings.Contains(lower, keyword) {
			info.RecurrencePatterns = append(info.RecurrencePatterns, keyword)
		}
	}

	return info
}

// Entities turns dates, times and age into pattern-sourced entities.
func Entities(info pkg.TemporalInfo) []pkg.ExtractedEntity {
	var out []pkg.ExtractedEntity
	if info.Age != "" {
		out = append(out, patternEntity(info.Age, "age", pkg.CategoryPatient))
	}
	for _, d := range info.Dates {
		out = append(out, patternEntity(d, "date", pkg.CategoryTemporal))
	}
	for _, t := range info.Times {
		out = append(out, patternEntity(t, "time", pkg.CategoryTemporal))
	}
	return out
}

func patternEntity(text, label string, cat pkg.Category) pkg.ExtractedEntity {
	return pkg.ExtractedEntity{
		Text:       text,
		Category:   cat,
		RawLabel:   label,
		Confidence: PatternConfidence,
		Source:     pkg.SourcePattern,
	}
}

// findAll runs every pattern, skipping spans that overlap exclude or an earlier hit,
// and returns the hits ordered by position with duplicate texts removed.
func findAll(text string, patterns []*regexp.Regexp, exclude []match) []match {
	var hits []match
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			m := match{start: loc[0], end: loc[1], text: strings.TrimSpace(text[loc[0]:loc[1]])}
			if overlaps(exclude, m) || overlaps(hits, m) {
				continue
			}
			hits = append(hits, m)
		}
	}
	sortByPosition(hits)

	seen := make(map[string]bool)
	out := hits[:0]
	for _, h := range hits {
		key := strings.ToLower(h.text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

func overlaps(spans []match, m match) bool {
	for _, s := range spans {
		if m.start < s.end && s.start < m.end {
			return true
		}
	}
	return false
}

func sortByPosition(ms []match) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].start < ms[j].start })
}

func texts(ms []match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.text)
	}
	return out
}
