package intent

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"medcmd/pkg"
)

// KeywordRule lists the cue phrases for one intent.
type KeywordRule struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
}

// DefaultKeywordRules is the built-in rule table, checked in order.
var DefaultKeywordRules = []KeywordRule{
	{pkg.IntentAddPatient, []string{"add patient", "new patient", "add new patient", "register patient", "create patient", "admit"}},
	{pkg.IntentAssignMedication, []string{"prescribe", "prescription", "medication", "assign", "start on", "administer"}},
	{pkg.IntentScheduleFollowup, []string{"schedule", "follow-up", "follow up", "followup", "appointment", "book"}},
	{pkg.IntentUpdateRecord, []string{"update", "change", "modify", "edit", "correct"}},
	{pkg.IntentCheckVitals, []string{"vitals", "vital signs", "blood pressure", "heart rate", "pulse", "temperature"}},
	{pkg.IntentOrderTest, []string{"order", "lab test", "blood test", "x-ray", "mri", "ct scan"}},
	{pkg.IntentReviewResults, []string{"results", "review", "report"}},
	{pkg.IntentQueryInfo, []string{"show", "what is", "what's", "list", "find", "look up", "history", "details"}},
}

// KeywordClassifier is the rule-based classifier used when model-backed
// classifiers are unavailable.
type KeywordClassifier struct {
	rules []compiledKeywordRule
}

type compiledKeywordRule struct {
	intent   string
	patterns []*regexp.Regexp
}

// NewKeywordClassifier compiles rules. With no rules DefaultKeywordRules is used.
func NewKeywordClassifier(rules ...KeywordRule) *KeywordClassifier {
	if len(rules) == 0 {
		rules = DefaultKeywordRules
	}
	k := &KeywordClassifier{}
	for _, r := range rules {
		cr := compiledKeywordRule{intent: r.Intent}
		for _, kw := range r.Keywords {
			cr.patterns = append(cr.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(strings.TrimSpace(kw))+`\b`))
		}
		k.rules = append(k.rules, cr)
	}
	return k
}

func (k *KeywordClassifier) Name() string { return "keywords" }

// Classify scores each intent by how many of its cue phrases occur.
// One hit scores 0.7, each further hit adds 0.1 up to 0.9.
func (k *KeywordClassifier) Classify(_ context.Context, text string) (pkg.IntentResult, error) {
	var scores []pkg.IntentScore
	for _, r := range k.rules {
		hits := 0
		for _, p := range r.patterns {
			if p.MatchString(text) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := 0.6 + 0.1*float64(hits)
		if score > 0.9 {
			score = 0.9
		}
		scores = append(scores, pkg.IntentScore{Intent: r.intent, Score: score})
	}

	if len(scores) == 0 {
		return pkg.UnknownIntent(), nil
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return pkg.IntentResult{
		PrimaryIntent: scores[0].Intent,
		Confidence:    scores[0].Score,
		Alternatives:  scores,
	}, nil
}
