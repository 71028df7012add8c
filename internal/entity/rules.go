package entity

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"medcmd/pkg"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule is a regex that yields entities of one label.
type Rule struct {
	Label      string  `yaml:"label"`
	Regex      string  `yaml:"regex"`
	Group      int     `yaml:"group"`
	Confidence float64 `yaml:"confidence"`
}

// Lexicon is a list of literal terms for one label, matched case-insensitively on word boundaries.
type Lexicon struct {
	Label      string   `yaml:"label"`
	Terms      []string `yaml:"terms"`
	Confidence float64  `yaml:"confidence"`
}

// RuleSet is the on-disk shape of rules.yaml.
type RuleSet struct {
	Patterns []Rule    `yaml:"patterns"`
	Lexicons []Lexicon `yaml:"lexicons"`
}

type compiledRule struct {
	label      string
	re         *regexp.Regexp
	group      int
	confidence float64
}

// RuleSource extracts entities with regexes and term lists. It is deterministic
// and never fails at extraction time.
type RuleSource struct {
	rules []compiledRule
}

type span struct {
	start, end int
	entity     pkg.ExtractedEntity
}

// NewRuleSource compiles the embedded rule set plus any extra lexicons
// (for example medication names from the knowledge base).
func NewRuleSource(extra ...Lexicon) (*RuleSource, error) {
	var set RuleSet
	if err := yaml.Unmarshal(defaultRules, &set); err != nil {
		return nil, fmt.Errorf("failed to parse built-in rules: %w", err)
	}
	return NewRuleSourceFromSet(set, extra...)
}

// NewRuleSourceFromSet compiles an explicit rule set.
func NewRuleSourceFromSet(set RuleSet, extra ...Lexicon) (*RuleSource, error) {
	src := &RuleSource{}

	for _, r := range set.Patterns {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for label %q: %w", r.Label, err)
		}
		if r.Group > re.NumSubexp() {
			return nil, fmt.Errorf("pattern for label %q has no group %d", r.Label, r.Group)
		}
		src.rules = append(src.rules, compiledRule{label: r.Label, re: re, group: r.Group, confidence: r.Confidence})
	}

	for _, lex := range mergeLexicons(set.Lexicons, extra) {
		re, err := lexiconRegex(lex.Terms)
		if err != nil {
			return nil, fmt.Errorf("invalid lexicon for label %q: %w", lex.Label, err)
		}
		if re == nil {
			continue
		}
		src.rules = append(src.rules, compiledRule{label: lex.Label, re: re, confidence: lex.Confidence})
	}

	return src, nil
}

func (s *RuleSource) Name() string { return "rules" }

// Extract returns matches ordered by position. Overlapping spans of the same label keep the earlier rule.
func (s *RuleSource) Extract(_ context.Context, text string) ([]pkg.ExtractedEntity, error) {
	var accepted []span

	for _, rule := range s.rules {
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*rule.group], m[2*rule.group+1]
			if start < 0 {
				continue
			}
			if overlapsLabel(accepted, rule.label, start, end) {
				continue
			}
			accepted = append(accepted, span{
				start: start,
				end:   end,
				entity: pkg.ExtractedEntity{
					Text:       strings.TrimSpace(text[start:end]),
					RawLabel:   rule.label,
					Confidence: rule.confidence,
					Source:     pkg.SourcePattern,
				},
			})
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	out := make([]pkg.ExtractedEntity, 0, len(accepted))
	for _, sp := range accepted {
		out = append(out, sp.entity)
	}
	return out, nil
}

func overlapsLabel(spans []span, label string, start, end int) bool {
	for _, sp := range spans {
		if sp.entity.RawLabel == label && start < sp.end && sp.start < end {
			return true
		}
	}
	return false
}

// mergeLexicons folds extra terms into lexicons with the same label.
func mergeLexicons(base, extra []Lexicon) []Lexicon {
	out := make([]Lexicon, 0, len(base)+len(extra))
	index := make(map[string]int)
	for _, lex := range append(append([]Lexicon{}, base...), extra...) {
		if i, ok := index[lex.Label]; ok {
			out[i].Terms = append(out[i].Terms, lex.Terms...)
			continue
		}
		index[lex.Label] = len(out)
		lex.Terms = append([]string{}, lex.Terms...)
		out = append(out, lex)
	}
	return out
}

// lexiconRegex builds one alternation, longest terms first so "type 2 diabetes" beats "diabetes".
func lexiconRegex(terms []string) (*regexp.Regexp, error) {
	seen := make(map[string]bool)
	var cleaned []string
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	sort.SliceStable(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	quoted := make([]string, len(cleaned))
	for i, t := range cleaned {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
