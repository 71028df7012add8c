package medication

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed medications.yaml
var defaultFormulary []byte

// Record is one formulary entry. It is never mutated after loading.
type Record struct {
	Name         string   `yaml:"name"`
	Dosages      []string `yaml:"dosages"`
	Frequencies  []string `yaml:"frequencies"`
	MaxDailyDose string   `yaml:"max_daily_dose"`
}

type formularyFile struct {
	Medications []Record `yaml:"medications"`
}

// KnowledgeBase is a read-only lookup of medications by lower-cased name.
type KnowledgeBase struct {
	records map[string]Record
	names   []string
}

// LoadKnowledgeBase reads a formulary file. An empty path loads the built-in formulary.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	data := defaultFormulary
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading medication file: %w", err)
		}
	}

	var file formularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing medication file: %w", err)
	}
	return NewKnowledgeBase(file.Medications...)
}

// NewKnowledgeBase builds a knowledge base from records. Names must be unique and non-empty.
func NewKnowledgeBase(records ...Record) (*KnowledgeBase, error) {
	kb := &KnowledgeBase{records: make(map[string]Record, len(records))}
	for _, r := range records {
		key := normalizeName(r.Name)
		if key == "" {
			return nil, fmt.Errorf("medication with empty name")
		}
		if _, dup := kb.records[key]; dup {
			return nil, fmt.Errorf("duplicate medication %q", r.Name)
		}
		if len(r.Dosages) == 0 || len(r.Frequencies) == 0 {
			return nil, fmt.Errorf("medication %q needs at least one dosage and one frequency", r.Name)
		}
		r.Name = key
		r.Dosages = append([]string{}, r.Dosages...)
		r.Frequencies = append([]string{}, r.Frequencies...)
		kb.records[key] = r
		kb.names = append(kb.names, key)
	}
	return kb, nil
}

// Lookup finds a medication by name, ignoring case and surrounding space.
func (kb *KnowledgeBase) Lookup(name string) (Record, bool) {
	r, ok := kb.records[normalizeName(name)]
	return r, ok
}

// Names returns known medication names in formulary order.
func (kb *KnowledgeBase) Names() []string {
	return append([]string{}, kb.names...)
}

// AllowsDosage ignores case and inner spaces, so "500 MG" matches "500mg".
func (r Record) AllowsDosage(dosage string) bool {
	want := normalizeDosage(dosage)
	for _, d := range r.Dosages {
		if normalizeDosage(d) == want {
			return true
		}
	}
	return false
}

// AllowsFrequency ignores case and repeated whitespace.
func (r Record) AllowsFrequency(frequency string) bool {
	want := normalizeName(frequency)
	for _, f := range r.Frequencies {
		if normalizeName(f) == want {
			return true
		}
	}
	return false
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizeDosage(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
