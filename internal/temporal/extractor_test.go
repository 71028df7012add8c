package temporal

import (
	"testing"

	"medcmd/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFollowUp(t *testing.T) {
	info := Extract("Schedule follow-up next Tuesday at 2 PM")

	assert.Equal(t, []string{"next Tuesday"}, info.Dates)
	assert.Equal(t, []string{"2 PM"}, info.Times)
	assert.Empty(t, info.Age)
}

func TestExtractDates(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Appointment on 2024-03-15", []string{"2024-03-15"}},
		{"Seen on 15/03/2024 and 16.03.2024", []string{"15/03/2024", "16.03.2024"}},
		{"Review on March 5, 2024", []string{"March 5, 2024"}},
		{"Review on 5th March", []string{"5th March"}},
		{"Call tomorrow", []string{"tomorrow"}},
		{"Recheck in 3 days", []string{"in 3 days"}},
		{"Nothing temporal here", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text).Dates)
		})
	}
}

func TestExtractAgeIsNeverADate(t *testing.T) {
	tests := []struct {
		text string
		age  string
	}{
		{"Add patient John Doe, 45 years old, male", "45 years old"},
		{"a 72-year-old woman", "72-year-old"},
		{"John is 30 y/o", "30 y/o"},
		{"patient aged 61 admitted today", "aged 61"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			info := Extract(tt.text)
			assert.Equal(t, tt.age, info.Age)
			for _, d := range info.Dates {
				assert.NotContains(t, d, tt.age)
			}
		})
	}
}

func TestExtractTimes(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"at 2:30 p.m. please", []string{"2:30 p.m."}},
		{"at 9am", []string{"9am"}},
		{"between 14:00 and 15:30", []string{"14:00", "15:30"}},
		{"at 2:30 PM not twice", []string{"2:30 PM"}},
		{"meet at noon", []string{"noon"}},
		{"take 1 amoxicillin", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text).Times)
		})
	}
}

func TestExtractRecurrenceKeepsVocabularyOrder(t *testing.T) {
	info := Extract("Take every 6 hours, twice daily if needed, every day")
	assert.Equal(t, []string{"daily", "twice", "every", "hours"}, info.RecurrencePatterns)
}

func TestExtractIsIdempotent(t *testing.T) {
	text := "Patient, 45 years old, follow-up on 2024-05-01 at 10:30 AM, then weekly"
	first := Extract(text)
	second := Extract(text)
	assert.Equal(t, first, second)
}

func TestEntities(t *testing.T) {
	got := Entities(pkg.TemporalInfo{
		Dates: []string{"next Tuesday"},
		Times: []string{"2 PM"},
		Age:   "45 years old",
	})

	require.Len(t, got, 3)
	assert.Equal(t, "age", got[0].RawLabel)
	assert.Equal(t, pkg.CategoryPatient, got[0].Category)
	assert.Equal(t, "date", got[1].RawLabel)
	assert.Equal(t, "time", got[2].RawLabel)
	for _, e := range got {
		assert.Equal(t, pkg.SourcePattern, e.Source)
	}
}
