package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_DefaultRules(t *testing.T) {
	c := New(nil)

	tests := []struct {
		filename string
		want     Kind
	}{
		{"land_deed_2021.pdf", KindDeed},
		{"Title-Transfer.pdf", KindDeed},
		{"mining_permit.pdf", KindPermit},
		{"export-licence.txt", KindPermit},
		{"lab_report_march.pdf", KindSurvey},
		{"sampling-results.md", KindSurvey},
		{"annual_summary.pdf", KindReport},
		{"IMG_2041.jpeg", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := c.Classify(tt.filename)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassify_HighestWeightWins(t *testing.T) {
	c := New(nil)

	// Matches both the survey and report rules; survey carries more weight.
	got := c.Classify("lab_report.pdf")
	assert.Equal(t, KindSurvey, got.Kind)
	assert.Equal(t, "survey", got.Rule)
}

func TestClassify_CustomRules(t *testing.T) {
	c := New([]Rule{
		{Name: "invoice", Regex: `(?i)invoice`, Kind: Kind("invoice"), Weight: 0.9},
	})

	assert.Equal(t, Kind("invoice"), c.Classify("Invoice-443.pdf").Kind)
	assert.Equal(t, KindUnknown, c.Classify("deed.pdf").Kind,
		"custom rules replace the defaults")
}

func TestClassify_InvalidRegexSkipped(t *testing.T) {
	c := New([]Rule{
		{Name: "broken", Regex: `([`, Kind: KindDeed, Weight: 0.9},
		{Name: "ok", Regex: `permit`, Kind: KindPermit, Weight: 0.8},
	})

	assert.Equal(t, KindPermit, c.Classify("permit.pdf").Kind)
	assert.Equal(t, KindUnknown, c.Classify("deed.pdf").Kind)
}

func TestClassify_UnknownHasZeroConfidence(t *testing.T) {
	got := New(nil).Classify("random.bin")
	assert.Equal(t, KindUnknown, got.Kind)
	assert.Zero(t, got.Confidence)
	assert.Empty(t, got.Rule)
}
