package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity_NameVariants(t *testing.T) {
	assert.GreaterOrEqual(t, Similarity("Nicholas Denman", "Nick Denman"), 0.75,
		"short-form first names must score as the same person")
	assert.Less(t, Similarity("John Smith", "Jane Smith"), 0.75,
		"different first names must not merge")
	assert.Equal(t, 1.0, Similarity("Maria Lopez", "maria lopez"))
}

func TestSimilarity_SubstringContainment(t *testing.T) {
	// "Denman" inside "Nicholas Denman": 6/15.
	assert.InDelta(t, 0.4, substringOverlap("Denman", "Nicholas Denman"), 0.01)
	assert.Equal(t, 0.0, substringOverlap("Lopez", "Nicholas Denman"))
}

func TestDedupe_MergesNameVariants(t *testing.T) {
	fields := []ExtractedField{
		{Value: "Nicholas Denman", Subtype: "owner_name", Confidence: 0.92,
			Sources: []SourceRef{{DocumentID: "deed-1", Page: 1}}},
		{Value: "Nick Denman", Subtype: "owner_name", Confidence: 0.8,
			Sources: []SourceRef{{DocumentID: "permit-2", Page: 3}}},
	}

	merged := dedupe(fields, FamilyTenure, 0.75)
	require.Len(t, merged, 1)
	assert.Equal(t, "Nicholas Denman", merged[0].Value, "higher-confidence value survives")
	assert.Equal(t, 0.92, merged[0].Confidence)
	assert.Len(t, merged[0].Sources, 2, "sources are unioned")
}

func TestDedupe_DifferentPeopleStaySeparate(t *testing.T) {
	fields := []ExtractedField{
		{Value: "John Smith", Subtype: "owner_name", Confidence: 0.9,
			Sources: []SourceRef{{DocumentID: "a"}}},
		{Value: "Jane Smith", Subtype: "owner_name", Confidence: 0.9,
			Sources: []SourceRef{{DocumentID: "b"}}},
	}

	merged := dedupe(fields, FamilyTenure, 0.75)
	assert.Len(t, merged, 2)
}

func TestDedupe_SubtypesNeverCross(t *testing.T) {
	fields := []ExtractedField{
		{Value: "Nicholas Denman", Subtype: "owner_name", Confidence: 0.9},
		{Value: "Nicholas Denman", Subtype: "tenure_type", Confidence: 0.9},
	}

	merged := dedupe(fields, FamilyTenure, 0.75)
	assert.Len(t, merged, 2)
}

func TestDedupe_ExactMatchForNonIdentityFamilies(t *testing.T) {
	fields := []ExtractedField{
		{Value: "C06-4997", Subtype: "project_id", Confidence: 0.8,
			Sources: []SourceRef{{DocumentID: "a"}}},
		{Value: "C06-4997", Subtype: "project_id", Confidence: 0.95,
			Sources: []SourceRef{{DocumentID: "b"}}},
		{Value: "C06-4998", Subtype: "project_id", Confidence: 0.9,
			Sources: []SourceRef{{DocumentID: "c"}}},
	}

	merged := dedupe(fields, FamilyIdentifiers, 0.75)
	require.Len(t, merged, 2, "near-identical identifiers must NOT fuzzy-merge")

	for _, m := range merged {
		if m.Value == "C06-4997" {
			assert.Equal(t, 0.95, m.Confidence)
			assert.Len(t, m.Sources, 2)
		}
	}
}
