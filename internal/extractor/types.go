// Package extractor turns unstructured document content into typed,
// confidence-scored field records via the LLM client adapter. One
// extractor instance serves one field family (dates, tenure,
// identifiers).
package extractor

import "context"

// Family identifies the field family an extractor produces.
type Family string

const (
	// FamilyDates covers project, sampling, and issuance dates.
	FamilyDates Family = "dates"

	// FamilyTenure covers land tenure and ownership fields.
	FamilyTenure Family = "tenure"

	// FamilyIdentifiers covers project and registration identifiers.
	FamilyIdentifiers Family = "identifiers"
)

// AllFamilies returns the extractor families in run order.
func AllFamilies() []Family {
	return []Family{FamilyDates, FamilyTenure, FamilyIdentifiers}
}

// SourceRef points at where a field value was observed.
type SourceRef struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page,omitempty"`
	Section    string `json:"section,omitempty"`
}

// ExtractedField is one typed observation. Immutable once created;
// deduplication produces merged copies rather than mutating inputs.
type ExtractedField struct {
	Value         string      `json:"value"`
	Subtype       string      `json:"subtype"`
	Confidence    float64     `json:"confidence"`
	Sources       []SourceRef `json:"sources"`
	Justification string      `json:"justification,omitempty"`
	RawText       string      `json:"raw_text,omitempty"`
}

// Extractor is the public contract for one field family.
type Extractor interface {
	// Family returns the field family this extractor produces.
	Family() Family

	// Extract runs the pipeline over one document's content. A chunk
	// whose call exhausts retries or returns malformed output
	// contributes no fields; the call still returns the other chunks'
	// fields. Provider auth and bad-request errors surface immediately.
	Extract(ctx context.Context, content string, images []Image, documentID string) ([]ExtractedField, error)
}

// Image aliases the llm image type so stage handlers need only one import.
type Image struct {
	MediaType string
	Data      []byte
}

// Config holds extraction tuning. Pass it explicitly into constructors;
// there are no ambient globals.
type Config struct {
	// ChunkSize is the target chunk length in characters. Content at or
	// below it is sent in one call.
	ChunkSize int `koanf:"chunk_size"`

	// ChunkOverlap is the fixed character overlap between consecutive
	// chunks so cross-boundary facts are not lost.
	ChunkOverlap int `koanf:"chunk_overlap"`

	// BoundaryLookBack bounds the backward search for a paragraph,
	// sentence, or word boundary before falling back to a hard cut.
	BoundaryLookBack int `koanf:"boundary_look_back"`

	// ConfidenceThreshold drops fields scored below it.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// DedupThreshold is the similarity score at or above which two
	// identity-bearing fields merge.
	DedupThreshold float64 `koanf:"dedup_threshold"`

	// MaxInFlight bounds concurrent chunk calls per extraction.
	MaxInFlight int `koanf:"max_in_flight"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           12000,
		ChunkOverlap:        200,
		BoundaryLookBack:    2000,
		ConfidenceThreshold: 0.7,
		DedupThreshold:      0.75,
		MaxInFlight:         4,
	}
}
