package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse marks a chunk response that failed schema
// validation. Per-chunk and non-fatal: the chunk contributes no fields.
var ErrMalformedResponse = errors.New("malformed extraction response")

// fieldPayload is the JSON shape the model is instructed to return.
type fieldPayload struct {
	Value         string  `json:"value"`
	Subtype       string  `json:"subtype"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
	RawText       string  `json:"raw_text"`
	Page          int     `json:"page"`
	Section       string  `json:"section"`
}

// parseFields validates a chunk response into field records. A response
// that is not a JSON array fails as a whole; individual items missing
// required keys or carrying an out-of-range confidence are filtered,
// not propagated as errors.
func parseFields(text, documentID string) ([]ExtractedField, error) {
	cleaned := stripFences(text)

	var payloads []fieldPayload
	if err := json.Unmarshal([]byte(cleaned), &payloads); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	fields := make([]ExtractedField, 0, len(payloads))
	for _, p := range payloads {
		if p.Value == "" || p.Subtype == "" {
			continue
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			continue
		}
		fields = append(fields, ExtractedField{
			Value:         p.Value,
			Subtype:       p.Subtype,
			Confidence:    p.Confidence,
			Justification: p.Justification,
			RawText:       p.RawText,
			Sources: []SourceRef{{
				DocumentID: documentID,
				Page:       p.Page,
				Section:    p.Section,
			}},
		})
	}

	return fields, nil
}

// stripFences removes markdown code fences models sometimes wrap JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
