// Package report assembles the outbound review artifact from a
// session's accumulated stage outputs.
package report

import (
	"sort"
	"time"

	"github.com/veridocs/reviewd/internal/extractor"
	"github.com/veridocs/reviewd/internal/validation"
)

// Document is the report's view of one reviewed input.
type Document struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// Requirement groups the evidence gathered for one checklist item.
type Requirement struct {
	Name      string                     `json:"name"`
	Documents []string                   `json:"documents"`
	Fields    []extractor.ExtractedField `json:"fields"`
}

// Report is the final review artifact.
type Report struct {
	SessionID   string    `json:"session_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Documents    []Document                 `json:"documents"`
	Requirements []Requirement              `json:"requirements"`
	Unassigned   []extractor.ExtractedField `json:"unassigned_fields,omitempty"`
	Validation   *validation.Result         `json:"validation"`
}

// Input carries everything Build needs.
type Input struct {
	SessionID string

	Documents []Document

	// Requirements maps a requirement name to the document IDs
	// evidencing it.
	Requirements map[string][]string

	Fields     []extractor.ExtractedField
	Validation *validation.Result
}

// Build groups the extracted fields under the requirements their
// source documents map to. A field sourced from several documents
// appears under every requirement those documents evidence; fields
// whose documents map to nothing land in Unassigned.
func Build(in Input) *Report {
	rep := &Report{
		SessionID:   in.SessionID,
		GeneratedAt: time.Now().UTC(),
		Documents:   in.Documents,
		Validation:  in.Validation,
	}
	if rep.Documents == nil {
		rep.Documents = []Document{}
	}

	// Invert the mapping to answer "which requirements does this
	// document evidence".
	reqsByDoc := make(map[string][]string)
	for req, docs := range in.Requirements {
		for _, id := range docs {
			reqsByDoc[id] = append(reqsByDoc[id], req)
		}
	}

	grouped := make(map[string][]extractor.ExtractedField)
	for _, f := range in.Fields {
		reqs := make(map[string]bool)
		for _, src := range f.Sources {
			for _, req := range reqsByDoc[src.DocumentID] {
				reqs[req] = true
			}
		}
		if len(reqs) == 0 {
			rep.Unassigned = append(rep.Unassigned, f)
			continue
		}
		for req := range reqs {
			grouped[req] = append(grouped[req], f)
		}
	}

	names := make([]string, 0, len(in.Requirements))
	for req := range in.Requirements {
		names = append(names, req)
	}
	sort.Strings(names)

	rep.Requirements = make([]Requirement, 0, len(names))
	for _, req := range names {
		docs := append([]string(nil), in.Requirements[req]...)
		sort.Strings(docs)

		fields := grouped[req]
		sort.Slice(fields, func(i, j int) bool {
			if fields[i].Subtype != fields[j].Subtype {
				return fields[i].Subtype < fields[j].Subtype
			}
			return fields[i].Value < fields[j].Value
		})
		if fields == nil {
			fields = []extractor.ExtractedField{}
		}

		rep.Requirements = append(rep.Requirements, Requirement{
			Name:      req,
			Documents: docs,
			Fields:    fields,
		})
	}

	return rep
}
