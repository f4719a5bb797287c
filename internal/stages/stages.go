// Package stages provides the stage handlers that move a review
// session from dropped files to a finished report.
package stages

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridocs/reviewd/internal/classify"
	"github.com/veridocs/reviewd/internal/convert"
	"github.com/veridocs/reviewd/internal/extractor"
	"github.com/veridocs/reviewd/internal/intake"
	"github.com/veridocs/reviewd/internal/report"
	"github.com/veridocs/reviewd/internal/session"
	"github.com/veridocs/reviewd/internal/validation"
)

// Artifact names written by the stage handlers.
const (
	ArtifactManifest   = "manifest.json"
	ArtifactDocuments  = "documents.json"
	ArtifactMapping    = "mapping.json"
	ArtifactFields     = "fields.json"
	ArtifactValidation = "validation.json"
	ArtifactReport     = "report.json"
)

// DocumentRecord is the discover stage's inventory entry for one
// dropped file.
type DocumentRecord struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Path         string        `json:"path"`
	Kind         classify.Kind `json:"kind,omitempty"`
	Format       string        `json:"format,omitempty"`
	Pages        int           `json:"pages,omitempty"`
	TextArtifact string        `json:"text_artifact,omitempty"`
	Skipped      bool          `json:"skipped,omitempty"`
	SkipReason   string        `json:"skip_reason,omitempty"`
}

// Manifest is the initialize stage's workspace record.
type Manifest struct {
	SessionID string            `json:"session_id"`
	CreatedAt time.Time         `json:"created_at"`
	DropDir   string            `json:"drop_dir"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Inventory is the discover stage output.
type Inventory struct {
	Documents []DocumentRecord `json:"documents"`
}

// Mapping is the map stage output: requirement name to document IDs.
type Mapping struct {
	Requirements map[string][]string `json:"requirements"`
}

// FieldSet is the extract_evidence stage output.
type FieldSet struct {
	Fields []extractor.ExtractedField `json:"fields"`
}

// requirementsByKind maps document kinds to the checklist requirements
// they evidence.
var requirementsByKind = map[classify.Kind][]string{
	classify.KindDeed:   {"land_tenure"},
	classify.KindPermit: {"operating_permits"},
	classify.KindSurvey: {"sampling_evidence"},
	classify.KindReport: {"narrative_reporting"},
}

// Store is the artifact persistence the handlers need.
type Store interface {
	GetJSON(ctx context.Context, sessionID, name string, v any) error
	PutJSON(ctx context.Context, sessionID, name string, v any) error
}

// Deps carries the services the stage handlers run on.
type Deps struct {
	Store      Store
	Converter  *convert.Converter
	Classifier *classify.Classifier
	Extractors []extractor.Extractor
	Engine     *validation.Engine
	DropDir    string
	Logger     *zap.Logger
}

type handlers struct {
	Deps
}

// RegisterAll installs every machine stage on the session service.
// human_review and complete carry no machine work and stay unhandled.
func RegisterAll(svc session.Service, deps Deps) error {
	if deps.Store == nil {
		return errors.New("store is required")
	}
	if deps.Converter == nil {
		return errors.New("converter is required")
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New(nil)
	}
	if deps.Engine == nil {
		return errors.New("validation engine is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("stages")

	h := &handlers{Deps: deps}

	svc.Register(session.HandlerFunc{For: session.StageInitialize, Fn: h.initialize})
	svc.Register(session.HandlerFunc{For: session.StageDiscover, Fn: h.discover})
	svc.Register(session.HandlerFunc{For: session.StageMap, Fn: h.mapRequirements})
	svc.Register(session.HandlerFunc{For: session.StageExtractEvidence, Fn: h.extractEvidence})
	svc.Register(session.HandlerFunc{For: session.StageValidate, Fn: h.validate})
	svc.Register(session.HandlerFunc{For: session.StageReport, Fn: h.buildReport})

	return nil
}

func (h *handlers) initialize(ctx context.Context, sess *session.Session) ([]string, error) {
	manifest := Manifest{
		SessionID: sess.ID,
		CreatedAt: time.Now().UTC(),
		DropDir:   h.DropDir,
		Metadata:  sess.Metadata,
	}
	if err := h.Store.PutJSON(ctx, sess.ID, ArtifactManifest, manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return []string{ArtifactManifest}, nil
}

// discover inventories the drop directory. Conversion failures are
// contained per document: the file is recorded as skipped with a
// reason and the rest of the batch proceeds.
func (h *handlers) discover(ctx context.Context, sess *session.Session) ([]string, error) {
	paths, err := intake.Scan(h.DropDir)
	if err != nil {
		return nil, err
	}

	inv := Inventory{Documents: []DocumentRecord{}}
	artifacts := []string{ArtifactDocuments}

	for _, path := range paths {
		rec := DocumentRecord{
			ID:   "doc-" + uuid.New().String(),
			Name: filepath.Base(path),
			Path: path,
		}

		doc, err := h.Converter.Convert(path)
		if err != nil {
			rec.Skipped = true
			rec.SkipReason = err.Error()
			h.Logger.Warn("document skipped",
				zap.String("session_id", sess.ID),
				zap.String("file", rec.Name),
				zap.Error(err),
			)
			inv.Documents = append(inv.Documents, rec)
			continue
		}

		rec.Format = doc.Format
		rec.Pages = len(doc.Pages)
		rec.TextArtifact = rec.ID + ".json"
		if err := h.Store.PutJSON(ctx, sess.ID, rec.TextArtifact, doc); err != nil {
			return nil, fmt.Errorf("write document text: %w", err)
		}
		artifacts = append(artifacts, rec.TextArtifact)
		inv.Documents = append(inv.Documents, rec)
	}

	if err := h.Store.PutJSON(ctx, sess.ID, ArtifactDocuments, inv); err != nil {
		return nil, fmt.Errorf("write inventory: %w", err)
	}

	h.Logger.Info("documents discovered",
		zap.String("session_id", sess.ID),
		zap.Int("count", len(inv.Documents)),
	)
	return artifacts, nil
}

func (h *handlers) mapRequirements(ctx context.Context, sess *session.Session) ([]string, error) {
	var inv Inventory
	if err := h.Store.GetJSON(ctx, sess.ID, ArtifactDocuments, &inv); err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	mapping := Mapping{Requirements: make(map[string][]string)}
	for i := range inv.Documents {
		rec := &inv.Documents[i]
		if rec.Skipped {
			continue
		}

		match := h.Classifier.Classify(rec.Name)
		rec.Kind = match.Kind
		for _, req := range requirementsByKind[match.Kind] {
			mapping.Requirements[req] = append(mapping.Requirements[req], rec.ID)
		}
	}

	// Classification is recorded back onto the inventory.
	if err := h.Store.PutJSON(ctx, sess.ID, ArtifactDocuments, inv); err != nil {
		return nil, fmt.Errorf("update inventory: %w", err)
	}
	if err := h.Store.PutJSON(ctx, sess.ID, ArtifactMapping, mapping); err != nil {
		return nil, fmt.Errorf("write mapping: %w", err)
	}
	return []string{ArtifactMapping, ArtifactDocuments}, nil
}

func (h *handlers) extractEvidence(ctx context.Context, sess *session.Session) ([]string, error) {
	var inv Inventory
	if err := h.Store.GetJSON(ctx, sess.ID, ArtifactDocuments, &inv); err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	set := FieldSet{Fields: []extractor.ExtractedField{}}
	for _, rec := range inv.Documents {
		if rec.Skipped {
			continue
		}

		var doc convert.Document
		if err := h.Store.GetJSON(ctx, sess.ID, rec.TextArtifact, &doc); err != nil {
			return nil, fmt.Errorf("load document text %s: %w", rec.Name, err)
		}

		content := doc.Text()
		for _, ex := range h.Extractors {
			fields, err := ex.Extract(ctx, content, nil, rec.ID)
			if err != nil {
				return nil, fmt.Errorf("extract %s from %s: %w", ex.Family(), rec.Name, err)
			}
			set.Fields = append(set.Fields, fields...)
		}
	}

	if err := h.Store.PutJSON(ctx, sess.ID, ArtifactFields, set); err != nil {
		return nil, fmt.Errorf("write fields: %w", err)
	}

	h.Logger.Info("evidence extracted",
		zap.String("session_id", sess.ID),
		zap.Int("fields", len(set.Fields)),
	)
	return []string{ArtifactFields}, nil
}

func (h *handlers) validate(ctx context.Context, sess *session.Session) ([]string, error) {
	var set FieldSet
	if err := h.Store.GetJSON(ctx, sess.ID, ArtifactFields, &set); err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}

	result, err := h.Engine.Validate(ctx, set.Fields)
	if err != nil {
		return nil, err
	}

	if err := h.Store.PutJSON(ctx, sess.ID, ArtifactValidation, result); err != nil {
		return nil, fmt.Errorf("write validation result: %w", err)
	}
	return []string{ArtifactValidation}, nil
}

func (h *handlers) buildReport(ctx context.Context, sess *session.Session) ([]string, error) {
	var inv Inventory
	if err := h.Store.GetJSON(ctx, sess.ID, ArtifactDocuments, &inv); err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	var mapping Mapping
	if err := h.Store.GetJSON(ctx, sess.ID, ArtifactMapping, &mapping); err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	var set FieldSet
	if err := h.Store.GetJSON(ctx, sess.ID, ArtifactFields, &set); err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	var result validation.Result
	if err := h.Store.GetJSON(ctx, sess.ID, ArtifactValidation, &result); err != nil {
		return nil, fmt.Errorf("load validation result: %w", err)
	}

	docs := make([]report.Document, 0, len(inv.Documents))
	for _, rec := range inv.Documents {
		docs = append(docs, report.Document{
			ID:         rec.ID,
			Name:       rec.Name,
			Kind:       string(rec.Kind),
			Skipped:    rec.Skipped,
			SkipReason: rec.SkipReason,
		})
	}

	rep := report.Build(report.Input{
		SessionID:    sess.ID,
		Documents:    docs,
		Requirements: mapping.Requirements,
		Fields:       set.Fields,
		Validation:   &result,
	})

	if err := h.Store.PutJSON(ctx, sess.ID, ArtifactReport, rep); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return []string{ArtifactReport}, nil
}

