package stages

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/reviewd/internal/classify"
	"github.com/veridocs/reviewd/internal/convert"
	"github.com/veridocs/reviewd/internal/extractor"
	"github.com/veridocs/reviewd/internal/report"
	"github.com/veridocs/reviewd/internal/session"
	"github.com/veridocs/reviewd/internal/store"
	"github.com/veridocs/reviewd/internal/validation"
)

// fakeExtractor emits one canned field per document whose content
// contains its trigger string.
type fakeExtractor struct {
	family  extractor.Family
	trigger string
	field   extractor.ExtractedField
}

func (f *fakeExtractor) Family() extractor.Family { return f.family }

func (f *fakeExtractor) Extract(ctx context.Context, content string, images []extractor.Image, documentID string) ([]extractor.ExtractedField, error) {
	if !strings.Contains(content, f.trigger) {
		return nil, nil
	}
	out := f.field
	out.Sources = []extractor.SourceRef{{DocumentID: documentID}}
	return []extractor.ExtractedField{out}, nil
}

type env struct {
	svc     session.Service
	store   *store.FileStore
	dropDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	fs, err := store.New(store.Config{Root: t.TempDir()}, nil)
	require.NoError(t, err)

	svc, err := session.NewService(fs, nil)
	require.NoError(t, err)

	dropDir := t.TempDir()
	deps := Deps{
		Store:      fs,
		Converter:  convert.New(convert.DefaultConfig(), nil),
		Classifier: classify.New(nil),
		Extractors: []extractor.Extractor{
			&fakeExtractor{
				family:  extractor.FamilyTenure,
				trigger: "Nicholas Denman",
				field:   extractor.ExtractedField{Value: "Nicholas Denman", Subtype: "owner_name", Confidence: 0.9},
			},
			&fakeExtractor{
				family:  extractor.FamilyDates,
				trigger: "2022-03-01",
				field:   extractor.ExtractedField{Value: "2022-03-01", Subtype: "sampling_date", Confidence: 0.85},
			},
		},
		Engine:  validation.NewEngine(validation.DefaultConfig(), nil, nil),
		DropDir: dropDir,
	}
	require.NoError(t, RegisterAll(svc, deps))

	return &env{svc: svc, store: fs, dropDir: dropDir}
}

func (e *env) drop(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.dropDir, name), []byte(content), 0o644))
}

func TestRegisterAll_Validation(t *testing.T) {
	fs, err := store.New(store.Config{Root: t.TempDir()}, nil)
	require.NoError(t, err)
	svc, err := session.NewService(fs, nil)
	require.NoError(t, err)

	err = RegisterAll(svc, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestPipeline_EndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.drop(t, "land_deed.txt", "Ownership rests with Nicholas Denman.")
	e.drop(t, "lab_report.txt", "Samples were taken on 2022-03-01.")
	e.drop(t, "spreadsheet.xlsx", "binary-ish")

	sess, err := e.svc.Create(ctx, map[string]string{"project": "C06-4997"})
	require.NoError(t, err)

	for _, stage := range []session.Stage{
		session.StageInitialize,
		session.StageDiscover,
		session.StageMap,
		session.StageExtractEvidence,
		session.StageValidate,
		session.StageReport,
		session.StageHumanReview,
		session.StageComplete,
	} {
		sess, err = e.svc.Advance(ctx, sess.ID, stage)
		require.NoError(t, err, "stage %s", stage)
	}

	var rep report.Report
	require.NoError(t, e.store.GetJSON(ctx, sess.ID, ArtifactReport, &rep))

	require.Len(t, rep.Documents, 3)
	skipped := 0
	for _, d := range rep.Documents {
		if d.Skipped {
			skipped++
			assert.Equal(t, "spreadsheet.xlsx", d.Name)
			assert.Contains(t, d.SkipReason, "unsupported")
		}
	}
	assert.Equal(t, 1, skipped, "unsupported files are recorded, not fatal")

	reqNames := make([]string, 0, len(rep.Requirements))
	for _, r := range rep.Requirements {
		reqNames = append(reqNames, r.Name)
	}
	assert.Contains(t, reqNames, "land_tenure")
	assert.Contains(t, reqNames, "sampling_evidence")

	require.NotNil(t, rep.Validation)
	assert.True(t, rep.Validation.AllPassed)
}

func TestDiscover_WritesInventoryAndText(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.drop(t, "permit.txt", "Licence issued.")

	sess, err := e.svc.Create(ctx, nil)
	require.NoError(t, err)
	_, err = e.svc.Advance(ctx, sess.ID, session.StageInitialize)
	require.NoError(t, err)
	advanced, err := e.svc.Advance(ctx, sess.ID, session.StageDiscover)
	require.NoError(t, err)

	var inv Inventory
	require.NoError(t, e.store.GetJSON(ctx, sess.ID, ArtifactDocuments, &inv))
	require.Len(t, inv.Documents, 1)

	rec := inv.Documents[0]
	assert.Equal(t, "permit.txt", rec.Name)
	assert.False(t, rec.Skipped)
	assert.Equal(t, 1, rec.Pages)

	var doc convert.Document
	require.NoError(t, e.store.GetJSON(ctx, sess.ID, rec.TextArtifact, &doc))
	assert.Contains(t, doc.Text(), "Licence issued")

	assert.Contains(t, advanced.Results[session.StageDiscover].Artifacts, ArtifactDocuments)
}

func TestMap_ClassifiesAndMapsRequirements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.drop(t, "mining_permit.txt", "permit body")
	e.drop(t, "random_notes.txt", "nothing classifiable")

	sess, err := e.svc.Create(ctx, nil)
	require.NoError(t, err)
	for _, stage := range []session.Stage{session.StageInitialize, session.StageDiscover, session.StageMap} {
		_, err = e.svc.Advance(ctx, sess.ID, stage)
		require.NoError(t, err)
	}

	var inv Inventory
	require.NoError(t, e.store.GetJSON(ctx, sess.ID, ArtifactDocuments, &inv))
	var mapping Mapping
	require.NoError(t, e.store.GetJSON(ctx, sess.ID, ArtifactMapping, &mapping))

	kinds := make(map[string]classify.Kind)
	ids := make(map[string]string)
	for _, rec := range inv.Documents {
		kinds[rec.Name] = rec.Kind
		ids[rec.Name] = rec.ID
	}
	assert.Equal(t, classify.KindPermit, kinds["mining_permit.txt"])
	assert.Equal(t, classify.KindUnknown, kinds["random_notes.txt"])

	require.Len(t, mapping.Requirements["operating_permits"], 1)
	assert.Equal(t, ids["mining_permit.txt"], mapping.Requirements["operating_permits"][0])
	assert.NotContains(t, mapping.Requirements, "land_tenure")
}

func TestValidate_EmptySessionStillValid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sess, err := e.svc.Create(ctx, nil)
	require.NoError(t, err)
	for _, stage := range []session.Stage{
		session.StageInitialize,
		session.StageDiscover,
		session.StageMap,
		session.StageExtractEvidence,
		session.StageValidate,
	} {
		_, err = e.svc.Advance(ctx, sess.ID, stage)
		require.NoError(t, err, "stage %s", stage)
	}

	var result validation.Result
	require.NoError(t, e.store.GetJSON(ctx, sess.ID, ArtifactValidation, &result))
	assert.Zero(t, result.TotalValidations)
	assert.Equal(t, 1.0, result.PassRate)
	assert.True(t, result.AllPassed)
}
