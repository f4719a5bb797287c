package validation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/veridocs/reviewd/internal/extractor"
	"github.com/veridocs/reviewd/internal/llm"
)

const instrumentationName = "github.com/veridocs/reviewd/internal/validation"

const dateLayout = "2006-01-02"

// Engine runs the three validation layers over a session's fields.
type Engine struct {
	cfg    Config
	client llm.Client
	logger *zap.Logger

	tracer     trace.Tracer
	meter      metric.Meter
	runCounter metric.Int64Counter
}

// NewEngine creates a validation engine. client may be nil when the
// synthesis layer is disabled.
func NewEngine(cfg Config, client llm.Client, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	applyConfigDefaults(&cfg)

	e := &Engine{
		cfg:    cfg,
		client: client,
		logger: logger.Named("validation"),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	e.runCounter, err = e.meter.Int64Counter(
		"reviewd.validation.runs_total",
		metric.WithDescription("Total number of validation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		e.logger.Warn("failed to create run counter", zap.Error(err))
	}

	return e
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.MaxDateSkewDays <= 0 {
		cfg.MaxDateSkewDays = def.MaxDateSkewDays
	}
	if cfg.ErrorDateSkewDays <= 0 {
		cfg.ErrorDateSkewDays = def.ErrorDateSkewDays
	}
	if cfg.OwnerMatchThreshold <= 0 {
		cfg.OwnerMatchThreshold = def.OwnerMatchThreshold
	}
	if cfg.IdentifierQuorum <= 0 {
		cfg.IdentifierQuorum = def.IdentifierQuorum
	}
	if cfg.SuspiciousIDThreshold <= 0 {
		cfg.SuspiciousIDThreshold = def.SuspiciousIDThreshold
	}
	if cfg.Synthesis.MaxTokens <= 0 {
		cfg.Synthesis.MaxTokens = def.Synthesis.MaxTokens
	}
}

// run accumulates executed checks and findings. Passed checks are
// counted but silent; info findings are informational and never reduce
// the passed count.
type run struct {
	total    int
	findings []Finding
}

func (r *run) pass() { r.total++ }

func (r *run) note(f Finding) {
	r.findings = append(r.findings, f)
}

func (r *run) record(f Finding) {
	r.total++
	r.findings = append(r.findings, f)
}

// Validate runs all layers over the given fields. Zero input is valid
// and produces an empty result, not an error.
func (e *Engine) Validate(ctx context.Context, fields []extractor.ExtractedField) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "validation.validate")
	defer span.End()
	span.SetAttributes(attribute.Int("field_count", len(fields)))

	r := &run{}

	e.layerStructural(r, fields)
	e.layerCrossDocument(r, fields)
	e.layerSynthesis(ctx, r, fields)

	result := summarize(r)

	if e.runCounter != nil {
		e.runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("all_passed", result.AllPassed),
		))
	}
	e.logger.Info("validation run complete",
		zap.Int("total", result.TotalValidations),
		zap.Int("failed", result.Failed),
		zap.Int("warnings", result.Warnings),
	)

	span.SetAttributes(attribute.Int("total_validations", result.TotalValidations))
	return result, nil
}

// layerStructural runs per-field rule checks independent of other
// documents. Always runs.
func (e *Engine) layerStructural(r *run, fields []extractor.ExtractedField) {
	for _, f := range fields {
		switch {
		case isDateSubtype(f.Subtype):
			if _, err := time.Parse(dateLayout, f.Value); err != nil {
				r.record(Finding{
					CheckID:  "structural.date_format",
					Severity: SeverityError,
					Message:  fmt.Sprintf("%s value %q is not a valid ISO date", f.Subtype, f.Value),
					Fields:   []extractor.ExtractedField{f},
				})
			} else {
				r.pass()
			}

		case f.Subtype == "ownership_share":
			pct, err := strconv.ParseFloat(f.Value, 64)
			if err != nil || pct < 0 || pct > 100 {
				r.record(Finding{
					CheckID:  "structural.percentage_range",
					Severity: SeverityError,
					Message:  fmt.Sprintf("ownership share %q is not a percentage in [0,100]", f.Value),
					Fields:   []extractor.ExtractedField{f},
				})
			} else {
				r.pass()
			}

		case isIdentifierSubtype(f.Subtype):
			if len(f.Value) < 2 {
				r.record(Finding{
					CheckID:  "structural.identifier_format",
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("%s value %q is implausibly short", f.Subtype, f.Value),
					Fields:   []extractor.ExtractedField{f},
				})
			} else {
				r.pass()
			}
		}
	}
}

// layerCrossDocument compares fields of the same subtype across
// distinct source documents. It runs only when at least two distinct
// documents contributed fields; otherwise it records an explicit
// coverage notice instead of silently passing.
func (e *Engine) layerCrossDocument(r *run, fields []extractor.ExtractedField) {
	if countDistinctDocuments(fields) < 2 {
		r.note(Finding{
			CheckID:  "cross_document.coverage",
			Severity: SeverityInfo,
			Message:  "no cross-document checks were possible: fewer than two source documents contributed fields",
		})
		return
	}

	e.checkDateAlignment(r, fields)
	e.checkTenureConsistency(r, fields)
	e.checkIdentifierConsistency(r, fields)
}

// checkDateAlignment compares dates of the same or related subtypes
// that came from different documents.
func (e *Engine) checkDateAlignment(r *run, fields []extractor.ExtractedField) {
	var dates []extractor.ExtractedField
	for _, f := range fields {
		if isDateSubtype(f.Subtype) {
			if _, err := time.Parse(dateLayout, f.Value); err == nil {
				dates = append(dates, f)
			}
		}
	}

	for i := 0; i < len(dates); i++ {
		for j := i + 1; j < len(dates); j++ {
			a, b := dates[i], dates[j]
			if !relatedDateSubtypes(a.Subtype, b.Subtype) {
				continue
			}
			if !distinctDocuments(a, b) {
				continue
			}

			ta, _ := time.Parse(dateLayout, a.Value)
			tb, _ := time.Parse(dateLayout, b.Value)
			deltaDays := int(ta.Sub(tb).Hours() / 24)
			if deltaDays < 0 {
				deltaDays = -deltaDays
			}

			switch {
			case deltaDays <= e.cfg.MaxDateSkewDays:
				r.pass()
			case deltaDays <= e.cfg.ErrorDateSkewDays:
				r.record(Finding{
					CheckID:  "cross_document.date_alignment",
					Severity: SeverityWarning,
					Message: fmt.Sprintf("%s %s and %s %s are %d days apart (max %d)",
						a.Subtype, a.Value, b.Subtype, b.Value, deltaDays, e.cfg.MaxDateSkewDays),
					Fields: []extractor.ExtractedField{a, b},
				})
			default:
				r.record(Finding{
					CheckID:  "cross_document.date_alignment",
					Severity: SeverityError,
					Message: fmt.Sprintf("%s %s and %s %s are %d days apart (limit %d)",
						a.Subtype, a.Value, b.Subtype, b.Value, deltaDays, e.cfg.ErrorDateSkewDays),
					Fields: []extractor.ExtractedField{a, b},
				})
			}
		}
	}
}

// checkTenureConsistency fuzzy-matches owner names across documents.
func (e *Engine) checkTenureConsistency(r *run, fields []extractor.ExtractedField) {
	var owners []extractor.ExtractedField
	for _, f := range fields {
		if f.Subtype == "owner_name" {
			owners = append(owners, f)
		}
	}

	for i := 0; i < len(owners); i++ {
		for j := i + 1; j < len(owners); j++ {
			a, b := owners[i], owners[j]
			if !distinctDocuments(a, b) {
				continue
			}
			if extractor.Similarity(a.Value, b.Value) >= e.cfg.OwnerMatchThreshold {
				r.pass()
			} else {
				r.record(Finding{
					CheckID:  "cross_document.land_tenure",
					Severity: SeverityWarning,
					Message: fmt.Sprintf("owner names %q and %q do not match across documents",
						a.Value, b.Value),
					Fields: []extractor.ExtractedField{a, b},
				})
			}
		}
	}
}

// checkIdentifierConsistency treats an identifier seen in enough
// documents as authoritative and flags conflicts and out-of-range
// numeric identifiers.
func (e *Engine) checkIdentifierConsistency(r *run, fields []extractor.ExtractedField) {
	bySubtype := make(map[string][]extractor.ExtractedField)
	for _, f := range fields {
		if isIdentifierSubtype(f.Subtype) {
			bySubtype[f.Subtype] = append(bySubtype[f.Subtype], f)
		}
	}

	subtypes := make([]string, 0, len(bySubtype))
	for st := range bySubtype {
		subtypes = append(subtypes, st)
	}
	sort.Strings(subtypes)

	for _, st := range subtypes {
		ids := bySubtype[st]

		// Distinct documents per value.
		docsByValue := make(map[string]map[string]bool)
		for _, f := range ids {
			if docsByValue[f.Value] == nil {
				docsByValue[f.Value] = make(map[string]bool)
			}
			for _, s := range f.Sources {
				docsByValue[f.Value][s.DocumentID] = true
			}
		}

		if countSubtypeDocuments(ids) >= 2 {
			authoritative := ""
			best := 0
			values := make([]string, 0, len(docsByValue))
			for v, docs := range docsByValue {
				values = append(values, v)
				if len(docs) > best {
					authoritative, best = v, len(docs)
				}
			}
			sort.Strings(values)

			if best >= e.cfg.IdentifierQuorum {
				conflict := false
				for _, v := range values {
					if v == authoritative {
						continue
					}
					conflict = true
					r.record(Finding{
						CheckID:  "cross_document.identifier_conflict",
						Severity: SeverityError,
						Message: fmt.Sprintf("%s %q conflicts with authoritative value %q (seen in %d documents)",
							st, v, authoritative, best),
						Fields: fieldsWithValues(ids, authoritative, v),
					})
				}
				if !conflict {
					r.pass()
				}
			} else if len(values) > 1 {
				r.record(Finding{
					CheckID:  "cross_document.identifier_conflict",
					Severity: SeverityWarning,
					Message: fmt.Sprintf("%s has %d differing values and no authoritative quorum",
						st, len(values)),
					Fields: ids,
				})
			} else {
				r.pass()
			}
		}

		// Suspicious numeric range, one check per distinct value.
		seen := make(map[string]bool)
		for _, f := range ids {
			if seen[f.Value] {
				continue
			}
			seen[f.Value] = true
			if n, ok := trailingNumber(f.Value); ok && n >= e.cfg.SuspiciousIDThreshold {
				r.record(Finding{
					CheckID:  "cross_document.identifier_range",
					Severity: SeverityWarning,
					Message: fmt.Sprintf("%s %q carries numeric component %d at or above the suspicious threshold %d; likely non-project data",
						st, f.Value, n, e.cfg.SuspiciousIDThreshold),
					Fields: []extractor.ExtractedField{f},
				})
			} else {
				r.pass()
			}
		}
	}
}

// summarize derives the counts. pass_rate is 1.0 for an empty run.
func summarize(r *run) *Result {
	warnings, failed := 0, 0
	for _, f := range r.findings {
		switch f.Severity {
		case SeverityWarning:
			warnings++
		case SeverityError:
			failed++
		}
	}

	passed := r.total - warnings - failed
	passRate := 1.0
	if r.total > 0 {
		passRate = float64(passed) / float64(r.total)
	}

	findings := r.findings
	if findings == nil {
		findings = []Finding{}
	}

	return &Result{
		Findings:         findings,
		TotalValidations: r.total,
		Passed:           passed,
		Warnings:         warnings,
		Failed:           failed,
		PassRate:         passRate,
		AllPassed:        failed == 0,
	}
}

// Subtype helpers.

func isDateSubtype(subtype string) bool {
	switch subtype {
	case "project_start_date", "sampling_date", "issuance_date", "expiry_date":
		return true
	}
	return false
}

func isIdentifierSubtype(subtype string) bool {
	switch subtype {
	case "project_id", "certificate_number", "registration_number":
		return true
	}
	return false
}

// relatedDateSubtypes reports whether two date subtypes should align.
// Same-subtype dates always align; project start and sampling dates are
// the configured related pair in this domain.
func relatedDateSubtypes(a, b string) bool {
	if a == b {
		return true
	}
	return (a == "project_start_date" && b == "sampling_date") ||
		(a == "sampling_date" && b == "project_start_date")
}

func distinctDocuments(a, b extractor.ExtractedField) bool {
	for _, sa := range a.Sources {
		for _, sb := range b.Sources {
			if sa.DocumentID != sb.DocumentID {
				return true
			}
		}
	}
	return false
}

func countDistinctDocuments(fields []extractor.ExtractedField) int {
	docs := make(map[string]bool)
	for _, f := range fields {
		for _, s := range f.Sources {
			docs[s.DocumentID] = true
		}
	}
	return len(docs)
}

func countSubtypeDocuments(fields []extractor.ExtractedField) int {
	docs := make(map[string]bool)
	for _, f := range fields {
		for _, s := range f.Sources {
			docs[s.DocumentID] = true
		}
	}
	return len(docs)
}

func fieldsWithValues(fields []extractor.ExtractedField, values ...string) []extractor.ExtractedField {
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	var out []extractor.ExtractedField
	for _, f := range fields {
		if want[f.Value] {
			out = append(out, f)
		}
	}
	return out
}

var numberRun = regexp.MustCompile(`(\d+)\D*$`)

// trailingNumber extracts the last digit run of an identifier.
func trailingNumber(value string) (int, bool) {
	m := numberRun.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
