package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/veridocs/reviewd/internal/extractor"
	"github.com/veridocs/reviewd/internal/llm"
)

const synthesisSystemPrompt = `You are a compliance reviewer. You receive the fields extracted from a
set of project documents together with the deterministic findings already raised.
Look for holistic inconsistencies the rule checks cannot see, such as a narrative
that contradicts the extracted dates or an ownership story that does not hang together.

Respond with ONLY a JSON array. Each element:
{"check_id": "synthesis.<short_name>", "severity": "info"|"warning", "message": "<one sentence>"}

Return [] when nothing stands out. Never repeat a finding already listed.`

// layerSynthesis runs the optional LLM-assisted holistic pass. It is
// advisory: any failure is logged and the run continues with the
// deterministic findings. Synthesis never raises error-severity
// findings, so it cannot flip all_passed on its own.
func (e *Engine) layerSynthesis(ctx context.Context, r *run, fields []extractor.ExtractedField) {
	if !e.cfg.Synthesis.Enabled {
		return
	}
	if e.client == nil || !e.client.Available() {
		e.logger.Warn("synthesis enabled but no llm client available")
		return
	}
	if len(fields) == 0 {
		return
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		System:        synthesisSystemPrompt,
		Content:       synthesisContent(fields, r.findings),
		MaxTokens:     e.cfg.Synthesis.MaxTokens,
		Deterministic: true,
	})
	if err != nil {
		e.logger.Warn("synthesis pass failed", zap.Error(err))
		return
	}

	findings, err := parseSynthesisFindings(resp.Text)
	if err != nil {
		e.logger.Warn("synthesis response unparseable", zap.Error(err))
		return
	}

	for _, f := range findings {
		r.record(f)
	}
}

func synthesisContent(fields []extractor.ExtractedField, findings []Finding) string {
	var b strings.Builder
	b.WriteString("Extracted fields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s = %q (confidence %.2f", f.Subtype, f.Value, f.Confidence)
		for _, s := range f.Sources {
			fmt.Fprintf(&b, ", from %s", s.DocumentID)
		}
		b.WriteString(")\n")
	}

	b.WriteString("\nDeterministic findings so far:\n")
	if len(findings) == 0 {
		b.WriteString("- none\n")
	}
	for _, f := range findings {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Severity, f.CheckID, f.Message)
	}
	return b.String()
}

type synthesisPayload struct {
	CheckID  string `json:"check_id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// parseSynthesisFindings decodes the model's JSON array, dropping
// malformed items and clamping severities to warning at most.
func parseSynthesisFindings(text string) ([]Finding, error) {
	cleaned := stripSynthesisFences(text)

	var payload []synthesisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("decode synthesis response: %w", err)
	}

	var out []Finding
	for _, p := range payload {
		if p.Message == "" {
			continue
		}
		checkID := p.CheckID
		if checkID == "" {
			checkID = "synthesis.observation"
		}
		sev := SeverityInfo
		if p.Severity == string(SeverityWarning) || p.Severity == string(SeverityError) {
			sev = SeverityWarning
		}
		out = append(out, Finding{CheckID: checkID, Severity: sev, Message: p.Message})
	}
	return out, nil
}

func stripSynthesisFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
