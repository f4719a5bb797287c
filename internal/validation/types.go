// Package validation checks the aggregated extracted fields of a
// session for internal consistency across three ordered layers.
package validation

import (
	"github.com/veridocs/reviewd/internal/extractor"
)

// Severity indicates how serious a finding is.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one consistency check outcome.
type Finding struct {
	CheckID  string                     `json:"check_id"`
	Severity Severity                   `json:"severity"`
	Message  string                     `json:"message"`
	Fields   []extractor.ExtractedField `json:"fields,omitempty"`
}

// Result aggregates one validation run. A session may be re-validated;
// each run produces a fresh Result that replaces the prior one.
type Result struct {
	Findings []Finding `json:"findings"`

	TotalValidations int     `json:"total_validations"`
	Passed           int     `json:"passed"`
	Warnings         int     `json:"warnings"`
	Failed           int     `json:"failed"`
	PassRate         float64 `json:"pass_rate"`
	AllPassed        bool    `json:"all_passed"`
}

// Config holds validation thresholds. All domain sentinels are
// configuration, not constants.
type Config struct {
	// MaxDateSkewDays is the largest delta between related dates before
	// a warning finding. Beyond ErrorDateSkewDays the finding is an error.
	MaxDateSkewDays   int `koanf:"max_date_skew_days"`
	ErrorDateSkewDays int `koanf:"error_date_skew_days"`

	// OwnerMatchThreshold is the minimum name similarity across
	// documents before a tenure warning.
	OwnerMatchThreshold float64 `koanf:"owner_match_threshold"`

	// IdentifierQuorum is how many documents must agree on an
	// identifier before it is treated as authoritative.
	IdentifierQuorum int `koanf:"identifier_quorum"`

	// SuspiciousIDThreshold flags numeric identifiers at or above it as
	// likely non-project data.
	SuspiciousIDThreshold int `koanf:"suspicious_id_threshold"`

	// Synthesis controls the optional LLM-assisted holistic pass.
	Synthesis SynthesisConfig `koanf:"synthesis"`
}

// SynthesisConfig controls Layer 3.
type SynthesisConfig struct {
	Enabled   bool `koanf:"enabled"`
	MaxTokens int  `koanf:"max_tokens"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDateSkewDays:       120,
		ErrorDateSkewDays:     365,
		OwnerMatchThreshold:   0.75,
		IdentifierQuorum:      3,
		SuspiciousIDThreshold: 9000,
		Synthesis: SynthesisConfig{
			Enabled:   false,
			MaxTokens: 1024,
		},
	}
}
