// Package classify assigns document kinds from filename patterns.
package classify

import (
	"regexp"
	"strings"
)

// Kind is a document category used for requirement mapping.
type Kind string

const (
	KindDeed    Kind = "deed"
	KindPermit  Kind = "permit"
	KindSurvey  Kind = "survey"
	KindReport  Kind = "report"
	KindUnknown Kind = "unknown"
)

// Rule maps a filename regex to a kind. Higher-weight rules win when
// several match.
type Rule struct {
	Name   string  `koanf:"name"`
	Regex  string  `koanf:"regex"`
	Kind   Kind    `koanf:"kind"`
	Weight float64 `koanf:"weight"`
}

// compiledRule holds a pre-compiled rule regex.
type compiledRule struct {
	Rule
	regex *regexp.Regexp
}

// DefaultRules covers the filenames compliance packets usually carry.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "deed", Regex: `(?i)(deed|title|tenure|ownership)`, Kind: KindDeed, Weight: 0.9},
		{Name: "permit", Regex: `(?i)(permit|licen[cs]e|authori[sz]ation)`, Kind: KindPermit, Weight: 0.9},
		{Name: "survey", Regex: `(?i)(survey|sampling|lab[-_ ]?report|assay)`, Kind: KindSurvey, Weight: 0.8},
		{Name: "report", Regex: `(?i)(report|summary|assessment|audit)`, Kind: KindReport, Weight: 0.6},
	}
}

// Classifier matches filenames against an ordered rule table.
type Classifier struct {
	rules []compiledRule
}

// New compiles the rule table. Invalid regexes are skipped; with no
// rules configured the defaults apply.
func New(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledRule{Rule: r, regex: re})
	}

	return &Classifier{rules: compiled}
}

// Match is a classification outcome.
type Match struct {
	Kind       Kind    `json:"kind"`
	Rule       string  `json:"rule,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Classify returns the best-matching kind for a filename. Unmatched
// files classify as unknown with zero confidence.
func (c *Classifier) Classify(filename string) Match {
	name := strings.ToLower(filename)

	best := Match{Kind: KindUnknown}
	for _, r := range c.rules {
		if !r.regex.MatchString(name) {
			continue
		}
		if r.Weight > best.Confidence {
			best = Match{Kind: r.Kind, Rule: r.Name, Confidence: r.Weight}
		}
	}
	return best
}
