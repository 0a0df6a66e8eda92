package moderation

import (
	"fmt"
	"strings"
)

// Reason identifies which signal produced a violation verdict.
type Reason string

const (
	ReasonNone              Reason = "none"
	ReasonLexicalMatch      Reason = "lexical_match"
	ReasonCategoryThreshold Reason = "category_threshold"
)

// DefaultCategories is the ordered list of monitored abuse categories.
// Order matters: the first category over its threshold wins.
var DefaultCategories = []string{"toxicity", "insult", "threat", "hate", "obscene"}

// DefaultThreshold is the score at or above which a category is
// considered violated, unless overridden per category.
const DefaultThreshold = 0.70

// Verdict is the single moderation decision for one message, plus its
// justification. It is produced by Engine.Evaluate and consumed once by
// the action executor; it is never persisted.
type Verdict struct {
	Violates bool
	Reason   Reason
	Detail   string

	// MatchedWord is set when Reason is ReasonLexicalMatch.
	MatchedWord string

	// Category and Score are set when Reason is ReasonCategoryThreshold.
	Category string
	Score    float64
}

// PolicyConfig holds the threshold configuration for an Engine. It is
// static for the lifetime of the pipeline.
type PolicyConfig struct {
	// Categories is the ordered list of categories to check.
	Categories []string

	// Thresholds overrides the default threshold per category.
	Thresholds map[string]float64

	// DefaultThreshold applies to categories without an override.
	DefaultThreshold float64
}

// DefaultPolicyConfig returns the configuration used by the original
// deployment: five monitored categories, 0.70 across the board.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Categories:       append([]string(nil), DefaultCategories...),
		DefaultThreshold: DefaultThreshold,
	}
}

// Engine combines the lexical matcher result and the classifier's
// category scores into a Verdict. It holds no per-message state; every
// evaluation is independent, so identical inputs always produce
// identical verdicts.
type Engine struct {
	config PolicyConfig
}

// NewEngine creates an Engine with the given policy configuration.
// Missing fields fall back to the defaults.
func NewEngine(config PolicyConfig) *Engine {
	if len(config.Categories) == 0 {
		config.Categories = append([]string(nil), DefaultCategories...)
	}
	if config.DefaultThreshold <= 0 {
		config.DefaultThreshold = DefaultThreshold
	}
	return &Engine{config: config}
}

// Threshold returns the effective threshold for a category.
func (e *Engine) Threshold(category string) float64 {
	if t, ok := e.config.Thresholds[category]; ok {
		return t
	}
	return e.config.DefaultThreshold
}

// Evaluate resolves the two moderation signals into a single verdict.
// Decision order, first match wins:
//
//  1. A lexical match is a violation. An exact blocklist hit is a
//     stronger and more auditable signal than a probabilistic score, so
//     it takes precedence even when scores also cross their thresholds.
//  2. The first configured category (in declared order) whose score is
//     at or above its threshold is a violation. Categories absent from
//     scores count as 0.
//  3. Otherwise the message passes.
//
// scores may be nil when the classifier was unavailable or failed for
// this message; evaluation then degrades to the lexical signal alone.
func (e *Engine) Evaluate(matchedWord string, matched bool, scores map[string]float64) Verdict {
	if matched {
		return Verdict{
			Violates:    true,
			Reason:      ReasonLexicalMatch,
			Detail:      fmt.Sprintf("banned term %q", matchedWord),
			MatchedWord: matchedWord,
		}
	}

	for _, category := range e.config.Categories {
		score := scores[category]
		if score >= e.Threshold(category) {
			return Verdict{
				Violates: true,
				Reason:   ReasonCategoryThreshold,
				Detail:   fmt.Sprintf("%s score too high (%.2f)", category, score),
				Category: category,
				Score:    score,
			}
		}
	}

	return Verdict{Reason: ReasonNone}
}

// ParseThresholds parses a "category=value,category=value" override
// string into a threshold map. Entries with malformed values or values
// outside [0,1] are rejected.
func ParseThresholds(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("moderation: malformed threshold %q", part)
		}
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(value), "%g", &f); err != nil {
			return nil, fmt.Errorf("moderation: malformed threshold value %q", part)
		}
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("moderation: threshold %q outside [0,1]", part)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = f
	}
	return out, nil
}
