// Package classify adapts an external pretrained toxicity model into the
// moderation pipeline. The model runs out of process (a Detoxify-style
// scoring sidecar reached over HTTP); this package owns the wire format
// and the error taxonomy the pipeline degrades on.
package classify

import (
	"errors"
	"fmt"
)

// Scores maps category names to probabilities in [0, 1], e.g.
// {"toxicity": 0.92, "insult": 0.88}. Produced once per message and
// never persisted.
type Scores map[string]float64

// ErrModelUnavailable is returned when the scoring model never
// initialized. Callers degrade to lexical-only moderation.
var ErrModelUnavailable = errors.New("classify: model unavailable")

// ScoringError reports a per-call inference failure for one input, e.g.
// malformed text the model rejects. It affects only that message; the
// model itself is still considered healthy.
type ScoringError struct {
	Cause error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("classify: scoring failed: %v", e.Cause)
}

func (e *ScoringError) Unwrap() error { return e.Cause }
