// Package scoring wraps the external risk-scoring service consumed at the
// Analysis step. The ledger never depends on this collaborator succeeding:
// callers fall back to a degraded result when Score fails.
package scoring

import (
	"context"
	"fmt"
)

// Result is the scoring service's verdict for one clinical feature set
type Result struct {
	Score           int      `json:"score"` // 0..100
	Narrative       string   `json:"narrative"`
	Recommendations []string `json:"recommendations"`
}

// Scorer is the external collaborator interface
type Scorer interface {
	// Score submits the feature set and returns the verdict, or an error
	// when the service is unreachable or rejects the request
	Score(ctx context.Context, features map[string]any) (*Result, error)
}

// DegradedResult is the fallback used when the scoring service fails. The
// Analysis step still progresses; the narrative makes the degradation
// visible in the timeline.
func DegradedResult() *Result {
	return &Result{
		Score:           0,
		Narrative:       "risk scoring unavailable; manual review required",
		Recommendations: []string{"Repeat risk scoring once the service recovers"},
	}
}

// Validate rejects out-of-range scores coming back from the service
func (r *Result) Validate() error {
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %d out of range 0..100", r.Score)
	}
	return nil
}
