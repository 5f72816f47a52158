package scoring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPScorer calls the risk-scoring service over HTTP
type HTTPScorer struct {
	client *resty.Client
	logger *log.Logger
}

// NewHTTPScorer creates a scorer against the service base URL
func NewHTTPScorer(baseURL string, timeout time.Duration, logger *log.Logger) *HTTPScorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &HTTPScorer{client: client, logger: logger}
}

var _ Scorer = (*HTTPScorer)(nil)

// Score posts the feature set to the scoring endpoint
func (s *HTTPScorer) Score(ctx context.Context, features map[string]any) (*Result, error) {
	var result Result
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"features": features}).
		SetResult(&result).
		Post("/score")
	if err != nil {
		return nil, fmt.Errorf("scoring request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("scoring service returned status %d", resp.StatusCode())
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("scoring service returned invalid result: %w", err)
	}
	s.logger.Printf("Scoring service returned score %d", result.Score)
	return &result, nil
}
