package scoring

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[TEST] ", log.LstdFlags)
}

func TestScoreSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":72,"narrative":"elevated risk","recommendations":["follow-up in 3 months"]}`))
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, 2*time.Second, testLogger())
	result, err := scorer.Score(context.Background(), map[string]any{"age": 54})
	require.NoError(t, err)

	assert.Equal(t, 72, result.Score)
	assert.Equal(t, "elevated risk", result.Narrative)
	assert.Len(t, result.Recommendations, 1)
}

func TestScoreServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, 2*time.Second, testLogger())
	_, err := scorer.Score(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestScoreOutOfRangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":140,"narrative":"bogus","recommendations":[]}`))
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, 2*time.Second, testLogger())
	_, err := scorer.Score(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestDegradedResult(t *testing.T) {
	result := DegradedResult()
	require.NoError(t, result.Validate())
	assert.NotEmpty(t, result.Narrative)
}
