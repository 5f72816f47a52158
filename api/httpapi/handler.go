// Package httpapi is the gateway's HTTP surface: custody-step writes in
// front of the state machine plus read-only projections of the replica and
// the reconciler.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sampletrace/internal/models"
	"sampletrace/ledger/reconcile"
	"sampletrace/ledger/statemachine"
	"sampletrace/scoring"
	"sampletrace/storage/store"
)

// Handler encapsulates the logic for handling sample HTTP requests
type Handler struct {
	machine    *statemachine.StateMachine
	store      store.Store
	reconciler *reconcile.Reconciler
	scorer     scoring.Scorer
	logger     *log.Logger
}

// NewHandler creates a new Handler. scorer may be nil when no scoring
// service is configured.
func NewHandler(machine *statemachine.StateMachine, s store.Store, r *reconcile.Reconciler, scorer scoring.Scorer, logger *log.Logger) *Handler {
	return &Handler{machine: machine, store: s, reconciler: r, scorer: scorer, logger: logger}
}

// Register attaches all routes to the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/samples", h.handleSamples)
	mux.HandleFunc("/v1/samples/", h.handleSampleSubpath)
	mux.HandleFunc("/health", h.HealthCheck)
}

// handleSamples dispatches /v1/samples (create + list)
func (h *Handler) handleSamples(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.CollectSample(w, r)
	case http.MethodGet:
		h.ListSamples(w, r)
	default:
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleSampleSubpath dispatches /v1/samples/{id}[/steps|/transactions|/reconcile]
func (h *Handler) handleSampleSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/samples/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		h.respondError(w, "sample id is required", http.StatusBadRequest)
		return
	}
	sampleID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetSample(w, r, sampleID)
	case len(parts) == 2 && parts[1] == "steps" && r.Method == http.MethodPost:
		h.ApplyStep(w, r, sampleID)
	case len(parts) == 2 && parts[1] == "transactions" && r.Method == http.MethodGet:
		h.ListTransactions(w, r, sampleID)
	case len(parts) == 2 && parts[1] == "reconcile" && r.Method == http.MethodGet:
		h.Reconcile(w, r, sampleID)
	default:
		h.respondError(w, "Not Found", http.StatusNotFound)
	}
}

// CollectSample handles POST /v1/samples requests
func (h *Handler) CollectSample(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.respondError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}

	var reqPayload struct {
		SampleID  string         `json:"sample_id,omitempty"`
		PatientID string         `json:"patient_id"`
		Details   map[string]any `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
		h.logger.Printf("HTTP Handler: Failed to parse JSON request: %v", err)
		h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if reqPayload.PatientID == "" {
		h.respondError(w, "patient_id is required", http.StatusBadRequest)
		return
	}
	if reqPayload.Details == nil {
		reqPayload.Details = map[string]any{}
	}

	sample, stepTx, err := h.machine.Collect(r.Context(), reqPayload.SampleID, reqPayload.PatientID, reqPayload.Details)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, map[string]any{
		"sample":     sample,
		"audit_id":   stepTx.ID,
		"request_id": stepTx.ID,
	}, http.StatusCreated)
}

// ApplyStep handles POST /v1/samples/{id}/steps requests
func (h *Handler) ApplyStep(w http.ResponseWriter, r *http.Request, sampleID string) {
	var reqPayload struct {
		Step     any            `json:"step"`
		Details  map[string]any `json:"details"`
		Features map[string]any `json:"features,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
		h.logger.Printf("HTTP Handler: Failed to parse JSON request: %v", err)
		h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	step, ok := parseStep(reqPayload.Step)
	if !ok {
		h.respondError(w, "step must be 2..4 or one of Transport/Sequencing/Analysis", http.StatusBadRequest)
		return
	}
	if reqPayload.Details == nil {
		reqPayload.Details = map[string]any{}
	}

	// The Analysis step carries the risk-scoring verdict. Scoring failures
	// never block the step; a degraded result is recorded instead.
	if step == models.StepAnalysis {
		h.attachScore(r, reqPayload.Details, reqPayload.Features)
	}

	sample, stepTx, err := h.machine.ApplyStep(r.Context(), sampleID, step, reqPayload.Details)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, map[string]any{
		"sample":   sample,
		"audit_id": stepTx.ID,
		"verified": sample.Timeline[len(sample.Timeline)-1].Verified,
	}, http.StatusOK)
}

// attachScore merges the scoring verdict (or the degraded fallback) into the
// Analysis step details
func (h *Handler) attachScore(r *http.Request, details, features map[string]any) {
	if _, present := details["score"]; present {
		return // caller already supplied a verdict
	}

	result := scoring.DegradedResult()
	if h.scorer != nil {
		scored, err := h.scorer.Score(r.Context(), features)
		if err != nil {
			h.logger.Printf("HTTP Handler: Scoring failed, recording degraded result: %v", err)
		} else {
			result = scored
		}
	}
	details["score"] = result.Score
	details["narrative"] = result.Narrative
	details["recommendations"] = result.Recommendations
}

// GetSample handles GET /v1/samples/{id} requests
func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request, sampleID string) {
	sample, err := h.store.GetSample(r.Context(), sampleID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, sample, http.StatusOK)
}

// ListSamples handles GET /v1/samples requests
func (h *Handler) ListSamples(w http.ResponseWriter, r *http.Request) {
	filter := store.SampleFilter{
		PatientID: r.URL.Query().Get("patient_id"),
		Status:    models.SampleStatus(r.URL.Query().Get("status")),
	}
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			h.respondError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	samples, err := h.store.ListSamples(r.Context(), filter)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, map[string]any{"samples": samples, "count": len(samples)}, http.StatusOK)
}

// ListTransactions handles GET /v1/samples/{id}/transactions requests
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request, sampleID string) {
	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, "from must be RFC3339", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, "to must be RFC3339", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	transactions, err := h.store.ListTransactions(r.Context(), sampleID, from, to)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, map[string]any{"transactions": transactions, "count": len(transactions)}, http.StatusOK)
}

// Reconcile handles GET /v1/samples/{id}/reconcile requests
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request, sampleID string) {
	report, err := h.reconciler.Check(r.Context(), sampleID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, report, http.StatusOK)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"service":   "sample-gateway",
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// respondDomainError maps typed domain errors to HTTP status codes
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var oooErr *statemachine.OutOfOrderStepError
	var writeErr *store.WriteError

	switch {
	case errors.Is(err, store.ErrSampleNotFound):
		h.respondError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &oooErr), errors.Is(err, statemachine.ErrSampleCompleted):
		h.respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, statemachine.ErrSampleExists):
		h.respondError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &writeErr):
		// The step did not progress; the client should retry
		h.logger.Printf("HTTP Handler: Replica write failed: %v", err)
		h.respondError(w, "replica store unavailable, retry the request", http.StatusServiceUnavailable)
	default:
		h.logger.Printf("HTTP Handler: Internal error: %v", err)
		h.respondError(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func parseStep(raw any) (models.StepType, bool) {
	switch v := raw.(type) {
	case float64:
		step := models.StepType(int(v))
		if step.Valid() {
			return step, true
		}
	case string:
		for step := models.StepCollection; step <= models.StepAnalysis; step++ {
			if strings.EqualFold(v, step.String()) {
				return step, true
			}
		}
	}
	return 0, false
}

// respondJSON sends JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("HTTP Handler: Failed to encode JSON response: %v", err)
		// Cannot send error to client at this point
	}
}

// respondError sends error response
func (h *Handler) respondError(w http.ResponseWriter, message string, statusCode int) {
	errorResp := map[string]any{
		"error":   message,
		"status":  statusCode,
		"message": http.StatusText(statusCode),
	}
	h.respondJSON(w, errorResp, statusCode)
}
