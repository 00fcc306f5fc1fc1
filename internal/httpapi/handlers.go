package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/riskcore-io/riskcore/internal/coordinator"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// evaluateRequest is the wire shape of spec.md §6's inbound risk
// evaluation request.
type evaluateRequest struct {
	Features      map[string]float64 `json:"features"`
	Instrument    string              `json:"instrument"`
	Direction     string              `json:"direction"`
	EntryType     string              `json:"entryType"`
	Timestamp     *time.Time          `json:"timestamp"`
	EntrySignalID string              `json:"entrySignalId"`
	Quantity      int                 `json:"quantity"`
	MaxStopLoss   *float64            `json:"maxStopLoss"`
	MaxTakeProfit *float64            `json:"maxTakeProfit"`
	DeadlineMs    *int64              `json:"deadlineMs"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": string("FEATURE_PARSE_ERROR"), "message": err.Error(), "method": "error_no_fallback",
		})
		return
	}

	req := coordinator.Request{
		Features:      body.Features,
		Instrument:    body.Instrument,
		Direction:     vectorstore.Direction(body.Direction),
		EntryType:     body.EntryType,
		EntrySignalID: body.EntrySignalID,
		Quantity:      body.Quantity,
		MaxStopLoss:   body.MaxStopLoss,
		MaxTakeProfit: body.MaxTakeProfit,
	}
	if body.Timestamp != nil {
		req.Timestamp = *body.Timestamp
	} else {
		req.Timestamp = time.Now().UTC()
	}
	if body.DeadlineMs != nil {
		deadline := time.Now().Add(time.Duration(*body.DeadlineMs) * time.Millisecond)
		req.Deadline = &deadline
	}

	resp := s.coordinator.Evaluate(r.Context(), req)

	status := http.StatusOK
	if resp.Method == "error_no_fallback" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

type outcomeRequest struct {
	EntrySignalID      string             `json:"entrySignalId"`
	Instrument         string             `json:"instrument"`
	Direction          string             `json:"direction"`
	EntryType          string             `json:"entryType"`
	Timestamp          *time.Time         `json:"timestamp"`
	PnL                float64            `json:"pnl"`
	PnLPerContract     *float64           `json:"pnlPerContract"`
	MaxProfit          float64            `json:"maxProfit"`
	MaxLoss            float64            `json:"maxLoss"`
	Features           map[string]float64 `json:"features"`
	DecisionConfidence float64            `json:"decisionConfidence"`
	DecisionMembership float64            `json:"decisionMembership"`
}

func (s *Server) handleSubmitOutcome(w http.ResponseWriter, r *http.Request) {
	var body outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "FEATURE_PARSE_ERROR", "message": err.Error()})
		return
	}

	ts := time.Now().UTC()
	if body.Timestamp != nil {
		ts = *body.Timestamp
	}

	err := s.coordinator.SubmitOutcome(r.Context(), coordinator.OutcomeRequest{
		EntrySignalID:      body.EntrySignalID,
		Instrument:         body.Instrument,
		Direction:          vectorstore.Direction(body.Direction),
		EntryType:          body.EntryType,
		Timestamp:          ts,
		PnL:                body.PnL,
		PnLPerContract:     body.PnLPerContract,
		MaxProfit:          body.MaxProfit,
		MaxLoss:            body.MaxLoss,
		Features:           body.Features,
		DecisionConfidence: body.DecisionConfidence,
		DecisionMembership: body.DecisionMembership,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "STORE_UNAVAILABLE", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type healthStatus struct {
	Status        string `json:"status"`
	BreakerState  string `json:"breakerState,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok"}
	if s.breakerState != nil {
		status.BreakerState = s.breakerState()
		if status.BreakerState == "open" {
			status.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
