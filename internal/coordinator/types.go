package coordinator

import (
	"time"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Request is the inbound risk-evaluation call (spec.md §6).
type Request struct {
	Features      map[string]float64
	Instrument    string
	Direction     vectorstore.Direction
	EntryType     string
	Timestamp     time.Time
	EntrySignalID string
	Quantity      int // default 1
	MaxStopLoss   *float64
	MaxTakeProfit *float64
	Deadline      *time.Time
}

// RecentTrades mirrors the Recent-Trade Modulator's tail-window summary in
// the response.
type RecentTrades struct {
	ConsecutiveLosses   int     `json:"consecutiveLosses"`
	RecentWinRate       float64 `json:"recentWinRate"`
	TotalRecentTrades   int     `json:"totalRecentTrades"`
	TrendfollowingError bool    `json:"trendfollowingError"`
}

// PullbackDetails is the soft-floor trailing-exit hint (spec.md §4.6 step 6).
type PullbackDetails struct {
	SoftFloor          float64 `json:"softFloor"`
	StepSize           float64 `json:"stepSize"`
	MaxProfitEstimate  float64 `json:"maxProfitEstimate"`
	ThresholdDropPercent float64 `json:"thresholdDropPercent"`
}

// Response is the outbound risk decision (spec.md §6). On error, only
// Approved=false/Method="error_no_fallback"/Error/Message and the elapsed
// DurationMillis are meaningful — the decision's numeric fields are always
// zero and must never be treated as a real decision.
type Response struct {
	Approved        bool            `json:"approved"`
	Confidence      float64         `json:"confidence"`
	SuggestedSL     float64         `json:"suggested_sl"`
	SuggestedTP     float64         `json:"suggested_tp"`
	Method          string          `json:"method"`
	Reasons         []string        `json:"reasons"`
	RecentTrades    RecentTrades    `json:"recentTrades"`
	PullbackDetails PullbackDetails `json:"pullbackDetails"`
	DurationMillis  float64         `json:"duration"`

	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// errorResponse builds the one shape an error response may take: no
// synthesised numeric fields, per spec.md §6.
func errorResponse(kind, message string, elapsed time.Duration) Response {
	return Response{
		Method:         "error_no_fallback",
		Error:          kind,
		Message:        message,
		DurationMillis: float64(elapsed.Microseconds()) / 1000.0,
	}
}
