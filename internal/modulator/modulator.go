// Package modulator implements the Recent-Trade Modulator (C6): tail-window
// analysis of a partition's most recent outcomes that can tighten risk or
// penalize confidence, but never silently rejects and never increases
// confidence (testable property 10).
package modulator

import (
	"fmt"
	"math"
	"time"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// WindowMode selects how the trailing window is bounded — an explicit,
// configured choice per spec.md §9's open question, never inferred from
// timestamps alone.
type WindowMode string

const (
	WindowModeSequence WindowMode = "sequence"  // last N by order, for backtests/heterogeneous timestamps
	WindowModeWallClock WindowMode = "wallclock" // last N within a trailing wall-clock window, live trading
)

// Config tunes the tail window and thresholds.
type Config struct {
	WindowMode        WindowMode
	WindowSize        int           // default 10
	WallClockWindow   time.Duration // default 24h
	ConsecutiveLossPenaltyThreshold int // 3
	ModeratePenalty                float64 // 0.3
	MinTradesForWinRate             int     // 5
	LowWinRateThreshold             float64 // 0.4
}

func DefaultConfig() Config {
	return Config{
		WindowMode:                      WindowModeWallClock,
		WindowSize:                      10,
		WallClockWindow:                 24 * time.Hour,
		ConsecutiveLossPenaltyThreshold: 3,
		ModeratePenalty:                 0.3,
		MinTradesForWinRate:             5,
		LowWinRateThreshold:             0.4,
	}
}

// Metrics is the tail-window analysis result.
type Metrics struct {
	ConsecutiveLosses     int
	WinRate               float64
	TotalTrades           int
	AvgAbsLoss            float64
	AvgMaxProfit          float64
	SameDirectionLosses   int
	TrendfollowingError   bool
}

// AdjustmentKind is the closed set of modulator adjustments.
type AdjustmentKind string

const (
	AdjustNone           AdjustmentKind = ""
	AdjustTighterRisk    AdjustmentKind = "tighter_risk"
	AdjustUltraTightRisk AdjustmentKind = "ultra_tight_risk"
	AdjustCautiousRisk   AdjustmentKind = "cautious_risk"
)

// Adjustment is what the coordinator should apply on top of an evaluator's
// raw Decision. SuggestedSL/TP are in points (per spec.md S4, converted to
// currency by the coordinator); zero means "no override".
type Adjustment struct {
	Kind              AdjustmentKind
	SuggestedSLPoints float64
	SuggestedTPPoints float64
	ConfidencePenalty float64
	Reason            string
}

// Modulator is C6.
type Modulator struct {
	cfg Config
}

func New(cfg Config) *Modulator {
	return &Modulator{cfg: cfg}
}

// Window selects the trailing outcomes to analyze for (instrument,
// direction): the last WindowSize by sequence, or those strictly before
// asOf within WallClockWindow, per cfg.WindowMode.
func (m *Modulator) Window(vectors []vectorstore.Vector, direction vectorstore.Direction, asOf time.Time) []vectorstore.Vector {
	var matching []vectorstore.Vector
	for _, v := range vectors {
		if v.Direction != direction {
			continue
		}
		matching = append(matching, v)
	}

	if m.cfg.WindowMode == WindowModeSequence {
		if len(matching) > m.cfg.WindowSize {
			matching = matching[len(matching)-m.cfg.WindowSize:]
		}
		return matching
	}

	cutoff := asOf.Add(-m.cfg.WallClockWindow)
	var windowed []vectorstore.Vector
	for _, v := range matching {
		if v.Timestamp.Before(asOf) && !v.Timestamp.Before(cutoff) {
			windowed = append(windowed, v)
		}
	}
	if len(windowed) > m.cfg.WindowSize {
		windowed = windowed[len(windowed)-m.cfg.WindowSize:]
	}
	return windowed
}

// Analyze computes the tail-window metrics over window, newest-last.
func (m *Modulator) Analyze(window []vectorstore.Vector, direction vectorstore.Direction) Metrics {
	var metrics Metrics
	metrics.TotalTrades = len(window)
	if len(window) == 0 {
		return metrics
	}

	for i := len(window) - 1; i >= 0; i-- {
		if window[i].IsLoss() {
			metrics.ConsecutiveLosses++
		} else {
			break
		}
	}

	wins := 0
	var losses []vectorstore.Vector
	var maxProfits []float64
	for _, v := range window {
		if v.IsWin() {
			wins++
		}
		if v.IsLoss() {
			losses = append(losses, v)
		}
		maxProfits = append(maxProfits, v.MaxProfit)
	}
	metrics.WinRate = float64(wins) / float64(len(window))
	metrics.AvgMaxProfit = average(maxProfits)

	var absLosses []float64
	for _, l := range losses {
		absLosses = append(absLosses, math.Abs(l.EffectivePnL()))
	}
	metrics.AvgAbsLoss = average(absLosses)

	sameDir := 0
	for i := len(window) - 1; i >= 0 && i >= len(window)-metrics.ConsecutiveLosses; i-- {
		if window[i].IsLoss() && window[i].Direction == direction {
			sameDir++
		}
	}
	metrics.SameDirectionLosses = sameDir
	metrics.TrendfollowingError = metrics.ConsecutiveLosses >= 2 && metrics.SameDirectionLosses >= 2

	return metrics
}

// Adjust derives the (never-rejecting) adjustment from metrics, per
// spec.md §4.5's ordered rule list. recentLossMaxProfits is the MaxProfit
// of the trades counted in ConsecutiveLosses, newest-last.
func (m *Modulator) Adjust(metrics Metrics, recentLossMaxProfits []float64) Adjustment {
	avgMaxProfitOfLosses := average(recentLossMaxProfits)

	switch {
	case metrics.ConsecutiveLosses >= m.cfg.ConsecutiveLossPenaltyThreshold && avgMaxProfitOfLosses > 20:
		return Adjustment{
			Kind:              AdjustTighterRisk,
			SuggestedTPPoints: round(avgMaxProfitOfLosses / 10),
			SuggestedSLPoints: round(0.7 * metrics.AvgAbsLoss / 10),
			Reason:            fmt.Sprintf("adjusted for protection: %d consecutive losses, tightened TP/SL", metrics.ConsecutiveLosses),
		}
	case metrics.ConsecutiveLosses >= m.cfg.ConsecutiveLossPenaltyThreshold && avgMaxProfitOfLosses < 10:
		return Adjustment{
			Kind:              AdjustUltraTightRisk,
			SuggestedTPPoints: 2,
			SuggestedSLPoints: 1,
			Reason:            fmt.Sprintf("adjusted for protection: %d consecutive losses with little profit left on the table, ultra-tight risk", metrics.ConsecutiveLosses),
		}
	case metrics.ConsecutiveLosses >= m.cfg.ConsecutiveLossPenaltyThreshold:
		return Adjustment{
			Kind:              AdjustCautiousRisk,
			ConfidencePenalty: m.cfg.ModeratePenalty,
			Reason:            fmt.Sprintf("adjusted for protection: %d consecutive losses, cautious risk", metrics.ConsecutiveLosses),
		}
	case metrics.ConsecutiveLosses >= 2 && metrics.TrendfollowingError:
		return Adjustment{
			Kind:              AdjustCautiousRisk,
			ConfidencePenalty: m.cfg.ModeratePenalty,
			Reason:            "adjusted for protection: repeated same-direction losses",
		}
	case metrics.TotalTrades >= m.cfg.MinTradesForWinRate && metrics.WinRate < m.cfg.LowWinRateThreshold:
		return Adjustment{
			Kind:              AdjustCautiousRisk,
			ConfidencePenalty: m.cfg.ModeratePenalty,
			Reason:            "adjusted for protection: recent win rate below threshold",
		}
	}
	return Adjustment{Kind: AdjustNone}
}

// RecentLossMaxProfits returns the MaxProfit values of the trailing
// consecutive-loss streak, newest-last, for use with Adjust.
func RecentLossMaxProfits(window []vectorstore.Vector, consecutiveLosses int) []float64 {
	if consecutiveLosses <= 0 || len(window) == 0 {
		return nil
	}
	start := len(window) - consecutiveLosses
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, consecutiveLosses)
	for _, v := range window[start:] {
		out = append(out, v.MaxProfit)
	}
	return out
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64) float64 {
	return math.Round(v)
}
