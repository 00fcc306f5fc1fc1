package modulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

func mkVector(direction vectorstore.Direction, pnl float64, ts time.Time) vectorstore.Vector {
	return vectorstore.Vector{Direction: direction, PnL: pnl, Timestamp: ts}
}

func TestWindowSequenceModeTakesLastN(t *testing.T) {
	m := New(Config{WindowMode: WindowModeSequence, WindowSize: 3})
	now := time.Now()
	var vectors []vectorstore.Vector
	for i := 0; i < 10; i++ {
		vectors = append(vectors, mkVector(vectorstore.Long, float64(i), now))
	}
	window := m.Window(vectors, vectorstore.Long, now)
	require.Len(t, window, 3)
	assert.Equal(t, 9.0, window[2].PnL)
}

func TestWindowFiltersByDirection(t *testing.T) {
	m := New(Config{WindowMode: WindowModeSequence, WindowSize: 10})
	now := time.Now()
	vectors := []vectorstore.Vector{
		mkVector(vectorstore.Long, 1, now),
		mkVector(vectorstore.Short, 2, now),
		mkVector(vectorstore.Long, 3, now),
	}
	window := m.Window(vectors, vectorstore.Long, now)
	assert.Len(t, window, 2)
}

func TestWindowWallClockModeExcludesOutsideRange(t *testing.T) {
	m := New(Config{WindowMode: WindowModeWallClock, WindowSize: 10, WallClockWindow: 24 * time.Hour})
	now := time.Now()
	vectors := []vectorstore.Vector{
		mkVector(vectorstore.Long, 1, now.Add(-48*time.Hour)), // too old
		mkVector(vectorstore.Long, 2, now.Add(-1*time.Hour)),  // within window
		mkVector(vectorstore.Long, 3, now.Add(1*time.Hour)),   // future, excluded
	}
	window := m.Window(vectors, vectorstore.Long, now)
	require.Len(t, window, 1)
	assert.Equal(t, 2.0, window[0].PnL)
}

func TestAnalyzeConsecutiveLosses(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()
	window := []vectorstore.Vector{
		mkVector(vectorstore.Long, 10, now),
		mkVector(vectorstore.Long, -5, now),
		mkVector(vectorstore.Long, -5, now),
		mkVector(vectorstore.Long, -5, now),
	}
	metrics := m.Analyze(window, vectorstore.Long)
	assert.Equal(t, 3, metrics.ConsecutiveLosses)
	assert.Equal(t, 4, metrics.TotalTrades)
	assert.InDelta(t, 0.25, metrics.WinRate, 1e-9)
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	m := New(DefaultConfig())
	metrics := m.Analyze(nil, vectorstore.Long)
	assert.Equal(t, 0, metrics.TotalTrades)
}

func TestAdjustNeverIncreasesConfidenceOnlyPenalizesOrTightens(t *testing.T) {
	m := New(DefaultConfig())

	noAdj := m.Adjust(Metrics{ConsecutiveLosses: 0, TotalTrades: 0}, nil)
	assert.Equal(t, AdjustNone, noAdj.Kind)
	assert.Equal(t, 0.0, noAdj.ConfidencePenalty)

	tighten := m.Adjust(Metrics{ConsecutiveLosses: 3}, []float64{30, 30, 30})
	assert.Equal(t, AdjustTighterRisk, tighten.Kind)
	assert.Equal(t, 0.0, tighten.ConfidencePenalty, "tighter-risk adjusts SL/TP, not confidence")

	ultraTight := m.Adjust(Metrics{ConsecutiveLosses: 3}, []float64{5, 5, 5})
	assert.Equal(t, AdjustUltraTightRisk, ultraTight.Kind)

	cautious := m.Adjust(Metrics{ConsecutiveLosses: 3}, []float64{15, 15, 15})
	assert.Equal(t, AdjustCautiousRisk, cautious.Kind)
	assert.Greater(t, cautious.ConfidencePenalty, 0.0)
}

func TestAdjustLowWinRatePenalizes(t *testing.T) {
	m := New(DefaultConfig())
	adj := m.Adjust(Metrics{TotalTrades: 10, WinRate: 0.2, ConsecutiveLosses: 0}, nil)
	assert.Equal(t, AdjustCautiousRisk, adj.Kind)
}

func TestRecentLossMaxProfits(t *testing.T) {
	window := []vectorstore.Vector{
		{MaxProfit: 1}, {MaxProfit: 2}, {MaxProfit: 3}, {MaxProfit: 4},
	}
	out := RecentLossMaxProfits(window, 2)
	assert.Equal(t, []float64{3, 4}, out)

	assert.Nil(t, RecentLossMaxProfits(window, 0))
}
