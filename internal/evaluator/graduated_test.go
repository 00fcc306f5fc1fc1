package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore-io/riskcore/internal/graduation"
)

func tableWithFeature(optimal, acceptable graduation.Range, signal graduation.Signal) *graduation.Table {
	return &graduation.Table{Features: []graduation.Feature{
		{Name: "atr_percentage", OptimalRange: optimal, AcceptableRange: acceptable, Signal: signal},
	}}
}

func TestGraduatedEvaluateOptimalScoresHigh(t *testing.T) {
	e := NewGraduatedEvaluator(DefaultGraduatedConfig())
	table := tableWithFeature(graduation.Range{Min: 0.8, Max: 1.2}, graduation.Range{Min: 0.5, Max: 1.5}, graduation.HigherIsBetter)

	d := e.Evaluate(Request{Features: map[string]float64{"atr_percentage": 1.0}}, table)

	require.Len(t, d.FeatureScores, 1)
	assert.Equal(t, TagOptimal, d.FeatureScores[0].Tag)
	assert.True(t, d.Approved)
	assert.Equal(t, MethodGraduatedRanges, d.Method)
}

func TestGraduatedEvaluatePoorFeatureRejectsAtThreshold(t *testing.T) {
	cfg := DefaultGraduatedConfig()
	cfg.RejectCountThreshold = 1
	e := NewGraduatedEvaluator(cfg)
	// value far outside both ranges scores POOR
	table := tableWithFeature(graduation.Range{Min: 0.8, Max: 1.2}, graduation.Range{Min: 0.5, Max: 1.5}, graduation.HigherIsBetter)

	d := e.Evaluate(Request{Features: map[string]float64{"atr_percentage": 100}}, table)

	assert.False(t, d.Approved)
	assert.Equal(t, TagPoor, d.FeatureScores[0].Tag)
}

func TestGraduatedEvaluateMissingRangeDataIsNeutral(t *testing.T) {
	e := NewGraduatedEvaluator(DefaultGraduatedConfig())
	table := &graduation.Table{Features: []graduation.Feature{
		{Name: "atr_percentage", Signal: graduation.InsufficientData},
	}}

	d := e.Evaluate(Request{Features: map[string]float64{"atr_percentage": 1.0}}, table)

	require.Len(t, d.FeatureScores, 1)
	assert.Equal(t, TagNoRangeData, d.FeatureScores[0].Tag)
	assert.Equal(t, 0.5, d.FeatureScores[0].Score)
}

func TestGraduatedEvaluateSkipsFeaturesNotInRequest(t *testing.T) {
	e := NewGraduatedEvaluator(DefaultGraduatedConfig())
	table := tableWithFeature(graduation.Range{Min: 0.8, Max: 1.2}, graduation.Range{Min: 0.5, Max: 1.5}, graduation.HigherIsBetter)

	d := e.Evaluate(Request{Features: map[string]float64{}}, table)

	assert.Empty(t, d.FeatureScores)
	assert.Equal(t, 0.5, d.Confidence) // no scores -> neutral default
}

func TestMembershipScoreMonotoneWithDistanceFromCentre(t *testing.T) {
	optimal := graduation.Range{Min: 0, Max: 10}
	acceptable := graduation.Range{Min: -10, Max: 20}

	centre, _ := membershipScore(5, optimal, acceptable)
	nearBoundary, _ := membershipScore(9, optimal, acceptable)
	acceptableSide, _ := membershipScore(15, optimal, acceptable)
	outside, _ := membershipScore(50, optimal, acceptable)

	assert.True(t, centre >= nearBoundary, "centre score should be >= near-boundary score")
	assert.True(t, nearBoundary >= acceptableSide, "optimal-boundary score should be >= acceptable-range score")
	assert.True(t, acceptableSide >= outside, "acceptable-range score should be >= outside score")
}
