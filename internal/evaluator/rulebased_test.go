package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

func TestRuleBasedEvaluateBaseline(t *testing.T) {
	e := NewRuleBasedEvaluator(DefaultRuleBasedConfig())
	d := e.Evaluate(Request{Direction: vectorstore.Long}, MethodRuleBasedNoMemory, "no memory")
	assert.Equal(t, MethodRuleBasedNoMemory, d.Method)
	assert.InDelta(t, 0.60, d.Confidence, 1e-9)
	assert.Contains(t, d.Reasons, "no memory")
}

func TestRuleBasedEvaluateClampsToConfiguredBounds(t *testing.T) {
	cfg := DefaultRuleBasedConfig()
	cfg.MinConfidence, cfg.MaxConfidence = 0.2, 0.8
	e := NewRuleBasedEvaluator(cfg)

	// stack every negative adjustment to try to push below MinConfidence
	d := e.Evaluate(Request{
		Direction: vectorstore.Long,
		Features: map[string]float64{
			"atr_percentage": 0.0001, // compressed
			"momentum_5":     -1,     // against a long
			"rsi_14":         90,     // overbought against long
		},
	}, MethodRuleBased)

	assert.GreaterOrEqual(t, d.Confidence, cfg.MinConfidence)
	assert.LessOrEqual(t, d.Confidence, cfg.MaxConfidence)
}

func TestRuleBasedEvaluateApprovalThreshold(t *testing.T) {
	e := NewRuleBasedEvaluator(DefaultRuleBasedConfig())

	high := e.Evaluate(Request{Direction: vectorstore.Long, Features: map[string]float64{"rsi_14": 20}}, MethodRuleBased)
	assert.True(t, high.Approved)
	assert.GreaterOrEqual(t, high.Confidence, 0.5)

	cfg := DefaultRuleBasedConfig()
	cfg.BaseConfidence = 0.1
	low := NewRuleBasedEvaluator(cfg).Evaluate(Request{Direction: vectorstore.Long}, MethodRuleBased)
	assert.False(t, low.Approved)
}

func TestRSIAdjustmentMirrorsForShort(t *testing.T) {
	longAdj := rsiAdjustment(20, vectorstore.Long)
	shortAdj := rsiAdjustment(80, vectorstore.Short)
	assert.Equal(t, longAdj, shortAdj)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-1, 0, 1))
	assert.Equal(t, 1.0, clamp(2, 0, 1))
	assert.Equal(t, 0.5, clamp(0.5, 0, 1))
}
