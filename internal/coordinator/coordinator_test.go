package coordinator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore-io/riskcore/internal/evaluator"
	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/memtable"
	"github.com/riskcore-io/riskcore/internal/modulator"
	"github.com/riskcore-io/riskcore/internal/riskconfig"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

type fakeStore struct {
	vectors []vectorstore.Vector
}

func (f *fakeStore) FetchVectors(ctx context.Context, filters vectorstore.Filters) ([]vectorstore.Vector, error) {
	return f.vectors, nil
}
func (f *fakeStore) Stats(ctx context.Context) (vectorstore.Stats, error) { return vectorstore.Stats{}, nil }
func (f *fakeStore) StoreOutcome(ctx context.Context, v vectorstore.Vector) error { return nil }

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestCoordinator(t *testing.T, vectors []vectorstore.Vector) *Coordinator {
	t.Helper()
	store := &fakeStore{vectors: vectors}
	learner := graduation.NewLearner(graduation.Config{
		MinFeatureSamples: 1, MinCorrelation: 0, MinSampleSize: 1,
		MaxFeatures: 15, MinProfitableForRange: 1, MinVectorsToPublish: 5,
	})
	mem := memtable.New(store, learner, memtable.DefaultConfig())
	require.NoError(t, mem.Initialize(context.Background()))

	cfg := riskconfig.DefaultConfig()
	coord := New(
		mem, store,
		evaluator.NewGraduatedEvaluator(cfg.Evaluator.Graduated),
		evaluator.NewRobustZoneEvaluator(cfg.Evaluator.RobustZone),
		evaluator.NewRuleBasedEvaluator(cfg.Evaluator.RuleBased),
		modulator.New(cfg.Modulator),
		modulator.NewRegistry(20),
		NewStateStore(),
		nil, nil, testLogger(), cfg,
	)
	return coord
}

func sampleVectors(n int, instrument string) []vectorstore.Vector {
	now := time.Now()
	var out []vectorstore.Vector
	for i := 0; i < n; i++ {
		out = append(out, vectorstore.Vector{
			EntrySignalID: instrument + string(rune('a'+i%26)) + string(rune('0'+i/26)),
			Instrument:    instrument,
			Direction:     vectorstore.Long,
			Timestamp:     now.Add(time.Duration(i) * time.Minute),
			DataType:      vectorstore.Training,
			Features:      map[string]float64{"momentum_5": float64(i % 10)},
			PnL:           10,
		})
	}
	return out
}

func TestEvaluateFallsBackToRuleBasedWithNoMemory(t *testing.T) {
	coord := newTestCoordinator(t, nil)

	resp := coord.Evaluate(context.Background(), Request{
		Instrument: "ES", Direction: vectorstore.Long, Quantity: 1,
		Features: map[string]float64{"rsi_14": 20},
	})

	assert.Equal(t, string(evaluator.MethodRuleBasedNoMemory), resp.Method)
	assert.NotEqual(t, "error_no_fallback", resp.Method)
}

func TestEvaluateDeadlineExceededReturnsRuleBasedSafetyResponse(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	past := time.Now().Add(-time.Minute)

	resp := coord.Evaluate(context.Background(), Request{
		Instrument: "ES", Direction: vectorstore.Long, Quantity: 1,
		Deadline: &past,
	})

	assert.Equal(t, string(evaluator.MethodRuleBased), resp.Method)
	assert.NotEqual(t, "error_no_fallback", resp.Method)
}

func TestEvaluateDefaultsZeroQuantityToOne(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	resp := coord.Evaluate(context.Background(), Request{Instrument: "ES", Direction: vectorstore.Long, Quantity: 0})
	assert.NotEqual(t, "error_no_fallback", resp.Method)
}

func TestScaleForPositionEnforcesMinContractFloor(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	d := &evaluator.Decision{SuggestedSL: 1, SuggestedTP: 1}
	coord.scaleForPosition(d, 100)
	assert.GreaterOrEqual(t, d.SuggestedSL, minContractFloor)
	assert.GreaterOrEqual(t, d.SuggestedTP, minContractFloor)
}

func TestScaleForPositionDividesBySqrtQuantity(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	d := &evaluator.Decision{SuggestedSL: 40, SuggestedTP: 80}
	coord.scaleForPosition(d, 4) // sqrt(4) = 2
	assert.Equal(t, 20.0, d.SuggestedSL)
	assert.Equal(t, 40.0, d.SuggestedTP)
}

func TestClampToCallerCapsNeverExceedsMax(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	maxSL, maxTP := 10.0, 20.0
	d := &evaluator.Decision{SuggestedSL: 50, SuggestedTP: 50}
	coord.clampToCallerCaps(d, Request{MaxStopLoss: &maxSL, MaxTakeProfit: &maxTP})
	assert.Equal(t, 10.0, d.SuggestedSL)
	assert.Equal(t, 20.0, d.SuggestedTP)
}

func TestApplyModulatorAdjustmentOnlyReducesConfidence(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	d := &evaluator.Decision{Confidence: 0.8}
	coord.applyModulatorAdjustment(d, modulator.Adjustment{Kind: modulator.AdjustCautiousRisk, ConfidencePenalty: 0.3, Reason: "test"})
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
	assert.Contains(t, d.Reasons, "test")
}

func TestApplyModulatorAdjustmentNoneIsNoOp(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	d := &evaluator.Decision{Confidence: 0.8, Reasons: []string{"original"}}
	coord.applyModulatorAdjustment(d, modulator.Adjustment{Kind: modulator.AdjustNone})
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, []string{"original"}, d.Reasons)
}

func TestSubmitOutcomeUpdatesRingBufferAndExplorationState(t *testing.T) {
	coord := newTestCoordinator(t, nil)
	err := coord.SubmitOutcome(context.Background(), OutcomeRequest{
		Instrument: "ES", Direction: vectorstore.Long, Timestamp: time.Now(),
		PnL: -10, DecisionConfidence: 0.9, DecisionMembership: 0.9,
	})
	require.NoError(t, err)

	key := memtable.NewKey("ES", vectorstore.Long)
	ring := coord.RingBuffers.For(ringKey(key))
	assert.Len(t, ring.Snapshot(), 1)
	assert.Equal(t, 1, coord.State.Get(key, 10).Exploration.ConsecutiveLosses)
}

func TestEvaluateNeverPanics(t *testing.T) {
	coord := newTestCoordinator(t, sampleVectors(20, "ES"))
	assert.NotPanics(t, func() {
		coord.Evaluate(context.Background(), Request{
			Instrument: "ES", Direction: vectorstore.Long, Quantity: 3,
			Features: map[string]float64{"momentum_5": 5},
		})
	})
}
