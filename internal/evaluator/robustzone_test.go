package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

func profitableVector(feature, pnl float64, ts time.Time) vectorstore.Vector {
	return vectorstore.Vector{
		Features:  map[string]float64{"momentum_5": feature},
		PnL:       pnl,
		Timestamp: ts,
	}
}

func TestConstructZoneRequiresMinTrades(t *testing.T) {
	e := NewRobustZoneEvaluator(RobustZoneConfig{MinTradesForUpdate: 20, RecentWindowSize: 100, ProfitabilityRef: 50})
	zone, ok := e.ConstructZone(make([]vectorstore.Vector, 5), []string{"momentum_5"}, time.Now())
	assert.False(t, ok)
	assert.Nil(t, zone)
}

func TestConstructZoneBuildsRangesFromProfitableTrades(t *testing.T) {
	e := NewRobustZoneEvaluator(RobustZoneConfig{MinTradesForUpdate: 20, RecentWindowSize: 100, ProfitabilityRef: 50})

	now := time.Now()
	var vectors []vectorstore.Vector
	for i := 0; i < 30; i++ {
		vectors = append(vectors, profitableVector(float64(i), 20, now))
	}

	zone, ok := e.ConstructZone(vectors, []string{"momentum_5"}, now)
	require.True(t, ok)
	require.Contains(t, zone.FeatureRanges, "momentum_5")
	assert.Equal(t, 30, zone.SampleSize)
	assert.GreaterOrEqual(t, zone.RobustnessScore, 0.0)
	assert.LessOrEqual(t, zone.RobustnessScore, 1.0)
}

func TestZoneEvaluateMembershipWithinOptimalApproves(t *testing.T) {
	e := NewRobustZoneEvaluator(DefaultRobustZoneConfig())
	zone := &Zone{
		FeatureRanges: map[string]ZoneFeature{
			"momentum_5": {Optimal: graduation.Range{Min: 0, Max: 10}, Acceptable: graduation.Range{Min: -10, Max: 20}, Tolerance: 5},
		},
		RobustnessScore: 1.0,
	}

	d := e.Evaluate(Request{Features: map[string]float64{"momentum_5": 5}}, zone, NewZoneState(10), NewExplorationState(), time.Now())

	assert.Equal(t, 1.0, d.Membership)
	assert.True(t, d.Approved)
	assert.Equal(t, MethodRobustZones, d.Method)
}

func TestZoneEvaluateWaitingPhaseTagsMethod(t *testing.T) {
	e := NewRobustZoneEvaluator(DefaultRobustZoneConfig())
	zone := &Zone{FeatureRanges: map[string]ZoneFeature{}, RobustnessScore: 1.0}
	state := NewZoneState(10)
	state.Phase = PhaseWait
	state.WaitTradesRemaining = 4

	d := e.Evaluate(Request{Features: map[string]float64{}}, zone, state, NewExplorationState(), time.Now())

	assert.Equal(t, MethodRobustZonesWaiting, d.Method)
}
