package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

func outcomeSeq(pnls ...float64) []vectorstore.Vector {
	var out []vectorstore.Vector
	for _, p := range pnls {
		out = append(out, vectorstore.Vector{PnL: p})
	}
	return out
}

func TestComputeStabilityRequiresMinimumWindow(t *testing.T) {
	result := ComputeStability(outcomeSeq(10, -5))
	assert.Equal(t, DegradationNone, result.Degradation)
}

func TestComputeStabilitySeveresOnDeepDrawdown(t *testing.T) {
	pnls := []float64{100}
	for i := 0; i < 10; i++ {
		pnls = append(pnls, -50)
	}
	result := ComputeStability(outcomeSeq(pnls...))
	assert.Equal(t, DegradationSevere, result.Degradation)
}

func TestAdvanceZoneStateWaitCountsDown(t *testing.T) {
	state := ZoneState{Phase: PhaseWait, WaitTradesRemaining: 2, TargetWaitTrades: 10}
	zone := &Zone{RobustnessScore: 0.5}

	next, nextZone, adj := AdvanceZoneState(state, zone, StabilityResult{}, 0, time.Now())
	assert.Equal(t, PhaseWait, next.Phase)
	assert.Equal(t, 1, next.WaitTradesRemaining)
	assert.Empty(t, adj)
	assert.Same(t, zone, nextZone)
}

func TestAdvanceZoneStateWaitExpiresToObserve(t *testing.T) {
	state := ZoneState{Phase: PhaseWait, WaitTradesRemaining: 1, TargetWaitTrades: 10}
	next, _, _ := AdvanceZoneState(state, &Zone{}, StabilityResult{}, 0, time.Now())
	assert.Equal(t, PhaseObserve, next.Phase)
}

func TestAdvanceZoneStateObserveStaysWhenStable(t *testing.T) {
	state := NewZoneState(10)
	stability := StabilityResult{Stability: 0.9, Degradation: DegradationNone}
	next, _, adj := AdvanceZoneState(state, &Zone{}, stability, 0, time.Now())
	assert.Equal(t, PhaseObserve, next.Phase)
	assert.Empty(t, adj)
}

func TestAdvanceZoneStateSevereDegradationResetsZone(t *testing.T) {
	state := NewZoneState(10)
	stability := StabilityResult{Stability: 0.1, Degradation: DegradationSevere}
	zone := &Zone{RobustnessScore: 0.8, FeatureRanges: map[string]ZoneFeature{"x": {}}}

	next, nextZone, adj := AdvanceZoneState(state, zone, stability, 0, time.Now())

	assert.Equal(t, AdjustResetZone, adj)
	assert.Equal(t, PhaseWait, next.Phase)
	assert.Equal(t, 10, next.WaitTradesRemaining)
	assert.Equal(t, 0.0, nextZone.RobustnessScore)
	assert.Empty(t, nextZone.FeatureRanges)
	require.NotNil(t, nextZone.LastAdjustment)
}

func TestSelectAdjustmentSkipsRecentlyApplied(t *testing.T) {
	recent := []AdjustmentRecord{{Type: AdjustResetZone, CycleIdx: 1}}
	adj := selectAdjustment(DegradationSevere, 0, recent)
	assert.Equal(t, AdjustTightenStrict, adj)
}

func TestSelectAdjustmentReturnsEmptyWhenAllRecentlyApplied(t *testing.T) {
	recent := []AdjustmentRecord{{Type: AdjustResetZone}, {Type: AdjustTightenStrict}}
	adj := selectAdjustment(DegradationSevere, 0, recent)
	assert.Equal(t, AdjustmentType(""), adj)
}

func TestUpdateExplorationStateEntersOnConsecutiveLosses(t *testing.T) {
	state := NewExplorationState()
	loss := false
	now := time.Now()
	for i := 0; i < 3; i++ {
		state = UpdateExplorationState(state, 0.9, 0.9, &loss, now)
	}
	assert.Equal(t, ExplorationActive, state.Mode)
	assert.Equal(t, "3 consecutive losses", state.EntryReason)
}

func TestUpdateExplorationStateExitsOnConsecutiveWins(t *testing.T) {
	state := ExplorationState{Mode: ExplorationActive, EnteredAt: time.Now(), RollingPnL: 10}
	win := true
	now := time.Now()
	state = UpdateExplorationState(state, 0.6, 0.5, &win, now)
	assert.Equal(t, ExplorationActive, state.Mode)
	state = UpdateExplorationState(state, 0.6, 0.5, &win, now)
	assert.Equal(t, ExplorationNormal, state.Mode)
}

func TestApplyExplorationNeverIncreasesAboveNormalWhenMembershipLow(t *testing.T) {
	expl := ExplorationState{Mode: ExplorationActive, EnteredAt: time.Now(), EntryReason: "test"}
	confidence, reasons := applyExploration(0.9, 0.3, expl, time.Now(), nil)
	assert.LessOrEqual(t, confidence, 0.2)
	assert.NotEmpty(t, reasons)
}

func TestApplyExplorationNormalModeIsNoOp(t *testing.T) {
	confidence, reasons := applyExploration(0.77, 0.9, NewExplorationState(), time.Now(), []string{"x"})
	assert.Equal(t, 0.77, confidence)
	assert.Equal(t, []string{"x"}, reasons)
}
