package evaluator

import (
	"math"
	"time"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Phase is the per-key Robust-Zone adjustment-cycle state (spec.md §4.4).
type Phase string

const (
	PhaseObserve Phase = "observe"
	PhaseAdjust  Phase = "adjust"
	PhaseWait    Phase = "wait"
)

// AdjustmentType is the closed set of zone adjustments.
type AdjustmentType string

const (
	AdjustResetZone         AdjustmentType = "reset_zone"
	AdjustTightenStrict     AdjustmentType = "tighten_strict"
	AdjustTightenModerate   AdjustmentType = "tighten_moderate"
	AdjustFeatureRefresh    AdjustmentType = "feature_refresh"
	AdjustConfidencePenalty AdjustmentType = "confidence_penalty"
	AdjustExpandTolerance   AdjustmentType = "expand_tolerance"
	AdjustGentleTighten     AdjustmentType = "gentle_tighten"
)

// DegradationLevel classifies how unstable the recent equity curve is.
type DegradationLevel string

const (
	DegradationNone     DegradationLevel = "none"
	DegradationMild     DegradationLevel = "mild"
	DegradationModerate DegradationLevel = "moderate"
	DegradationSevere   DegradationLevel = "severe"
)

// AdjustmentRecord is one applied adjustment, kept so the selector can skip
// anything applied in the last 3 cycles.
type AdjustmentRecord struct {
	Type      AdjustmentType
	CycleIdx  int
}

// ZoneState is the observe/adjust/wait state machine for one key.
type ZoneState struct {
	Phase               Phase
	CycleIdx            int
	WaitTradesRemaining int
	TargetWaitTrades    int
	RecentAdjustments   []AdjustmentRecord // ring of the last few cycles
}

func NewZoneState(targetWaitTrades int) ZoneState {
	return ZoneState{Phase: PhaseObserve, TargetWaitTrades: targetWaitTrades}
}

// StabilityResult bundles the equity-curve stability blend and the
// degradation level derived from it.
type StabilityResult struct {
	Stability        float64
	VolatilityScore  float64
	TrendStrength    float64
	Smoothness       float64
	MaxDrawdownPct   float64
	ConsecutiveDown  int
	Degradation      DegradationLevel
}

// ComputeStability implements spec.md §4.4's equity-curve stability blend
// over the last <=30 outcomes for a key.
func ComputeStability(outcomes []vectorstore.Vector) StabilityResult {
	window := outcomes
	if len(window) > 30 {
		window = window[len(window)-30:]
	}
	n := len(window)
	if n < 3 {
		return StabilityResult{Degradation: DegradationNone}
	}

	pnls := make([]float64, n)
	cumulative := make([]float64, n)
	running := 0.0
	for i, v := range window {
		pnls[i] = v.EffectivePnL()
		running += pnls[i]
		cumulative[i] = running
	}

	volatilityScore := math.Max(0, 1-stdev(pnls)/100.0)

	upticks := 0
	for i := 1; i < n; i++ {
		if cumulative[i] > cumulative[i-1] {
			upticks++
		}
	}
	trendStrength := float64(upticks) / float64(n-1)

	reversals := 0
	for i := 1; i < n-1; i++ {
		a := cumulative[i] - cumulative[i-1]
		b := cumulative[i+1] - cumulative[i]
		if (a > 0 && b < 0) || (a < 0 && b > 0) {
			reversals++
		}
	}
	smoothness := 1.0
	if n > 2 {
		smoothness = 1 - float64(reversals)/float64(n-2)
	}

	stability := 0.4*trendStrength + 0.4*smoothness + 0.2*volatilityScore

	peak := cumulative[0]
	maxDrawdownPct := 0.0
	consecutiveDown, maxConsecutiveDown := 0, 0
	for i := 0; i < n; i++ {
		if cumulative[i] > peak {
			peak = cumulative[i]
		}
		if peak > 0 {
			dd := (peak - cumulative[i]) / peak * 100
			if dd > maxDrawdownPct {
				maxDrawdownPct = dd
			}
		}
		if i > 0 && pnls[i] < 0 {
			consecutiveDown++
			if consecutiveDown > maxConsecutiveDown {
				maxConsecutiveDown = consecutiveDown
			}
		} else if i > 0 {
			consecutiveDown = 0
		}
	}

	degradation := DegradationNone
	switch {
	case maxDrawdownPct > 30 || maxConsecutiveDown > 5:
		degradation = DegradationSevere
	case maxDrawdownPct > 15 || maxConsecutiveDown > 3:
		degradation = DegradationModerate
	case maxDrawdownPct > 8 || maxConsecutiveDown > 2:
		degradation = DegradationMild
	}

	return StabilityResult{
		Stability:       stability,
		VolatilityScore: volatilityScore,
		TrendStrength:   trendStrength,
		Smoothness:      smoothness,
		MaxDrawdownPct:  maxDrawdownPct,
		ConsecutiveDown: maxConsecutiveDown,
		Degradation:     degradation,
	}
}

const unstableStabilityThreshold = 0.4

// AdvanceZoneState runs one background evolution tick for a key: decides
// whether to enter adjust, pick + apply an adjustment, or count down a wait
// period. Returns the updated state, the (possibly unchanged) zone, and the
// adjustment applied (AdjustmentType("") if none).
func AdvanceZoneState(state ZoneState, zone *Zone, stability StabilityResult, consecutiveLosses int, now time.Time) (ZoneState, *Zone, AdjustmentType) {
	switch state.Phase {
	case PhaseWait:
		state.WaitTradesRemaining--
		if state.WaitTradesRemaining <= 0 {
			state.Phase = PhaseObserve
		}
		return state, zone, ""

	case PhaseObserve:
		unstable := stability.Stability < unstableStabilityThreshold
		if !unstable && consecutiveLosses < 2 {
			return state, zone, ""
		}
		state.Phase = PhaseAdjust
		fallthrough

	case PhaseAdjust:
		adjType := selectAdjustment(stability.Degradation, consecutiveLosses, state.RecentAdjustments)
		if adjType == "" {
			state.Phase = PhaseObserve
			return state, zone, ""
		}
		next := applyAdjustment(zone, adjType)
		state.CycleIdx++
		state.RecentAdjustments = append(state.RecentAdjustments, AdjustmentRecord{Type: adjType, CycleIdx: state.CycleIdx})
		if len(state.RecentAdjustments) > 3 {
			state.RecentAdjustments = state.RecentAdjustments[len(state.RecentAdjustments)-3:]
		}
		state.Phase = PhaseWait
		state.WaitTradesRemaining = state.TargetWaitTrades
		lastAdj := now
		next.LastAdjustment = &lastAdj
		return state, next, adjType
	}
	return state, zone, ""
}

// selectAdjustment implements the priority table in spec.md §4.4, skipping
// any adjustment applied in the last 3 cycles.
func selectAdjustment(degradation DegradationLevel, consecutiveLosses int, recent []AdjustmentRecord) AdjustmentType {
	recently := func(t AdjustmentType) bool {
		for _, r := range recent {
			if r.Type == t {
				return true
			}
		}
		return false
	}

	var candidates []AdjustmentType
	switch {
	case degradation == DegradationSevere:
		candidates = []AdjustmentType{AdjustResetZone, AdjustTightenStrict}
	case degradation == DegradationModerate:
		candidates = []AdjustmentType{AdjustTightenModerate, AdjustFeatureRefresh}
	case consecutiveLosses >= 3:
		candidates = []AdjustmentType{AdjustConfidencePenalty, AdjustExpandTolerance}
	default:
		candidates = []AdjustmentType{AdjustGentleTighten}
	}

	for _, c := range candidates {
		if !recently(c) {
			return c
		}
	}
	return ""
}

// applyAdjustment returns a new Zone with the adjustment's range/robustness
// mutation applied, per the factors named in spec.md §4.4.
func applyAdjustment(zone *Zone, adjType AdjustmentType) *Zone {
	next := &Zone{
		FeatureRanges:   make(map[string]ZoneFeature, len(zone.FeatureRanges)),
		RobustnessScore: zone.RobustnessScore,
		SampleSize:      zone.SampleSize,
		Description:     zone.Description,
		Metrics:         zone.Metrics,
		LastUpdated:     zone.LastUpdated,
	}
	for name, zf := range zone.FeatureRanges {
		next.FeatureRanges[name] = zf
	}

	switch adjType {
	case AdjustResetZone:
		next.RobustnessScore = 0
		next.FeatureRanges = map[string]ZoneFeature{}
	case AdjustTightenStrict, AdjustTightenModerate, AdjustGentleTighten:
		shrinkTo := 0.6
		factor := 0.9
		if adjType == AdjustGentleTighten {
			shrinkTo, factor = 0.85, 0.97
		} else if adjType == AdjustTightenModerate {
			shrinkTo, factor = 0.75, 0.93
		}
		for name, zf := range next.FeatureRanges {
			next.FeatureRanges[name] = shrinkOptimal(zf, shrinkTo)
		}
		next.RobustnessScore *= factor
	case AdjustFeatureRefresh:
		// only a small robustness haircut here; the ranges are rebuilt from
		// the freshest window by the caller (scheduler.evolveZones calls
		// ConstructZone on the same tick when it sees this adjustment).
		next.RobustnessScore *= 0.95
	case AdjustExpandTolerance:
		for name, zf := range next.FeatureRanges {
			next.FeatureRanges[name] = expandAcceptable(zf, 1.4)
		}
		next.RobustnessScore *= 1.1
	case AdjustConfidencePenalty:
		next.RobustnessScore *= 0.85
	}
	if next.RobustnessScore > 1 {
		next.RobustnessScore = 1
	}
	return next
}

func shrinkOptimal(zf ZoneFeature, fraction float64) ZoneFeature {
	centre := (zf.Optimal.Min + zf.Optimal.Max) / 2
	halfWidth := zf.Optimal.Width() / 2 * fraction
	zf.Optimal.Min = centre - halfWidth
	zf.Optimal.Max = centre + halfWidth
	return zf
}

func expandAcceptable(zf ZoneFeature, factor float64) ZoneFeature {
	centre := (zf.Acceptable.Min + zf.Acceptable.Max) / 2
	halfWidth := zf.Acceptable.Width() / 2 * factor
	zf.Acceptable.Min = centre - halfWidth
	zf.Acceptable.Max = centre + halfWidth
	return zf
}

// ExplorationMode is the closed set of exploration states.
type ExplorationMode string

const (
	ExplorationNormal   ExplorationMode = "normal"
	ExplorationActive   ExplorationMode = "exploring"
	ExplorationExtended ExplorationMode = "exploring_extended" // > 2 days in exploration
)

// ExplorationState tracks the rolling counters that drive entry/exit.
type ExplorationState struct {
	Mode                      ExplorationMode
	EnteredAt                 time.Time
	ConsecutiveLowConfidence  int // live confidence < 0.5
	ConsecutiveLowMembership  int // membership < 0.4
	ConsecutiveLosses         int
	ConsecutiveWins           int
	RollingPnL                float64 // over the trailing window used for entry checks
	RollingPnLTradeCount      int
	WinRate                   float64
	WinRateTradeCount         int
	EntryReason               string // which rule triggered entry, for the response's reasons list
}

func NewExplorationState() ExplorationState {
	return ExplorationState{Mode: ExplorationNormal}
}

// UpdateExplorationState folds in one new live decision + its eventual
// outcome signal. Called from the outcome-feedback path, not from Evaluate,
// so repeated Evaluate calls stay pure.
func UpdateExplorationState(state ExplorationState, decisionConfidence, membership float64, isWin *bool, now time.Time) ExplorationState {
	if decisionConfidence < 0.5 {
		state.ConsecutiveLowConfidence++
	} else {
		state.ConsecutiveLowConfidence = 0
	}
	if membership < 0.4 {
		state.ConsecutiveLowMembership++
	} else {
		state.ConsecutiveLowMembership = 0
	}
	if isWin != nil {
		if *isWin {
			state.ConsecutiveLosses = 0
			state.ConsecutiveWins++
		} else {
			state.ConsecutiveWins = 0
			state.ConsecutiveLosses++
		}
	}

	entryReason := ""
	switch {
	case state.ConsecutiveLowConfidence >= 5:
		entryReason = "5 consecutive low confidence trades"
	case state.ConsecutiveLowMembership >= 3:
		entryReason = "3 consecutive low membership trades"
	case state.ConsecutiveLosses >= 3:
		entryReason = "3 consecutive losses"
	case state.RollingPnLTradeCount >= 10 && state.RollingPnL < -50:
		entryReason = "rolling P&L below -$50 over 10+ trades"
	case state.WinRateTradeCount >= 15 && state.WinRate < 0.30:
		entryReason = "win rate below 30% over 15+ trades"
	}
	shouldEnter := entryReason != ""

	switch state.Mode {
	case ExplorationNormal:
		if shouldEnter {
			state.Mode = ExplorationActive
			state.EnteredAt = now
			state.EntryReason = entryReason
		}
	case ExplorationActive, ExplorationExtended:
		if now.Sub(state.EnteredAt) > 48*time.Hour {
			state.Mode = ExplorationExtended
		}
		exitOnWins := state.ConsecutiveWins >= 2 && state.RollingPnL > 0
		exitOnSignal := decisionConfidence > 0.7 && membership > 0.6
		if exitOnWins || exitOnSignal {
			state.Mode = ExplorationNormal
		}
	}
	return state
}

// applyExploration folds the current exploration mode into a raw confidence
// score during Evaluate, per spec.md §4.4's ordered rule list. It never
// mutates ExplorationState — entry/exit transitions only happen in
// UpdateExplorationState.
func applyExploration(confidence, membership float64, expl ExplorationState, now time.Time, reasons []string) (float64, []string) {
	if expl.Mode == ExplorationNormal {
		return confidence, reasons
	}

	reasons = append(reasons, explorationReason(expl))

	if membership < 0.6 {
		confidence = math.Min(confidence, 0.2)
	}
	if confidence > 0.4 && confidence < 0.7 {
		confidence *= 0.6
	}

	daysIn := now.Sub(expl.EnteredAt).Hours() / 24
	if expl.Mode == ExplorationExtended {
		if confidence > 0.7 {
			confidence = math.Min(confidence, 0.15)
			reasons = append(reasons, "inverted: previously-strong pattern probed for regime change")
		} else if membership < 0.4 {
			confidence = math.Max(confidence, 0.55)
			reasons = append(reasons, "inverted: previously-weak pattern boosted to probe regime change")
		}
	}

	selectivity := math.Max(0.3, 1-0.1*daysIn)
	confidence *= selectivity

	return clamp(confidence, 0, 1), reasons
}

func explorationReason(expl ExplorationState) string {
	reason := expl.EntryReason
	if reason == "" {
		reason = "exploration mode active"
	}
	if expl.Mode == ExplorationExtended {
		return reason + " (extended, probing regime change)"
	}
	return reason
}
