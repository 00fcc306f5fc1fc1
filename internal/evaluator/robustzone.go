package evaluator

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// ZoneFeature is one feature's robust-zone range, wider than a graduation
// table's and prioritising stability over peak performance.
type ZoneFeature struct {
	Optimal    graduation.Range
	Acceptable graduation.Range
	Tolerance  float64 // stdev of the profitable sample
	SampleSize int
}

// ZoneMetrics is the robustness score's component breakdown, kept for
// explainability in responses/audit records.
type ZoneMetrics struct {
	Profitability float64
	Variability   float64
	Consistency   float64
	SampleBonus   float64
}

// Zone is C5's robust profitable region for a partition (optionally further
// keyed by entryType).
type Zone struct {
	FeatureRanges   map[string]ZoneFeature
	RobustnessScore float64
	SampleSize      int
	Description     string
	Metrics         ZoneMetrics
	LastUpdated     time.Time
	LastAdjustment  *time.Time
}

// RobustZoneConfig tunes construction and scoring thresholds.
type RobustZoneConfig struct {
	MinTradesForUpdate   int     // minTradesForUpdate (20)
	RecentWindowSize     int     // recentWindowSize (100)
	ProfitabilityRef     float64 // reference mean profit that normalizes to 1.0
	ConfidenceFloor      float64 // 0.1
	ConfidenceCeil       float64 // 0.9
}

func DefaultRobustZoneConfig() RobustZoneConfig {
	return RobustZoneConfig{
		MinTradesForUpdate: 20,
		RecentWindowSize:   100,
		ProfitabilityRef:   50,
		ConfidenceFloor:    0.1,
		ConfidenceCeil:     0.9,
	}
}

const profitabilityClearThreshold = 10.0 // $10/contract threshold for the profitability metric

// RobustZoneEvaluator is C5.
type RobustZoneEvaluator struct {
	cfg RobustZoneConfig
}

func NewRobustZoneEvaluator(cfg RobustZoneConfig) *RobustZoneEvaluator {
	return &RobustZoneEvaluator{cfg: cfg}
}

// ConstructZone builds (or rebuilds) a Zone from the most recent
// RecentWindowSize vectors in a partition, using the feature set a
// graduation table already selected (selectedFeatures) so both evaluators
// agree on which features matter. Returns (nil, false) if there are fewer
// than MinTradesForUpdate trades in the window.
func (e *RobustZoneEvaluator) ConstructZone(vectors []vectorstore.Vector, selectedFeatures []string, now time.Time) (*Zone, bool) {
	window := vectors
	if len(window) > e.cfg.RecentWindowSize {
		window = window[len(window)-e.cfg.RecentWindowSize:]
	}
	if len(window) < e.cfg.MinTradesForUpdate {
		return nil, false
	}

	var profitable []vectorstore.Vector
	var clearingProfits []float64
	var allProfits []float64
	for _, v := range window {
		pnl := v.EffectivePnL()
		allProfits = append(allProfits, pnl)
		if v.IsProfitable() {
			profitable = append(profitable, v)
		}
		if pnl > profitabilityClearThreshold {
			clearingProfits = append(clearingProfits, pnl)
		}
	}

	ranges := make(map[string]ZoneFeature, len(selectedFeatures))
	var widthFracs []float64
	for _, name := range selectedFeatures {
		values := featureValues(profitable, name)
		if len(values) < 10 {
			continue
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		optimal := graduation.Range{Min: percentileLocal(sorted, 25), Max: percentileLocal(sorted, 75)}
		acceptable := graduation.Range{Min: percentileLocal(sorted, 10), Max: percentileLocal(sorted, 90)}
		ranges[name] = ZoneFeature{
			Optimal:    optimal,
			Acceptable: acceptable,
			Tolerance:  stdev(values),
			SampleSize: len(values),
		}

		spread := sorted[len(sorted)-1] - sorted[0]
		if spread > 0 {
			widthFracs = append(widthFracs, math.Min(1.0, optimal.Width()/spread))
		}
	}

	metrics := ZoneMetrics{
		Profitability: clamp(mean(clearingProfits)/e.cfg.ProfitabilityRef, 0, 1),
		Variability:   clamp(mean(widthFracs), 0, 1),
		Consistency:   consistencyScore(allProfits),
		SampleBonus:   math.Min(float64(len(profitable))/100.0, 1.0),
	}
	robustness := 0.3*metrics.Profitability + 0.4*metrics.Variability + 0.2*metrics.Consistency + 0.1*metrics.SampleBonus

	return &Zone{
		FeatureRanges:   ranges,
		RobustnessScore: robustness,
		SampleSize:      len(profitable),
		Description:     "robust zone: wide stable profitable region",
		Metrics:         metrics,
		LastUpdated:     now,
	}, true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func consistencyScore(profits []float64) float64 {
	if len(profits) == 0 {
		return 0
	}
	mu := mean(profits)
	if mu == 0 {
		return 0
	}
	sigma := stdev(profits)
	return math.Max(0, 1-sigma/math.Abs(mu))
}

func featureValues(vectors []vectorstore.Vector, name string) []float64 {
	var out []float64
	for _, v := range vectors {
		if fv, ok := v.Feature(name); ok {
			out = append(out, fv)
		}
	}
	return out
}

// percentileLocal mirrors graduation's linear-interpolation percentile —
// duplicated rather than exported cross-package to keep Zone construction
// independent of the graduation learner's internals.
func percentileLocal(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100.0) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Evaluate scores req against zone, folding in the current adjustment/
// exploration state. It is a pure function of (req, zone, state) — running
// it twice with identical arguments yields an identical Decision.
func (e *RobustZoneEvaluator) Evaluate(req Request, zone *Zone, state ZoneState, expl ExplorationState, now time.Time) Decision {
	var total float64
	var present int
	for name, zf := range zone.FeatureRanges {
		v, ok := req.Features[name]
		if !ok {
			continue
		}
		present++
		total += zoneMembershipScore(v, zf)
	}
	membership := 0.5
	if present > 0 {
		membership = total / float64(present)
	}

	confidence := clamp(membership*zone.RobustnessScore, e.cfg.ConfidenceFloor, e.cfg.ConfidenceCeil)
	method := MethodRobustZones
	reasons := []string{confidenceBandReason(confidence)}

	if state.Phase == PhaseWait {
		method = MethodRobustZonesWaiting
		reasons = append(reasons, tradesRemainingReason(state.WaitTradesRemaining))
	}

	confidence, reasons = applyExploration(confidence, membership, expl, now, reasons)

	return Decision{
		Approved:    confidence >= 0.5,
		Confidence:  confidence,
		SuggestedSL: sizeFromConfidence(confidence, 20, 50),
		SuggestedTP: sizeFromConfidence(confidence, 40, 150),
		Method:      method,
		Reasons:     reasons,
		Membership:  membership,
	}
}

func sizeFromConfidence(confidence, min, max float64) float64 {
	factor := clamp(confidence, 0, 1)
	return min + (max-min)*factor
}

func zoneMembershipScore(v float64, zf ZoneFeature) float64 {
	switch {
	case zf.Optimal.Contains(v):
		return 1.0
	case zf.Acceptable.Contains(v):
		return 0.6
	default:
		if zf.Tolerance <= 0 {
			return 0.1
		}
		distance := math.Min(math.Abs(v-zf.Acceptable.Min), math.Abs(v-zf.Acceptable.Max))
		return math.Max(0.1, 0.5*math.Exp(-distance/zf.Tolerance))
	}
}

func tradesRemainingReason(n int) string {
	if n == 1 {
		return "1 trade remaining in wait period"
	}
	return "trades remaining in wait period: " + strconv.Itoa(n)
}
