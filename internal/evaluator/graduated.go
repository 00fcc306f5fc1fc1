package evaluator

import (
	"fmt"
	"math"

	"github.com/riskcore-io/riskcore/internal/graduation"
)

// GraduatedConfig tunes the Graduated-Ranges evaluator per spec.md §4.3.
type GraduatedConfig struct {
	RejectCountThreshold  int     // reject if this many features score POOR (3)
	MinOverallConfidence  float64 // reject if overall confidence below this (0.25)
	PoorScoreThreshold    float64 // a feature score below this counts toward rejectCount (0.3)
	BaseSLMin, BaseSLMax  float64 // currency per contract (20, 50)
	BaseTPMin, BaseTPMax  float64 // currency per contract (40, 150)
	ConfidenceScaleFloor  float64 // sizing never scales below this confidence (0.60)
}

func DefaultGraduatedConfig() GraduatedConfig {
	return GraduatedConfig{
		RejectCountThreshold: 3,
		MinOverallConfidence: 0.25,
		PoorScoreThreshold:   0.3,
		BaseSLMin:            20,
		BaseSLMax:            50,
		BaseTPMin:            40,
		BaseTPMax:            150,
		ConfidenceScaleFloor: 0.60,
	}
}

// GraduatedEvaluator is C4: scores a live feature vector against a
// partition's published graduation table.
type GraduatedEvaluator struct {
	cfg GraduatedConfig
}

func NewGraduatedEvaluator(cfg GraduatedConfig) *GraduatedEvaluator {
	return &GraduatedEvaluator{cfg: cfg}
}

// Evaluate scores req against table. Callers must have already confirmed
// table != nil (the coordinator falls through to rule-based otherwise).
func (e *GraduatedEvaluator) Evaluate(req Request, table *graduation.Table) Decision {
	var scores []FeatureScore
	for _, f := range table.Features {
		v, ok := req.Features[f.Name]
		if !ok {
			continue
		}
		if f.Signal == graduation.InsufficientData {
			scores = append(scores, FeatureScore{Name: f.Name, Value: v, Score: 0.5, Tag: TagNoRangeData})
			continue
		}
		score, tag := membershipScore(v, f.OptimalRange, f.AcceptableRange)
		scores = append(scores, FeatureScore{Name: f.Name, Value: v, Score: score, Tag: tag})
	}

	overall := 0.5
	if len(scores) > 0 {
		sum := 0.0
		for _, s := range scores {
			sum += s.Score
		}
		overall = sum / float64(len(scores))
	}

	rejectCount := 0
	for _, s := range scores {
		if s.Score < e.cfg.PoorScoreThreshold {
			rejectCount++
		}
	}

	approved := true
	reasons := []string{}
	if rejectCount >= e.cfg.RejectCountThreshold {
		approved = false
		reasons = append(reasons, fmt.Sprintf("%d features in poor range", rejectCount))
	} else if overall < e.cfg.MinOverallConfidence {
		approved = false
		reasons = append(reasons, "overall confidence below minimum")
	} else {
		reasons = append(reasons, confidenceBandReason(overall))
	}

	sl, tp := e.sizeRisk(overall)

	return Decision{
		Approved:      approved,
		Confidence:    overall,
		SuggestedSL:   sl,
		SuggestedTP:   tp,
		Method:        MethodGraduatedRanges,
		Reasons:       reasons,
		FeatureScores: scores,
		Membership:    overall,
	}
}

func (e *GraduatedEvaluator) sizeRisk(confidence float64) (sl, tp float64) {
	factor := math.Max(confidence, e.cfg.ConfidenceScaleFloor)
	if factor > 1.0 {
		factor = 1.0
	}
	sl = e.cfg.BaseSLMin + (e.cfg.BaseSLMax-e.cfg.BaseSLMin)*factor
	tp = e.cfg.BaseTPMin + (e.cfg.BaseTPMax-e.cfg.BaseTPMin)*factor
	return sl, tp
}

func confidenceBandReason(confidence float64) string {
	switch {
	case confidence > 0.7:
		return "optimal confidence band"
	case confidence >= 0.4:
		return "nominal confidence band"
	default:
		return "low confidence band"
	}
}

// membershipScore implements spec.md §4.3's per-feature membership
// function. It is monotone non-increasing with distance from the optimal
// range's centre (testable property 8): centre ≥ optimal boundary (0.8) ≥
// acceptable-side boundary (0.4, by construction) ≥ outside.
func membershipScore(v float64, optimal, acceptable graduation.Range) (float64, MembershipTag) {
	wOpt := optimal.Width()
	wAcc := acceptable.Width()

	switch {
	case optimal.Contains(v):
		if wOpt <= 0 {
			return 0.9, TagOptimal
		}
		centre := (optimal.Min + optimal.Max) / 2
		maxDist := wOpt / 2
		frac := math.Abs(v-centre) / maxDist
		score := 1.0 - frac*0.2 // 1.0 at centre, 0.8 at the optimal boundary
		return clamp(score, 0, 1), TagOptimal

	case acceptable.Contains(v):
		if wAcc <= 0 {
			return 0.6, TagAcceptable
		}
		distToOpt := math.Min(math.Abs(v-optimal.Min), math.Abs(v-optimal.Max))
		var maxDist float64
		if v < optimal.Min {
			maxDist = optimal.Min - acceptable.Min
		} else {
			maxDist = acceptable.Max - optimal.Max
		}
		if maxDist <= 0 {
			return 0.6, TagAcceptable
		}
		frac := distToOpt / maxDist
		score := 0.8 - frac*0.4 // 0.8 at the optimal boundary, 0.4 at the acceptable boundary
		return clamp(score, 0, 1), TagAcceptable

	default:
		if wAcc <= 0 {
			return 0.1, TagPoor
		}
		distToAcceptable := math.Min(math.Abs(v-acceptable.Min), math.Abs(v-acceptable.Max))
		score := math.Max(0.1, 0.4*math.Exp(-distToAcceptable/wAcc))
		return clamp(score, 0, 1), TagPoor
	}
}
