// Package evaluator implements the interchangeable risk-evaluation
// strategies (C4 Graduated-Ranges, C5 Robust-Zone) plus the Rule-Based
// fallback. The strategies form a closed set, modeled as a tagged union
// (Method) dispatched by the coordinator rather than open inheritance, per
// the core's design notes.
package evaluator

import "github.com/riskcore-io/riskcore/internal/vectorstore"

// Method is the closed set of evaluation methods a Decision can report.
type Method string

const (
	MethodGraduatedRanges         Method = "graduated_ranges"
	MethodGraduatedRangesFallback Method = "graduated_ranges_fallback"
	MethodRobustZones             Method = "robust_zones"
	MethodRobustZonesWaiting      Method = "robust_zones_waiting"
	MethodRobustZonesFallback     Method = "robust_zones_fallback"
	MethodRuleBased               Method = "rule_based"
	MethodRuleBasedNoMemory       Method = "rule_based_no_memory"
)

// MembershipTag classifies how a single feature's live value fits its
// learned range.
type MembershipTag string

const (
	TagOptimal     MembershipTag = "OPTIMAL"
	TagAcceptable  MembershipTag = "ACCEPTABLE"
	TagPoor        MembershipTag = "POOR"
	TagNoRangeData MembershipTag = "NO_RANGE_DATA"
)

// FeatureScore is one feature's membership contribution to a Decision.
type FeatureScore struct {
	Name  string
	Value float64
	Score float64
	Tag   MembershipTag
}

// Request is a live feature set to evaluate. Instrument is passed through
// as the caller supplied it; the evaluators do not read it.
type Request struct {
	Features   map[string]float64
	Instrument string
	Direction  vectorstore.Direction
	EntryType  string
	Quantity   int
	MaxSL      *float64
	MaxTP      *float64
}

// Decision is an evaluator's raw output before the coordinator applies the
// Recent-Trade Modulator, caps, and position-size scaling.
type Decision struct {
	Approved       bool
	Confidence     float64
	SuggestedSL    float64
	SuggestedTP    float64
	Method         Method
	Reasons        []string
	FeatureScores  []FeatureScore
	Membership     float64 // overall membership, used by robust-zone exploration logic
}
