// Package coordinator implements the Risk Coordinator (C7): the single
// entry point a caller evaluates a trade against. It routes to the
// configured primary evaluator, falls through in a fixed order on
// insufficient data, applies the Recent-Trade Modulator, clamps to caller
// caps, scales for position size, and formats the response (spec.md §4.6).
package coordinator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskcore-io/riskcore/internal/auditlog"
	"github.com/riskcore-io/riskcore/internal/evaluator"
	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/memtable"
	"github.com/riskcore-io/riskcore/internal/modulator"
	"github.com/riskcore-io/riskcore/internal/riskconfig"
	"github.com/riskcore-io/riskcore/internal/riskerr"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// MetricsSink lets the coordinator report evaluator routing without the
// package depending on a concrete Prometheus registry.
type MetricsSink interface {
	ObserveEvaluation(method string, durationSeconds float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEvaluation(string, float64) {}

// Coordinator is C7.
type Coordinator struct {
	Memory      *memtable.Manager
	Store       vectorstore.Client // optional write path for SubmitOutcome
	Graduated   *evaluator.GraduatedEvaluator
	RobustZone  *evaluator.RobustZoneEvaluator
	RuleBased   *evaluator.RuleBasedEvaluator
	Modulator   *modulator.Modulator
	RingBuffers *modulator.Registry
	State       *StateStore
	Audit       auditlog.Sink
	Metrics     MetricsSink
	Log         zerolog.Logger
	Config      riskconfig.Config
}

// New wires a Coordinator from already-constructed components, defaulting
// Metrics to a no-op sink when the caller has no Prometheus registry.
func New(
	mem *memtable.Manager,
	store vectorstore.Client,
	graduated *evaluator.GraduatedEvaluator,
	robust *evaluator.RobustZoneEvaluator,
	rule *evaluator.RuleBasedEvaluator,
	mod *modulator.Modulator,
	rings *modulator.Registry,
	state *StateStore,
	audit auditlog.Sink,
	metrics MetricsSink,
	log zerolog.Logger,
	cfg riskconfig.Config,
) *Coordinator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Coordinator{
		Memory: mem, Store: store, Graduated: graduated, RobustZone: robust, RuleBased: rule,
		Modulator: mod, RingBuffers: rings, State: state, Audit: audit,
		Metrics: metrics, Log: log, Config: cfg,
	}
}

// Evaluate is the pipeline in spec.md §4.6: route, modulate, clamp, scale,
// format. Every stage is recovered so an internal panic surfaces as
// error_no_fallback rather than crashing the caller.
func (c *Coordinator) Evaluate(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.Log.Error().Interface("panic", r).Str("instrument", req.Instrument).
				Msg("coordinator: evaluation panicked")
			resp = errorResponse(string(riskerr.EvaluatorInternal), fmt.Sprintf("internal error: %v", r), time.Since(start))
		}
		c.Metrics.ObserveEvaluation(resp.Method, time.Since(start).Seconds())
	}()

	if req.Deadline != nil && time.Now().After(*req.Deadline) {
		return c.timeoutResponse(req, start)
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	key := memtable.NewKey(req.Instrument, req.Direction)
	snap := c.Memory.Snapshot()
	partition := snap.Partition(key)
	table := snap.Graduation(key)
	kstate := c.State.Get(key, c.defaultWaitTrades())

	decision, err := c.route(req, key, partition, table, kstate)
	if err != nil {
		return errorResponse(string(riskerr.EvaluatorInternal), err.Error(), time.Since(start))
	}

	window := c.recentWindow(partition, key, req)
	metrics := c.Modulator.Analyze(window, req.Direction)
	lossTailProfits := modulator.RecentLossMaxProfits(window, metrics.ConsecutiveLosses)
	adj := c.Modulator.Adjust(metrics, lossTailProfits)
	c.applyModulatorAdjustment(&decision, adj)

	c.clampToCallerCaps(&decision, req)
	c.scaleForPosition(&decision, req.Quantity)

	resp = Response{
		Approved:    decision.Confidence >= 0.5,
		Confidence:  decision.Confidence,
		SuggestedSL: decision.SuggestedSL,
		SuggestedTP: decision.SuggestedTP,
		Method:      string(decision.Method),
		Reasons:     decision.Reasons,
		RecentTrades: RecentTrades{
			ConsecutiveLosses:   metrics.ConsecutiveLosses,
			RecentWinRate:       metrics.WinRate,
			TotalRecentTrades:   metrics.TotalTrades,
			TrendfollowingError: metrics.TrendfollowingError,
		},
		PullbackDetails: c.pullbackDetails(window),
		DurationMillis:  float64(time.Since(start).Microseconds()) / 1000.0,
	}
	return resp
}

func (c *Coordinator) defaultWaitTrades() int {
	return 10
}

// route implements the primary->fallback ordering of spec.md §4.6 step 1.
func (c *Coordinator) route(req Request, key memtable.Key, partition *memtable.Partition, table *graduation.Table, kstate keyState) (evaluator.Decision, error) {
	evalReq := evaluator.Request{
		Features:   req.Features,
		Instrument: req.Instrument,
		Direction:  req.Direction,
		EntryType:  req.EntryType,
		Quantity:   req.Quantity,
		MaxSL:      req.MaxStopLoss,
		MaxTP:      req.MaxTakeProfit,
	}

	order := []string{"robust", "graduated"}
	if c.Config.Evaluator.Primary == riskconfig.PrimaryGraduatedRanges {
		order = []string{"graduated", "robust"}
	}
	order = append(order, "rule")

	for i, kind := range order {
		isFallback := i > 0
		switch kind {
		case "robust":
			if kstate.Zone == nil {
				continue
			}
			d := c.RobustZone.Evaluate(evalReq, kstate.Zone, kstate.ZoneState, kstate.Exploration, req.Timestamp)
			if isFallback {
				d.Method = evaluator.MethodRobustZonesFallback
				d.Reasons = append(d.Reasons, "robust zones used as fallback")
			}
			return d, nil
		case "graduated":
			if table == nil || len(table.Features) == 0 {
				continue
			}
			d := c.Graduated.Evaluate(evalReq, table)
			if isFallback {
				d.Method = evaluator.MethodGraduatedRangesFallback
				d.Reasons = append(d.Reasons, "graduated ranges used as fallback")
			}
			return d, nil
		case "rule":
			method := evaluator.MethodRuleBased
			var reasons []string
			if partition == nil || len(partition.Vectors) == 0 {
				method = evaluator.MethodRuleBasedNoMemory
				reasons = []string{"no memory: empty partition, using rule-based fallback"}
			} else {
				reasons = []string{"insufficient graduated/zone data, using rule-based fallback"}
			}
			return c.RuleBased.Evaluate(evalReq, method, reasons...), nil
		}
	}
	return evaluator.Decision{}, fmt.Errorf("no evaluator satisfied the request")
}

// recentWindow merges the partition's reload-consistent tail with the
// in-process ring buffer so the modulator sees outcomes submitted since the
// last reload tick (spec.md §5's near-real-time tail-analysis allowance).
func (c *Coordinator) recentWindow(partition *memtable.Partition, key memtable.Key, req Request) []vectorstore.Vector {
	var vectors []vectorstore.Vector
	if partition != nil {
		vectors = append(vectors, partition.Vectors...)
	}
	if c.RingBuffers != nil {
		ring := c.RingBuffers.For(ringKey(key))
		vectors = append(vectors, ring.ToVectors(key.Instrument, req.Direction)...)
	}
	return c.Modulator.Window(vectors, req.Direction, req.Timestamp)
}

func ringKey(k memtable.Key) string {
	return fmt.Sprintf("%s|%s", k.Instrument, k.Direction)
}

// applyModulatorAdjustment overrides SL/TP when suggested and subtracts the
// confidence penalty — it appends to Reasons, never replaces, and the
// modulator may only ever reduce confidence (spec.md §8 property 10).
func (c *Coordinator) applyModulatorAdjustment(d *evaluator.Decision, adj modulator.Adjustment) {
	if adj.Kind == modulator.AdjustNone {
		return
	}
	if adj.SuggestedSLPoints > 0 {
		d.SuggestedSL = adj.SuggestedSLPoints
	}
	if adj.SuggestedTPPoints > 0 {
		d.SuggestedTP = adj.SuggestedTPPoints
	}
	if adj.ConfidencePenalty > 0 {
		d.Confidence = math.Max(0, d.Confidence-adj.ConfidencePenalty)
	}
	d.Reasons = append(d.Reasons, adj.Reason)
}

func (c *Coordinator) clampToCallerCaps(d *evaluator.Decision, req Request) {
	if req.MaxStopLoss != nil && d.SuggestedSL > *req.MaxStopLoss {
		d.SuggestedSL = *req.MaxStopLoss
	}
	if req.MaxTakeProfit != nil && d.SuggestedTP > *req.MaxTakeProfit {
		d.SuggestedTP = *req.MaxTakeProfit
	}
}

const minContractFloor = 5.0

// scaleForPosition divides SL/TP by sqrt(quantity), floored at $5/contract
// (spec.md §4.3 sizing rule, §8 property 4).
func (c *Coordinator) scaleForPosition(d *evaluator.Decision, quantity int) {
	divisor := math.Sqrt(float64(quantity))
	if divisor <= 0 {
		divisor = 1
	}
	d.SuggestedSL = math.Max(d.SuggestedSL/divisor, minContractFloor)
	d.SuggestedTP = math.Max(d.SuggestedTP/divisor, minContractFloor)
}

// pullbackDetails computes the soft-floor trailing-exit hint from the
// window's profitable trades (spec.md §4.6 step 6).
func (c *Coordinator) pullbackDetails(window []vectorstore.Vector) PullbackDetails {
	var profits, maxProfits []float64
	for _, v := range window {
		if v.IsProfitable() {
			profits = append(profits, v.EffectivePnL())
			maxProfits = append(maxProfits, v.MaxProfit)
		}
	}
	avgProfit := avg(profits)
	avgMaxProfit := avg(maxProfits)

	return PullbackDetails{
		StepSize:             math.Max(math.Round(0.25*avgProfit), 5),
		SoftFloor:            math.Max(math.Round(0.4*avgProfit), 10),
		MaxProfitEstimate:    avgMaxProfit,
		ThresholdDropPercent: 15,
	}
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// timeoutResponse implements DEADLINE_EXCEEDED: a rule-based safety
// response, never error_no_fallback (spec.md §7).
func (c *Coordinator) timeoutResponse(req Request, start time.Time) Response {
	evalReq := evaluator.Request{Features: req.Features, Instrument: req.Instrument, Direction: req.Direction, Quantity: req.Quantity}
	d := c.RuleBased.Evaluate(evalReq, evaluator.MethodRuleBased, "deadline exceeded, using rule-based safety response")
	c.scaleForPosition(&d, req.Quantity)
	c.clampToCallerCaps(&d, req)
	return Response{
		Approved:       d.Confidence >= 0.5,
		Confidence:     d.Confidence,
		SuggestedSL:    d.SuggestedSL,
		SuggestedTP:    d.SuggestedTP,
		Method:         string(d.Method),
		Reasons:        d.Reasons,
		DurationMillis: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}
