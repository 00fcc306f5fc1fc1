package coordinator

import (
	"context"
	"time"

	"github.com/riskcore-io/riskcore/internal/auditlog"
	"github.com/riskcore-io/riskcore/internal/evaluator"
	"github.com/riskcore-io/riskcore/internal/memtable"
	"github.com/riskcore-io/riskcore/internal/modulator"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// OutcomeRequest reports a closed trade: the feedback path that keeps the
// ring buffer, robust-zone state, and exploration counters current between
// reload ticks (spec.md §5's "outcome feedback path").
type OutcomeRequest struct {
	EntrySignalID  string
	Instrument     string
	Direction      vectorstore.Direction
	EntryType      string
	Timestamp      time.Time
	PnL            float64
	PnLPerContract *float64
	MaxProfit      float64
	MaxLoss        float64
	Features       map[string]float64

	// DecisionConfidence/DecisionMembership are the values the original
	// Evaluate() call returned for this trade, needed to drive exploration
	// entry/exit counters (spec.md §4.4).
	DecisionConfidence float64
	DecisionMembership float64
}

// SubmitOutcome persists the outcome (when a durable store is wired),
// pushes it onto the in-process ring buffer for near-real-time tail
// analysis, and advances this key's exploration state. It never touches
// the published Snapshot directly — that only changes on the next reload
// tick, per spec.md's eventual-consistency guarantee.
func (c *Coordinator) SubmitOutcome(ctx context.Context, req OutcomeRequest) error {
	v := vectorstore.Vector{
		EntrySignalID:  req.EntrySignalID,
		Instrument:     req.Instrument,
		Direction:      req.Direction,
		EntryType:      req.EntryType,
		Timestamp:      req.Timestamp,
		DataType:       vectorstore.Recent,
		Features:       req.Features,
		PnL:            req.PnL,
		PnLPerContract: req.PnLPerContract,
		MaxProfit:      req.MaxProfit,
		MaxLoss:        req.MaxLoss,
	}

	if c.Store != nil {
		if err := c.Store.StoreOutcome(ctx, v); err != nil {
			c.Log.Warn().Err(err).Str("entrySignalId", req.EntrySignalID).
				Msg("coordinator: storeOutcome failed, outcome still applied locally")
		}
	}

	key := memtable.NewKey(req.Instrument, req.Direction)
	if c.RingBuffers != nil {
		isWin := v.IsWin()
		c.RingBuffers.For(ringKey(key)).Push(modulator.Outcome{
			PnLPerContract: v.EffectivePnL(),
			MaxProfit:      v.MaxProfit,
			IsWin:          isWin,
			Timestamp:      v.Timestamp,
			Confidence:     req.DecisionConfidence,
			Membership:     req.DecisionMembership,
		})
	}

	kstate := c.State.Get(key, c.defaultWaitTrades())
	isWin := v.IsWin()
	var isWinPtr *bool
	if v.IsWin() || v.IsLoss() {
		isWinPtr = &isWin
	}
	next := evaluator.UpdateExplorationState(kstate.Exploration, req.DecisionConfidence, req.DecisionMembership, isWinPtr, req.Timestamp)
	c.State.SetExploration(key, next)

	if next.Mode != kstate.Exploration.Mode {
		c.writeExplorationAudit(ctx, key, kstate.Exploration.Mode, next)
	}
	return nil
}

func (c *Coordinator) writeExplorationAudit(ctx context.Context, key memtable.Key, from evaluator.ExplorationMode, next evaluator.ExplorationState) {
	if c.Audit == nil {
		return
	}
	event := auditlog.Event{
		Timestamp: time.Now().UnixMilli(),
		Category:  auditlog.CategoryExploration,
		Action:    "transition",
		Data: map[string]interface{}{
			"instrument": key.Instrument,
			"direction":  string(key.Direction),
			"from":       string(from),
			"to":         string(next.Mode),
			"reason":     next.EntryReason,
		},
	}
	if err := c.Audit.Write(ctx, event); err != nil {
		c.Log.Warn().Err(err).Msg("coordinator: exploration audit write failed")
	}
}
