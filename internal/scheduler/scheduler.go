// Package scheduler runs the risk core's background tasks (spec.md §5):
// a 30s reload poll, a 30s bar-time tick that enqueues graduation
// recomputes, the graduation-recompute consumer, and a 15-minute
// zone-evolution tick per key, all on their own goroutines so the
// request-handling path never suspends on I/O.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskcore-io/riskcore/internal/auditlog"
	"github.com/riskcore-io/riskcore/internal/coordinator"
	"github.com/riskcore-io/riskcore/internal/evaluator"
	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/memtable"
	"github.com/riskcore-io/riskcore/internal/telemetry/metrics"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Config tunes the background cadences, matching spec.md §5's defaults.
type Config struct {
	ReloadInterval        time.Duration // 30s
	ZoneEvolutionInterval time.Duration // 15m
}

func DefaultConfig() Config {
	return Config{ReloadInterval: 30 * time.Second, ZoneEvolutionInterval: 15 * time.Minute}
}

// Scheduler owns the four background loops.
type Scheduler struct {
	Memory     *memtable.Manager
	RobustZone *evaluator.RobustZoneEvaluator
	State      *coordinator.StateStore
	Audit      auditlog.Sink
	Metrics    *metrics.Registry
	Log        zerolog.Logger
	Cfg        Config
}

// Run blocks until ctx is cancelled, driving all four background loops
// concurrently. Callers typically run it in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	go s.Memory.ProcessRecomputes(ctx)
	go s.reloadLoop(ctx)
	go s.backgroundTickLoop(ctx)
	go s.zoneEvolutionLoop(ctx)
	<-ctx.Done()
}

func (s *Scheduler) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Cfg.ReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Memory.Reload(ctx); err != nil {
				s.Log.Warn().Err(err).Msg("scheduler: reload failed")
				if s.Metrics != nil {
					s.Metrics.ReloadErrors.Inc()
				}
			}
		}
	}
}

// backgroundTickLoop drives the Memory Manager's bar-time advance check,
// which enqueues debounced graduation recomputes (spec.md §5: "at most
// once per 30 minutes of observed bar-time").
func (s *Scheduler) backgroundTickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Cfg.ReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Memory.OnBackgroundTick()
		}
	}
}

func (s *Scheduler) zoneEvolutionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Cfg.ZoneEvolutionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evolveZones(ctx, now)
		}
	}
}

// evolveZones runs one zone-evolution tick: construct a zone for any key
// that doesn't have one yet, and advance the observe/adjust/wait state
// machine for keys that do. This is the only place that mutates per-key
// Robust-Zone state — Evaluate() only reads it (spec.md §8 property 7).
func (s *Scheduler) evolveZones(ctx context.Context, now time.Time) {
	snap := s.Memory.Snapshot()
	for k, partition := range snap.Partitions {
		table := snap.Graduation(k)
		selected := selectedFeatureNames(table)
		if len(selected) == 0 {
			continue
		}

		kstate := s.State.Get(k, 10)
		if kstate.Zone == nil {
			zone, ok := s.RobustZone.ConstructZone(partition.Vectors, selected, now)
			if ok {
				s.State.SetZone(k, zone)
			}
			continue
		}

		stability := evaluator.ComputeStability(partition.Vectors)
		consecutiveLosses := trailingLosses(partition.Vectors)
		newState, newZone, adjType := evaluator.AdvanceZoneState(kstate.ZoneState, kstate.Zone, stability, consecutiveLosses, now)
		s.State.SetZoneState(k, newState)

		if adjType == evaluator.AdjustFeatureRefresh {
			if refreshed, ok := s.RobustZone.ConstructZone(partition.Vectors, selected, now); ok {
				refreshed.RobustnessScore = newZone.RobustnessScore
				refreshed.LastAdjustment = newZone.LastAdjustment
				newZone = refreshed
			}
		}
		s.State.SetZone(k, newZone)

		if adjType != "" {
			if s.Metrics != nil {
				s.Metrics.RecordGraduationRecompute(k.Instrument, string(k.Direction))
			}
			s.writeAdjustmentAudit(ctx, k, adjType, stability)
		}
	}
}

func selectedFeatureNames(table *graduation.Table) []string {
	if table == nil {
		return nil
	}
	names := make([]string, 0, len(table.Features))
	for _, f := range table.Features {
		names = append(names, f.Name)
	}
	return names
}

func trailingLosses(vectors []vectorstore.Vector) int {
	count := 0
	for i := len(vectors) - 1; i >= 0; i-- {
		if !vectors[i].IsLoss() {
			break
		}
		count++
	}
	return count
}

func (s *Scheduler) writeAdjustmentAudit(ctx context.Context, k memtable.Key, adjType evaluator.AdjustmentType, stability evaluator.StabilityResult) {
	if s.Audit == nil {
		return
	}
	event := auditlog.Event{
		Timestamp: time.Now().UnixMilli(),
		Category:  auditlog.CategoryAdjustment,
		Action:    string(adjType),
		Data: map[string]interface{}{
			"instrument":     k.Instrument,
			"direction":      string(k.Direction),
			"degradation":    string(stability.Degradation),
			"stability":      stability.Stability,
			"maxDrawdownPct": stability.MaxDrawdownPct,
		},
	}
	if err := s.Audit.Write(ctx, event); err != nil {
		s.Log.Warn().Err(err).Msg("scheduler: adjustment audit write failed")
	}
}
