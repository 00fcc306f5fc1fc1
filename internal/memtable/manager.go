package memtable

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/riskerr"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Config tunes reload/recompute cadence, matching spec.md §3/§5 defaults.
type Config struct {
	GraduationIntervalMinutes int // bar-time advance needed to trigger recompute (30)
}

func DefaultConfig() Config {
	return Config{GraduationIntervalMinutes: 30}
}

// Manager is the Memory Manager (C2): owns the current Snapshot and drives
// reload/recompute. All public reads go through an atomically-loaded
// Snapshot reference; there are no mutable locks on the hot path.
type Manager struct {
	store   vectorstore.Client
	learner *graduation.Learner
	cfg     Config

	current atomic.Pointer[Snapshot]

	// recomputeMu guards lastBarTime/lastRecompute/gradVersion: OnBackgroundTick
	// (reload lane) reads lastBarTime while recomputeOne (the single
	// ProcessRecomputes consumer goroutine) writes all three, so plain map
	// access here would race (spec.md §5: degrade, never crash).
	recomputeMu   sync.Mutex
	lastBarTime   map[Key]time.Time
	lastRecompute map[Key]time.Time
	gradVersion   map[Key]int

	recomputeQueue chan Key // single-producer queue, drained by ProcessRecomputes
}

func New(store vectorstore.Client, learner *graduation.Learner, cfg Config) *Manager {
	m := &Manager{
		store:          store,
		learner:        learner,
		cfg:            cfg,
		lastBarTime:    make(map[Key]time.Time),
		lastRecompute:  make(map[Key]time.Time),
		gradVersion:    make(map[Key]int),
		recomputeQueue: make(chan Key, 256),
	}
	m.current.Store(&Snapshot{
		Partitions:  make(map[Key]*Partition),
		Graduations: make(map[Key]*graduation.Table),
	})
	return m
}

// Initialize performs the one-shot cold-start load: prefer TRAINING/RECENT
// vectors, fall back to an unfiltered pull if the store returns none so
// filtered, then build initial graduation tables. Empty data is valid
// (degraded mode); only a store error fails with INITIALIZATION_FAILED.
func (m *Manager) Initialize(ctx context.Context) error {
	vectors, err := m.store.FetchVectors(ctx, vectorstore.Filters{
		DataTypes: []vectorstore.DataType{vectorstore.Training, vectorstore.Recent},
	})
	if err != nil {
		return riskerr.Wrap("memtable.Initialize", riskerr.InitializationFail, err)
	}
	if len(vectors) == 0 {
		vectors, err = m.store.FetchVectors(ctx, vectorstore.Filters{})
		if err != nil {
			return riskerr.Wrap("memtable.Initialize", riskerr.InitializationFail, err)
		}
	}

	snapshot := m.buildSnapshot(vectors, time.Now())
	m.current.Store(snapshot)

	for k, p := range snapshot.Partitions {
		m.recomputePartitionLocked(snapshot, k, p)
	}
	// publish the partitions computed above
	m.current.Store(snapshot)

	log.Info().Int("partitions", len(snapshot.Partitions)).Int("vectors", len(vectors)).
		Msg("memory manager initialized")
	return nil
}

// Snapshot returns the currently published snapshot for a request to hold
// for its entire lifetime.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

// LookupGraduation returns the published table for (instrument, direction),
// or nil if none exists yet.
func (m *Manager) LookupGraduation(instrument string, direction vectorstore.Direction) *graduation.Table {
	return m.current.Load().Graduation(NewKey(instrument, direction))
}

// VectorsFor returns the ordered (oldest-first) vectors for a partition.
func (m *Manager) VectorsFor(instrument string, direction vectorstore.Direction) []vectorstore.Vector {
	p := m.current.Load().Partition(NewKey(instrument, direction))
	if p == nil {
		return nil
	}
	return p.Vectors
}

// RecentVectorsFor restricts to dataType RECENT (or unset).
func (m *Manager) RecentVectorsFor(instrument string, direction vectorstore.Direction) []vectorstore.Vector {
	p := m.current.Load().Partition(NewKey(instrument, direction))
	return p.Recent()
}

// Reload polls store stats; if growth is observed, performs a bulk fetch
// and atomically swaps in a fresh snapshot. It must not hold a lock while
// fetching — the atomic.Pointer swap is the only synchronization point.
func (m *Manager) Reload(ctx context.Context) error {
	prev := m.current.Load()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reload: stats poll failed, retaining previous snapshot")
		return nil // store errors during reload are logged; previous snapshot retained
	}
	if int(stats.TotalVectors) <= prev.TotalVectors {
		return nil // no growth observed
	}

	vectors, err := m.store.FetchVectors(ctx, vectorstore.Filters{
		DataTypes: []vectorstore.DataType{vectorstore.Training, vectorstore.Recent},
	})
	if err != nil {
		log.Warn().Err(err).Msg("reload: bulk fetch failed, retaining previous snapshot")
		return nil
	}

	next := m.buildSnapshot(vectors, time.Now())
	// carry forward existing graduation tables; recompute is triggered
	// separately by bar-time advance, not by every reload.
	for k, t := range prev.Graduations {
		next.Graduations[k] = t
	}
	m.current.Store(next)
	return nil
}

// OnBackgroundTick checks bar-time advance per partition and enqueues
// recompute requests for any partition that has advanced by at least
// GraduationIntervalMinutes since its last recompute.
func (m *Manager) OnBackgroundTick() {
	snap := m.current.Load()
	for k, p := range snap.Partitions {
		latest, ok := p.LatestTimestamp()
		if !ok {
			continue
		}
		m.recomputeMu.Lock()
		last := m.lastBarTime[k]
		m.recomputeMu.Unlock()
		if latest.Sub(last) >= time.Duration(m.cfg.GraduationIntervalMinutes)*time.Minute {
			select {
			case m.recomputeQueue <- k:
			default:
				log.Warn().Str("instrument", k.Instrument).Msg("recompute queue full, dropping tick")
			}
		}
	}
}

// ProcessRecomputes drains the recompute queue. Intended to run on the
// background task lane as a single consumer loop; errors are isolated per
// partition (spec.md §4.1 failure semantics).
func (m *Manager) ProcessRecomputes(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case k := <-m.recomputeQueue:
			m.recomputeOne(k)
		}
	}
}

func (m *Manager) recomputeOne(k Key) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("instrument", k.Instrument).
				Msg("graduation recompute panicked, partition unaffected")
		}
	}()
	snap := m.current.Load()
	p := snap.Partitions[k]
	if p == nil {
		return
	}
	m.recomputeMu.Lock()
	m.gradVersion[k]++
	version := m.gradVersion[k]
	m.recomputeMu.Unlock()
	table, ok := m.learner.Recompute(p.TrainingEligible(), version, time.Now())
	if !ok {
		return
	}
	m.recomputeMu.Lock()
	m.lastRecompute[k] = time.Now()
	if latest, hasLatest := p.LatestTimestamp(); hasLatest {
		m.lastBarTime[k] = latest
	}
	m.recomputeMu.Unlock()

	// publish via copy-on-write: loop until our swap wins against a
	// concurrent reload, so we never silently drop a recompute.
	for {
		cur := m.current.Load()
		next := cur.withGraduation(k, table)
		if m.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (m *Manager) recomputePartitionLocked(snap *Snapshot, k Key, p *Partition) {
	m.recomputeMu.Lock()
	m.gradVersion[k]++
	version := m.gradVersion[k]
	m.recomputeMu.Unlock()
	table, ok := m.learner.Recompute(p.TrainingEligible(), version, time.Now())
	if !ok {
		return
	}
	snap.Graduations[k] = table
	m.recomputeMu.Lock()
	m.lastRecompute[k] = time.Now()
	m.recomputeMu.Unlock()
}

func (m *Manager) buildSnapshot(vectors []vectorstore.Vector, now time.Time) *Snapshot {
	unsetCount := 0
	for _, v := range vectors {
		if v.DataType == vectorstore.Unset {
			unsetCount++
		}
	}
	return &Snapshot{
		Partitions:         buildPartitions(vectors),
		Graduations:        make(map[Key]*graduation.Table),
		LoadedAt:           now,
		TotalVectors:       len(vectors),
		UnsetTrainingCount: unsetCount,
	}
}
