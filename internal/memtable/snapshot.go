package memtable

import (
	"time"

	"github.com/riskcore-io/riskcore/internal/graduation"
)

// Snapshot is an immutable view of every partition and its published
// graduation table. The manager publishes new snapshots by swapping an
// atomic pointer; a request holds one Snapshot for its entire lifetime so
// it never observes a torn reload (spec.md §5 ordering guarantees, §8
// property 9: snapshot atomicity).
type Snapshot struct {
	Partitions         map[Key]*Partition
	Graduations        map[Key]*graduation.Table
	LoadedAt           time.Time
	TotalVectors       int
	UnsetTrainingCount int // vectors used for training whose dataType was unset; surfaced per spec §9 open question
}

// Partition looks up a partition by key; nil if absent.
func (s *Snapshot) Partition(k Key) *Partition {
	if s == nil {
		return nil
	}
	return s.Partitions[k]
}

// Graduation looks up the published table for a key; nil if none.
func (s *Snapshot) Graduation(k Key) *graduation.Table {
	if s == nil {
		return nil
	}
	return s.Graduations[k]
}

// withGraduation returns a shallow copy of the snapshot with one partition's
// graduation table replaced — used by recompute to publish a single
// partition's new table without touching the others (failure isolation,
// spec.md §4.1).
func (s *Snapshot) withGraduation(k Key, table *graduation.Table) *Snapshot {
	next := &Snapshot{
		Partitions:         s.Partitions, // partitions unchanged by a recompute
		Graduations:        make(map[Key]*graduation.Table, len(s.Graduations)),
		LoadedAt:           s.LoadedAt,
		TotalVectors:       s.TotalVectors,
		UnsetTrainingCount: s.UnsetTrainingCount,
	}
	for kk, vv := range s.Graduations {
		next.Graduations[kk] = vv
	}
	next.Graduations[k] = table
	return next
}
