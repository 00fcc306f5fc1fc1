// Package memtable is the Memory Manager (C2): the single source of truth
// for in-memory vectors, partitioned by (normalized instrument, direction),
// published as copy-on-write snapshots so evaluators never observe a torn
// read across a reload.
package memtable

import (
	"sort"
	"time"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Key identifies a partition.
type Key struct {
	Instrument string // already normalized
	Direction  vectorstore.Direction
}

// NewKey normalizes instrument and builds a Key.
func NewKey(instrument string, direction vectorstore.Direction) Key {
	return Key{Instrument: vectorstore.Normalize(instrument), Direction: direction}
}

// Partition holds one (instrument, direction)'s vectors ordered by
// timestamp, oldest first. Immutable once built; the manager replaces the
// whole slice on reload rather than mutating it in place.
type Partition struct {
	Key     Key
	Vectors []vectorstore.Vector // ordered by Timestamp ascending
}

// buildPartitions groups vectors by (normalized instrument, direction) and
// sorts each group by timestamp ascending, deduping by EntrySignalID so
// ingesting the same outcome twice is idempotent.
func buildPartitions(vectors []vectorstore.Vector) map[Key]*Partition {
	seen := make(map[string]bool, len(vectors))
	grouped := make(map[Key][]vectorstore.Vector)

	for _, v := range vectors {
		if v.EntrySignalID != "" {
			if seen[v.EntrySignalID] {
				continue
			}
			seen[v.EntrySignalID] = true
		}
		k := NewKey(v.Instrument, v.Direction)
		grouped[k] = append(grouped[k], v)
	}

	out := make(map[Key]*Partition, len(grouped))
	for k, vs := range grouped {
		sort.SliceStable(vs, func(i, j int) bool {
			return vs[i].Timestamp.Before(vs[j].Timestamp)
		})
		out[k] = &Partition{Key: k, Vectors: vs}
	}
	return out
}

// TrainingEligible returns vectors usable for graduation: dataType ∈
// {TRAINING, RECENT} per spec.md, where unset counts as RECENT-legacy.
func (p *Partition) TrainingEligible() []vectorstore.Vector {
	if p == nil {
		return nil
	}
	out := make([]vectorstore.Vector, 0, len(p.Vectors))
	for _, v := range p.Vectors {
		dt := v.EffectiveDataType()
		if dt == vectorstore.Training || dt == vectorstore.Recent {
			out = append(out, v)
		}
	}
	return out
}

// Recent returns vectors with dataType RECENT or unset, newest-last.
func (p *Partition) Recent() []vectorstore.Vector {
	if p == nil {
		return nil
	}
	out := make([]vectorstore.Vector, 0, len(p.Vectors))
	for _, v := range p.Vectors {
		if v.EffectiveDataType() == vectorstore.Recent {
			out = append(out, v)
		}
	}
	return out
}

// LatestTimestamp returns the most recent observed timestamp in the
// partition, used to drive the bar-time graduation recompute trigger.
func (p *Partition) LatestTimestamp() (time.Time, bool) {
	if p == nil || len(p.Vectors) == 0 {
		return time.Time{}, false
	}
	return p.Vectors[len(p.Vectors)-1].Timestamp, true
}
