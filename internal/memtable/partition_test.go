package memtable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

func TestBuildPartitionsGroupsByInstrumentAndDirection(t *testing.T) {
	now := time.Now()
	vectors := []vectorstore.Vector{
		{EntrySignalID: "1", Instrument: "es", Direction: vectorstore.Long, Timestamp: now.Add(2 * time.Second)},
		{EntrySignalID: "2", Instrument: "ES", Direction: vectorstore.Long, Timestamp: now},
		{EntrySignalID: "3", Instrument: "ES", Direction: vectorstore.Short, Timestamp: now},
	}
	partitions := buildPartitions(vectors)
	require.Len(t, partitions, 2)

	longKey := NewKey("es", vectorstore.Long)
	p := partitions[longKey]
	require.NotNil(t, p)
	require.Len(t, p.Vectors, 2)
	assert.Equal(t, "2", p.Vectors[0].EntrySignalID, "ordered by timestamp ascending")
	assert.Equal(t, "1", p.Vectors[1].EntrySignalID)
}

func TestBuildPartitionsDedupesByEntrySignalID(t *testing.T) {
	now := time.Now()
	vectors := []vectorstore.Vector{
		{EntrySignalID: "dup", Instrument: "ES", Direction: vectorstore.Long, Timestamp: now},
		{EntrySignalID: "dup", Instrument: "ES", Direction: vectorstore.Long, Timestamp: now},
	}
	partitions := buildPartitions(vectors)
	p := partitions[NewKey("ES", vectorstore.Long)]
	assert.Len(t, p.Vectors, 1)
}

func TestTrainingEligibleFiltersByDataType(t *testing.T) {
	p := &Partition{Vectors: []vectorstore.Vector{
		{DataType: vectorstore.Training},
		{DataType: vectorstore.Recent},
		{DataType: vectorstore.OutOfSample},
		{DataType: vectorstore.Unset},
	}}
	eligible := p.TrainingEligible()
	assert.Len(t, eligible, 3) // training, recent, and unset (treated as recent-legacy)
}

func TestTrainingEligibleNilPartition(t *testing.T) {
	var p *Partition
	assert.Nil(t, p.TrainingEligible())
	assert.Nil(t, p.Recent())
}

func TestLatestTimestamp(t *testing.T) {
	now := time.Now()
	p := &Partition{Vectors: []vectorstore.Vector{{Timestamp: now.Add(-time.Hour)}, {Timestamp: now}}}
	ts, ok := p.LatestTimestamp()
	require.True(t, ok)
	assert.Equal(t, now, ts)

	var empty *Partition
	_, ok = empty.LatestTimestamp()
	assert.False(t, ok)
}
