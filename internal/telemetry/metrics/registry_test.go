package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestObserveEvaluationIncrementsCounterAndHistogram(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.ObserveEvaluation("robust_zones", 0.01)

	assert.Equal(t, 1.0, counterValue(t, reg.EvaluationsTotal.WithLabelValues("robust_zones")))

	hist := &dto.Metric{}
	require.NoError(t, reg.EvaluationDuration.WithLabelValues("robust_zones").(prometheus.Histogram).Write(hist))
	assert.Equal(t, uint64(1), hist.GetHistogram().GetSampleCount())
}

func TestSetExplorationTogglesGauge(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.SetExploration("ES", "long", true)
	assert.Equal(t, 1.0, counterValue(t, reg.ExplorationActive.WithLabelValues("ES", "long")))

	reg.SetExploration("ES", "long", false)
	assert.Equal(t, 0.0, counterValue(t, reg.ExplorationActive.WithLabelValues("ES", "long")))
}

func TestSetBreakerStateMapsStrings(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.SetBreakerState("closed")
	assert.Equal(t, 0.0, counterValue(t, reg.StoreBreakerState))

	reg.SetBreakerState("half-open")
	assert.Equal(t, 1.0, counterValue(t, reg.StoreBreakerState))

	reg.SetBreakerState("open")
	assert.Equal(t, 2.0, counterValue(t, reg.StoreBreakerState))
}

func TestRecordGraduationRecomputeIncrementsByKey(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.RecordGraduationRecompute("ES", "long")
	reg.RecordGraduationRecompute("ES", "long")

	assert.Equal(t, 2.0, counterValue(t, reg.GraduationRecomputes.WithLabelValues("ES", "long")))
}
