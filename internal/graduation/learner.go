package graduation

import (
	"math"
	"sort"
	"time"

	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

// Config tunes the selection thresholds, matching spec.md §4.2 and the
// "thresholds per §6 config" note.
type Config struct {
	MinFeatureSamples     int     // feature must appear in at least this many vectors (5)
	MinCorrelation        float64 // |correlation| below this excludes the feature (0.12)
	MinSampleSize         int     // sampleSize below this excludes the feature (30)
	MaxFeatures           int     // top-K kept (15)
	MinProfitableForRange int     // profitable samples needed to derive a range (10)
	MinVectorsToPublish   int     // partition must have at least this many vectors to publish at all (10)
}

// DefaultConfig returns the thresholds named explicitly in spec.md.
func DefaultConfig() Config {
	return Config{
		MinFeatureSamples:     5,
		MinCorrelation:        0.12,
		MinSampleSize:         30,
		MaxFeatures:           15,
		MinProfitableForRange: 10,
		MinVectorsToPublish:   10,
	}
}

// Learner derives graduation tables from partitions.
type Learner struct {
	cfg Config
}

func NewLearner(cfg Config) *Learner {
	return &Learner{cfg: cfg}
}

// Recompute builds a fresh Table from vectors (TRAINING ∪ RECENT eligible,
// caller is responsible for that filtering — see memtable.Partition).
// Returns (nil, false) if the partition has too few vectors to publish.
func (l *Learner) Recompute(vectors []vectorstore.Vector, version int, now time.Time) (*Table, bool) {
	if len(vectors) < l.cfg.MinVectorsToPublish {
		return nil, false
	}

	featureNames := collectFeatureNames(vectors)
	candidates := make([]Feature, 0, len(featureNames))
	for _, name := range featureNames {
		values, pnls := pairedSamples(vectors, name)
		if len(values) < l.cfg.MinFeatureSamples {
			continue
		}
		correlation := pearson(values, pnls)
		variance := populationVariance(values)
		stability := 1.0
		if variance > 0 {
			stability = 1.0 / (1.0 + variance)
		}
		importance := 0.7*math.Abs(correlation) + 0.3*stability

		if math.Abs(correlation) < l.cfg.MinCorrelation || len(values) < l.cfg.MinSampleSize {
			continue
		}

		f := Feature{
			Name:        name,
			Importance:  importance,
			Correlation: correlation,
			Stability:   stability,
			SampleSize:  len(values),
		}
		l.deriveRange(&f, vectors, name)
		candidates = append(candidates, f)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Importance > candidates[j].Importance
	})
	if len(candidates) > l.cfg.MaxFeatures {
		candidates = candidates[:l.cfg.MaxFeatures]
	}

	profitable, unprofitable := splitByProfitability(vectors)
	winRate := 0.0
	if total := len(profitable) + len(unprofitable); total > 0 {
		winRate = float64(len(profitable)) / float64(total)
	}

	return &Table{
		Features:          candidates,
		VectorCount:       len(vectors),
		ProfitableCount:   len(profitable),
		UnprofitableCount: len(unprofitable),
		WinRate:           winRate,
		Version:           version,
		LastUpdated:       now,
	}, true
}

// deriveRange fills optimal/acceptable ranges, means, and signal for
// feature name in-place, per spec.md §4.2.
func (l *Learner) deriveRange(f *Feature, vectors []vectorstore.Vector, name string) {
	profitableValues := featureValues(vectors, name, func(v vectorstore.Vector) bool { return v.IsProfitable() })
	unprofitableValues := featureValues(vectors, name, func(v vectorstore.Vector) bool { return !v.IsProfitable() })

	f.ProfitableMean = mean(profitableValues)
	f.UnprofitableMean = mean(unprofitableValues)

	diff := f.ProfitableMean - f.UnprofitableMean
	switch {
	case diff > 0.001:
		f.Signal = HigherIsBetter
	case diff < -0.001:
		f.Signal = LowerIsBetter
	default:
		f.Signal = Neutral
	}

	if len(profitableValues) < l.cfg.MinProfitableForRange {
		f.Signal = InsufficientData
		return
	}

	sorted := append([]float64(nil), profitableValues...)
	sort.Float64s(sorted)
	f.OptimalRange = Range{Min: percentile(sorted, 25), Max: percentile(sorted, 75)}
	f.AcceptableRange = Range{Min: percentile(sorted, 10), Max: percentile(sorted, 90)}
}

func collectFeatureNames(vectors []vectorstore.Vector) []string {
	seen := map[string]bool{}
	var names []string
	for _, v := range vectors {
		for name, val := range v.Features {
			if !math.IsNaN(val) && !math.IsInf(val, 0) && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names) // deterministic iteration order for reproducible tables
	return names
}

func pairedSamples(vectors []vectorstore.Vector, name string) (values, pnls []float64) {
	for _, v := range vectors {
		fv, ok := v.Feature(name)
		if !ok {
			continue
		}
		pnl := v.EffectivePnL()
		if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
			continue
		}
		values = append(values, fv)
		pnls = append(pnls, pnl)
	}
	return values, pnls
}

func featureValues(vectors []vectorstore.Vector, name string, include func(vectorstore.Vector) bool) []float64 {
	var out []float64
	for _, v := range vectors {
		if !include(v) {
			continue
		}
		if fv, ok := v.Feature(name); ok {
			out = append(out, fv)
		}
	}
	return out
}

func splitByProfitability(vectors []vectorstore.Vector) (profitable, unprofitable []vectorstore.Vector) {
	for _, v := range vectors {
		if v.IsProfitable() {
			profitable = append(profitable, v)
		} else {
			unprofitable = append(unprofitable, v)
		}
	}
	return profitable, unprofitable
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

// pearson computes the Pearson correlation coefficient, skipping pairs with
// non-finite values and returning 0 when the coefficient is undefined
// (zero-variance series).
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var sumXY, sumX2, sumY2 float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sumXY += dx * dy
		sumX2 += dx * dx
		sumY2 += dy * dy
	}
	denom := math.Sqrt(sumX2 * sumY2)
	if denom == 0 {
		return 0
	}
	corr := sumXY / denom
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0
	}
	return corr
}

// percentile uses linear interpolation between closest ranks on an
// already-sorted slice (nearest-rank-with-interpolation, the common
// definition for Q25/Q75/P10/P90 quantiles).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100.0) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
