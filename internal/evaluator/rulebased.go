package evaluator

import "github.com/riskcore-io/riskcore/internal/vectorstore"

// RuleBasedConfig tunes the fallback heuristic used when there isn't enough
// learned data to run Graduated-Ranges or Robust-Zones.
type RuleBasedConfig struct {
	BaseConfidence float64 // starting point before additive adjustments (~0.55-0.65)
	BaseSL         float64 // default stop-loss, currency per contract
	BaseTP         float64 // default take-profit, currency per contract
	MinConfidence  float64
	MaxConfidence  float64
}

func DefaultRuleBasedConfig() RuleBasedConfig {
	return RuleBasedConfig{
		BaseConfidence: 0.60,
		BaseSL:         10,
		BaseTP:         15,
		MinConfidence:  0.1,
		MaxConfidence:  0.95,
	}
}

// RuleBasedEvaluator scores a live feature map with a small set of
// hand-tuned additive adjustments when no graduation table exists for the
// partition (or as an explicit escape hatch under a deadline).
type RuleBasedEvaluator struct {
	cfg RuleBasedConfig
}

func NewRuleBasedEvaluator(cfg RuleBasedConfig) *RuleBasedEvaluator {
	return &RuleBasedEvaluator{cfg: cfg}
}

// Evaluate applies ATR-band, momentum, volume-spike, Bollinger-position and
// RSI adjustments per spec.md §4.3, then clamps to [0.1, 0.95]. method lets
// the caller distinguish a cold-start "no memory" fallback from a
// deadline/internal-error fallback.
func (e *RuleBasedEvaluator) Evaluate(req Request, method Method, reasons ...string) Decision {
	confidence := e.cfg.BaseConfidence
	atrFactor := 1.0
	out := append([]string(nil), reasons...)

	if atr, ok := req.Features["atr_percentage"]; ok {
		switch {
		case atr >= 0.0015 && atr <= 0.004:
			confidence += 0.03
			out = append(out, "ATR within normal volatility band")
		case atr > 0.004:
			confidence -= 0.03
			atrFactor = atr / 0.003
			out = append(out, "ATR elevated, widening risk parameters")
		default:
			confidence -= 0.01
			atrFactor = 0.7
			out = append(out, "ATR compressed, narrowing risk parameters")
		}
	}

	if momentum, ok := req.Features["momentum_5"]; ok {
		bonus := clamp(momentum*5, -0.05, 0.05)
		if req.Direction == vectorstore.Short {
			bonus = -bonus
		}
		confidence += bonus
		if bonus > 0 {
			out = append(out, "momentum in direction of trade")
		} else if bonus < 0 {
			out = append(out, "momentum against direction of trade")
		}
	}

	if volSpike, ok := req.Features["volume_spike_3bar"]; ok && volSpike > 1.5 {
		confidence += 0.05
		out = append(out, "volume spike supports entry")
	}

	if bb, ok := req.Features["bb_position"]; ok {
		favorable := bb >= 0.2 && bb <= 0.4
		if req.Direction == vectorstore.Short {
			favorable = bb >= 0.6 && bb <= 0.8
		}
		if favorable {
			confidence += 0.03
			out = append(out, "Bollinger position favorable")
		} else {
			confidence -= 0.02
		}
	}

	if rsi, ok := req.Features["rsi_14"]; ok {
		confidence += rsiAdjustment(rsi, req.Direction)
		if (req.Direction == vectorstore.Long && rsi < 30) || (req.Direction == vectorstore.Short && rsi > 70) {
			out = append(out, "RSI oversold/overbought supports entry")
		} else if (req.Direction == vectorstore.Long && rsi >= 70) || (req.Direction == vectorstore.Short && rsi <= 30) {
			out = append(out, "RSI works against entry")
		}
	}

	confidence = clamp(confidence, e.cfg.MinConfidence, e.cfg.MaxConfidence)

	return Decision{
		Approved:    confidence >= 0.5,
		Confidence:  confidence,
		SuggestedSL: e.cfg.BaseSL * atrFactor,
		SuggestedTP: e.cfg.BaseTP * atrFactor,
		Method:      method,
		Reasons:     out,
	}
}

func rsiAdjustment(rsi float64, dir vectorstore.Direction) float64 {
	if dir == vectorstore.Short {
		rsi = 100 - rsi // mirror the bands for shorts
	}
	switch {
	case rsi < 30:
		return 0.07
	case rsi < 50:
		return 0.03
	case rsi < 70:
		return 0.0
	default:
		return -0.05
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
