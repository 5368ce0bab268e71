package aggregate

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// Config tunes score fusion and the verdict thresholds
type Config struct {
	// AmplificationFactor multiplies BEC-category signal scores when
	// a first-contact signal co-occurs
	AmplificationFactor float64

	// AmplifiedScoreCap bounds any single amplified signal score
	AmplifiedScoreCap float64

	// VIPTargetingBoost is added to amplified BEC signals when the
	// message also targets a VIP recipient
	VIPTargetingBoost float64

	// SuspiciousThreshold..BlockThreshold map the overall score to a
	// verdict; they must be ordered ascending
	SuspiciousThreshold float64
	QuarantineThreshold float64
	BlockThreshold      float64
}

// DefaultConfig returns the standard fusion tuning
func DefaultConfig() Config {
	return Config{
		AmplificationFactor: 1.2,
		AmplifiedScoreCap:   55,
		VIPTargetingBoost:   5,
		SuspiciousThreshold: 25,
		QuarantineThreshold: 50,
		BlockThreshold:      75,
	}
}

// layerWeights drive the weighted confidence combination
var layerWeights = map[core.LayerTag]float64{
	core.LayerAuthentication: 0.20,
	core.LayerDeterministic:  0.35,
	core.LayerBehavioral:     0.25,
	core.LayerDeepAnalysis:   0.20,
}

// Aggregator fuses all layer signals into the final verdict. Aggregate
// is a pure function of its input: the same email, auth result,
// baseline snapshot and config always produce an identical verdict.
type Aggregator struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregator creates a new score aggregator
func NewAggregator(cfg Config, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Aggregate merges, amplifies and scores the collected signals
func (a *Aggregator) Aggregate(input core.AggregationInput) *core.EmailVerdict {
	modifier := 1.0
	if input.Classification != nil && input.Classification.ThreatScoreModifier > 0 {
		modifier = input.Classification.ThreatScoreModifier
	}

	signals := dedupe(collect(input.LayerResults, modifier))
	signals = a.amplify(signals)

	base := 0.0
	for _, s := range signals {
		base += s.Score
	}

	bonus := a.synergyBonus(signals, input.Classification)
	score := clamp(base+bonus, 0, 100)

	verdict := &core.EmailVerdict{
		ID:               uuid.New(),
		MessageID:        input.Email.MessageID,
		TenantID:         input.Email.TenantID,
		Verdict:          a.mapVerdict(score),
		OverallScore:     score,
		Confidence:       combineConfidence(input.LayerResults),
		Signals:          signals,
		LayerResults:     input.LayerResults,
		SynergyBonus:     bonus,
		CompoundPatterns: compoundPatterns(signals),
		AnalyzedAt:       a.now().UTC(),
	}

	a.logger.Debug("Aggregated signals",
		zap.String("message_id", input.Email.MessageID),
		zap.Float64("base", base),
		zap.Float64("synergy_bonus", bonus),
		zap.Float64("modifier", modifier),
		zap.Strings("compound_patterns", verdict.CompoundPatterns))
	return verdict
}

// collect flattens the non-skipped layers' signals, scaling the
// deterministic and behavioral scores by the classification modifier.
// Authentication and deep-analysis scores are never discounted: the
// sender registry matches the unauthenticated From domain, so a spoofed
// known sender must not have its DMARC failures written down.
func collect(layers []core.LayerResult, modifier float64) []core.Signal {
	var signals []core.Signal
	for _, lr := range layers {
		if lr.Skipped {
			continue
		}
		scaled := modifier != 1 &&
			(lr.Layer == core.LayerDeterministic || lr.Layer == core.LayerBehavioral)
		for _, s := range lr.Signals {
			if scaled {
				s.Score *= modifier
			}
			signals = append(signals, s)
		}
	}
	return signals
}

// dedupe merges signals of the same type emitted by different layers:
// the highest-scoring instance wins, evidence maps are merged, and the
// output order is deterministic.
func dedupe(signals []core.Signal) []core.Signal {
	byType := make(map[core.SignalType]core.Signal)
	for _, s := range signals {
		existing, ok := byType[s.Type]
		if !ok {
			byType[s.Type] = s
			continue
		}
		if s.Score > existing.Score {
			s.Evidence = mergeEvidence(existing.Evidence, s.Evidence)
			byType[s.Type] = s
		} else {
			existing.Evidence = mergeEvidence(s.Evidence, existing.Evidence)
			byType[s.Type] = existing
		}
	}

	out := make([]core.Signal, 0, len(byType))
	for _, s := range byType {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// mergeEvidence overlays b on a without mutating either map
func mergeEvidence(a, b map[string]any) map[string]any {
	if a == nil {
		return b
	}
	merged := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// combineConfidence weights each contributing layer's own confidence;
// skipped layers drag the result down via renormalization
func combineConfidence(layers []core.LayerResult) float64 {
	var weighted, total float64
	for _, lr := range layers {
		w := layerWeights[lr.Layer]
		if w == 0 {
			w = 0.1
		}
		total += w
		if !lr.Skipped {
			weighted += w * lr.Confidence
		}
	}
	if total == 0 {
		return 0
	}
	return clamp(weighted/total, 0, 1)
}

func (a *Aggregator) mapVerdict(score float64) core.Verdict {
	switch {
	case score >= a.cfg.BlockThreshold:
		return core.VerdictBlock
	case score >= a.cfg.QuarantineThreshold:
		return core.VerdictQuarantine
	case score >= a.cfg.SuspiciousThreshold:
		return core.VerdictSuspicious
	default:
		return core.VerdictPass
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
