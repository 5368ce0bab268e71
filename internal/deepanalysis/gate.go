package deepanalysis

import (
	"context"
	"time"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// Config tunes the deep-analysis gate
type Config struct {
	// Enabled turns the semantic pass on at all
	Enabled bool

	// Timeout bounds one analyzer invocation; on expiry the layer is
	// marked skipped and the pipeline proceeds without it
	Timeout time.Duration

	// ClearPassBelow and ClearBlockAbove skip the costly pass when the
	// deterministic picture is already unambiguous
	ClearPassBelow  float64
	ClearBlockAbove float64

	// MinConfidenceToSkip requires the preliminary confidence to be at
	// least this high before a clear score is trusted to skip
	MinConfidenceToSkip float64
}

// DefaultConfig returns the standard gate tuning
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Timeout:             10 * time.Second,
		ClearPassBelow:      10,
		ClearBlockAbove:     75,
		MinConfidenceToSkip: 0.6,
	}
}

// Gate decides whether the high-cost semantic pass runs for a message
// and executes it under a hard timeout when it does. Timeout, budget
// exhaustion and analyzer errors all degrade to a skipped layer; the
// verdict falls back to the deterministic and behavioral picture.
type Gate struct {
	analyzer core.DeepAnalyzer
	budget   *Budget
	cfg      Config
	logger   *zap.Logger
}

// NewGate creates a new deep-analysis gate
func NewGate(analyzer core.DeepAnalyzer, budget *Budget, cfg Config, logger *zap.Logger) *Gate {
	return &Gate{
		analyzer: analyzer,
		budget:   budget,
		cfg:      cfg,
		logger:   logger,
	}
}

// Evaluate runs the gate decision and, when warranted, the analysis
func (g *Gate) Evaluate(ctx context.Context, email *core.ParsedEmail, preliminaryScore, preliminaryConfidence float64) *core.LayerResult {
	if reason := g.skipReason(email.TenantID, preliminaryScore, preliminaryConfidence); reason != "" {
		return &core.LayerResult{
			Layer:      core.LayerDeepAnalysis,
			Skipped:    true,
			SkipReason: reason,
		}
	}

	start := time.Now()
	analysisCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	result, err := g.analyzer.AnalyzeThreat(analysisCtx, email)
	elapsed := time.Since(start)
	if err != nil {
		g.logger.Warn("Deep analysis failed, falling back to deterministic verdict",
			zap.String("message_id", email.MessageID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return &core.LayerResult{
			Layer:            core.LayerDeepAnalysis,
			Skipped:          true,
			SkipReason:       "analyzer error: " + err.Error(),
			ProcessingTimeMs: elapsed.Milliseconds(),
		}
	}

	var signals []core.Signal
	if result.Score > 0 {
		signals = append(signals, core.Signal{
			Type:     core.SignalSemanticThreat,
			Severity: semanticSeverity(result.Score),
			Score:    result.Score,
			Detail:   result.Explanation,
			Evidence: map[string]any{
				"model":      result.ModelUsed,
				"indicators": result.Indicators,
			},
		})
	}
	return &core.LayerResult{
		Layer:            core.LayerDeepAnalysis,
		Score:            result.Score,
		Confidence:       result.Confidence,
		Signals:          signals,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// skipReason returns a non-empty reason when the pass should not run
func (g *Gate) skipReason(tenantID string, score, confidence float64) string {
	if !g.cfg.Enabled || g.analyzer == nil {
		return "deep analysis disabled"
	}
	if confidence >= g.cfg.MinConfidenceToSkip {
		if score < g.cfg.ClearPassBelow {
			return "deterministic score clearly passing"
		}
		if score >= g.cfg.ClearBlockAbove {
			return "deterministic score clearly blocking"
		}
	}
	if !g.budget.TryConsume(tenantID) {
		return "daily deep-analysis budget exhausted"
	}
	return ""
}

func semanticSeverity(score float64) core.Severity {
	switch {
	case score >= 40:
		return core.SeverityCritical
	case score >= 25:
		return core.SeverityHigh
	case score >= 10:
		return core.SeverityWarning
	default:
		return core.SeverityInfo
	}
}
