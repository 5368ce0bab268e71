package deepanalysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAnalyzer struct {
	result *core.DeepAnalysisResult
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeAnalyzer) AnalyzeThreat(ctx context.Context, email *core.ParsedEmail) (*core.DeepAnalysisResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func gateEmail() *core.ParsedEmail {
	return &core.ParsedEmail{
		MessageID: "<m1@example.com>",
		TenantID:  "acme",
	}
}

func TestGate_RunsAnalyzerInAmbiguousBand(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &core.DeepAnalysisResult{
		Score:       30,
		Confidence:  0.9,
		Explanation: "credential harvesting language",
		ModelUsed:   "test-model",
		Indicators:  []string{"login_prompt"},
	}}
	g := NewGate(analyzer, NewBudget(0), DefaultConfig(), zap.NewNop())

	layer := g.Evaluate(context.Background(), gateEmail(), 40, 0.8)

	require.False(t, layer.Skipped)
	assert.Equal(t, core.LayerDeepAnalysis, layer.Layer)
	assert.Equal(t, 30.0, layer.Score)
	require.Len(t, layer.Signals, 1)
	assert.Equal(t, core.SignalSemanticThreat, layer.Signals[0].Type)
	assert.Equal(t, core.SeverityHigh, layer.Signals[0].Severity)
	assert.Equal(t, 1, analyzer.calls)
}

func TestGate_SkipReasons(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		analyzer   core.DeepAnalyzer
		budget     *Budget
		score      float64
		confidence float64
		wantReason string
	}{
		{
			name:       "disabled by config",
			cfg:        Config{Enabled: false},
			analyzer:   &fakeAnalyzer{},
			budget:     NewBudget(0),
			wantReason: "deep analysis disabled",
		},
		{
			name:       "nil analyzer",
			cfg:        DefaultConfig(),
			analyzer:   nil,
			budget:     NewBudget(0),
			wantReason: "deep analysis disabled",
		},
		{
			name:       "clearly passing",
			cfg:        DefaultConfig(),
			analyzer:   &fakeAnalyzer{},
			budget:     NewBudget(0),
			score:      5,
			confidence: 0.9,
			wantReason: "deterministic score clearly passing",
		},
		{
			name:       "clearly blocking",
			cfg:        DefaultConfig(),
			analyzer:   &fakeAnalyzer{},
			budget:     NewBudget(0),
			score:      80,
			confidence: 0.9,
			wantReason: "deterministic score clearly blocking",
		},
		{
			name:       "low confidence overrides clear score",
			cfg:        DefaultConfig(),
			analyzer:   &fakeAnalyzer{result: &core.DeepAnalysisResult{}},
			budget:     NewBudget(0),
			score:      5,
			confidence: 0.3,
			wantReason: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.analyzer, tt.budget, tt.cfg, zap.NewNop())
			layer := g.Evaluate(context.Background(), gateEmail(), tt.score, tt.confidence)

			if tt.wantReason == "" {
				assert.False(t, layer.Skipped)
			} else {
				assert.True(t, layer.Skipped)
				assert.Equal(t, tt.wantReason, layer.SkipReason)
			}
		})
	}
}

func TestGate_BudgetExhaustion(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &core.DeepAnalysisResult{Score: 20, Confidence: 0.8}}
	g := NewGate(analyzer, NewBudget(1), DefaultConfig(), zap.NewNop())

	first := g.Evaluate(context.Background(), gateEmail(), 40, 0.8)
	assert.False(t, first.Skipped)

	second := g.Evaluate(context.Background(), gateEmail(), 40, 0.8)
	assert.True(t, second.Skipped)
	assert.Equal(t, "daily deep-analysis budget exhausted", second.SkipReason)
	assert.Equal(t, 1, analyzer.calls)
}

func TestGate_AnalyzerErrorDegradesToSkip(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("upstream unavailable")}
	g := NewGate(analyzer, NewBudget(0), DefaultConfig(), zap.NewNop())

	layer := g.Evaluate(context.Background(), gateEmail(), 40, 0.8)

	assert.True(t, layer.Skipped)
	assert.Contains(t, layer.SkipReason, "upstream unavailable")
	assert.Empty(t, layer.Signals)
}

func TestGate_TimeoutDegradesToSkip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	analyzer := &fakeAnalyzer{
		delay:  time.Second,
		result: &core.DeepAnalysisResult{Score: 20},
	}
	g := NewGate(analyzer, NewBudget(0), cfg, zap.NewNop())

	layer := g.Evaluate(context.Background(), gateEmail(), 40, 0.8)

	assert.True(t, layer.Skipped)
	assert.Contains(t, layer.SkipReason, "analyzer error")
}

func TestGate_ZeroScoreEmitsNoSignal(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &core.DeepAnalysisResult{Score: 0, Confidence: 0.9}}
	g := NewGate(analyzer, NewBudget(0), DefaultConfig(), zap.NewNop())

	layer := g.Evaluate(context.Background(), gateEmail(), 40, 0.8)

	assert.False(t, layer.Skipped)
	assert.Empty(t, layer.Signals)
	assert.Equal(t, 0.9, layer.Confidence)
}

func TestSemanticSeverity(t *testing.T) {
	assert.Equal(t, core.SeverityInfo, semanticSeverity(5))
	assert.Equal(t, core.SeverityWarning, semanticSeverity(15))
	assert.Equal(t, core.SeverityHigh, semanticSeverity(30))
	assert.Equal(t, core.SeverityCritical, semanticSeverity(45))
}
