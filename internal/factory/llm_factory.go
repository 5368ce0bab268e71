package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mailsentry/internal/adapters/llm"
	"github.com/mikey/mailsentry/internal/config"
	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/utils"
	"go.uber.org/zap"
)

// AnalyzerFactory creates deep analyzers
type AnalyzerFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAnalyzerFactory creates a new deep-analyzer factory
func NewAnalyzerFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *AnalyzerFactory {
	return &AnalyzerFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateAnalyzer creates a deep analyzer based on the configured
// provider. A nil analyzer is returned when deep analysis is disabled;
// the gate treats that as a permanent skip.
func (f *AnalyzerFactory) CreateAnalyzer(ctx context.Context) (core.DeepAnalyzer, error) {
	daCfg := f.cfg.GetDeepAnalysis()
	if !daCfg.Enabled {
		return nil, nil
	}

	switch daCfg.Provider {
	case "bedrock":
		c := f.cfg.GetBedrock()
		return llm.NewBedrockAnalyzer(ctx, c.Region, c.ModelID, c.MaxTokens,
			c.Temperature, c.TopP, c.MaxBodySize, f.logger, f.textProcessor)
	case "gemini":
		c := f.cfg.GetGemini()
		return llm.NewGeminiAnalyzer(ctx, c.APIKey, c.ModelName, c.MaxTokens,
			c.Temperature, c.TopP, c.MaxBodySize, f.logger, f.textProcessor)
	case "openai":
		c := f.cfg.GetOpenAI()
		return llm.NewOpenAIAnalyzer(c.APIKey, c.ModelName, c.MaxTokens,
			c.Temperature, c.TopP, c.MaxBodySize, f.logger, f.textProcessor), nil
	default:
		return nil, fmt.Errorf("unsupported deep-analysis provider: %s", daCfg.Provider)
	}
}
