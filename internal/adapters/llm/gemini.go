package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiAnalyzer implements DeepAnalyzer using Google Gemini
type GeminiAnalyzer struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiAnalyzer creates a Gemini-backed deep analyzer
func NewGeminiAnalyzer(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiAnalyzer{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close releases the underlying client
func (c *GeminiAnalyzer) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// AnalyzeThreat asks the model for a threat assessment of one message
func (c *GeminiAnalyzer) AnalyzeThreat(ctx context.Context, email *core.ParsedEmail) (*core.DeepAnalysisResult, error) {
	body := c.textProcessor.ProcessText(bodyForPrompt(email), c.maxBodySize)
	prompt := fmt.Sprintf(threatPrompt, email.From.Address, recipientSummary(email), email.Subject, body)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to call Gemini API: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty Gemini response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	result, err := parseThreatResponse(sb.String(), c.modelName)
	if err != nil {
		c.logger.Warn("Unparseable Gemini response", zap.Error(err))
		return nil, err
	}
	return result, nil
}
