package llm

import (
	"context"
	"fmt"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIAnalyzer implements DeepAnalyzer using the OpenAI chat API
type OpenAIAnalyzer struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIAnalyzer creates an OpenAI-backed deep analyzer
func NewOpenAIAnalyzer(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{
		client:        openai.NewClient(apiKey),
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// AnalyzeThreat asks the model for a threat assessment of one message
func (c *OpenAIAnalyzer) AnalyzeThreat(ctx context.Context, email *core.ParsedEmail) (*core.DeepAnalysisResult, error) {
	body := c.textProcessor.ProcessText(bodyForPrompt(email), c.maxBodySize)
	prompt := fmt.Sprintf(threatPrompt, email.From.Address, recipientSummary(email), email.Subject, body)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an email threat analyst. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty OpenAI response")
	}

	result, err := parseThreatResponse(resp.Choices[0].Message.Content, c.modelName)
	if err != nil {
		c.logger.Warn("Unparseable OpenAI response", zap.Error(err))
		return nil, err
	}
	return result, nil
}
