package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/utils"
	"go.uber.org/zap"
)

// BedrockAnalyzer implements DeepAnalyzer using Amazon Bedrock
type BedrockAnalyzer struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockAnalyzer creates a Bedrock-backed deep analyzer
func NewBedrockAnalyzer(
	ctx context.Context,
	region string,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*BedrockAnalyzer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &BedrockAnalyzer{
		client:        bedrockruntime.NewFromConfig(awsCfg),
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// AnalyzeThreat asks the model for a threat assessment of one message
func (c *BedrockAnalyzer) AnalyzeThreat(ctx context.Context, email *core.ParsedEmail) (*core.DeepAnalysisResult, error) {
	body := c.textProcessor.ProcessText(bodyForPrompt(email), c.maxBodySize)
	prompt := fmt.Sprintf(threatPrompt, email.From.Address, recipientSummary(email), email.Subject, body)

	var payload []byte
	var err error
	if c.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        c.maxTokens,
			"temperature":       c.temperature,
			"top_p":             c.topP,
			"messages": []map[string]interface{}{
				{"role": "user", "content": prompt},
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := c.extractText(resp.Body)
	if err != nil {
		return nil, err
	}
	result, err := parseThreatResponse(text, c.modelID)
	if err != nil {
		c.logger.Warn("Unparseable Bedrock response", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// extractText pulls the generated text out of the model-specific shape
func (c *BedrockAnalyzer) extractText(body []byte) (string, error) {
	if c.isAnthropicModel() {
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode Bedrock response: %w", err)
		}
		var sb strings.Builder
		for _, c := range resp.Content {
			sb.WriteString(c.Text)
		}
		return sb.String(), nil
	}

	var resp struct {
		Completion string `json:"completion"`
		Results    []struct {
			OutputText string `json:"outputText"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode Bedrock response: %w", err)
	}
	if resp.Completion != "" {
		return resp.Completion, nil
	}
	if len(resp.Results) > 0 {
		return resp.Results[0].OutputText, nil
	}
	return "", fmt.Errorf("empty Bedrock response")
}

func (c *BedrockAnalyzer) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic") || strings.Contains(c.modelID, "claude")
}
