// Package llm provides DeepAnalyzer implementations backed by hosted
// language models. All clients share one prompt contract: the model
// answers with a JSON object scoring the message 0-100.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikey/mailsentry/internal/core"
)

// threatPrompt is the shared analysis prompt. The %s slots are sender,
// recipients, subject and body.
const threatPrompt = `You are an email threat analyst. Assess whether the following email is a
social-engineering or phishing attempt (business email compromise, credential
theft, payment fraud, malware delivery).
Respond with a JSON object containing:
- score: number between 0 and 100 (higher means more likely a threat)
- confidence: number between 0 and 1 (how confident you are)
- explanation: string (brief justification)
- indicators: array of strings (the specific suspicious elements found)

Email:
From: %s
To: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// threatResponse is the structured answer expected from the model
type threatResponse struct {
	Score       float64  `json:"score"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Indicators  []string `json:"indicators"`
}

// parseThreatResponse extracts the JSON object from a model reply,
// tolerating fenced code blocks and surrounding prose
func parseThreatResponse(text, model string) (*core.DeepAnalysisResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var resp threatResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if resp.Score < 0 {
		resp.Score = 0
	}
	if resp.Score > 100 {
		resp.Score = 100
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		resp.Confidence = 0.5
	}
	return &core.DeepAnalysisResult{
		Score:       resp.Score,
		Confidence:  resp.Confidence,
		Explanation: resp.Explanation,
		Indicators:  resp.Indicators,
		ModelUsed:   model,
	}, nil
}

// recipientSummary renders the To list for the prompt
func recipientSummary(email *core.ParsedEmail) string {
	if len(email.To) == 0 {
		return ""
	}
	to := email.To[0].Address
	if len(email.To) > 1 {
		to += fmt.Sprintf(" and %d others", len(email.To)-1)
	}
	return to
}

// bodyForPrompt prefers the text body, falling back to raw HTML
func bodyForPrompt(email *core.ParsedEmail) string {
	if email.TextBody != "" {
		return email.TextBody
	}
	return email.HTMLBody
}
