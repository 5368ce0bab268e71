package classify

import (
	"strings"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// Classifier determines the message category and the threat-score
// modifier the aggregator applies. Known senders take precedence over
// content heuristics.
type Classifier struct {
	registry *Registry
	logger   *zap.Logger
}

// NewClassifier creates a new sender/content classifier
func NewClassifier(registry *Registry, logger *zap.Logger) *Classifier {
	return &Classifier{
		registry: registry,
		logger:   logger,
	}
}

// Classify categorizes one message. It never fails: an empty sender
// yields type "unknown" with full score weight.
func (c *Classifier) Classify(email *core.ParsedEmail) *core.Classification {
	if email.From.Address == "" {
		return &core.Classification{
			Type:                core.TypeUnknown,
			ThreatScoreModifier: 1.0,
		}
	}

	if sender, ok := c.registry.Lookup(email.From.Domain); ok {
		return c.classifyKnown(sender)
	}

	signals := detectMarketingSignals(email)
	cls := &core.Classification{
		ThreatScoreModifier: 1.0,
		MarketingSignals:    signals,
	}

	confidence := marketingConfidence(signals)
	switch {
	case len(signals) >= 4 && confidence > 0.5:
		cls.Type = core.TypeMarketing
		cls.IsLikelyMarketing = true
		cls.ThreatScoreModifier = 0.4
	case looksAutomated(email):
		cls.Type = core.TypeAutomated
	default:
		cls.Type = core.TypePersonal
	}

	c.logger.Debug("Classified email",
		zap.String("message_id", email.MessageID),
		zap.String("type", string(cls.Type)),
		zap.Int("marketing_signals", len(signals)))
	return cls
}

// classifyKnown fixes the category from the registry entry regardless
// of content signals
func (c *Classifier) classifyKnown(sender *core.KnownSender) *core.Classification {
	cls := &core.Classification{
		IsKnownSender:       true,
		SenderInfo:          sender,
		ThreatScoreModifier: 0.3,
	}
	switch sender.Category {
	case core.CategoryRetail:
		cls.Type = core.TypeMarketing
		cls.IsLikelyMarketing = true
		cls.SkipGiftCardDetection = true
	case core.CategoryTransactional, core.CategoryFinancial:
		cls.Type = core.TypeTransactional
		cls.SkipBECDetection = true
	default:
		cls.Type = core.TypeAutomated
	}
	return cls
}

// marketingConfidence grows with signal count, weighting structural
// signals (headers, pixels) over phrasing
func marketingConfidence(signals []string) float64 {
	if len(signals) == 0 {
		return 0
	}
	strong := 0
	for _, s := range signals {
		switch s {
		case "bulk_mail_headers", "tracking_pixel", "unsubscribe_link":
			strong++
		}
	}
	conf := 0.15*float64(len(signals)) + 0.1*float64(strong)
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

func looksAutomated(email *core.ParsedEmail) bool {
	local := email.From.Address
	if at := strings.Index(local, "@"); at > 0 {
		local = local[:at]
	}
	local = strings.ToLower(local)
	for _, prefix := range []string{"noreply", "no-reply", "donotreply", "do-not-reply", "notifications", "alerts", "system", "mailer-daemon"} {
		if strings.HasPrefix(local, prefix) {
			return true
		}
	}
	return len(email.Headers["Auto-Submitted"]) > 0
}
