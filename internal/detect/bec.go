package detect

import (
	"fmt"
	"strings"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// BECDetector runs the business-email-compromise pattern heuristics:
// urgency pressure, financial phrasing, executive impersonation, wire
// transfer and gift card requests, secrecy, and VIP targeting.
type BECDetector struct {
	logger *zap.Logger
}

// NewBECDetector creates a new BEC pattern detector
func NewBECDetector(logger *zap.Logger) *BECDetector {
	return &BECDetector{logger: logger}
}

// Name returns the detector name
func (d *BECDetector) Name() string {
	return "bec_patterns"
}

var urgencyKeywords = []string{
	"urgent", "immediately", "asap", "right away", "time sensitive",
	"before end of day", "eod", "need this now", "cannot wait",
	"as soon as possible", "act fast",
}

var financialKeywords = []string{
	"payment", "invoice", "bank account", "routing number", "swift",
	"iban", "ach", "funds", "payroll", "direct deposit", "remittance",
	"outstanding balance",
}

var wireTransferKeywords = []string{
	"wire transfer", "wire the", "transfer the funds", "send the payment",
	"process the transfer", "update the beneficiary", "new banking details",
	"change of bank",
}

var secrecyKeywords = []string{
	"keep this between us", "do not discuss", "confidential matter",
	"don't tell anyone", "handle this discreetly", "strictly confidential",
	"do not mention", "keep this quiet",
}

var giftCardKeywords = []string{
	"gift card", "gift cards", "itunes card", "google play card",
	"prepaid card", "scratch the back", "send me the codes",
}

var executiveTitles = []string{
	"ceo", "cfo", "coo", "chief executive", "chief financial",
	"president", "managing director", "chairman", "vp of finance",
}

// Detect runs all BEC sub-detectors, honoring the classifier's skip flags
func (d *BECDetector) Detect(email *core.ParsedEmail, cls *core.Classification) []core.Signal {
	if cls != nil && cls.SkipBECDetection {
		d.logger.Debug("BEC detection skipped for transactional sender",
			zap.String("message_id", email.MessageID))
		return nil
	}

	text := strings.ToLower(email.Subject + " " + email.TextBody)
	var signals []core.Signal

	if n := countKeywords(text, urgencyKeywords); n >= 2 {
		signals = append(signals, core.Signal{
			Type:     core.SignalUrgencyLanguage,
			Severity: core.SeverityWarning,
			Score:    12,
			Detail:   fmt.Sprintf("%d urgency-pressure phrases", n),
			Evidence: map[string]any{"count": n},
		})
	}

	if n := countKeywords(text, financialKeywords); n >= 2 {
		signals = append(signals, core.Signal{
			Type:     core.SignalFinancialRequest,
			Severity: core.SeverityWarning,
			Score:    15,
			Detail:   fmt.Sprintf("%d financial-risk phrases", n),
			Evidence: map[string]any{"count": n},
		})
	}

	if n := countKeywords(text, wireTransferKeywords); n >= 1 {
		signals = append(signals, core.Signal{
			Type:     core.SignalWireTransferRequest,
			Severity: core.SeverityHigh,
			Score:    25,
			Detail:   "wire transfer or banking-change request",
			Evidence: map[string]any{"count": n},
		})
	}

	if n := countKeywords(text, secrecyKeywords); n >= 1 {
		signals = append(signals, core.Signal{
			Type:     core.SignalSecrecyRequest,
			Severity: core.SeverityHigh,
			Score:    20,
			Detail:   "request to keep the matter secret",
			Evidence: map[string]any{"count": n},
		})
	}

	if cls == nil || !cls.SkipGiftCardDetection {
		if n := countKeywords(text, giftCardKeywords); n >= 1 {
			signals = append(signals, core.Signal{
				Type:     core.SignalGiftCardRequest,
				Severity: core.SeverityHigh,
				Score:    22,
				Detail:   "gift card purchase request",
				Evidence: map[string]any{"count": n},
			})
		}
	}

	if sig := d.detectImpersonation(email); sig != nil {
		signals = append(signals, *sig)
	}
	if sig := d.detectVIPTargeting(email); sig != nil {
		signals = append(signals, *sig)
	}
	return signals
}

// detectImpersonation flags a display name claiming an executive role
// or mimicking a recipient's domain while sent from elsewhere
func (d *BECDetector) detectImpersonation(email *core.ParsedEmail) *core.Signal {
	display := strings.ToLower(email.From.DisplayName)
	if display == "" {
		return nil
	}

	for _, title := range executiveTitles {
		if strings.Contains(display, title) {
			return &core.Signal{
				Type:     core.SignalImpersonation,
				Severity: core.SeverityHigh,
				Score:    20,
				Detail:   fmt.Sprintf("display name claims executive role %q", title),
				Evidence: map[string]any{"display_name": email.From.DisplayName},
			}
		}
	}

	// Display name embedding a different domain than the actual sender
	// (e.g. "it-support@company.com" <attacker@evil.example>)
	if strings.Contains(display, "@") && !strings.Contains(display, email.From.Domain) {
		return &core.Signal{
			Type:     core.SignalImpersonation,
			Severity: core.SeverityHigh,
			Score:    20,
			Detail:   "display name contains an email address from another domain",
			Evidence: map[string]any{
				"display_name": email.From.DisplayName,
				"real_domain":  email.From.Domain,
			},
		}
	}

	// Reply-To redirecting responses to a different organizational domain
	if email.ReplyTo != nil && email.ReplyTo.Domain != "" && email.ReplyTo.Domain != email.From.Domain {
		return &core.Signal{
			Type:     core.SignalImpersonation,
			Severity: core.SeverityWarning,
			Score:    15,
			Detail:   "Reply-To points at a different domain than the sender",
			Evidence: map[string]any{
				"from_domain":     email.From.Domain,
				"reply_to_domain": email.ReplyTo.Domain,
			},
		}
	}
	return nil
}

// detectVIPTargeting flags mail addressed to executive mailboxes
func (d *BECDetector) detectVIPTargeting(email *core.ParsedEmail) *core.Signal {
	for _, to := range email.To {
		target := strings.ToLower(to.Address + " " + to.DisplayName)
		for _, title := range executiveTitles {
			if strings.Contains(target, title) {
				return &core.Signal{
					Type:     core.SignalVIPTargeting,
					Severity: core.SeverityWarning,
					Score:    10,
					Detail:   "message targets an executive recipient",
					Evidence: map[string]any{"recipient": to.Address},
				}
			}
		}
	}
	return nil
}

func countKeywords(text string, keywords []string) int {
	count := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			count++
		}
	}
	return count
}
