package classify

import (
	"strings"
	"testing"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	logger := zap.NewNop()
	return NewClassifier(NewRegistry(logger), logger)
}

func emailFrom(address, subject, textBody, htmlBody string) *core.ParsedEmail {
	email := &core.ParsedEmail{
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
		Headers:  make(map[string][]string),
	}
	email.From = core.EmailAddress{Address: address}
	if at := strings.LastIndex(address, "@"); at >= 0 {
		email.From.Domain = address[at+1:]
	}
	return email
}

func TestClassify_EmptySender(t *testing.T) {
	c := newTestClassifier(t)

	cls := c.Classify(&core.ParsedEmail{Headers: map[string][]string{}})

	assert.Equal(t, core.TypeUnknown, cls.Type)
	assert.Equal(t, 1.0, cls.ThreatScoreModifier)
}

func TestClassify_KnownSenders(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name         string
		address      string
		wantType     core.EmailType
		wantSkipGift bool
		wantSkipBEC  bool
	}{
		{"retail sender", "deals@amazon.com", core.TypeMarketing, true, false},
		{"retail subdomain", "offers@mail.amazon.com", core.TypeMarketing, true, false},
		{"transactional sender", "receipts@stripe.com", core.TypeTransactional, false, true},
		{"financial sender", "alerts@chase.com", core.TypeTransactional, false, true},
		{"saas sender", "noreply@github.com", core.TypeAutomated, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify(emailFrom(tt.address, "hello", "body", ""))

			require.True(t, cls.IsKnownSender)
			assert.Equal(t, tt.wantType, cls.Type)
			assert.Equal(t, 0.3, cls.ThreatScoreModifier)
			assert.Equal(t, tt.wantSkipGift, cls.SkipGiftCardDetection)
			assert.Equal(t, tt.wantSkipBEC, cls.SkipBECDetection)
		})
	}
}

func TestClassify_MarketingHeuristics(t *testing.T) {
	c := newTestClassifier(t)

	email := emailFrom("news@unknown-shop.biz",
		"Flash sale this weekend",
		"Act now: 50% off everything with free shipping. Unsubscribe here. You are receiving this email because you signed up.",
		`<html><body><img src="https://t.example/o.gif" width="1" height="1"/></body></html>`)
	email.Headers["Precedence"] = []string{"bulk"}

	cls := c.Classify(email)

	assert.Equal(t, core.TypeMarketing, cls.Type)
	assert.True(t, cls.IsLikelyMarketing)
	assert.False(t, cls.IsKnownSender)
	assert.Equal(t, 0.4, cls.ThreatScoreModifier)
	assert.GreaterOrEqual(t, len(cls.MarketingSignals), 4)
	assert.Contains(t, cls.MarketingSignals, "tracking_pixel")
	assert.Contains(t, cls.MarketingSignals, "bulk_mail_headers")
}

func TestClassify_AutomatedSender(t *testing.T) {
	c := newTestClassifier(t)

	cls := c.Classify(emailFrom("noreply@smallapp.io", "Your weekly report", "Here is your report.", ""))

	assert.Equal(t, core.TypeAutomated, cls.Type)
	assert.Equal(t, 1.0, cls.ThreatScoreModifier)
}

func TestClassify_PersonalDefault(t *testing.T) {
	c := newTestClassifier(t)

	cls := c.Classify(emailFrom("alice@smallco.example", "lunch tomorrow?", "Want to grab lunch?", ""))

	assert.Equal(t, core.TypePersonal, cls.Type)
	assert.Equal(t, 1.0, cls.ThreatScoreModifier)
	assert.Empty(t, cls.MarketingSignals)
}

func TestMarketingConfidence(t *testing.T) {
	assert.Zero(t, marketingConfidence(nil))

	weak := marketingConfidence([]string{"promotional_language", "discount_offer"})
	strong := marketingConfidence([]string{"bulk_mail_headers", "tracking_pixel"})
	assert.Greater(t, strong, weak)

	many := []string{
		"unsubscribe_link", "view_in_browser", "bulk_mail_headers",
		"promotional_language", "discount_offer", "marketing_footer",
		"tracking_pixel", "social_links",
	}
	assert.Equal(t, 0.95, marketingConfidence(many))
}
