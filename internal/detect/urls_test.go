package detect

import (
	"fmt"
	"testing"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestURLDetector_Heuristics(t *testing.T) {
	d := NewURLDetector(zap.NewNop())

	tests := []struct {
		name       string
		textBody   string
		wantCount  int
		wantScore  float64
		wantDetail string
	}{
		{
			name:       "IP literal host",
			textBody:   "click http://203.0.113.7/login now",
			wantCount:  1,
			wantScore:  18,
			wantDetail: "raw IP address",
		},
		{
			name:       "punycode host",
			textBody:   "see https://xn--pypal-4ve.com/verify",
			wantCount:  1,
			wantScore:  15,
			wantDetail: "punycode",
		},
		{
			name:       "shortener",
			textBody:   "details at https://bit.ly/3xYzAbC",
			wantCount:  1,
			wantScore:  10,
			wantDetail: "shortener",
		},
		{
			name:       "deep subdomain nesting",
			textBody:   "login via https://secure.login.account.verify.example.com/session",
			wantCount:  1,
			wantScore:  8,
			wantDetail: "subdomain nesting",
		},
		{
			name:      "ordinary link",
			textBody:  "docs at https://example.com/guide",
			wantCount: 0,
		},
		{
			name:      "no links",
			textBody:  "see you tomorrow",
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := &core.ParsedEmail{TextBody: tt.textBody}
			signals := d.Detect(email, nil)

			require.Len(t, signals, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, core.SignalSuspiciousURL, signals[0].Type)
				assert.Equal(t, tt.wantScore, signals[0].Score)
				assert.Contains(t, signals[0].Detail, tt.wantDetail)
			}
		})
	}
}

func TestURLDetector_AnchorMismatch(t *testing.T) {
	d := NewURLDetector(zap.NewNop())

	t.Run("visible host differs from target", func(t *testing.T) {
		email := &core.ParsedEmail{
			HTMLBody: `<html><body><a href="https://evil.example/steal">paypal.com</a></body></html>`,
		}
		signals := d.Detect(email, nil)

		require.Len(t, signals, 1)
		assert.Equal(t, float64(20), signals[0].Score)
		assert.Equal(t, "paypal.com", signals[0].Evidence["visible"])
		assert.Equal(t, "evil.example", signals[0].Evidence["actual"])
	})

	t.Run("matching hosts stay quiet", func(t *testing.T) {
		email := &core.ParsedEmail{
			HTMLBody: `<html><body><a href="https://example.com/docs">www.example.com</a></body></html>`,
		}
		assert.Empty(t, d.Detect(email, nil))
	})

	t.Run("plain anchor text is not a host claim", func(t *testing.T) {
		email := &core.ParsedEmail{
			HTMLBody: `<html><body><a href="https://example.com/docs">Read the documentation</a></body></html>`,
		}
		assert.Empty(t, d.Detect(email, nil))
	})
}

func TestURLDetector_ExtractionLimits(t *testing.T) {
	d := NewURLDetector(zap.NewNop())

	t.Run("duplicates collapse", func(t *testing.T) {
		email := &core.ParsedEmail{
			TextBody: "http://203.0.113.7/a and again http://203.0.113.7/a",
		}
		assert.Len(t, d.Detect(email, nil), 1)
	})

	t.Run("capped at maxURLs", func(t *testing.T) {
		body := ""
		for i := 0; i < maxURLs+10; i++ {
			body += fmt.Sprintf("http://203.0.113.%d/x ", i+1)
		}
		email := &core.ParsedEmail{TextBody: body}
		assert.Len(t, d.Detect(email, nil), maxURLs)
	})
}
