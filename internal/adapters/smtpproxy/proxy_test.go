package smtpproxy

import (
	"strings"
	"testing"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestAnnotate(t *testing.T) {
	cfg := DefaultConfig()
	raw := []byte("Subject: hello\r\n\r\nbody\r\n")

	t.Run("verdict and score headers always present", func(t *testing.T) {
		verdict := &core.EmailVerdict{Verdict: core.VerdictPass, OverallScore: 3.5}

		out := string(annotate(raw, verdict, cfg))

		assert.True(t, strings.HasPrefix(out, "X-Mailsentry-Verdict: pass\r\n"))
		assert.Contains(t, out, "X-Mailsentry-Score: 3.50\r\n")
		assert.NotContains(t, out, "X-Mailsentry-Signals")
		assert.True(t, strings.HasSuffix(out, string(raw)))
	})

	t.Run("signal types joined into one header", func(t *testing.T) {
		verdict := &core.EmailVerdict{
			Verdict:      core.VerdictQuarantine,
			OverallScore: 61,
			Signals: []core.Signal{
				{Type: core.SignalWireTransferRequest},
				{Type: core.SignalUrgencyLanguage},
			},
		}

		out := string(annotate(raw, verdict, cfg))

		assert.Contains(t, out, "X-Mailsentry-Signals: wire_transfer_request, urgency_language\r\n")
	})
}
