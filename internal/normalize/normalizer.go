// Package normalize converts provider-specific message shapes into the
// canonical ParsedEmail. Provider dispatch happens entirely here; the
// rest of the pipeline never sees a raw provider payload.
package normalize

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// Provider identifies the shape of a raw message
type Provider string

const (
	ProviderGmail     Provider = "gmail"
	ProviderMicrosoft Provider = "microsoft"
	ProviderSMTP      Provider = "smtp"
)

// RawMessage is the tagged-variant input: exactly one payload field is
// set, selected by Provider.
type RawMessage struct {
	Provider  Provider
	TenantID  string
	Gmail     []byte
	Microsoft []byte
	RFC822    []byte
}

// Normalizer converts raw provider messages to ParsedEmail
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize dispatches on the provider tag and builds the canonical
// representation. A message that cannot be normalized yields a
// ParseError naming the failing stage.
func (n *Normalizer) Normalize(raw *RawMessage) (*core.ParsedEmail, error) {
	var email *core.ParsedEmail
	var err error

	switch raw.Provider {
	case ProviderGmail:
		email, err = parseGmailMessage(raw.Gmail)
	case ProviderMicrosoft:
		email, err = parseGraphMessage(raw.Microsoft)
	case ProviderSMTP:
		email, err = parseRFC822(raw.RFC822)
	default:
		return nil, &core.ParseError{
			Stage: "dispatch",
			Err:   fmt.Errorf("unknown provider %q", raw.Provider),
		}
	}
	if err != nil {
		return nil, err
	}

	email.TenantID = raw.TenantID
	if email.MessageID == "" {
		email.MessageID = uuid.NewString()
	}
	n.logger.Debug("Normalized message",
		zap.String("provider", string(raw.Provider)),
		zap.String("message_id", email.MessageID),
		zap.String("from", email.From.Address),
		zap.Int("attachments", len(email.Attachments)))
	return email, nil
}

// splitAddress builds an EmailAddress from an address and display name
func splitAddress(addr, name string) core.EmailAddress {
	addr = strings.TrimSpace(addr)
	out := core.EmailAddress{Address: addr, DisplayName: strings.TrimSpace(name)}
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		out.Domain = strings.ToLower(addr[at+1:])
	}
	return out
}
