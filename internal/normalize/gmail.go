package normalize

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/mikey/mailsentry/internal/core"
)

// gmailMessage mirrors the Gmail API users.messages.get shape with
// format=full: headers live on the payload, bodies and attachments in a
// nested part tree with base64url-encoded data.
type gmailMessage struct {
	ID           string    `json:"id"`
	InternalDate string    `json:"internalDate"`
	Payload      gmailPart `json:"payload"`
}

type gmailPart struct {
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Headers  []gmailHeader `json:"headers"`
	Body     gmailBody     `json:"body"`
	Parts    []gmailPart   `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	Data string `json:"data"`
}

func parseGmailMessage(raw []byte) (*core.ParsedEmail, error) {
	var msg gmailMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &core.ParseError{Stage: "gmail_decode", Err: err}
	}

	email := &core.ParsedEmail{
		MessageID: msg.ID,
		Headers:   make(map[string][]string),
	}
	for _, h := range msg.Payload.Headers {
		key := textproto.CanonicalMIMEHeaderKey(h.Name)
		email.Headers[key] = append(email.Headers[key], h.Value)
	}

	if from := headerValue(email.Headers, "From"); from != "" {
		email.From = parseAddressHeader(from)
	}
	for _, to := range parseAddressListHeader(headerValue(email.Headers, "To")) {
		email.To = append(email.To, to)
	}
	if replyTo := headerValue(email.Headers, "Reply-To"); replyTo != "" {
		addr := parseAddressHeader(replyTo)
		email.ReplyTo = &addr
	}
	email.Subject = headerValue(email.Headers, "Subject")

	if msg.InternalDate != "" {
		if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
			email.SentAt = time.UnixMilli(ms).UTC()
		}
	}
	if email.SentAt.IsZero() {
		email.SentAt = time.Now().UTC()
	}

	if err := walkGmailParts(msg.Payload, email); err != nil {
		return nil, &core.ParseError{Stage: "gmail_body", Err: err}
	}
	return email, nil
}

// walkGmailParts collects text/html bodies and attachments from the
// part tree
func walkGmailParts(part gmailPart, email *core.ParsedEmail) error {
	if part.Filename != "" {
		content, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return fmt.Errorf("attachment %q: %w", part.Filename, err)
		}
		email.Attachments = append(email.Attachments, core.Attachment{
			Filename: part.Filename,
			MIMEType: part.MimeType,
			Content:  content,
		})
		return nil
	}

	switch {
	case strings.HasPrefix(part.MimeType, "text/plain") && email.TextBody == "":
		body, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return fmt.Errorf("text body: %w", err)
		}
		email.TextBody = string(body)
	case strings.HasPrefix(part.MimeType, "text/html") && email.HTMLBody == "":
		body, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return fmt.Errorf("html body: %w", err)
		}
		email.HTMLBody = string(body)
	}

	for _, child := range part.Parts {
		if err := walkGmailParts(child, email); err != nil {
			return err
		}
	}
	return nil
}

func decodeBase64URL(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func headerValue(headers map[string][]string, name string) string {
	if values := headers[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func parseAddressHeader(value string) core.EmailAddress {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return splitAddress(value, "")
	}
	return splitAddress(addr.Address, addr.Name)
}

func parseAddressListHeader(value string) []core.EmailAddress {
	if value == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		var out []core.EmailAddress
		for _, piece := range strings.Split(value, ",") {
			if piece = strings.TrimSpace(piece); piece != "" {
				out = append(out, splitAddress(piece, ""))
			}
		}
		return out
	}
	out := make([]core.EmailAddress, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, splitAddress(a.Address, a.Name))
	}
	return out
}
