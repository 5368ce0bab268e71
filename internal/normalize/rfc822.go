package normalize

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/mikey/mailsentry/internal/core"
)

const maxAttachmentBytes = 25 * 1024 * 1024

// parseRFC822 parses a raw RFC 5322 message, walking MIME parts for
// bodies and attachments
func parseRFC822(raw []byte) (*core.ParsedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &core.ParseError{Stage: "rfc822_headers", Err: err}
	}

	email := &core.ParsedEmail{
		Headers: make(map[string][]string),
	}

	fields := mr.Header.Fields()
	for fields.Next() {
		email.Headers[fields.Key()] = append(email.Headers[fields.Key()], fields.Value())
	}

	if msgID, err := mr.Header.MessageID(); err == nil {
		email.MessageID = msgID
	}
	email.Subject, _ = mr.Header.Subject()

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.From = splitAddress(from[0].Address, from[0].Name)
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, a := range to {
			email.To = append(email.To, splitAddress(a.Address, a.Name))
		}
	}
	if replyTo, err := mr.Header.AddressList("Reply-To"); err == nil && len(replyTo) > 0 {
		addr := splitAddress(replyTo[0].Address, replyTo[0].Name)
		email.ReplyTo = &addr
	}

	if date, err := mr.Header.Date(); err == nil {
		email.SentAt = date.UTC()
	} else {
		email.SentAt = time.Now().UTC()
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed trailing parts do not invalidate what was
			// already collected
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			body, err := io.ReadAll(io.LimitReader(part.Body, maxAttachmentBytes))
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && email.TextBody == "":
				email.TextBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && email.HTMLBody == "":
				email.HTMLBody = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			contentType, _, _ := header.ContentType()
			content, err := io.ReadAll(io.LimitReader(part.Body, maxAttachmentBytes))
			if err != nil {
				continue
			}
			email.Attachments = append(email.Attachments, core.Attachment{
				Filename: filename,
				MIMEType: contentType,
				Content:  content,
			})
		}
	}
	return email, nil
}
