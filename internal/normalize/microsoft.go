package normalize

import (
	"encoding/base64"
	"encoding/json"
	"net/textproto"
	"time"

	"github.com/mikey/mailsentry/internal/core"
)

// graphMessage mirrors the Microsoft Graph message resource with
// attachments expanded (contentBytes base64-encoded).
type graphMessage struct {
	ID                   string            `json:"id"`
	InternetMessageID    string            `json:"internetMessageId"`
	Subject              string            `json:"subject"`
	SentDateTime         time.Time         `json:"sentDateTime"`
	Body                 graphBody         `json:"body"`
	From                 *graphRecipient   `json:"from"`
	ToRecipients         []graphRecipient  `json:"toRecipients"`
	ReplyTo              []graphRecipient  `json:"replyTo"`
	InternetMessageHeaders []graphHeader   `json:"internetMessageHeaders"`
	Attachments          []graphAttachment `json:"attachments"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type graphAttachment struct {
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

func parseGraphMessage(raw []byte) (*core.ParsedEmail, error) {
	var msg graphMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &core.ParseError{Stage: "graph_decode", Err: err}
	}

	email := &core.ParsedEmail{
		MessageID: msg.InternetMessageID,
		Subject:   msg.Subject,
		Headers:   make(map[string][]string),
		SentAt:    msg.SentDateTime.UTC(),
	}
	if email.MessageID == "" {
		email.MessageID = msg.ID
	}
	if email.SentAt.IsZero() {
		email.SentAt = time.Now().UTC()
	}

	for _, h := range msg.InternetMessageHeaders {
		key := textproto.CanonicalMIMEHeaderKey(h.Name)
		email.Headers[key] = append(email.Headers[key], h.Value)
	}

	if msg.From != nil {
		email.From = splitAddress(msg.From.EmailAddress.Address, msg.From.EmailAddress.Name)
	}
	for _, r := range msg.ToRecipients {
		email.To = append(email.To, splitAddress(r.EmailAddress.Address, r.EmailAddress.Name))
	}
	if len(msg.ReplyTo) > 0 {
		addr := splitAddress(msg.ReplyTo[0].EmailAddress.Address, msg.ReplyTo[0].EmailAddress.Name)
		email.ReplyTo = &addr
	}

	switch msg.Body.ContentType {
	case "html", "HTML":
		email.HTMLBody = msg.Body.Content
	default:
		email.TextBody = msg.Body.Content
	}

	for _, a := range msg.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.ContentBytes)
		if err != nil {
			return nil, &core.ParseError{Stage: "graph_attachment", Err: err}
		}
		email.Attachments = append(email.Attachments, core.Attachment{
			Filename: a.Name,
			MIMEType: a.ContentType,
			Content:  content,
		})
	}
	return email, nil
}
