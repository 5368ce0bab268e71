// Package smtpproxy exposes the verdict pipeline as a content-filter
// proxy: messages arrive over SMTP, get analyzed and annotated with
// verdict headers, then are forwarded to the downstream relay or
// rejected outright for blocking verdicts.
package smtpproxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/normalize"
	"go.uber.org/zap"
)

// Config controls the proxy listener and downstream relay
type Config struct {
	ListenAddr     string
	TenantID       string
	RejectOnBlock  bool
	RelayAddr      string
	RelayPort      int
	RelayEnabled   bool
	AnalysisWindow time.Duration

	VerdictHeader string
	ScoreHeader   string
	SignalsHeader string
}

// DefaultConfig returns the standard proxy tuning
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":10025",
		TenantID:       "default",
		RejectOnBlock:  true,
		RelayAddr:      "127.0.0.1",
		RelayPort:      10026,
		RelayEnabled:   true,
		AnalysisWindow: 30 * time.Second,
		VerdictHeader:  "X-Mailsentry-Verdict",
		ScoreHeader:    "X-Mailsentry-Score",
		SignalsHeader:  "X-Mailsentry-Signals",
	}
}

// Proxy is the SMTP content-filter front end of the pipeline
type Proxy struct {
	pipeline   *core.Pipeline
	normalizer *normalize.Normalizer
	logger     *zap.Logger
	cfg        Config
	server     *smtp.Server
}

// NewProxy creates a new SMTP proxy
func NewProxy(pipeline *core.Pipeline, normalizer *normalize.Normalizer, cfg Config, logger *zap.Logger) *Proxy {
	return &Proxy{
		pipeline:   pipeline,
		normalizer: normalizer,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start begins accepting SMTP connections
func (p *Proxy) Start() error {
	p.server = smtp.NewServer(&backend{proxy: p})
	p.server.Addr = p.cfg.ListenAddr
	p.server.Domain = "localhost"
	p.server.ReadTimeout = 30 * time.Second
	p.server.WriteTimeout = 30 * time.Second
	p.server.MaxMessageBytes = 30 * 1024 * 1024
	p.server.MaxRecipients = 50
	p.server.AllowInsecureAuth = true

	p.logger.Info("SMTP proxy starting", zap.String("address", p.cfg.ListenAddr))

	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			p.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the listener down
func (p *Proxy) Stop() error {
	if p.server != nil {
		return p.server.Close()
	}
	return nil
}

type backend struct {
	proxy *Proxy
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{proxy: b.proxy}, nil
}

type session struct {
	proxy      *Proxy
	sender     string
	recipients []string
}

func (s *session) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *session) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data analyzes the message and either rejects it or relays it with
// verdict headers prepended
func (s *session) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.proxy.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.proxy.cfg.AnalysisWindow)
	defer cancel()

	email, err := s.proxy.normalizer.Normalize(&normalize.RawMessage{
		Provider: normalize.ProviderSMTP,
		TenantID: s.proxy.cfg.TenantID,
		RFC822:   rawData,
	})
	if err != nil {
		// Unparseable mail still flows; the relay decides what to do
		// with it
		s.proxy.logger.Error("Failed to normalize message", zap.Error(err))
		return s.relay(rawData)
	}

	verdict := s.proxy.pipeline.Analyze(ctx, email)

	s.proxy.logger.Info("Processed message",
		zap.String("message_id", email.MessageID),
		zap.String("from", email.From.Address),
		zap.String("verdict", string(verdict.Verdict)),
		zap.Float64("score", verdict.OverallScore))

	if verdict.Verdict == core.VerdictBlock && s.proxy.cfg.RejectOnBlock {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as threat (score: %.1f)", verdict.OverallScore),
		}
	}
	return s.relay(annotate(rawData, verdict, s.proxy.cfg))
}

func (s *session) Logout() error {
	return nil
}

// annotate prepends the verdict headers to the raw message
func annotate(rawData []byte, verdict *core.EmailVerdict, cfg Config) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %s\r\n", cfg.VerdictHeader, verdict.Verdict)
	fmt.Fprintf(&buf, "%s: %.2f\r\n", cfg.ScoreHeader, verdict.OverallScore)
	if len(verdict.Signals) > 0 {
		types := make([]string, 0, len(verdict.Signals))
		for _, sig := range verdict.Signals {
			types = append(types, string(sig.Type))
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", cfg.SignalsHeader, strings.Join(types, ", "))
	}
	buf.Write(rawData)
	return buf.Bytes()
}

// relay sends the message on to the downstream MTA
func (s *session) relay(data []byte) error {
	if !s.proxy.cfg.RelayEnabled {
		s.proxy.logger.Warn("Relay disabled, message dropped after analysis")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.proxy.cfg.RelayAddr, s.proxy.cfg.RelayPort)
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(s.sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := false
	for _, rcpt := range s.recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			s.proxy.logger.Warn("RCPT TO failed",
				zap.String("recipient", rcpt),
				zap.Error(err))
		} else {
			accepted = true
		}
	}
	if !accepted {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.proxy.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}
