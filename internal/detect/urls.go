package detect

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// maxURLs bounds the number of unique URLs inspected per message
const maxURLs = 20

// URLDetector extracts links from the message body and applies spoofing
// heuristics: IP-literal hosts, punycode, shorteners, and anchors whose
// visible text names a different host than the real target.
type URLDetector struct {
	logger *zap.Logger
}

// NewURLDetector creates a new URL heuristics detector
func NewURLDetector(logger *zap.Logger) *URLDetector {
	return &URLDetector{logger: logger}
}

// Name returns the detector name
func (d *URLDetector) Name() string {
	return "url_heuristics"
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

var shortenerHosts = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "goo.gl": true, "t.co": true,
	"ow.ly": true, "is.gd": true, "buff.ly": true, "rebrand.ly": true,
	"cutt.ly": true,
}

// Detect extracts and scores the message's URLs
func (d *URLDetector) Detect(email *core.ParsedEmail, _ *core.Classification) []core.Signal {
	urls, mismatches := d.extract(email)

	var signals []core.Signal
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" {
			continue
		}
		host := strings.ToLower(parsed.Hostname())

		switch {
		case net.ParseIP(host) != nil:
			signals = append(signals, urlSignal(raw, 18, core.SeverityHigh,
				"link uses a raw IP address instead of a hostname"))
		case strings.HasPrefix(host, "xn--") || strings.Contains(host, ".xn--"):
			signals = append(signals, urlSignal(raw, 15, core.SeverityWarning,
				"link host uses punycode encoding"))
		case shortenerHosts[host]:
			signals = append(signals, urlSignal(raw, 10, core.SeverityWarning,
				"link goes through a URL shortener"))
		case strings.Count(host, ".") >= 4:
			signals = append(signals, urlSignal(raw, 8, core.SeverityWarning,
				"link host has unusually deep subdomain nesting"))
		}
	}

	for _, m := range mismatches {
		signals = append(signals, core.Signal{
			Type:     core.SignalSuspiciousURL,
			Severity: core.SeverityHigh,
			Score:    20,
			Detail:   "anchor text names a different host than the link target",
			Evidence: map[string]any{"visible": m.visible, "actual": m.actual},
		})
	}
	return signals
}

type anchorMismatch struct {
	visible string
	actual  string
}

// extract gathers unique URLs from the HTML and text bodies, capped at
// maxURLs, plus any anchor-text/target host mismatches
func (d *URLDetector) extract(email *core.ParsedEmail) ([]string, []anchorMismatch) {
	seen := make(map[string]bool)
	var urls []string
	var mismatches []anchorMismatch

	add := func(raw string) {
		raw = strings.TrimRight(raw, ".,;)")
		if len(urls) >= maxURLs || seen[raw] {
			return
		}
		seen[raw] = true
		urls = append(urls, raw)
	}

	if email.HTMLBody != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.HTMLBody))
		if err == nil {
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				if !strings.HasPrefix(href, "http") {
					return
				}
				add(href)
				if m, ok := anchorHostMismatch(s.Text(), href); ok {
					mismatches = append(mismatches, m)
				}
			})
		} else {
			d.logger.Debug("Failed to parse HTML body", zap.Error(err))
		}
	}

	for _, raw := range urlPattern.FindAllString(email.TextBody, -1) {
		add(raw)
	}
	return urls, mismatches
}

// anchorHostMismatch flags anchors like <a href="evil.example">paypal.com</a>
func anchorHostMismatch(text, href string) (anchorMismatch, bool) {
	text = strings.TrimSpace(strings.ToLower(text))
	visible := urlPattern.FindString(text)
	if visible == "" {
		if !strings.Contains(text, ".") || strings.ContainsAny(text, " \t\n") {
			return anchorMismatch{}, false
		}
		visible = "http://" + text
	}
	visibleURL, err := url.Parse(visible)
	if err != nil || visibleURL.Host == "" {
		return anchorMismatch{}, false
	}
	actualURL, err := url.Parse(href)
	if err != nil || actualURL.Host == "" {
		return anchorMismatch{}, false
	}
	v := strings.TrimPrefix(strings.ToLower(visibleURL.Hostname()), "www.")
	a := strings.TrimPrefix(strings.ToLower(actualURL.Hostname()), "www.")
	if v != a {
		return anchorMismatch{visible: v, actual: a}, true
	}
	return anchorMismatch{}, false
}

func urlSignal(raw string, score float64, severity core.Severity, detail string) core.Signal {
	return core.Signal{
		Type:     core.SignalSuspiciousURL,
		Severity: severity,
		Score:    score,
		Detail:   detail,
		Evidence: map[string]any{"url": fmt.Sprintf("%.120s", raw)},
	}
}
