package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mikey/mailsentry/internal/core"
)

var promotionalPhrases = []string{
	"limited time", "act now", "don't miss", "exclusive offer",
	"special offer", "sale ends", "new arrivals", "shop now",
	"best deals", "flash sale",
}

var discountPhrases = []string{
	"% off", "percent off", "discount", "coupon", "promo code",
	"free shipping", "save up to", "clearance",
}

var footerPhrases = []string{
	"you are receiving this email because",
	"to stop receiving these emails",
	"update your preferences",
	"manage your subscription",
	"sent to you by",
}

var socialDomains = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"linkedin.com", "youtube.com", "tiktok.com", "pinterest.com",
}

// detectMarketingSignals inspects headers, subject and body for bulk
// marketing indicators and returns the named signals found
func detectMarketingSignals(email *core.ParsedEmail) []string {
	var signals []string
	lowerText := strings.ToLower(email.Subject + " " + email.TextBody)
	lowerHTML := strings.ToLower(email.HTMLBody)
	combined := lowerText + " " + lowerHTML

	if hasHeader(email, "List-Unsubscribe") || strings.Contains(combined, "unsubscribe") {
		signals = append(signals, "unsubscribe_link")
	}
	if strings.Contains(combined, "view in browser") || strings.Contains(combined, "view this email in your browser") {
		signals = append(signals, "view_in_browser")
	}
	if hasBulkHeaders(email) {
		signals = append(signals, "bulk_mail_headers")
	}
	if containsAny(combined, promotionalPhrases) {
		signals = append(signals, "promotional_language")
	}
	if containsAny(combined, discountPhrases) {
		signals = append(signals, "discount_offer")
	}
	if containsAny(combined, footerPhrases) {
		signals = append(signals, "marketing_footer")
	}

	if email.HTMLBody != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.HTMLBody)); err == nil {
			if hasTrackingPixel(doc) {
				signals = append(signals, "tracking_pixel")
			}
			if hasSocialLinks(doc) {
				signals = append(signals, "social_links")
			}
		}
	}
	return signals
}

func hasHeader(email *core.ParsedEmail, name string) bool {
	return len(email.Headers[name]) > 0
}

func hasBulkHeaders(email *core.ParsedEmail) bool {
	for _, v := range email.Headers["Precedence"] {
		v = strings.ToLower(v)
		if v == "bulk" || v == "list" {
			return true
		}
	}
	return hasHeader(email, "List-Id") || hasHeader(email, "X-Campaign-Id") || hasHeader(email, "X-Mailer-Campaign")
}

// hasTrackingPixel looks for 1x1 images, the classic open-tracking beacon
func hasTrackingPixel(doc *goquery.Document) bool {
	found := false
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		w, _ := s.Attr("width")
		h, _ := s.Attr("height")
		if (w == "1" && h == "1") || (w == "0" && h == "0") {
			found = true
			return false
		}
		if style, ok := s.Attr("style"); ok {
			style = strings.ToLower(style)
			if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func hasSocialLinks(doc *goquery.Document) bool {
	count := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.ToLower(href)
		for _, d := range socialDomains {
			if strings.Contains(href, d) {
				count++
				return
			}
		}
	})
	return count >= 2
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
