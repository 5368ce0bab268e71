package classify

import (
	"fmt"
	"os"
	"strings"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry maps domains of recognized legitimate bulk senders to their
// category. Lookups match the exact domain or any subdomain of a
// registered domain.
type Registry struct {
	senders map[string]core.KnownSender
	logger  *zap.Logger
}

// registryFile is the YAML shape of an external sender registry
type registryFile struct {
	Senders []core.KnownSender `yaml:"senders"`
}

// defaultSenders covers common retail, SaaS and transactional senders
// so a fresh install classifies sensibly without an external registry
var defaultSenders = []core.KnownSender{
	{Domain: "amazon.com", Name: "Amazon", Category: core.CategoryRetail},
	{Domain: "ebay.com", Name: "eBay", Category: core.CategoryRetail},
	{Domain: "walmart.com", Name: "Walmart", Category: core.CategoryRetail},
	{Domain: "target.com", Name: "Target", Category: core.CategoryRetail},
	{Domain: "bestbuy.com", Name: "Best Buy", Category: core.CategoryRetail},
	{Domain: "etsy.com", Name: "Etsy", Category: core.CategoryRetail},
	{Domain: "shopify.com", Name: "Shopify", Category: core.CategorySaaS},
	{Domain: "github.com", Name: "GitHub", Category: core.CategorySaaS},
	{Domain: "atlassian.com", Name: "Atlassian", Category: core.CategorySaaS},
	{Domain: "slack.com", Name: "Slack", Category: core.CategorySaaS},
	{Domain: "salesforce.com", Name: "Salesforce", Category: core.CategorySaaS},
	{Domain: "zoom.us", Name: "Zoom", Category: core.CategorySaaS},
	{Domain: "dropbox.com", Name: "Dropbox", Category: core.CategorySaaS},
	{Domain: "stripe.com", Name: "Stripe", Category: core.CategoryTransactional},
	{Domain: "paypal.com", Name: "PayPal", Category: core.CategoryTransactional},
	{Domain: "sendgrid.net", Name: "SendGrid", Category: core.CategoryTransactional},
	{Domain: "mailchimp.com", Name: "Mailchimp", Category: core.CategoryTransactional},
	{Domain: "intuit.com", Name: "Intuit", Category: core.CategoryFinancial},
	{Domain: "chase.com", Name: "Chase", Category: core.CategoryFinancial},
	{Domain: "bankofamerica.com", Name: "Bank of America", Category: core.CategoryFinancial},
}

// NewRegistry creates a registry seeded with the built-in sender set
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		senders: make(map[string]core.KnownSender, len(defaultSenders)),
		logger:  logger,
	}
	for _, s := range defaultSenders {
		r.senders[s.Domain] = s
	}
	return r
}

// NewRegistryFromFile loads an external YAML registry on top of the
// built-in sender set
func NewRegistryFromFile(path string, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sender registry: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sender registry: %w", err)
	}
	for _, s := range file.Senders {
		r.senders[strings.ToLower(s.Domain)] = s
	}
	logger.Info("Loaded sender registry",
		zap.String("path", path),
		zap.Int("entries", len(r.senders)))
	return r, nil
}

// Lookup finds a known sender by exact domain or by being a subdomain
// of a registered domain
func (r *Registry) Lookup(domain string) (*core.KnownSender, bool) {
	domain = strings.ToLower(domain)
	if s, ok := r.senders[domain]; ok {
		return &s, true
	}
	for registered, s := range r.senders {
		if strings.HasSuffix(domain, "."+registered) {
			sender := s
			return &sender, true
		}
	}
	return nil, false
}
