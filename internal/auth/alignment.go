package auth

import (
	"strings"

	"github.com/mikey/mailsentry/internal/core"
	"golang.org/x/net/publicsuffix"
)

// OrganizationalDomain strips subdomain labels down to the registrable
// domain, honoring multi-label public suffixes such as .co.uk
func OrganizationalDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	org, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		// Unlisted or bare suffix: the domain is its own org domain
		return domain
	}
	return org
}

// CheckSPFAlignment reports whether the mail-from domain aligns with the
// visible From domain under the given mode
func CheckSPFAlignment(headerFromDomain, mailFromDomain string, mode core.AlignmentMode) bool {
	return domainsAligned(headerFromDomain, mailFromDomain, mode)
}

// CheckDKIMAlignment reports whether a DKIM signing domain aligns with
// the visible From domain under the given mode
func CheckDKIMAlignment(headerFromDomain, dkimDomain string, mode core.AlignmentMode) bool {
	return domainsAligned(headerFromDomain, dkimDomain, mode)
}

// CheckAnyDKIMAlignment reports whether any DKIM signature both passed
// and aligns with the From domain
func CheckAnyDKIMAlignment(headerFromDomain string, signatures []core.DKIMSignature, mode core.AlignmentMode) bool {
	for _, sig := range signatures {
		if sig.Result == core.DKIMPass && domainsAligned(headerFromDomain, sig.Domain, mode) {
			return true
		}
	}
	return false
}

func domainsAligned(a, b string, mode core.AlignmentMode) bool {
	a = strings.ToLower(strings.TrimSuffix(a, "."))
	b = strings.ToLower(strings.TrimSuffix(b, "."))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if mode == core.AlignmentStrict {
		return false
	}
	return OrganizationalDomain(a) == OrganizationalDomain(b)
}

// IsSubdomainOf reports whether child is a strict subdomain of parent
func IsSubdomainOf(child, parent string) bool {
	child = strings.ToLower(child)
	parent = strings.ToLower(parent)
	return child != parent && strings.HasSuffix(child, "."+parent)
}
