package auth

import (
	"testing"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestOrganizationalDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"example.com", "example.com"},
		{"mail.example.com", "example.com"},
		{"a.b.c.example.com", "example.com"},
		{"example.co.uk", "example.co.uk"},
		{"mail.example.co.uk", "example.co.uk"},
		{"Example.COM.", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, OrganizationalDomain(tt.domain))
		})
	}
}

func TestDomainsAligned(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		mode core.AlignmentMode
		want bool
	}{
		{"exact match strict", "example.com", "example.com", core.AlignmentStrict, true},
		{"subdomain strict", "example.com", "mail.example.com", core.AlignmentStrict, false},
		{"subdomain relaxed", "example.com", "mail.example.com", core.AlignmentRelaxed, true},
		{"sibling subdomains relaxed", "a.example.com", "b.example.com", core.AlignmentRelaxed, true},
		{"different org domains", "example.com", "example.org", core.AlignmentRelaxed, false},
		{"multi-label suffix relaxed", "example.co.uk", "mail.example.co.uk", core.AlignmentRelaxed, true},
		{"same suffix different org", "alpha.co.uk", "beta.co.uk", core.AlignmentRelaxed, false},
		{"empty operand", "example.com", "", core.AlignmentRelaxed, false},
		{"case and trailing dot", "Example.com", "MAIL.example.COM.", core.AlignmentRelaxed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domainsAligned(tt.a, tt.b, tt.mode))
		})
	}
}

func TestCheckAnyDKIMAlignment(t *testing.T) {
	sigs := []core.DKIMSignature{
		{Domain: "mailer.example.org", Result: core.DKIMPass},
		{Domain: "example.com", Result: core.DKIMFail},
		{Domain: "mail.example.com", Result: core.DKIMPass},
	}

	assert.True(t, CheckAnyDKIMAlignment("example.com", sigs, core.AlignmentRelaxed))
	// The only exact-domain signature failed, so strict mode has
	// nothing aligned that also passed
	assert.False(t, CheckAnyDKIMAlignment("example.com", sigs, core.AlignmentStrict))
	assert.False(t, CheckAnyDKIMAlignment("example.com", nil, core.AlignmentRelaxed))
}

func TestIsSubdomainOf(t *testing.T) {
	assert.True(t, IsSubdomainOf("mail.example.com", "example.com"))
	assert.False(t, IsSubdomainOf("example.com", "example.com"))
	assert.False(t, IsSubdomainOf("notexample.com", "example.com"))
}
