package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// RecordFetcher looks up and parses published DMARC policies
type RecordFetcher struct {
	resolver core.DNSResolver
	logger   *zap.Logger
}

// NewRecordFetcher creates a new DMARC record fetcher
func NewRecordFetcher(resolver core.DNSResolver, logger *zap.Logger) *RecordFetcher {
	return &RecordFetcher{
		resolver: resolver,
		logger:   logger,
	}
}

// GetRecord fetches and parses the _dmarc TXT record for a domain.
// A DNS error or absent record returns core.ErrNoDMARCRecord; a record
// that exists but fails validation returns *core.InvalidDMARCRecordError.
func (f *RecordFetcher) GetRecord(ctx context.Context, domain string) (*core.DMARCRecord, error) {
	name := "_dmarc." + strings.ToLower(domain)
	records, err := f.resolver.ResolveTXT(ctx, name)
	if err != nil {
		f.logger.Debug("DMARC lookup failed",
			zap.String("domain", domain),
			zap.Error(err))
		return nil, core.ErrNoDMARCRecord
	}

	for _, txt := range records {
		if strings.HasPrefix(strings.TrimSpace(txt), "v=DMARC") {
			return ParseRecord(txt)
		}
	}
	return nil, core.ErrNoDMARCRecord
}

// ParseRecord parses a semicolon-delimited DMARC TXT record
func ParseRecord(txt string) (*core.DMARCRecord, error) {
	record := &core.DMARCRecord{
		Percentage:    100,
		DKIMAlignment: core.AlignmentRelaxed,
		SPFAlignment:  core.AlignmentRelaxed,
	}

	seenPolicy := false
	for _, part := range strings.Split(txt, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "v":
			if value != "DMARC1" {
				return nil, &core.InvalidDMARCRecordError{
					Record: txt,
					Reason: fmt.Sprintf("unsupported version %q", value),
				}
			}
			record.Version = value
		case "p":
			policy, err := parsePolicy(value)
			if err != nil {
				return nil, &core.InvalidDMARCRecordError{Record: txt, Reason: err.Error()}
			}
			record.Policy = policy
			seenPolicy = true
		case "sp":
			policy, err := parsePolicy(value)
			if err != nil {
				return nil, &core.InvalidDMARCRecordError{Record: txt, Reason: err.Error()}
			}
			record.SubdomainPolicy = policy
		case "pct":
			pct, err := strconv.Atoi(value)
			if err != nil || pct < 0 || pct > 100 {
				return nil, &core.InvalidDMARCRecordError{
					Record: txt,
					Reason: fmt.Sprintf("pct %q outside [0,100]", value),
				}
			}
			record.Percentage = pct
		case "adkim":
			record.DKIMAlignment = parseAlignment(value)
		case "aspf":
			record.SPFAlignment = parseAlignment(value)
		case "rua":
			record.AggregateReports = splitAddresses(value)
		case "ruf":
			record.ForensicReports = splitAddresses(value)
		}
	}

	if record.Version == "" {
		return nil, &core.InvalidDMARCRecordError{Record: txt, Reason: "missing v=DMARC1 tag"}
	}
	if !seenPolicy {
		return nil, &core.InvalidDMARCRecordError{Record: txt, Reason: "missing mandatory p= tag"}
	}
	return record, nil
}

func parsePolicy(value string) (core.DMARCPolicy, error) {
	switch strings.ToLower(value) {
	case "none":
		return core.PolicyNone, nil
	case "quarantine":
		return core.PolicyQuarantine, nil
	case "reject":
		return core.PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown policy %q", value)
	}
}

func parseAlignment(value string) core.AlignmentMode {
	switch strings.ToLower(value) {
	case "s", "strict":
		return core.AlignmentStrict
	default:
		return core.AlignmentRelaxed
	}
}

func splitAddresses(value string) []string {
	var out []string
	for _, addr := range strings.Split(value, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
