package auth

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// Evaluator resolves DMARC policy for a message and decides overall
// pass/fail from SPF and DKIM alignment. DNS failures and malformed
// records degrade to "no policy" rather than erroring.
type Evaluator struct {
	fetcher *RecordFetcher
	logger  *zap.Logger
}

// NewEvaluator creates a new authentication evaluator
func NewEvaluator(fetcher *RecordFetcher, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Evaluate computes the DMARC result for one message. Resolution order:
// the exact From domain first, then the organizational domain with
// sp= inheritance when the From domain is a subdomain.
func (e *Evaluator) Evaluate(ctx context.Context, input core.AuthenticationInput) *core.DMARCResult {
	record, policyDomain, policy := e.resolvePolicy(ctx, input.HeaderFromDomain)

	result := &core.DMARCResult{
		Result:        core.DMARCNone,
		Policy:        core.PolicyNone,
		AppliedPolicy: core.PolicyNone,
		Record:        record,
		PolicyDomain:  policyDomain,
	}
	if record == nil {
		return result
	}

	result.Policy = policy
	result.SPFAligned = input.SPF == core.SPFPass &&
		CheckSPFAlignment(input.HeaderFromDomain, input.MailFromDomain, record.SPFAlignment)
	result.DKIMAligned = CheckAnyDKIMAlignment(input.HeaderFromDomain, input.DKIM, record.DKIMAlignment)

	if result.SPFAligned || result.DKIMAligned {
		result.Result = core.DMARCPass
	} else {
		result.Result = core.DMARCFail
	}

	result.AppliedPolicy = applyPercentage(policy, record.Percentage, input.HeaderFromDomain)
	return result
}

// resolvePolicy finds the governing record and the effective policy for
// the From domain
func (e *Evaluator) resolvePolicy(ctx context.Context, fromDomain string) (*core.DMARCRecord, string, core.DMARCPolicy) {
	record, err := e.fetcher.GetRecord(ctx, fromDomain)
	if err == nil {
		return record, fromDomain, record.Policy
	}
	e.logInvalid(fromDomain, err)

	orgDomain := OrganizationalDomain(fromDomain)
	if !IsSubdomainOf(fromDomain, orgDomain) {
		return nil, "", core.PolicyNone
	}

	record, err = e.fetcher.GetRecord(ctx, orgDomain)
	if err != nil {
		e.logInvalid(orgDomain, err)
		return nil, "", core.PolicyNone
	}

	// Subdomains inherit sp= when the org record sets it
	policy := record.Policy
	if record.SubdomainPolicy != "" {
		policy = record.SubdomainPolicy
	}
	return record, orgDomain, policy
}

func (e *Evaluator) logInvalid(domain string, err error) {
	var invalid *core.InvalidDMARCRecordError
	if errors.As(err, &invalid) {
		e.logger.Warn("Rejecting malformed DMARC record",
			zap.String("domain", domain),
			zap.String("reason", invalid.Reason))
	}
}

// applyPercentage moderates the nominal policy by pct. At 0 the
// effective policy is none; at 100 the nominal policy applies. For
// intermediate values sampling is deterministic per sender: an FNV-1a
// hash of the From domain mod 100 keeps a given sender on the same side
// of the sample on every message.
func applyPercentage(policy core.DMARCPolicy, pct int, fromDomain string) core.DMARCPolicy {
	switch {
	case pct >= 100:
		return policy
	case pct <= 0:
		return core.PolicyNone
	}
	h := fnv.New32a()
	h.Write([]byte(fromDomain))
	if int(h.Sum32()%100) < pct {
		return policy
	}
	return core.PolicyNone
}
