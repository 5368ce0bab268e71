package aggregate

import (
	"github.com/mikey/mailsentry/internal/core"
)

// becSignalTypes are the BEC-category signals eligible for first-contact
// amplification
var becSignalTypes = map[core.SignalType]bool{
	core.SignalUrgencyLanguage:     true,
	core.SignalFinancialRequest:    true,
	core.SignalImpersonation:       true,
	core.SignalWireTransferRequest: true,
	core.SignalSecrecyRequest:      true,
	core.SignalGiftCardRequest:     true,
}

// amplify boosts BEC-category signals when they co-occur with a
// first-contact signal: an unknown sender making BEC-shaped requests is
// far more suspicious than an established one. Amplified scores are
// capped so compounding multipliers cannot run away.
func (a *Aggregator) amplify(signals []core.Signal) []core.Signal {
	var hasFirstContact, hasVIP, hasImpersonation, hasFinancial bool
	for _, s := range signals {
		switch s.Type {
		case core.SignalFirstContact:
			hasFirstContact = true
		case core.SignalVIPTargeting:
			hasVIP = true
		case core.SignalImpersonation:
			hasImpersonation = true
		case core.SignalFinancialRequest, core.SignalWireTransferRequest:
			hasFinancial = true
		}
	}
	if !hasFirstContact {
		return signals
	}

	out := make([]core.Signal, len(signals))
	for i, s := range signals {
		if !becSignalTypes[s.Type] {
			out[i] = s
			continue
		}
		s.Score *= a.cfg.AmplificationFactor
		if hasVIP {
			s.Score += a.cfg.VIPTargetingBoost
		}
		if s.Score > a.cfg.AmplifiedScoreCap {
			s.Score = a.cfg.AmplifiedScoreCap
		}
		// Executive identity plus a money request on first contact is
		// the classic CEO-fraud shape
		if hasImpersonation && hasFinancial {
			s.Severity = core.SeverityCritical
		}
		out[i] = s
	}
	return out
}
