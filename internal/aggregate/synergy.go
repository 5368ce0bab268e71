package aggregate

import (
	"sort"

	"github.com/mikey/mailsentry/internal/core"
)

// attackCategory buckets signal types into distinct attack patterns;
// the synergy bonus counts categories, not raw signals
type attackCategory string

const (
	categoryBEC        attackCategory = "bec"
	categoryPayload    attackCategory = "payload"
	categoryPhishing   attackCategory = "phishing"
	categoryAuth       attackCategory = "auth"
	categoryBehavioral attackCategory = "behavioral"
)

var signalCategories = map[core.SignalType]attackCategory{
	core.SignalUrgencyLanguage:     categoryBEC,
	core.SignalFinancialRequest:    categoryBEC,
	core.SignalImpersonation:       categoryBEC,
	core.SignalWireTransferRequest: categoryBEC,
	core.SignalSecrecyRequest:      categoryBEC,
	core.SignalGiftCardRequest:     categoryBEC,
	core.SignalVIPTargeting:        categoryBEC,
	core.SignalDangerousAttachment: categoryPayload,
	core.SignalDoubleExtension:     categoryPayload,
	core.SignalFilenameSpoofing:    categoryPayload,
	core.SignalMacroDocument:       categoryPayload,
	core.SignalTypeMismatch:        categoryPayload,
	core.SignalSuspiciousURL:       categoryPhishing,
	core.SignalSemanticThreat:      categoryPhishing,
	core.SignalAuthFailure:         categoryAuth,
	core.SignalDMARCViolation:      categoryAuth,
	core.SignalVolumeSpike:         categoryBehavioral,
	core.SignalUnusualTime:         categoryBehavioral,
	core.SignalNewRecipient:        categoryBehavioral,
	core.SignalSubjectAnomaly:      categoryBehavioral,
}

// synergyBonus rewards distinct co-occurring attack patterns. Marketing
// mail from a known or likely-marketing sender earns no bonus at all:
// bulk senders trip many weak signals without being attacks.
func (a *Aggregator) synergyBonus(signals []core.Signal, cls *core.Classification) float64 {
	if cls != nil && cls.Type == core.TypeMarketing && (cls.IsKnownSender || cls.IsLikelyMarketing) {
		return 0
	}

	seen := make(map[attackCategory]bool)
	for _, s := range signals {
		if cat, ok := signalCategories[s.Type]; ok {
			seen[cat] = true
		}
	}

	switch len(seen) {
	case 0, 1:
		return 0
	case 2:
		return 4
	case 3:
		return 6
	default:
		return 8
	}
}

// compoundPattern is a named higher-level attack signature that requires
// all of its component signals to be present
type compoundPattern struct {
	name     string
	requires []core.SignalType
}

var compoundPatternTable = []compoundPattern{
	{
		name: "ceo_fraud",
		requires: []core.SignalType{
			core.SignalFirstContact,
			core.SignalImpersonation,
			core.SignalWireTransferRequest,
			core.SignalSecrecyRequest,
		},
	},
	{
		name: "gift_card_scam",
		requires: []core.SignalType{
			core.SignalFirstContact,
			core.SignalUrgencyLanguage,
			core.SignalGiftCardRequest,
		},
	},
	{
		name: "credential_phishing",
		requires: []core.SignalType{
			core.SignalAuthFailure,
			core.SignalSuspiciousURL,
			core.SignalUrgencyLanguage,
		},
	},
	{
		name: "malware_delivery",
		requires: []core.SignalType{
			core.SignalDangerousAttachment,
			core.SignalUrgencyLanguage,
		},
	},
	{
		name: "account_takeover",
		requires: []core.SignalType{
			core.SignalVolumeSpike,
			core.SignalUnusualTime,
			core.SignalNewRecipient,
		},
	},
}

// compoundPatterns reports which named signatures the signal set matches
func compoundPatterns(signals []core.Signal) []string {
	present := make(map[core.SignalType]bool, len(signals))
	for _, s := range signals {
		present[s.Type] = true
	}

	var matched []string
	for _, p := range compoundPatternTable {
		all := true
		for _, req := range p.requires {
			if !present[req] {
				all = false
				break
			}
		}
		if all {
			matched = append(matched, p.name)
		}
	}
	sort.Strings(matched)
	return matched
}
