package detect

import (
	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// Detectors returns the standard deterministic rule engines in a fixed
// order. Each is pure and order-independent; the pipeline tolerates any
// of them failing without aborting the verdict.
func Detectors(logger *zap.Logger) []core.SignalDetector {
	return []core.SignalDetector{
		NewBECDetector(logger),
		NewAttachmentDetector(logger),
		NewURLDetector(logger),
	}
}
