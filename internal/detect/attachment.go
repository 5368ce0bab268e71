package detect

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// AttachmentDetector scores attachment risk: dangerous content types by
// magic bytes, risky extensions, double-extension and bidi filename
// spoofing, and VBA macros inside Office documents.
type AttachmentDetector struct {
	logger *zap.Logger
}

// NewAttachmentDetector creates a new attachment risk detector
func NewAttachmentDetector(logger *zap.Logger) *AttachmentDetector {
	return &AttachmentDetector{logger: logger}
}

// Name returns the detector name
func (d *AttachmentDetector) Name() string {
	return "attachment_risk"
}

// Detect inspects each attachment independently
func (d *AttachmentDetector) Detect(email *core.ParsedEmail, _ *core.Classification) []core.Signal {
	var signals []core.Signal
	for _, att := range email.Attachments {
		signals = append(signals, d.inspect(att)...)
	}
	return signals
}

func (d *AttachmentDetector) inspect(att core.Attachment) []core.Signal {
	var signals []core.Signal

	kind, kindName := DetectKind(att.Content)
	if kind == KindExecutable || kind == KindScript {
		signals = append(signals, core.Signal{
			Type:     core.SignalDangerousAttachment,
			Severity: core.SeverityCritical,
			Score:    35,
			Detail:   fmt.Sprintf("attachment %q contains %s content", att.Filename, kindName),
			Evidence: map[string]any{"filename": att.Filename, "kind": string(kind)},
		})
	} else if cls := lastExtensionClass(att.Filename); cls == KindExecutable || cls == KindScript {
		// Extension says executable even though content did not match a
		// known signature (possibly truncated or obfuscated)
		signals = append(signals, core.Signal{
			Type:     core.SignalDangerousAttachment,
			Severity: core.SeverityHigh,
			Score:    28,
			Detail:   fmt.Sprintf("attachment %q has an executable or script extension", att.Filename),
			Evidence: map[string]any{"filename": att.Filename},
		})
	}

	if combo, ok := isDoubleExtension(att.Filename); ok {
		signals = append(signals, core.Signal{
			Type:     core.SignalDoubleExtension,
			Severity: core.SeverityHigh,
			Score:    25,
			Detail:   fmt.Sprintf("attachment %q hides a dangerous extension behind %s", att.Filename, combo),
			Evidence: map[string]any{"filename": att.Filename, "extensions": combo},
		})
	}

	if hasBidiSpoofing(att.Filename) {
		signals = append(signals, core.Signal{
			Type:     core.SignalFilenameSpoofing,
			Severity: core.SeverityHigh,
			Score:    25,
			Detail:   "attachment filename uses bidi control characters",
			Evidence: map[string]any{"filename": att.Filename},
		})
	}

	if hasMacros, where := scanForMacros(att.Content, kind); hasMacros {
		signals = append(signals, core.Signal{
			Type:     core.SignalMacroDocument,
			Severity: core.SeverityHigh,
			Score:    22,
			Detail:   fmt.Sprintf("attachment %q contains VBA macros (%s)", att.Filename, where),
			Evidence: map[string]any{"filename": att.Filename},
		})
	}

	if sig := d.mimeMismatch(att, kind); sig != nil {
		signals = append(signals, *sig)
	}
	return signals
}

// mimeMismatch flags declared-safe MIME types whose bytes say otherwise
func (d *AttachmentDetector) mimeMismatch(att core.Attachment, kind FileKind) *core.Signal {
	mime := strings.ToLower(att.MIMEType)
	benign := strings.HasPrefix(mime, "image/") ||
		strings.HasPrefix(mime, "text/") ||
		mime == "application/pdf"
	if benign && (kind == KindExecutable || kind == KindScript) {
		return &core.Signal{
			Type:     core.SignalTypeMismatch,
			Severity: core.SeverityHigh,
			Score:    25,
			Detail:   fmt.Sprintf("attachment declares %s but contains %s content", att.MIMEType, kind),
			Evidence: map[string]any{"filename": att.Filename, "declared": att.MIMEType},
		}
	}
	return nil
}

func lastExtensionClass(filename string) FileKind {
	exts := extensions(filename)
	if len(exts) == 0 {
		return KindUnknown
	}
	return ExtensionClass(exts[len(exts)-1])
}

var macroKeywords = [][]byte{
	[]byte("vbaProject"),
	[]byte("Auto_Open"),
	[]byte("AutoOpen"),
	[]byte("Document_Open"),
	[]byte("Workbook_Open"),
	[]byte("Shell("),
	[]byte("CreateObject"),
}

// scanForMacros looks for VBA markers. OOXML documents are opened as
// zip archives and their parts scanned; legacy OLE documents are
// scanned as a flat byte stream.
func scanForMacros(content []byte, kind FileKind) (bool, string) {
	switch kind {
	case KindOffice, KindArchive:
		reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			return false, ""
		}
		for _, f := range reader.File {
			lower := strings.ToLower(f.Name)
			if strings.Contains(lower, "vbaproject") {
				return true, "vbaProject part"
			}
			if !strings.HasSuffix(lower, ".xml") && !strings.HasSuffix(lower, ".rels") {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				continue
			}
			// per-part reads capped at 1 MiB
			data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
			rc.Close()
			if err != nil {
				continue
			}
			if containsMacroKeyword(data) {
				return true, f.Name
			}
		}
	case KindOLE:
		if containsMacroKeyword(content) {
			return true, "OLE stream"
		}
	}
	return false, ""
}

func containsMacroKeyword(data []byte) bool {
	for _, kw := range macroKeywords {
		if bytes.Contains(data, kw) {
			return true
		}
	}
	return false
}
