package detect

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    FileKind
	}{
		{"windows PE", []byte{0x4D, 0x5A, 0x90, 0x00}, KindExecutable},
		{"ELF", []byte{0x7F, 0x45, 0x4C, 0x46, 0x02}, KindExecutable},
		{"shebang", []byte("#!/bin/sh\nrm -rf /"), KindScript},
		{"plain zip", []byte("PK\x03\x04\x0a\x00"), KindArchive},
		{"OOXML beats zip prefix", []byte("PK\x03\x04\x14\x00\x06\x00rest"), KindOffice},
		{"OLE document", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, KindOLE},
		{"pdf", []byte("%PDF-1.7"), KindPDF},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D}, KindImage},
		{"empty", nil, KindUnknown},
		{"random text", []byte("hello world"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _ := DetectKind(tt.content)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestIsDoubleExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"report.pdf.exe", true},
		{"invoice.docx.js", true},
		{"photo.jpg.scr", true},
		{"archive.tar.gz", false},
		{"report.pdf", false},
		{"setup.exe", false},
		{"notes.txt", false},
		{"README", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			_, got := isDoubleExtension(tt.filename)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasBidiSpoofing(t *testing.T) {
	assert.True(t, hasBidiSpoofing("invoice‮fdp.exe"))
	assert.True(t, hasBidiSpoofing("‏report.pdf"))
	assert.False(t, hasBidiSpoofing("invoice.pdf"))
	assert.False(t, hasBidiSpoofing("résumé.pdf"))
}

// buildOOXML assembles a minimal zip with the OOXML local-header shape
// the magic-byte table expects
func buildOOXML(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestScanForMacros(t *testing.T) {
	t.Run("vbaProject part", func(t *testing.T) {
		content := buildOOXML(t, map[string]string{
			"[Content_Types].xml":  "<Types/>",
			"word/vbaProject.bin":  "binary",
			"word/document.xml":    "<w:document/>",
		})
		found, where := scanForMacros(content, KindArchive)
		assert.True(t, found)
		assert.Equal(t, "vbaProject part", where)
	})

	t.Run("macro keyword in xml part", func(t *testing.T) {
		content := buildOOXML(t, map[string]string{
			"word/document.xml": "<w:document>Auto_Open</w:document>",
		})
		found, _ := scanForMacros(content, KindArchive)
		assert.True(t, found)
	})

	t.Run("clean document", func(t *testing.T) {
		content := buildOOXML(t, map[string]string{
			"[Content_Types].xml": "<Types/>",
			"word/document.xml":   "<w:document>quarterly numbers</w:document>",
		})
		found, _ := scanForMacros(content, KindArchive)
		assert.False(t, found)
	})

	t.Run("OLE flat scan", func(t *testing.T) {
		content := append([]byte{0xD0, 0xCF, 0x11, 0xE0}, []byte("...Shell(\"cmd.exe\")...")...)
		found, where := scanForMacros(content, KindOLE)
		assert.True(t, found)
		assert.Equal(t, "OLE stream", where)
	})

	t.Run("unknown kind not scanned", func(t *testing.T) {
		found, _ := scanForMacros([]byte("Auto_Open"), KindUnknown)
		assert.False(t, found)
	})
}

func TestAttachmentDetector_Detect(t *testing.T) {
	d := NewAttachmentDetector(zap.NewNop())

	t.Run("executable content is critical", func(t *testing.T) {
		email := &core.ParsedEmail{Attachments: []core.Attachment{{
			Filename: "update.exe",
			MIMEType: "application/octet-stream",
			Content:  []byte{0x4D, 0x5A, 0x90, 0x00},
		}}}
		signals := d.Detect(email, nil)
		require.Len(t, signals, 1)
		assert.Equal(t, core.SignalDangerousAttachment, signals[0].Type)
		assert.Equal(t, core.SeverityCritical, signals[0].Severity)
		assert.Equal(t, float64(35), signals[0].Score)
	})

	t.Run("executable extension without signature", func(t *testing.T) {
		email := &core.ParsedEmail{Attachments: []core.Attachment{{
			Filename: "payload.exe",
			MIMEType: "application/octet-stream",
			Content:  []byte("not actually a PE"),
		}}}
		signals := d.Detect(email, nil)
		require.Len(t, signals, 1)
		assert.Equal(t, core.SignalDangerousAttachment, signals[0].Type)
		assert.Equal(t, core.SeverityHigh, signals[0].Severity)
	})

	t.Run("double extension and mime mismatch stack", func(t *testing.T) {
		email := &core.ParsedEmail{Attachments: []core.Attachment{{
			Filename: "invoice.pdf.exe",
			MIMEType: "application/pdf",
			Content:  []byte{0x4D, 0x5A, 0x90, 0x00},
		}}}
		signals := d.Detect(email, nil)
		types := signalTypes(signals)
		assert.Contains(t, types, core.SignalDangerousAttachment)
		assert.Contains(t, types, core.SignalDoubleExtension)
		assert.Contains(t, types, core.SignalTypeMismatch)
	})

	t.Run("bidi filename", func(t *testing.T) {
		email := &core.ParsedEmail{Attachments: []core.Attachment{{
			Filename: "report‮fdp.txt",
			MIMEType: "text/plain",
			Content:  []byte("hello"),
		}}}
		types := signalTypes(d.Detect(email, nil))
		assert.Contains(t, types, core.SignalFilenameSpoofing)
	})

	t.Run("macro document", func(t *testing.T) {
		email := &core.ParsedEmail{Attachments: []core.Attachment{{
			Filename: "report.docm",
			MIMEType: "application/vnd.ms-word.document.macroEnabled.12",
			Content:  buildOOXML(t, map[string]string{"word/vbaProject.bin": "x"}),
		}}}
		types := signalTypes(d.Detect(email, nil))
		assert.Contains(t, types, core.SignalMacroDocument)
	})

	t.Run("benign image", func(t *testing.T) {
		email := &core.ParsedEmail{Attachments: []core.Attachment{{
			Filename: "photo.png",
			MIMEType: "image/png",
			Content:  []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A},
		}}}
		assert.Empty(t, d.Detect(email, nil))
	})
}
