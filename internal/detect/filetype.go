package detect

import (
	"bytes"
	"strings"
)

// FileKind classifies an attachment by its leading bytes
type FileKind string

const (
	KindExecutable FileKind = "executable"
	KindScript     FileKind = "script"
	KindArchive    FileKind = "archive"
	KindOffice     FileKind = "office"
	KindOLE        FileKind = "ole"
	KindPDF        FileKind = "pdf"
	KindImage      FileKind = "image"
	KindUnknown    FileKind = "unknown"
)

// magicSignature maps a byte prefix to a file kind. When several
// signatures share a prefix the longest (most specific) match wins.
type magicSignature struct {
	prefix []byte
	kind   FileKind
	name   string
}

var magicSignatures = []magicSignature{
	{[]byte{0x4D, 0x5A}, KindExecutable, "windows PE"},
	{[]byte{0x7F, 0x45, 0x4C, 0x46}, KindExecutable, "ELF"},
	{[]byte{0xCF, 0xFA, 0xED, 0xFE}, KindExecutable, "Mach-O"},
	{[]byte{0xCA, 0xFE, 0xBA, 0xBE}, KindExecutable, "Mach-O universal"},
	{[]byte("#!"), KindScript, "shebang script"},
	{[]byte{0x50, 0x4B, 0x03, 0x04}, KindArchive, "zip"},
	// OOXML documents are zip containers; the content-types entry is
	// stored first, which makes the signature longer and more specific
	{[]byte("PK\x03\x04\x14\x00\x06\x00"), KindOffice, "OOXML document"},
	{[]byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07}, KindArchive, "rar"},
	{[]byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, KindArchive, "7z"},
	{[]byte{0x1F, 0x8B}, KindArchive, "gzip"},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, KindOLE, "OLE compound document"},
	{[]byte("%PDF"), KindPDF, "pdf"},
	{[]byte{0xFF, 0xD8, 0xFF}, KindImage, "jpeg"},
	{[]byte{0x89, 0x50, 0x4E, 0x47}, KindImage, "png"},
	{[]byte("GIF8"), KindImage, "gif"},
}

// DetectKind identifies content by magic bytes. The longest matching
// signature wins so OOXML is not reported as a plain zip.
func DetectKind(content []byte) (FileKind, string) {
	best := -1
	for i, sig := range magicSignatures {
		if bytes.HasPrefix(content, sig.prefix) {
			if best == -1 || len(sig.prefix) > len(magicSignatures[best].prefix) {
				best = i
			}
		}
	}
	if best == -1 {
		return KindUnknown, ""
	}
	return magicSignatures[best].kind, magicSignatures[best].name
}

var dangerousExtensions = map[string]bool{
	"exe": true, "scr": true, "pif": true, "com": true, "cpl": true,
	"msi": true, "msp": true, "dll": true, "jar": true, "app": true,
}

var scriptExtensions = map[string]bool{
	"js": true, "jse": true, "vbs": true, "vbe": true, "wsf": true,
	"wsh": true, "ps1": true, "psm1": true, "bat": true, "cmd": true,
	"sh": true, "hta": true,
}

var archiveExtensions = map[string]bool{
	"zip": true, "rar": true, "7z": true, "gz": true, "tar": true,
	"iso": true, "img": true, "cab": true,
}

var officeExtensions = map[string]bool{
	"doc": true, "docm": true, "docx": true, "xls": true, "xlsm": true,
	"xlsx": true, "ppt": true, "pptm": true, "pptx": true, "rtf": true,
}

var safeLookingExtensions = map[string]bool{
	"pdf": true, "txt": true, "jpg": true, "jpeg": true, "png": true,
	"gif": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"csv": true, "html": true,
}

// ExtensionClass reports which risk bucket an extension falls into
func ExtensionClass(ext string) FileKind {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch {
	case dangerousExtensions[ext]:
		return KindExecutable
	case scriptExtensions[ext]:
		return KindScript
	case archiveExtensions[ext]:
		return KindArchive
	case officeExtensions[ext]:
		return KindOffice
	default:
		return KindUnknown
	}
}

// extensions returns all dot-separated extensions of a filename in
// order, lowercased ("report.pdf.exe" -> ["pdf", "exe"])
func extensions(filename string) []string {
	parts := strings.Split(strings.ToLower(filename), ".")
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}

// isDoubleExtension reports whether a safe-looking extension is followed
// by a dangerous or script one
func isDoubleExtension(filename string) (string, bool) {
	exts := extensions(filename)
	if len(exts) < 2 {
		return "", false
	}
	last := exts[len(exts)-1]
	if !dangerousExtensions[last] && !scriptExtensions[last] {
		return "", false
	}
	for _, prior := range exts[:len(exts)-1] {
		if safeLookingExtensions[prior] {
			return prior + "." + last, true
		}
	}
	return "", false
}

// bidi control characters used to visually reorder filenames, most
// notably U+202E RIGHT-TO-LEFT OVERRIDE
var bidiControls = []rune{
	'\u202A', '\u202B', '\u202C', '\u202D', '\u202E',
	'\u2066', '\u2067', '\u2068', '\u2069', '\u200E', '\u200F',
}

// hasBidiSpoofing reports whether a filename carries bidi control
// characters, notably the right-to-left override
func hasBidiSpoofing(filename string) bool {
	for _, r := range filename {
		for _, c := range bidiControls {
			if r == c {
				return true
			}
		}
	}
	return false
}
