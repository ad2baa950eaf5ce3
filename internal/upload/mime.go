package upload

import (
	"bytes"
	"strings"
)

// mimeByExtension maps the supported extensions to their canonical MIME
// type. Extensions missing here fall through to magic-byte detection.
var mimeByExtension = map[string]string{
	// Text and markup
	"txt":  "text/plain",
	"md":   "text/markdown",
	"rst":  "text/x-rst",
	"log":  "text/plain",
	"csv":  "text/csv",
	"tsv":  "text/tab-separated-values",
	"json": "application/json",
	"yaml": "application/x-yaml",
	"yml":  "application/x-yaml",
	"xml":  "application/xml",
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"ini":  "text/plain",
	"cfg":  "text/plain",
	"conf": "text/plain",
	"toml": "application/toml",

	// Source code
	"go":    "text/x-go",
	"py":    "text/x-python",
	"js":    "text/javascript",
	"ts":    "text/typescript",
	"java":  "text/x-java-source",
	"c":     "text/x-c",
	"h":     "text/x-c",
	"cpp":   "text/x-c++",
	"rb":    "text/x-ruby",
	"rs":    "text/x-rust",
	"sh":    "text/x-shellscript",
	"sql":   "application/sql",
	"php":   "text/x-php",
	"swift": "text/x-swift",
	"kt":    "text/x-kotlin",

	// Images
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",

	// Documents
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xls":  "application/vnd.ms-excel",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"pdf":  "application/pdf",
}

// SniffMimeType resolves a MIME type from the filename extension first,
// then from content magic bytes. Magic bytes win over a generic or missing
// extension mapping: upstream sources commonly hand us octet-stream blobs
// with misleading names.
func SniffMimeType(filename string, data []byte) string {
	ext := extractExtension(filename)
	fromExt := mimeByExtension[ext]

	fromMagic := detectMimeFromMagicBytes(data)
	if fromMagic != "" {
		// A ZIP signature with an Office extension is the Office type
		// itself; the container format hides the real document type.
		if fromMagic == "application/zip" && strings.HasPrefix(fromExt, "application/vnd.openxmlformats") {
			return fromExt
		}
		if fromExt == "" || fromExt == "application/octet-stream" {
			return fromMagic
		}
		// Trust magic bytes for binary formats, the extension for text.
		if !strings.HasPrefix(fromMagic, "text/") && !strings.HasPrefix(fromExt, "text/") {
			return fromMagic
		}
	}

	if fromExt != "" {
		return fromExt
	}
	if fromMagic != "" {
		return fromMagic
	}
	return "application/octet-stream"
}

// detectMimeFromMagicBytes identifies well-known binary formats from their
// leading signature bytes. Returns "" when nothing matches.
func detectMimeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: GIF87a or GIF89a
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: RIFF....WEBP
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: little-endian II*\0 or big-endian MM\0*
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: BM
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	// ZIP container (DOCX, XLSX, plain ZIP): PK\x03\x04
	if bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}) {
		return "application/zip"
	}

	// Legacy MS Office compound file (XLS, DOC): D0 CF 11 E0 A1 B1 1A E1
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}) {
		return "application/vnd.ms-excel"
	}

	return ""
}
