// Package upload provides validation and normalization helpers for uploaded
// file content: filename sanitization, content-based MIME detection, size
// checks and checksums.
package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// reservedChars are characters that are rejected from filenames because they
// are path separators, shell metacharacters or forbidden on common
// filesystems.
const reservedChars = `<>:"/\|?*`

// SanitizeFilename removes path components and reserved characters from a
// filename to prevent path traversal and downstream filesystem issues.
// When nothing usable survives, a generated name is returned so callers
// always get a storable value.
//
// Example:
//
//	safe := upload.SanitizeFilename("../../../etc/passwd") // "passwd"
//	safe = upload.SanitizeFilename("C:\\Temp\\report.pdf") // "report.pdf"
//	safe = upload.SanitizeFilename("..")                   // "unnamed-<uuid>"
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)

	var b strings.Builder
	b.Grow(len(filename))
	for _, r := range filename {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(reservedChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	filename = strings.TrimSpace(b.String())
	filename = strings.Trim(filename, ".")

	if filename == "" {
		return "unnamed-" + uuid.NewString()
	}
	return filename
}

// DetectContentType identifies the MIME type from the leading bytes of the
// content rather than trusting the client-provided extension or header.
func DetectContentType(content []byte) string {
	// http.DetectContentType inspects at most the first 512 bytes.
	if len(content) > 512 {
		content = content[:512]
	}
	return http.DetectContentType(content)
}

// ValidateSize checks that the content is non-empty and within the limit.
func ValidateSize(size, maxBytes int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > maxBytes {
		return fmt.Errorf("file size %d bytes exceeds %d bytes limit: %w", size, maxBytes, ErrFileTooLarge)
	}
	return nil
}

// Checksum returns the hex-encoded SHA-256 digest of the content. Used for
// integrity verification and deduplication.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Extension returns the lowercase file extension including the dot, or an
// empty string when the filename has none.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
