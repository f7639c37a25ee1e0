package gedcom

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxUploadBytes is the upload ceiling used when none is configured.
const DefaultMaxUploadBytes int64 = 50 << 20

var (
	ErrUnsupportedFile = errors.New("file must have a .ged or .gedcom extension")
	ErrFileTooLarge    = errors.New("file exceeds the maximum upload size")
)

var supportedExtensions = map[string]bool{
	".ged":    true,
	".gedcom": true,
}

// IsGedcomFile checks the filename extension only.
func IsGedcomFile(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ValidateUpload rejects files by extension and size before any parsing happens.
// maxBytes <= 0 selects DefaultMaxUploadBytes.
func ValidateUpload(filename string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if !IsGedcomFile(filename) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFile, filename)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, size, maxBytes)
	}
	return nil
}
