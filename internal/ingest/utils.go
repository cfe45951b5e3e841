package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/formbridge/formbridge/constants"
)

// AllowedExt checks if a file extension is in the allowed upload set.
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

var filenameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

// ValidateFilename checks an uploaded filename: allowed extension, length
// cap, and a safe character set (letters, numbers, underscores, hyphens,
// periods).
func ValidateFilename(name string) error {
	if !AllowedExt(filepath.Ext(name)) {
		return fmt.Errorf("invalid file extension: %s", filepath.Ext(name))
	}
	if len(name) > constants.MaxFilenameLength {
		return fmt.Errorf("filename too long: max %d characters", constants.MaxFilenameLength)
	}
	if !filenameRegex.MatchString(name) {
		return fmt.Errorf("invalid characters in filename: %s", name)
	}
	return nil
}

// FileHash computes the SHA-256 hash of file content, hex encoded.
func FileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
