package constants

import "strings"

// AllowedExtensions holds the allowed extensions for uploaded form documents.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"txt":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// Artifact suffixes dropped next to a source document by the OCR/LLM collaborators.
const (
	TextractArtifactSuffix = ".textract.json"
	LLMArtifactSuffix      = ".llm.json"
)

// Artifact suffixes written by the processor after extraction.
const (
	ResultArtifactSuffix = ".result.json"
	ReviewArtifactSuffix = ".review.xlsx"
)

// MaxFilenameLength caps uploaded filenames.
const MaxFilenameLength = 255

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
