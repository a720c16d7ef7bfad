package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for worksheet scans.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// ContentTypes maps a normalized extension to the upload content type.
var ContentTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// Storage buckets.
const (
	SubmissionsBucket = "submissions"
	GradedBucket      = "graded-pdfs"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeForExt returns the content type for a raw extension,
// defaulting to application/octet-stream.
func ContentTypeForExt(ext string) string {
	if ct, ok := ContentTypes[NormalizeExt(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}
