package constants

import (
	"path/filepath"
	"strings"
)

// InputKind classifies an uploaded document for the extraction stage.
type InputKind string

const (
	InputKindImage InputKind = "image"
	InputKindPDF   InputKind = "pdf"
	InputKindText  InputKind = "text"
)

// ContentType values returned by the task input_content endpoint.
const (
	ContentTypeImageBase64 = "image_base64"
	ContentTypePDFBase64   = "pdf_base64"
	ContentTypeURL         = "url"
	ContentTypeText        = "text"
)

// AllowedExtensions holds the default allowed file extensions for
// watch-folder ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

var imageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsURL reports whether source is a remote reference rather than a local path.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// DetectInputKind classifies a path or URL by extension. Query strings and
// fragments are stripped before looking at the extension.
func DetectInputKind(source string) InputKind {
	ext := NormalizeExt(filepath.Ext(strings.SplitN(strings.SplitN(source, "?", 2)[0], "#", 2)[0]))
	if _, ok := imageExtensions[ext]; ok {
		return InputKindImage
	}
	if ext == "pdf" {
		return InputKindPDF
	}
	return InputKindText
}
