package policy

import (
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DisallowedFileMessage is shown to users when a file is rejected.
const DisallowedFileMessage = "Only PDF and DOCX files are allowed."

var ErrFileType = errors.New("only PDF and DOCX files are allowed")

var (
	allowedTypes      = []string{MIMEPDF, MIMEDOCX}
	allowedExtensions = []string{".pdf", ".docx"}
)

// AllowedFile accepts a declared PDF/DOCX content type or a filename ending in
// .pdf/.docx (case-insensitive).
func AllowedFile(filename, contentType string) bool {
	if ct := mediaType(contentType); ct != "" {
		for _, t := range allowedTypes {
			if ct == t {
				return true
			}
		}
	}
	name := strings.ToLower(filename)
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// ContentTypeFor picks the media type to serve a stored file with.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return MIMEPDF
	case ".docx":
		return MIMEDOCX
	}
	return "application/octet-stream"
}

// SniffContentType detects the media type from the leading bytes of r.
func SniffContentType(r io.Reader) (string, error) {
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	return mediaType(m.String()), nil
}

func mediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mt
}
