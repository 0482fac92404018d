package extraction

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	formatJPEG = "image/jpeg"
	formatPNG  = "image/png"
	formatHEIC = "image/heic"
	formatHEIF = "image/heif"
	formatPDF  = "application/pdf"
)

// ValidateUpload rejects non-image or oversized input before any decoding
// happens. It returns the sniffed format of the data.
func ValidateUpload(u Upload, cfg Config) (string, error) {
	if len(u.Data) == 0 {
		return "", invalidImage("empty upload")
	}
	if int64(len(u.Data)) > cfg.MaxImageBytes {
		return "", invalidImage("upload is %d bytes, limit is %d", len(u.Data), cfg.MaxImageBytes)
	}

	declared := normalizeContentType(u.ContentType)
	if declared != "" && !strings.HasPrefix(declared, "image/") && !(cfg.AllowPDF && declared == formatPDF) {
		return "", invalidImage("declared content type %q is not an image", declared)
	}

	sniffed := mimetype.Detect(u.Data)
	for _, accepted := range acceptedFormats(cfg) {
		if sniffed.Is(accepted) {
			return accepted, nil
		}
	}
	return "", invalidImage("unsupported format %s", sniffed.String())
}

func acceptedFormats(cfg Config) []string {
	formats := []string{formatJPEG, formatPNG}
	if cfg.AllowHEIC {
		formats = append(formats, formatHEIC, formatHEIF)
	}
	if cfg.AllowPDF {
		formats = append(formats, formatPDF)
	}
	return formats
}

func normalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	// octet-stream carries no claim about the content, the sniffed type decides
	if contentType == "application/octet-stream" {
		return ""
	}
	return contentType
}
