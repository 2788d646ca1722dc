package core

import (
	"io"
	"strings"
)

// MaxUploadSize is the largest receipt file accepted for import (10 MiB).
const MaxUploadSize int64 = 10 << 20

// AllowedUploadTypes lists the MIME types the OCR import endpoint accepts.
var AllowedUploadTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/webp":      {},
	"application/pdf": {},
}

// Upload is a file handle whose type and size are known before reading.
type Upload struct {
	Name string
	Type string
	Size int64
	Body io.Reader
}

// Validate checks type first, then size. It never reads Body.
func (u Upload) Validate() error {
	mediaType := strings.ToLower(strings.TrimSpace(u.Type))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if _, ok := AllowedUploadTypes[mediaType]; !ok {
		return NewValidationError(ErrUnsupportedFormat)
	}
	if u.Size > MaxUploadSize {
		return NewValidationError(ErrTooLarge)
	}
	return nil
}

type (
	LineItem struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
	}

	// Extraction is what the OCR backend pulled out of a receipt.
	Extraction struct {
		Merchant string     `json:"merchant,omitempty"`
		Total    Money      `json:"total"`
		Date     Date       `json:"date"`
		Category string     `json:"category,omitempty"`
		Items    []LineItem `json:"items,omitempty"`
	}

	ImportResult struct {
		Success       bool        `json:"success"`
		Message       string      `json:"message,omitempty"`
		ExtractedData *Extraction `json:"extractedData,omitempty"`
		Text          string      `json:"text,omitempty"`
	}
)
