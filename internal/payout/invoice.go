package payout

import (
	"mime"
	"net/http"

	"github.com/wolfeidau/ownerportal/internal/apperr"
)

// MaxInvoiceSize is the largest accepted invoice file.
const MaxInvoiceSize = 10 << 20

// invoiceTypes maps accepted content types to the stored file extension.
var invoiceTypes = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/png":       "png",
}

// Upload is an invoice file received with a payout request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// validate checks size and type, and returns the canonical content type and
// extension. The declared type must agree with the sniffed one.
func (u *Upload) validate() (contentType, ext string, err error) {
	if len(u.Data) == 0 || len(u.Data) > MaxInvoiceSize {
		return "", "", apperr.ErrInvalidFile
	}

	declared, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil {
		return "", "", apperr.ErrInvalidFile
	}
	ext, ok := invoiceTypes[declared]
	if !ok {
		return "", "", apperr.ErrInvalidFile
	}

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(u.Data))
	if sniffed != declared {
		return "", "", apperr.ErrInvalidFile
	}
	return declared, ext, nil
}
