package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrUnsupportedFormat is returned when the upload is not an image format we can decode
var ErrUnsupportedFormat = errors.New("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF")

// DetectContentType normalizes the declared MIME type, sniffing the data when
// the declaration is missing or generic
func DetectContentType(data []byte, declared string) string {
	mimeType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if isHEICFormat(data) {
		return "image/heic"
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return mimeType
}

// Decode turns uploaded bytes into an image. PDFs are rendered from their first page only.
func Decode(data []byte, contentType string) (image.Image, error) {
	mimeType := DetectContentType(data, contentType)

	switch {
	case mimeType == "application/pdf":
		return pdfFirstPage(data)
	case isHEICMimeType(mimeType):
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// NeedsRasterizing reports whether the content type is a document or HEIC
// container that image-only OCR endpoints reject
func NeedsRasterizing(contentType string) bool {
	return contentType == "application/pdf" || isHEICMimeType(contentType)
}

// ToPNG returns the upload as PNG bytes. PNG input is passed through untouched.
func ToPNG(data []byte, contentType string) ([]byte, error) {
	if DetectContentType(data, contentType) == "image/png" {
		return data, nil
	}

	img, err := Decode(data, contentType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func pdfFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Only the first page is a receipt; multi-page documents are not supported
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
