// Package ocr turns receipt images into plain text.
package ocr

import (
	"context"
	"strings"
)

// TextRecognizer extracts text from an image. An image without legible text
// yields an empty string and a nil error; errors are reserved for the
// recognition backend failing.
type TextRecognizer interface {
	DetectText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases backend resources
	Close() error
}

// normalize unifies line endings and trims surrounding whitespace
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
