package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"

	"github.com/zombor/receiptify/internal/imaging"
)

// reBoxNoise matches runs of box drawing and form feed characters tesseract emits on ruled receipts
var reBoxNoise = regexp.MustCompile(`[\x{2500}-\x{257F}\f]+`)

// Tesseract implements TextRecognizer by running the tesseract CLI
type Tesseract struct {
	binary   string
	language string
}

// NewTesseract creates a Tesseract recognizer, checking the binary is on PATH
func NewTesseract(binary string, language string) (*Tesseract, error) {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("tesseract binary not found (%s): %w", binary, err)
	}
	return &Tesseract{binary: path, language: language}, nil
}

// DetectText writes the image to a temporary PNG and reads tesseract's stdout
func (t *Tesseract) DetectText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	pngData, err := imaging.ToPNG(imageData, contentType)
	if err != nil {
		return "", fmt.Errorf("preparing image: %w", err)
	}

	tmp, err := os.CreateTemp("", "receiptify-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pngData); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp image: %w", err)
	}

	// tesseract <file> stdout -l <lang>
	cmd := exec.CommandContext(ctx, t.binary, tmp.Name(), "stdout", "-l", t.language)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w - %s", err, stderr.String())
	}

	return normalize(reBoxNoise.ReplaceAllString(stdout.String(), "")), nil
}

// Close is a no-op for the CLI backend
func (t *Tesseract) Close() error {
	return nil
}
