// Package pipeline sequences OCR, code detection and structuring for one receipt image.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/receiptify/internal/codes"
	"github.com/zombor/receiptify/internal/receipt"
)

// DefaultCallTimeout bounds each external call when no timeout is configured
const DefaultCallTimeout = 30 * time.Second

// TextExtractor turns image bytes into text; empty text is not an error
type TextExtractor interface {
	DetectText(ctx context.Context, imageData []byte, contentType string) (string, error)
}

// CodeDetector returns the first optical code in an image and never fails
type CodeDetector interface {
	Detect(ctx context.Context, imageData []byte, contentType string) codes.Code
}

// Structurer turns OCR text into a record, absorbing malformed model output
type Structurer interface {
	Structure(ctx context.Context, ocrText string) (*receipt.Record, error)
}

// IDGenerator generates request IDs for log correlation
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Pipeline processes receipt images. It holds only the injected clients
// and is safe for concurrent use.
type Pipeline struct {
	ocr         TextExtractor
	detector    CodeDetector
	structurer  Structurer
	callTimeout time.Duration
	idGenerator IDGenerator
}

// New creates a Pipeline. A non-positive callTimeout selects DefaultCallTimeout.
func New(ocr TextExtractor, detector CodeDetector, structurer Structurer, callTimeout time.Duration) *Pipeline {
	return NewWithDeps(ocr, detector, structurer, callTimeout, &uuidGenerator{})
}

// NewWithDeps creates a Pipeline with a custom ID generator for testing
func NewWithDeps(ocr TextExtractor, detector CodeDetector, structurer Structurer, callTimeout time.Duration, idGen IDGenerator) *Pipeline {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Pipeline{
		ocr:         ocr,
		detector:    detector,
		structurer:  structurer,
		callTimeout: callTimeout,
		idGenerator: idGen,
	}
}

// Process runs OCR, then code detection and structuring concurrently, and
// merges the detected code into the structured record. Each external call is
// attempted once.
func (p *Pipeline) Process(ctx context.Context, imageData []byte, contentType string) (*receipt.Record, error) {
	if len(imageData) == 0 {
		return nil, ErrEmptyImage
	}

	log := slog.With("request_id", p.idGenerator.Generate())
	start := time.Now()

	text, err := p.extractText(ctx, imageData, contentType)
	if err != nil {
		log.Error("OCR failed", "error", err)
		return nil, &TransportError{Stage: StageOCR, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		log.Info("No text detected, aborting")
		return nil, ErrNoTextDetected
	}
	log.Debug("OCR done", "chars", len(text))

	var (
		code codes.Code
		rec  *receipt.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, p.callTimeout)
		defer cancel()
		code = p.detector.Detect(callCtx, imageData, contentType)
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, p.callTimeout)
		defer cancel()
		var err error
		rec, err = p.structurer.Structure(callCtx, text)
		if err != nil {
			return &TransportError{Stage: StageStructuring, Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("Structuring failed", "error", err)
		return nil, err
	}

	result := receipt.Assemble(rec, code.Payload)

	log.Info("Receipt processed",
		"items", len(result.Items),
		"code_found", code.Found,
		"fallback", result.IsFallback(),
		"duration", time.Since(start),
	)
	return result, nil
}

func (p *Pipeline) extractText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	text, err := p.ocr.DetectText(callCtx, imageData, contentType)
	if err != nil {
		return "", fmt.Errorf("detecting text: %w", err)
	}
	return text, nil
}
