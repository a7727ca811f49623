package structuring

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receiptify/internal/receipt"
)

// DefaultFallbackDate is used for receiptDate when the receipt has no readable billing date
const DefaultFallbackDate = "2025-07-27"

// maxLoggedResponse bounds how much of an unusable response is logged
const maxLoggedResponse = 512

// Engine maps OCR text to a receipt.Record through a Generator. Output the
// model gets wrong is replaced by receipt.NewFallbackRecord; only Generator
// failures are returned as errors.
type Engine struct {
	generator    Generator
	fallbackDate string
	schema       *jsonschema.Schema
}

// NewEngine creates an Engine. An empty fallbackDate selects DefaultFallbackDate.
func NewEngine(generator Generator, fallbackDate string) (*Engine, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if fallbackDate == "" {
		fallbackDate = DefaultFallbackDate
	}
	if _, err := time.Parse(receipt.DateLayout, fallbackDate); err != nil {
		return nil, fmt.Errorf("invalid fallback date %q: %w", fallbackDate, err)
	}

	schema, err := compileSchema(receiptSchema())
	if err != nil {
		return nil, fmt.Errorf("compiling receipt schema: %w", err)
	}

	return &Engine{
		generator:    generator,
		fallbackDate: fallbackDate,
		schema:       schema,
	}, nil
}

// Structure builds the record for ocrText. Callers must not pass empty text.
func (e *Engine) Structure(ctx context.Context, ocrText string) (*receipt.Record, error) {
	prompt := BuildPrompt(ocrText, e.fallbackDate)

	text, err := e.generator.GenerateStructured(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating structured output: %w", err)
	}

	rec, err := parseRecord(text, e.schema, e.fallbackDate)
	if err != nil {
		slog.Warn("Structured output unusable, returning fallback record",
			"error", err,
			"response", truncate(text, maxLoggedResponse),
		)
		return receipt.NewFallbackRecord(), nil
	}
	return rec, nil
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
