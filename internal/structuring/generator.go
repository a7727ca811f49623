// Package structuring turns OCR text into a receipt.Record with a generative model.
package structuring

import "context"

// Generator produces text for a prompt in JSON output mode. The returned
// text is expected, but not guaranteed, to be a JSON document; malformed
// text is returned as is. Errors are reserved for the model being
// unreachable or refusing the request.
type Generator interface {
	GenerateStructured(ctx context.Context, prompt string) (string, error)
	// Close releases the underlying client
	Close() error
}
