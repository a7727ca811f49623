package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyImage is returned when no image bytes were supplied
	ErrEmptyImage = errors.New("empty image")
	// ErrNoTextDetected is returned when OCR finds no text. A decodable code
	// on the same image does not rescue the request.
	ErrNoTextDetected = errors.New("no text detected in receipt")
)

// Stage names used in TransportError and logs
const (
	StageOCR         = "ocr"
	StageStructuring = "structuring"
)

// TransportError reports that an external recognition or generation call
// failed or timed out. The request cannot produce an answer.
type TransportError struct {
	Stage string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport failure: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
