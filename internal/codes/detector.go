// Package codes finds QR codes and barcodes embedded in receipt images.
package codes

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/zombor/receiptify/internal/imaging"
)

// Code is the outcome of a detection. Found is false when no code was
// decoded, in which case Payload is empty.
type Code struct {
	Payload string
	Found   bool
}

// None is the absent Code
var None = Code{}

// String returns the payload, empty for an absent code
func (c Code) String() string {
	return c.Payload
}

// readerFactory builds a gozxing reader. Readers keep decode state, so
// every detection gets its own.
type readerFactory struct {
	name  string
	build func() gozxing.Reader
}

// Detector decodes the first optical code in an image. It never fails:
// undecodable images and decoder errors both produce None.
type Detector struct {
	readers []readerFactory
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewDetector creates a Detector that tries QR, Data Matrix and the common
// one-dimensional formats, in that order
func NewDetector() *Detector {
	return &Detector{
		readers: []readerFactory{
			{"qr", func() gozxing.Reader { return qrcode.NewQRCodeReader() }},
			{"datamatrix", func() gozxing.Reader { return datamatrix.NewDataMatrixReader() }},
			{"code128", func() gozxing.Reader { return oned.NewCode128Reader() }},
			{"ean13", func() gozxing.Reader { return oned.NewEAN13Reader() }},
			{"upca", func() gozxing.Reader { return oned.NewUPCAReader() }},
			{"code39", func() gozxing.Reader { return oned.NewCode39Reader() }},
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Detect returns the first code found in the image
func (d *Detector) Detect(ctx context.Context, imageData []byte, contentType string) Code {
	img, err := imaging.Decode(imageData, contentType)
	if err != nil {
		slog.Debug("Code detection skipped, image not decodable", "error", err)
		return None
	}
	return d.DetectImage(ctx, img)
}

// DetectImage returns the first code found in an already decoded image
func (d *Detector) DetectImage(ctx context.Context, img image.Image) Code {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		slog.Debug("Code detection skipped, binarizing failed", "error", err)
		return None
	}

	for _, r := range d.readers {
		if ctx.Err() != nil {
			return None
		}
		payload, err := d.decode(r.build(), bmp)
		if err != nil {
			continue
		}
		if payload != "" {
			slog.Debug("Code detected", "format", r.name)
			return Code{Payload: payload, Found: true}
		}
	}
	return None
}

// decode runs a single reader, converting a decoder panic into an error
func (d *Detector) decode(reader gozxing.Reader, bmp *gozxing.BinaryBitmap) (payload string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("decoder panic: %v", p)
		}
	}()
	result, err := reader.Decode(bmp, d.hints)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}
