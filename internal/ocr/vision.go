package ocr

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/zombor/receiptify/internal/imaging"
)

// imageAnnotator is the subset of the Cloud Vision client we call
type imageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// Vision implements TextRecognizer using Google Cloud Vision text detection
type Vision struct {
	client imageAnnotator
}

// NewVision creates a Cloud Vision recognizer. With an empty credentials file
// the client falls back to application default credentials.
func NewVision(ctx context.Context, credentialsFile string) (*Vision, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}
	return &Vision{client: client}, nil
}

// DetectText returns the full text annotation for the image
func (v *Vision) DetectText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	// images:annotate only takes raster images; PDFs and HEIC are sent as PNG
	content := imageData
	if ct := imaging.DetectContentType(imageData, contentType); imaging.NeedsRasterizing(ct) {
		var err error
		content, err = imaging.ToPNG(imageData, ct)
		if err != nil {
			return "", fmt.Errorf("preparing image: %w", err)
		}
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("annotating image: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return "", nil
	}

	res := resp.GetResponses()[0]
	if st := res.GetError(); st != nil && st.GetCode() != 0 {
		return "", fmt.Errorf("vision error (code %d): %s", st.GetCode(), st.GetMessage())
	}

	// The first annotation covers the whole image; the rest are individual words
	annotations := res.GetTextAnnotations()
	if len(annotations) == 0 {
		return "", nil
	}
	return normalize(annotations[0].GetDescription()), nil
}

// Close closes the Vision client
func (v *Vision) Close() error {
	return v.client.Close()
}
