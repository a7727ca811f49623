package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receiptify/internal/codes"
	"github.com/zombor/receiptify/internal/pipeline"
	"github.com/zombor/receiptify/internal/receipt"
	"github.com/zombor/receiptify/internal/structuring"
)

// fakeOCR returns fixed text for every image
type fakeOCR struct {
	text string
}

func (f *fakeOCR) DetectText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	return f.text, nil
}

// fakeGenerator returns a fixed model response and counts calls
type fakeGenerator struct {
	response string
	calls    int
}

func (f *fakeGenerator) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, nil
}

func (f *fakeGenerator) Close() error {
	return nil
}

const royalMartResponse = `{
  "items": [
    {"itemName": "Surf Excel", "itemTotalPrice": 600, "itemQuantity": 3, "itemUnitSize": "2L"},
    {"itemName": "Marie Biscuit", "itemTotalPrice": 30, "itemQuantity": 2, "itemUnitSize": "200g"}
  ],
  "receipt": {
    "totalCost": 457.50,
    "vendorName": "ROYAL MART",
    "mode": "OFFLINE",
    "receiptDate": "2025-07-25",
    "category": "groceries",
    "additionalAttributes": {"note": "Detergent and biscuits", "paymentMethod": "UPI"}
  }
}`

func qrReceiptPNG(payload string) []byte {
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	Expect(err).NotTo(HaveOccurred())
	var buf bytes.Buffer
	Expect(png.Encode(&buf, matrix)).To(Succeed())
	return buf.Bytes()
}

func plainReceiptPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Integration", func() {
	var (
		ocr         *fakeOCR
		generator   *fakeGenerator
		ghttpServer *ghttp.Server
		record      receipt.Record
	)

	BeforeEach(func() {
		ocr = &fakeOCR{text: "ROYAL MART\nInvoice #12345\nDate: 25-07-2025\nSurf Excel 2L x3 600\nMarie Biscuit 200g x2 30\nTOTAL 457.50\nPaid via UPI"}
		generator = &fakeGenerator{response: royalMartResponse}
		record = receipt.Record{}
	})

	JustBeforeEach(func() {
		engine, err := structuring.NewEngine(generator, "")
		Expect(err).NotTo(HaveOccurred())
		p := pipeline.New(ocr, codes.NewDetector(), engine, 5*time.Second)
		server := NewServer(p, BasicAuth{}, 0)
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	post := func(data []byte) *http.Response {
		body, contentType := multipartBody("receipt", "receipt.png", data)
		resp, err := http.Post(ghttpServer.URL()+"/process-receipt", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeRecord := func(resp *http.Response) {
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
	}

	When("the receipt has a QR code", func() {
		It("returns the structured record with the decoded payload", func() {
			decodeRecord(post(qrReceiptPNG("ABC123")))
			Expect(record.Items).To(HaveLen(2))
			Expect(record.Receipt.TotalCost).To(Equal(457.50))
			Expect(record.Receipt.VendorName).To(Equal("ROYAL MART"))
			Expect(record.Receipt.AdditionalAttributes).To(HaveKeyWithValue("qrCode", "ABC123"))
			Expect(record.Receipt.AdditionalAttributes).To(HaveKeyWithValue("note", "Detergent and biscuits"))
		})
	})

	When("the receipt has no code", func() {
		It("returns an empty qrCode", func() {
			decodeRecord(post(plainReceiptPNG()))
			Expect(record.Receipt.AdditionalAttributes).To(HaveKeyWithValue("qrCode", ""))
		})
	})

	When("the model returns malformed JSON", func() {
		BeforeEach(func() {
			generator.response = "I could not read this receipt"
		})

		It("still succeeds with the fallback merged with the code", func() {
			decodeRecord(post(qrReceiptPNG("ABC123")))
			Expect(record.Items).To(BeEmpty())
			Expect(record.Receipt.TotalCost).To(BeZero())
			Expect(record.Receipt.AdditionalAttributes).To(HaveKeyWithValue("note", receipt.FallbackNote))
			Expect(record.Receipt.AdditionalAttributes).To(HaveKeyWithValue("qrCode", "ABC123"))
		})
	})

	When("OCR finds no text", func() {
		BeforeEach(func() {
			ocr.text = ""
		})

		It("returns bad request without calling the model", func() {
			resp := post(qrReceiptPNG("ABC123"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeError(resp)).To(Equal("No text detected in receipt"))
			Expect(generator.calls).To(BeZero())
		})
	})
})
