package structuring

import (
	"context"
	"errors"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receiptify/internal/receipt"
)

// mockGenerator is a mock implementation of Generator
type mockGenerator struct {
	response string
	err      error
	prompts  []string
}

func (m *mockGenerator) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockGenerator) Close() error {
	return nil
}

const royalMartText = "ROYAL MART\nInvoice #12345\nDate: 25-07-2025\nSurf Excel 2L x3 600\nMarie Biscuit 200g x2 30\nTOTAL 457.50\nPaid via UPI"

const royalMartJSON = `{
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
    "additionalAttributes": {"note": "Household and snacks from Royal Mart", "paymentMethod": "UPI"}
  }
}`

var _ = Describe("Engine", func() {
	var (
		generator *mockGenerator
		engine    *Engine
		rec       *receipt.Record
		err       error
	)

	BeforeEach(func() {
		generator = &mockGenerator{response: royalMartJSON}
		var newErr error
		engine, newErr = NewEngine(generator, "")
		Expect(newErr).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		rec, err = engine.Structure(context.Background(), royalMartText)
	})

	Describe("NewEngine", func() {
		It("requires a generator", func() {
			_, newErr := NewEngine(nil, "")
			Expect(newErr).To(HaveOccurred())
		})

		It("rejects a malformed fallback date", func() {
			_, newErr := NewEngine(generator, "27/07/2025")
			Expect(newErr).To(MatchError(ContainSubstring("invalid fallback date")))
		})
	})

	When("the model returns a valid document", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("exposes exactly two items and the printed total", func() {
			Expect(rec.Items).To(HaveLen(2))
			Expect(rec.Receipt.TotalCost).To(Equal(457.50))
		})

		It("embeds the OCR text and fallback date in the prompt", func() {
			Expect(generator.prompts).To(HaveLen(1))
			Expect(generator.prompts[0]).To(ContainSubstring(royalMartText))
			Expect(generator.prompts[0]).To(ContainSubstring(DefaultFallbackDate))
		})

		It("is not a fallback record", func() {
			Expect(rec.IsFallback()).To(BeFalse())
		})
	})

	When("the model returns malformed JSON", func() {
		BeforeEach(func() {
			generator.response = `{"items": [ this is not json`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the fallback record", func() {
			Expect(rec.Items).NotTo(BeNil())
			Expect(rec.Items).To(BeEmpty())
			Expect(rec.Receipt.TotalCost).To(BeZero())
			Expect(rec.Receipt.AdditionalAttributes).To(HaveKeyWithValue("note", receipt.FallbackNote))
			Expect(rec.Receipt.AdditionalAttributes).To(HaveKeyWithValue("qrCode", ""))
			Expect(rec.IsFallback()).To(BeTrue())
		})
	})

	When("the model returns an empty response", func() {
		BeforeEach(func() {
			generator.response = ""
		})

		It("returns the fallback record", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.IsFallback()).To(BeTrue())
		})
	})

	When("the model returns JSON that violates the schema", func() {
		BeforeEach(func() {
			generator.response = `{"items": [{"itemName": ["Surf"]}], "receipt": {}}`
		})

		It("returns the fallback record", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.IsFallback()).To(BeTrue())
		})
	})

	When("the generator fails", func() {
		BeforeEach(func() {
			generator.err = errors.New("permission denied")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("permission denied")))
			Expect(rec).To(BeNil())
		})
	})

	When("a custom fallback date is configured", func() {
		BeforeEach(func() {
			generator.response = `{"items": [], "receipt": {"receiptDate": ""}}`
			var newErr error
			engine, newErr = NewEngine(generator, "2024-12-31")
			Expect(newErr).NotTo(HaveOccurred())
		})

		It("uses it for the receipt date", func() {
			Expect(rec.Receipt.ReceiptDate).To(Equal("2024-12-31"))
		})
	})
})

var _ = Describe("BuildPrompt", func() {
	It("embeds OCR text verbatim, even when it contains placeholders", func() {
		prompt := BuildPrompt("TOTAL {{FALLBACK_DATE}} 10", "2025-07-27")
		Expect(prompt).To(ContainSubstring("TOTAL {{FALLBACK_DATE}} 10"))
		Expect(prompt).To(ContainSubstring("use 2025-07-27"))
	})
})

var _ = Describe("truncate", func() {
	It("leaves short text alone", func() {
		Expect(truncate("ROYAL MART", 32)).To(Equal("ROYAL MART"))
	})

	It("cuts long text and marks it", func() {
		Expect(truncate("ROYAL MART", 5)).To(Equal("ROYAL..."))
	})

	It("never splits a multi-byte character", func() {
		// each rupee sign is three bytes
		out := truncate("₹₹₹", 4)
		Expect(utf8.ValidString(out)).To(BeTrue())
		Expect(out).To(Equal("₹..."))
	})
})
