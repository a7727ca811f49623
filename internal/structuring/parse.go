package structuring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receiptify/internal/receipt"
)

// dateLayouts are tried in order when the model ignores the requested format.
// Day-first layouts come before month-first ones.
var dateLayouts = []string{
	receipt.DateLayout,
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"01/02/2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
}

// number accepts JSON numbers, numeric strings and null
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = cleanNumber(str)
		if s == "" {
			*n = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*n = 0
		return nil
	}
	*n = number(f)
	return nil
}

// cleanNumber drops currency symbols, thousands separators and spaces
func cleanNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type wireRecord struct {
	Items   []wireItem   `json:"items"`
	Receipt *wireReceipt `json:"receipt"`
}

type wireItem struct {
	ItemName       string `json:"itemName"`
	ItemTotalPrice number `json:"itemTotalPrice"`
	ItemQuantity   number `json:"itemQuantity"`
	ItemUnitSize   string `json:"itemUnitSize"`
}

type wireReceipt struct {
	TotalCost            number         `json:"totalCost"`
	VendorName           string         `json:"vendorName"`
	Mode                 string         `json:"mode"`
	ReceiptDate          string         `json:"receiptDate"`
	Category             string         `json:"category"`
	ReceiptExpiry        string         `json:"receiptExpiry"`
	AdditionalAttributes map[string]any `json:"additionalAttributes"`
}

// extractJSONObject strips markdown fences and surrounding prose, keeping
// the outermost JSON object
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// decodeDocument parses the model response, falling back to the outermost
// object when the raw text is not valid JSON
func decodeDocument(text string) ([]byte, any, error) {
	var doc any
	raw := []byte(strings.TrimSpace(text))
	if err := json.Unmarshal(raw, &doc); err == nil {
		return raw, doc, nil
	}

	extracted, err := extractJSONObject(text)
	if err != nil {
		return nil, nil, err
	}
	raw = []byte(extracted)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	return raw, doc, nil
}

// parseRecord decodes, validates and normalizes a model response
func parseRecord(text string, schema *jsonschema.Schema, fallbackDate string) (*receipt.Record, error) {
	raw, doc, err := decodeDocument(text)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	var wire wireRecord
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return normalize(wire, fallbackDate), nil
}

// normalize converts the wire document into a Record with every required field set
func normalize(wire wireRecord, fallbackDate string) *receipt.Record {
	rec := &receipt.Record{Items: make([]receipt.LineItem, 0, len(wire.Items))}

	var itemsTotal float64
	for _, it := range wire.Items {
		item := receipt.LineItem{
			ItemName:       strings.TrimSpace(it.ItemName),
			ItemTotalPrice: nonNegative(float64(it.ItemTotalPrice)),
			ItemQuantity:   nonNegative(float64(it.ItemQuantity)),
			ItemUnitSize:   strings.TrimSpace(it.ItemUnitSize),
		}
		itemsTotal += item.ItemTotalPrice
		rec.Items = append(rec.Items, item)
	}

	w := wire.Receipt
	if w == nil {
		w = &wireReceipt{}
	}

	totalCost := nonNegative(float64(w.TotalCost))
	if totalCost == 0 && itemsTotal > 0 {
		totalCost = math.Round(itemsTotal*100) / 100
	}

	receiptDate, ok := normalizeDate(w.ReceiptDate)
	if !ok {
		receiptDate = fallbackDate
	}
	expiry, _ := normalizeDate(w.ReceiptExpiry)

	attrs := w.AdditionalAttributes
	if attrs == nil {
		attrs = make(map[string]any)
	}
	if note, ok := attrs[receipt.NoteKey].(string); ok {
		attrs[receipt.NoteKey] = strings.TrimSpace(note)
	} else {
		attrs[receipt.NoteKey] = ""
	}

	rec.Receipt = &receipt.Receipt{
		TotalCost:            totalCost,
		VendorName:           strings.TrimSpace(w.VendorName),
		Mode:                 receipt.ParseMode(w.Mode),
		ReceiptDate:          receiptDate,
		Category:             strings.ToLower(strings.TrimSpace(w.Category)),
		ReceiptExpiry:        expiry,
		AdditionalAttributes: attrs,
	}
	return rec
}

// normalizeDate reformats a date to YYYY-MM-DD, reporting false when it cannot be parsed
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format(receipt.DateLayout), true
		}
	}
	return "", false
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
