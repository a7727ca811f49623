package receipt

// Mode is the predicted purchase channel
type Mode string

const (
	ModeOnline  Mode = "ONLINE"
	ModeOffline Mode = "OFFLINE"
	ModeUnknown Mode = "UNKNOWN"
)

const (
	// NoteKey holds the one-line human readable summary
	NoteKey = "note"
	// QRCodeKey holds the decoded optical code payload, empty when none was found
	QRCodeKey = "qrCode"
	// PaymentMethodKey is the payment method the model was asked to report
	PaymentMethodKey = "paymentMethod"

	// FallbackNote marks a record produced because the model output could not be parsed
	FallbackNote = "LLM failed to parse JSON"

	// DateLayout is the layout for receiptDate and receiptExpiry
	DateLayout = "2006-01-02"
)

// Record is the structured result for a single receipt image
type Record struct {
	Items   []LineItem `json:"items"`
	Receipt *Receipt   `json:"receipt"`
}

// Receipt holds the receipt level fields of a Record
type Receipt struct {
	TotalCost            float64        `json:"totalCost"`
	VendorName           string         `json:"vendorName"`
	Mode                 Mode           `json:"mode"`
	ReceiptDate          string         `json:"receiptDate"`
	Category             string         `json:"category"`
	ReceiptExpiry        string         `json:"receiptExpiry,omitempty"`
	AdditionalAttributes map[string]any `json:"additionalAttributes"`
}

// LineItem is one purchased item, in extraction order
type LineItem struct {
	ItemName       string  `json:"itemName"`
	ItemTotalPrice float64 `json:"itemTotalPrice"`
	ItemQuantity   float64 `json:"itemQuantity"`
	ItemUnitSize   string  `json:"itemUnitSize"`
}

// ParseMode maps a model supplied mode onto the known set
func ParseMode(s string) Mode {
	switch Mode(upper(s)) {
	case ModeOnline:
		return ModeOnline
	case ModeOffline:
		return ModeOffline
	default:
		return ModeUnknown
	}
}

// NewFallbackRecord returns the degraded record used when structuring output is unusable
func NewFallbackRecord() *Record {
	return &Record{
		Items: []LineItem{},
		Receipt: &Receipt{
			Mode: ModeUnknown,
			AdditionalAttributes: map[string]any{
				NoteKey:          FallbackNote,
				PaymentMethodKey: "",
				QRCodeKey:        "",
			},
		},
	}
}

// IsFallback reports whether r carries the fallback note
func (r *Record) IsFallback() bool {
	if r == nil || r.Receipt == nil {
		return false
	}
	note, _ := r.Receipt.AdditionalAttributes[NoteKey].(string)
	return note == FallbackNote
}
