package receipt

import "strings"

// Assemble writes the optical code payload into receipt.additionalAttributes.qrCode.
// Missing structure is created rather than rejected, so the result always
// carries an items array and a qrCode entry. Calling it again with the same
// code leaves the record unchanged.
func Assemble(rec *Record, qrCode string) *Record {
	if rec == nil {
		rec = &Record{}
	}
	if rec.Items == nil {
		rec.Items = []LineItem{}
	}
	if rec.Receipt == nil {
		rec.Receipt = &Receipt{Mode: ModeUnknown}
	}
	if rec.Receipt.AdditionalAttributes == nil {
		rec.Receipt.AdditionalAttributes = make(map[string]any)
	}
	rec.Receipt.AdditionalAttributes[QRCodeKey] = qrCode
	return rec
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
