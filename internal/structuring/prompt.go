package structuring

import "strings"

// receiptStructurePrompt asks for the flat items/receipt document. The
// {{FALLBACK_DATE}} and {{OCR_TEXT}} markers are substituted per request.
const receiptStructurePrompt = `You are a receipt parsing assistant. Below is the OCR text of a single shopping receipt.

Extract the following:
1. **Items**: every purchased item with itemName, itemTotalPrice (the line total), itemQuantity and itemUnitSize (for example "1L", "2kg", "1 pack"; empty if not printed). Keep the order in which items appear in the text.
2. **totalCost**: the sum of all itemTotalPrice values. If a printed total is present and differs because of tax or discounts, use the printed total.
3. **vendorName**: the store or business name, empty if unknown.
4. **mode**: ONLINE or OFFLINE depending on how the purchase was made; UNKNOWN if you cannot tell.
5. **category**: one of groceries, entertainment, health, travel, fitness, bills, passes, or another short lowercase label that fits better.
6. **receiptDate**: the billing date in YYYY-MM-DD format. Use the billing date, not a due date or print date. If no billing date is present use {{FALLBACK_DATE}}.
7. **receiptExpiry**: optional YYYY-MM-DD date, only when it can be inferred (perishable goods, warranties, passes). Omit it otherwise.
8. **additionalAttributes**: an object containing "note", a one-line human readable summary of the purchase, plus any other useful details such as paymentMethod, location or taxAmount.

Return ONLY valid JSON in exactly this shape:
{
  "items": [
    {
      "itemName": "",
      "itemTotalPrice": 0,
      "itemQuantity": 0,
      "itemUnitSize": ""
    }
  ],
  "receipt": {
    "totalCost": 0,
    "vendorName": "",
    "mode": "",
    "receiptDate": "",
    "category": "",
    "receiptExpiry": "",
    "additionalAttributes": {
      "note": "",
      "paymentMethod": ""
    }
  }
}

Important:
- Numbers must be JSON numbers, not strings
- Do not add top-level keys; extra details belong inside additionalAttributes
- Do not include any text before or after the JSON
- Do not use markdown code blocks

Receipt text:
{{OCR_TEXT}}`

// BuildPrompt embeds the OCR text verbatim into the structuring prompt
func BuildPrompt(ocrText string, fallbackDate string) string {
	r := strings.NewReplacer(
		"{{FALLBACK_DATE}}", fallbackDate,
		"{{OCR_TEXT}}", ocrText,
	)
	return r.Replace(receiptStructurePrompt)
}
