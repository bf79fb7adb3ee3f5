package mpesa

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MetadataAmount          = "Amount"
	MetadataReceiptNumber   = "MpesaReceiptNumber"
	MetadataTransactionDate = "TransactionDate"
	MetadataPhoneNumber     = "PhoneNumber"
)

func (c STKCallback) item(name string) (json.RawMessage, bool) {
	if c.CallbackMetadata == nil {
		return nil, false
	}
	for _, it := range c.CallbackMetadata.Item {
		if it.Name == name && len(it.Value) > 0 && string(it.Value) != "null" {
			return it.Value, true
		}
	}
	return nil, false
}

// ConfirmedAmount reads the Amount item. ok is false when the item is missing
// or not a non-negative number.
func (c STKCallback) ConfirmedAmount() (decimal.Decimal, bool) {
	raw, ok := c.item(MetadataAmount)
	if !ok {
		return decimal.Zero, false
	}
	text := strings.Trim(string(raw), `"`)
	amount, err := decimal.NewFromString(text)
	if err != nil || amount.IsNegative() {
		return decimal.Zero, false
	}
	return amount, true
}

func (c STKCallback) ReceiptNumber() (string, bool) {
	raw, ok := c.item(MetadataReceiptNumber)
	if !ok {
		return "", false
	}
	var receipt string
	if err := json.Unmarshal(raw, &receipt); err != nil {
		receipt = string(raw)
	}
	receipt = strings.TrimSpace(receipt)
	return receipt, receipt != ""
}

func (c STKCallback) PayerPhone() string {
	raw, ok := c.item(MetadataPhoneNumber)
	if !ok {
		return ""
	}
	text := strings.Trim(string(raw), `"`)
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return text
}
