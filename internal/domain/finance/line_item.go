package finance

import (
	"fmt"
	"strings"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TaxComponent is a flat percentage tax applied to a line's net amount.
// Amount is derived from Rate and never accepted from callers.
type TaxComponent struct {
	Kind   string          `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// LineItem is one priced row of a financial document
type LineItem struct {
	ID            uuid.UUID
	Description   string
	Quantity      decimal.Decimal
	UnitRate      decimal.Decimal
	Discount      decimal.Decimal
	TaxComponents []TaxComponent
}

// NewLineItem validates the inputs and computes tax amounts
func NewLineItem(description string, quantity, unitRate, discount decimal.Decimal, taxes []TaxComponent) (LineItem, error) {
	item := LineItem{
		ID:            uuid.New(),
		Description:   strings.TrimSpace(description),
		Quantity:      quantity,
		UnitRate:      shared.RoundMoney(unitRate),
		Discount:      shared.RoundMoney(discount),
		TaxComponents: append([]TaxComponent(nil), taxes...),
	}
	if err := item.validate(); err != nil {
		return LineItem{}, err
	}
	item.recompute()
	return item, nil
}

// Gross is quantity times unit rate, before discount and tax
func (li LineItem) Gross() decimal.Decimal {
	return shared.RoundMoney(li.Quantity.Mul(li.UnitRate))
}

// Net is the taxable amount of the line
func (li LineItem) Net() decimal.Decimal {
	return li.Gross().Sub(li.Discount)
}

// TaxAmount sums the line's tax components
func (li LineItem) TaxAmount() decimal.Decimal {
	total := decimal.Zero
	for _, tc := range li.TaxComponents {
		total = total.Add(tc.Amount)
	}
	return total
}

func (li LineItem) validate() error {
	if li.Description == "" {
		return newValidationError("description", "line item description is required")
	}
	if li.Quantity.IsNegative() {
		return newValidationError("quantity", "quantity cannot be negative")
	}
	if li.UnitRate.IsNegative() {
		return newValidationError("unit_rate", "unit rate cannot be negative")
	}
	if li.Discount.IsNegative() {
		return newValidationError("discount", "discount cannot be negative")
	}
	if li.Discount.GreaterThan(li.Gross()) {
		return newValidationError("discount", fmt.Sprintf("discount %s exceeds line amount %s",
			shared.FormatMoney(li.Discount), shared.FormatMoney(li.Gross())))
	}
	for _, tc := range li.TaxComponents {
		if strings.TrimSpace(tc.Kind) == "" {
			return newValidationError("tax_components.kind", "tax kind is required")
		}
		if tc.Rate.IsNegative() || tc.Rate.GreaterThan(hundred) {
			return newValidationError("tax_components.rate", "tax rate must be between 0 and 100")
		}
	}
	return nil
}

func (li *LineItem) recompute() {
	net := li.Net()
	for i := range li.TaxComponents {
		li.TaxComponents[i].Amount = shared.RoundMoney(net.Mul(li.TaxComponents[i].Rate).Div(hundred))
	}
}

// DocumentTotals are the derived money fields of a document
type DocumentTotals struct {
	Subtotal          decimal.Decimal
	TaxAmount         decimal.Decimal
	LineItemDiscounts decimal.Decimal
	DocumentDiscount  decimal.Decimal
	TotalAmount       decimal.Decimal
}

// ComputeTotals derives totals from line items:
// total = subtotal + tax - document discount - line discounts.
func ComputeTotals(items []LineItem, documentDiscount decimal.Decimal) (DocumentTotals, error) {
	documentDiscount = shared.RoundMoney(documentDiscount)
	if documentDiscount.IsNegative() {
		return DocumentTotals{}, newValidationError("document_discount", "document discount cannot be negative")
	}

	t := DocumentTotals{
		Subtotal:          decimal.Zero,
		TaxAmount:         decimal.Zero,
		LineItemDiscounts: decimal.Zero,
		DocumentDiscount:  documentDiscount,
	}
	for i := range items {
		if err := items[i].validate(); err != nil {
			return DocumentTotals{}, err
		}
		items[i].recompute()
		t.Subtotal = t.Subtotal.Add(items[i].Gross())
		t.TaxAmount = t.TaxAmount.Add(items[i].TaxAmount())
		t.LineItemDiscounts = t.LineItemDiscounts.Add(items[i].Discount)
	}
	t.TotalAmount = t.Subtotal.Add(t.TaxAmount).Sub(t.DocumentDiscount).Sub(t.LineItemDiscounts)
	if t.TotalAmount.IsNegative() {
		return DocumentTotals{}, newValidationError("document_discount",
			fmt.Sprintf("document discount %s exceeds the document amount", shared.FormatMoney(documentDiscount)))
	}
	return t, nil
}
