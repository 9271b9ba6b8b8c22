package invoice

import (
	"strings"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
)

// Totals are the computed header amounts.
type Totals struct {
	Subtotal       types.Money
	TaxAmount      types.Money
	DiscountAmount types.Money
	TotalAmount    types.Money
}

var hundred = types.NewMoneyFromInt(100)

// ComputeTotals validates lines and derives item and header amounts:
// itemTotal = qty × price, itemTax = itemTotal × rate / 100,
// total = Σ itemTotal + Σ itemTax − discount.
func ComputeTotals(inputs []ItemInput, discount types.Money) ([]Item, Totals, error) {
	if len(inputs) == 0 {
		return nil, Totals{}, apperror.NewFieldValidation("items", "invoice must have at least one item")
	}
	if discount.IsNegative() {
		return nil, Totals{}, apperror.NewFieldValidation("discountAmount", "discount must not be negative")
	}

	items := make([]Item, 0, len(inputs))
	subtotal := types.Zero()
	tax := types.Zero()
	for i, in := range inputs {
		line := i + 1
		if strings.TrimSpace(in.Description) == "" {
			return nil, Totals{}, apperror.NewFieldValidation("items", "item description is required").WithDetail("line", line)
		}
		if !in.Quantity.IsPositive() {
			return nil, Totals{}, apperror.NewFieldValidation("items", "item quantity must be positive").WithDetail("line", line)
		}
		if in.UnitPrice.IsNegative() {
			return nil, Totals{}, apperror.NewFieldValidation("items", "item unit price must not be negative").WithDetail("line", line)
		}
		if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred) {
			return nil, Totals{}, apperror.NewFieldValidation("items", "item tax rate must be between 0 and 100").WithDetail("line", line)
		}

		total := types.Round(in.Quantity.Mul(in.UnitPrice))
		itemTax := types.Percent(total, in.TaxRate)
		items = append(items, Item{
			ID:          id.New(),
			LineNo:      line,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TaxRate:     in.TaxRate,
			TotalPrice:  total,
			TaxAmount:   itemTax,
		})
		subtotal = subtotal.Add(total)
		tax = tax.Add(itemTax)
	}

	totals := Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Sub(discount),
	}
	if totals.TotalAmount.IsNegative() {
		return nil, Totals{}, apperror.NewFieldValidation("discountAmount", "discount exceeds the invoice amount").
			WithDetail("subtotal", subtotal.String()).
			WithDetail("tax", tax.String())
	}
	return items, totals, nil
}

// apply copies totals onto the invoice header and binds items to it.
func (t Totals) apply(inv *Invoice, items []Item) {
	inv.Subtotal = t.Subtotal
	inv.TaxAmount = t.TaxAmount
	inv.DiscountAmount = t.DiscountAmount
	inv.TotalAmount = t.TotalAmount
	for i := range items {
		items[i].InvoiceID = inv.ID
	}
	inv.Items = items
}
