package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/types"
)

func money(s string) types.Money { return types.MustMoney(s) }

func TestComputeTotals(t *testing.T) {
	items, totals, err := ComputeTotals([]ItemInput{
		{Description: "Widget", Quantity: money("2"), UnitPrice: money("12.50"), TaxRate: money("8")},
	}, types.Zero())
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.True(t, items[0].TotalPrice.Equal(money("25")))
	assert.True(t, items[0].TaxAmount.Equal(money("2")))
	assert.Equal(t, 1, items[0].LineNo)
	assert.True(t, totals.Subtotal.Equal(money("25")))
	assert.True(t, totals.TaxAmount.Equal(money("2")))
	assert.True(t, totals.TotalAmount.Equal(money("27")))
}

func TestComputeTotals_RoundsPerLine(t *testing.T) {
	_, totals, err := ComputeTotals([]ItemInput{
		{Description: "Hourly", Quantity: money("1.333"), UnitPrice: money("10"), TaxRate: money("7.5")},
		{Description: "Fee", Quantity: money("1"), UnitPrice: money("0.99"), TaxRate: money("0")},
	}, money("1.00"))
	require.NoError(t, err)

	// 13.33 + 1.00 tax (0.99975 rounded), 0.99 untaxed, less 1.00 discount
	assert.Equal(t, "14.32", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "1.00", totals.TaxAmount.StringFixed(2))
	assert.Equal(t, "14.32", totals.TotalAmount.StringFixed(2))
}

func TestComputeTotals_Validation(t *testing.T) {
	valid := ItemInput{Description: "x", Quantity: money("1"), UnitPrice: money("5"), TaxRate: money("0")}

	tests := []struct {
		name     string
		items    []ItemInput
		discount types.Money
	}{
		{"no items", nil, types.Zero()},
		{"blank description", []ItemInput{{Description: " ", Quantity: money("1"), UnitPrice: money("1")}}, types.Zero()},
		{"zero quantity", []ItemInput{{Description: "x", Quantity: money("0"), UnitPrice: money("1")}}, types.Zero()},
		{"negative price", []ItemInput{{Description: "x", Quantity: money("1"), UnitPrice: money("-1")}}, types.Zero()},
		{"tax above 100", []ItemInput{{Description: "x", Quantity: money("1"), UnitPrice: money("1"), TaxRate: money("101")}}, types.Zero()},
		{"negative discount", []ItemInput{valid}, money("-1")},
		{"discount above total", []ItemInput{valid}, money("5.01")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ComputeTotals(tt.items, tt.discount)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestComputeTotals_DiscountToZero(t *testing.T) {
	_, totals, err := ComputeTotals([]ItemInput{
		{Description: "x", Quantity: money("1"), UnitPrice: money("5"), TaxRate: money("0")},
	}, money("5"))
	require.NoError(t, err)
	assert.True(t, totals.TotalAmount.IsZero())

	inv := &Invoice{Status: StatusDraft}
	totals.apply(inv, nil)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, settleZeroTotal(inv, now))
	assert.Equal(t, StatusPaid, inv.Status, "nothing left to collect")
	require.NotNil(t, inv.PaidDate)
	assert.Equal(t, now, *inv.PaidDate)

	owed := &Invoice{Status: StatusSent, TotalAmount: money("1")}
	require.NoError(t, settleZeroTotal(owed, now))
	assert.Equal(t, StatusSent, owed.Status)
	assert.Nil(t, owed.PaidDate)
}
