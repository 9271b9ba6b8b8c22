// Package reports provides read-only reconciliation and inventory reports.
// Every figure is derived from invoice, payment, product and movement rows;
// there are no separate counters that could drift.
package reports

import (
	"time"

	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
)

// --- Source rows ---

// InvoiceRow is an issued invoice with the sum of its payments up to the range end.
type InvoiceRow struct {
	ID            id.ID       `db:"id"`
	InvoiceNumber string      `db:"invoice_number"`
	CustomerID    id.ID       `db:"customer_id"`
	IssueDate     time.Time   `db:"issue_date"`
	DueDate       time.Time   `db:"due_date"`
	Status        string      `db:"status"`
	TotalAmount   types.Money `db:"total_amount"`
	TaxAmount     types.Money `db:"tax_amount"`
	Paid          types.Money `db:"paid"`
}

// PaymentRow is one payment.
type PaymentRow struct {
	InvoiceID   id.ID       `db:"invoice_id"`
	Method      string      `db:"method"`
	Amount      types.Money `db:"amount"`
	PaymentDate time.Time   `db:"payment_date"`
}

// ProductRow is a product's stock and prices.
type ProductRow struct {
	ID            id.ID       `db:"id"`
	SKU           string      `db:"sku"`
	Name          string      `db:"name"`
	StockLevel    int64       `db:"stock_level"`
	MinStockLevel int64       `db:"min_stock_level"`
	CostPrice     types.Money `db:"cost_price"`
	SellingPrice  types.Money `db:"selling_price"`
}

// MovementTotal aggregates movements of one type.
type MovementTotal struct {
	Type      string `db:"movement_type" json:"type"`
	Movements int64  `db:"movements" json:"movements"`
	Quantity  int64  `db:"quantity" json:"quantity"`
	NetChange int64  `db:"net_change" json:"netChange"`
}

// --- Reconciliation ---

// Bucket sums the invoices of one payment state.
type Bucket struct {
	Count       int         `json:"count"`
	Total       types.Money `json:"total"`
	Paid        types.Money `json:"paid"`
	Outstanding types.Money `json:"outstanding"`
}

func (b *Bucket) add(total, paid types.Money) {
	b.Count++
	b.Total = b.Total.Add(total)
	b.Paid = b.Paid.Add(paid)
	b.Outstanding = b.Outstanding.Add(types.NonNegative(total.Sub(paid)))
}

// MethodTotal sums payments by method.
type MethodTotal struct {
	Method string      `json:"method"`
	Count  int         `json:"count"`
	Amount types.Money `json:"amount"`
}

// ReconciliationReport compares invoiced amounts with collected payments.
type ReconciliationReport struct {
	Range       domain.DateRange `json:"range"`
	GeneratedAt time.Time        `json:"generatedAt"`

	InvoiceCount     int         `json:"invoiceCount"`
	TotalInvoiced    types.Money `json:"totalInvoiced"`
	TotalTax         types.Money `json:"totalTax"`
	TotalPaid        types.Money `json:"totalPaid"`
	TotalOutstanding types.Money `json:"totalOutstanding"`

	FullyPaid     Bucket `json:"fullyPaid"`
	PartiallyPaid Bucket `json:"partiallyPaid"`
	Unpaid        Bucket `json:"unpaid"`

	OverdueCount    int         `json:"overdueCount"`
	OverdueExposure types.Money `json:"overdueExposure"`

	PaymentCount     int           `json:"paymentCount"`
	PaymentsTotal    types.Money   `json:"paymentsTotal"`
	PaymentsByMethod []MethodTotal `json:"paymentsByMethod"`
}

// --- Inventory ---

// InventoryLine is one product in the snapshot.
type InventoryLine struct {
	ProductID   id.ID       `json:"productId"`
	SKU         string      `json:"sku"`
	Name        string      `json:"name"`
	StockLevel  int64       `json:"stockLevel"`
	Tier        string      `json:"tier"`
	CostValue   types.Money `json:"costValue"`
	RetailValue types.Money `json:"retailValue"`
}

// InventorySnapshot values current stock at cost and at selling price.
type InventorySnapshot struct {
	GeneratedAt   time.Time       `json:"generatedAt"`
	ProductCount  int             `json:"productCount"`
	TotalUnits    int64           `json:"totalUnits"`
	CostValue     types.Money     `json:"costValue"`
	RetailValue   types.Money     `json:"retailValue"`
	LowStockCount int             `json:"lowStockCount"`
	OutOfStock    int             `json:"outOfStock"`
	Lines         []InventoryLine `json:"lines"`
}

// StockTurnover totals movements per type over a range.
type StockTurnover struct {
	Range    domain.DateRange `json:"range"`
	Rows     []MovementTotal  `json:"rows"`
	Inbound  int64            `json:"inbound"`
	Outbound int64            `json:"outbound"`
	Net      int64            `json:"net"`
}
