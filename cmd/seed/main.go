// Package main seeds the ledger with demo customers, products and opening stock.
// Running it twice is safe: customers are upserted and existing SKUs are skipped.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"ledgerd/internal/app"
	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	appctx "ledgerd/internal/core/context"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/domain/schedule"
	"ledgerd/internal/domain/subscription"
	"ledgerd/internal/infrastructure/config"
	"ledgerd/pkg/logger"
)

// seedNamespace derives stable customer IDs from their names.
var seedNamespace = uuid.MustParse("6f1c2a4e-8d3b-4f0a-9c57-2e8b1d4a7c90")

type productSeed struct {
	sku, name       string
	cost, price     string
	minStock, stock int64
}

var customers = []domain.Customer{
	{Name: "Northwind Traders", Email: "ap@northwind.example", Phone: "+1-555-0100"},
	{Name: "Contoso Ltd", Email: "billing@contoso.example"},
	{Name: "Fabrikam Inc", Phone: "+1-555-0199"},
}

var products = []productSeed{
	{sku: "WID-001", name: "Widget", cost: "6.00", price: "12.50", minStock: 10, stock: 120},
	{sku: "GAD-002", name: "Gadget", cost: "18.25", price: "39.90", minStock: 5, stock: 40},
	{sku: "CAB-003", name: "USB-C Cable", cost: "1.10", price: "4.99", minStock: 50, stock: 300},
	{sku: "ADP-004", name: "Power Adapter", cost: "7.40", price: "19.00", minStock: 8, stock: 6},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "seed", Source: "cli"})

	a, err := app.Build(ctx, cfg, clock.System{})
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer a.Close()

	customerIDs, err := seedCustomers(ctx, a)
	if err != nil {
		log.Fatalw("failed to seed customers", "error", err)
	}
	if err := seedProducts(ctx, a, log); err != nil {
		log.Fatalw("failed to seed products", "error", err)
	}
	if os.Getenv("SEED_SUBSCRIPTIONS") == "true" {
		if err := seedSubscriptions(ctx, a, customerIDs); err != nil {
			log.Fatalw("failed to seed subscriptions", "error", err)
		}
	}

	log.Infow("seeding completed successfully",
		"customers", len(customerIDs),
		"products", len(products),
	)
}

func seedCustomers(ctx context.Context, a *app.App) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(customers))
	for _, c := range customers {
		c.ID = uuid.NewSHA1(seedNamespace, []byte(c.Name))
		if err := a.Customers.Upsert(ctx, c); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", c.Name, err)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func seedProducts(ctx context.Context, a *app.App, log *logger.Logger) error {
	for _, p := range products {
		product, err := a.Inventory.CreateProduct(ctx, inventory.CreateProductRequest{
			SKU:           p.sku,
			Name:          p.name,
			CostPrice:     types.MustMoney(p.cost),
			SellingPrice:  types.MustMoney(p.price),
			MinStockLevel: p.minStock,
		})
		if apperror.HasCode(err, apperror.CodeDuplicate) {
			log.Infow("product exists, skipping", "sku", p.sku)
			continue
		}
		if err != nil {
			return fmt.Errorf("create %s: %w", p.sku, err)
		}

		if _, err := a.Inventory.ApplyMovement(ctx, inventory.MovementRequest{
			ProductID: product.ID,
			Type:      inventory.MovementPurchase,
			Quantity:  p.stock,
			Reason:    "opening stock",
			Reference: "SEED",
		}); err != nil {
			return fmt.Errorf("opening stock %s: %w", p.sku, err)
		}
	}
	return nil
}

func seedSubscriptions(ctx context.Context, a *app.App, customerIDs []uuid.UUID) error {
	if len(customerIDs) == 0 {
		return nil
	}
	_, err := a.Subscriptions.Create(ctx, subscription.CreateRequest{
		CustomerID: customerIDs[0],
		PlanName:   "Support Plan",
		Amount:     types.MustMoney("49.00"),
		Currency:   "USD",
		Interval:   schedule.Monthly,
	})
	return err
}
