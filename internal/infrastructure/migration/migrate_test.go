package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@db:5432/ledgerd?sslmode=disable", "pgx5://u:p@db:5432/ledgerd?sslmode=disable"},
		{"postgresql://db/ledgerd", "pgx5://db/ledgerd"},
		{"pgx5://db/ledgerd", "pgx5://db/ledgerd"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DriverURL(tt.in))
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(files, "sql")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestSchemaDeclaresMappedConstraints(t *testing.T) {
	body, err := fs.ReadFile(files, "sql/000001_ledger.up.sql")
	require.NoError(t, err)

	for _, name := range []string{
		"products_sku_key",
		"products_barcode_key",
		"invoices_invoice_number_key",
		"subscription_invoices_period_key",
	} {
		assert.Contains(t, string(body), name)
	}
}
