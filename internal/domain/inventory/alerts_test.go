package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowStockThreshold(t *testing.T) {
	assert.Equal(t, int64(0), LowStockThreshold(0))
	assert.Equal(t, int64(2), LowStockThreshold(1))
	assert.Equal(t, int64(5), LowStockThreshold(3))
	assert.Equal(t, int64(15), LowStockThreshold(10))
}

func TestClassifyStock(t *testing.T) {
	assert.Equal(t, TierOutOfStock, ClassifyStock(0, 10))
	assert.Equal(t, TierCritical, ClassifyStock(10, 10))
	assert.Equal(t, TierLow, ClassifyStock(15, 10))
	assert.Equal(t, TierOK, ClassifyStock(16, 10))
	assert.Equal(t, TierOK, ClassifyStock(1, 0))
}

func TestCrossedInto(t *testing.T) {
	tier, crossed := crossedInto(20, 14, 10)
	assert.True(t, crossed)
	assert.Equal(t, TierLow, tier)

	_, crossed = crossedInto(14, 13, 10)
	assert.False(t, crossed, "staying in LOW does not alert again")

	_, crossed = crossedInto(0, 5, 10)
	assert.False(t, crossed, "recovering never alerts")
}

func TestSignedDelta(t *testing.T) {
	d, err := signedDelta(MovementPurchase, 5)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), d)

	d, err = signedDelta(MovementDamage, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(-2), d)

	d, err = signedDelta(MovementAdjustment, -7)
	assert.NoError(t, err)
	assert.Equal(t, int64(-7), d)

	_, err = signedDelta(MovementSale, -1)
	assert.Error(t, err)
	_, err = signedDelta(MovementAdjustment, 0)
	assert.Error(t, err)
	_, err = signedDelta("TRANSFER", 1)
	assert.Error(t, err)
}
