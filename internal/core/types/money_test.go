package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	assert.True(t, Percent(MustMoney("20"), MustMoney("10")).Equal(MustMoney("2")))
	assert.True(t, Percent(MustMoney("33.33"), MustMoney("7.5")).Equal(MustMoney("2.5")))
	assert.True(t, Percent(MustMoney("5"), Zero()).IsZero())
}

func TestNonNegative(t *testing.T) {
	assert.True(t, NonNegative(MustMoney("-3")).IsZero())
	assert.True(t, NonNegative(MustMoney("4.10")).Equal(MustMoney("4.1")))
}

func TestSum(t *testing.T) {
	assert.True(t, Sum(MustMoney("15"), MustMoney("12")).Equal(MustMoney("27")))
	assert.True(t, Sum().IsZero())
}
