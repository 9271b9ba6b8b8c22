package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_RunsFunction(t *testing.T) {
	called := false
	err := Local{}.WithLock(context.Background(), "billing", func(context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestLocal_ReturnsFunctionError(t *testing.T) {
	boom := errors.New("boom")
	err := Local{}.WithLock(context.Background(), "billing", func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
}

func TestOpen_WithoutAddressIsLocal(t *testing.T) {
	l, closeFn, err := Open(context.Background(), "", "", 0, time.Minute)

	require.NoError(t, err)
	assert.IsType(t, Local{}, l)
	assert.NoError(t, closeFn())
}
