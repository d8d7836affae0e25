package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityErrorsWrapGenericErrors(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, ErrTaskNotFound, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("lookup: %w", ErrTenantNotFound), ErrNotFound)
	assert.ErrorIs(t, ErrAccountExists, ErrDuplicate)
	assert.NotErrorIs(t, ErrNoAccountAvailable, ErrNotFound)
	assert.NotErrorIs(t, ErrInvalidTransition, ErrDuplicate)
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewStoreError("account", "lease", "select free account", cause)

	assert.Equal(t, "lease operation on account failed: select free account: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := NewStoreError("task", "transition", "failed to update status", ErrTaskNotFound)
	assert.ErrorIs(t, wrapped, ErrNotFound)

	bare := NewStoreError("task", "transition", "no rows", nil)
	assert.Equal(t, "transition operation on task failed: no rows", bare.Error())
}
