package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCodeSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("fetch close: %w", FieldNotFound("close"))
	assert.True(t, HasCode(err, CodeFieldNotFound))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(fmt.Errorf("plain"), CodeFieldNotFound))
}

func TestTransientWrapsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Transient("read", "data/x.csv", cause)

	assert.True(t, HasCode(err, CodeTransient))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSIENT_ERROR")
	assert.Contains(t, err.Error(), "data/x.csv")
}

func TestNotFoundHelpers(t *testing.T) {
	err := NotFound("object", "data/universe/tech.csv")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(FieldNotFound("x")))
	assert.False(t, IsNotFound(nil))
}

func TestColumnMismatchDetails(t *testing.T) {
	err := ColumnMismatch([]string{"A", "B"}, []string{"A"})

	var de *DomainError
	require.ErrorAs(t, err, &de)
	details, ok := de.Details.(ColumnMismatchDetails)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, details.Left)
	assert.Equal(t, []string{"A"}, details.Right)
}
