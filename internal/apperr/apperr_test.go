package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("disk full")
	err := Store("inserting batch", cause)

	require.True(t, Is(err, KindStore))
	require.False(t, Is(err, KindValidation))
	require.ErrorIs(t, err, cause)
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(errors.New("plain"), KindConfig))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Validation("bad field", errors.New("unknown column"))
	require.Contains(t, err.Error(), "unknown column")
	require.Contains(t, err.Error(), "bad field")
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := Cancelled("shutting down", nil)
	require.Equal(t, "cancelled: shutting down", err.Error())
}
