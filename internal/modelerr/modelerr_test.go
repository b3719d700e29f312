package modelerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesKindAndMessage(t *testing.T) {
	err := New(NotFound, "no such charger %q", "cp1")
	assert.Equal(t, NotFound, err.Kind)
	assert.Contains(t, err.Error(), "cp1")
	assert.Contains(t, err.Error(), "NotFound")
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ProtocolError, cause, "decode failed")
	assert.Same(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "boom")
}

func TestAsFindsErrorThroughChain(t *testing.T) {
	inner := New(Conflict, "concurrent tag")
	wrapped := fmtWrap(inner)

	found, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, Conflict, found.Kind)
}

func TestAsFailsForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOfDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, IllegalArgument, KindOf(New(IllegalArgument, "bad input")))
}

// fmtWrap simulates a third-party wrapper implementing Unwrap() error,
// the way fmt.Errorf("%w", err) does.
type wrapper struct{ cause error }

func (w *wrapper) Error() string { return "wrapped: " + w.cause.Error() }
func (w *wrapper) Unwrap() error { return w.cause }

func fmtWrap(err error) error { return &wrapper{cause: err} }
