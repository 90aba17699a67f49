package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	err := Newf("ring buffer allocation failed").Build()
	require.NotNil(t, err)
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Equal(t, "ring buffer allocation failed", err.Error())
	assert.False(t, err.Timestamp.IsZero())
}

func TestBuilderMetadata(t *testing.T) {
	err := Newf("unsupported conversion").
		Component("audiocore").
		Category(CategoryValidation).
		Priority(PriorityHigh).
		Context("from_channels", 2).
		Context("to_channels", 1).
		Build()

	assert.Equal(t, "audiocore", err.Component)
	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, PriorityHigh, err.Priority)

	ctx := err.GetContext()
	assert.Equal(t, 2, ctx["from_channels"])
	assert.Equal(t, 1, ctx["to_channels"])

	// The copy must not alias the internal map.
	ctx["from_channels"] = 99
	assert.Equal(t, 2, err.GetContext()["from_channels"])
}

func TestUnwrapChain(t *testing.T) {
	sentinel := stderrors.New("decode failed")
	err := Wrap(sentinel).Component("codec").Category(CategoryCodec).Build()

	assert.True(t, stderrors.Is(err, sentinel))

	var enhanced *EnhancedError
	require.True(t, stderrors.As(err, &enhanced))
	assert.Equal(t, "codec", enhanced.Component)
}

func TestNilErrorIsSafe(t *testing.T) {
	err := New(nil).Component("pipeline").Build()
	require.NotNil(t, err)
	assert.NotEmpty(t, err.Error())
}
