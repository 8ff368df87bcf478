package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderPreservesErrorChain(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("record not found")
	wrapped := New(fmt.Errorf("%w in collection cars", sentinel)).
		Component("recordstore").
		Category(CategoryNotFound).
		Context("collection", "cars").
		Build()

	assert.True(t, Is(wrapped, sentinel), "errors.Is sees through the enhanced error")

	var enhanced *EnhancedError
	require.True(t, As(wrapped, &enhanced))
	assert.Equal(t, "recordstore", enhanced.GetComponent())
	assert.Equal(t, string(CategoryNotFound), enhanced.GetCategory())
	assert.Equal(t, "cars", enhanced.GetContext()["collection"])
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := Newf("bad input").Category(CategoryValidation).Build()
	assert.True(t, IsCategory(err, CategoryValidation))
	assert.False(t, IsCategory(err, CategoryDatabase))

	plain := NewStd("plain")
	assert.False(t, IsCategory(plain, CategoryValidation))
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := ValidationError("field missing")
	assert.Equal(t, CategoryValidation, err.Category)
	assert.Contains(t, err.Error(), "field missing")
}
