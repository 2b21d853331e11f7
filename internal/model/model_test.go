package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle_NFC(t *testing.T) {
	// "é" as a combining sequence (e + U+0301) normalizes to the
	// precomposed form (U+00E9).
	decomposed := "Café"
	precomposed := "Café"
	assert.Equal(t, precomposed, NormalizeTitle(decomposed))
}

func TestNormalizeTitle_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, "Hello", NormalizeTitle("  Hello \n"))
}

func TestValidateFields_RequiresTitle(t *testing.T) {
	_, err := ValidateFields(Fields{"text": "body"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = ValidateFields(Fields{"title": "   "})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = ValidateFields(nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestValidateFields_ReturnsNormalizedTitle(t *testing.T) {
	title, err := ValidateFields(Fields{"title": " Café "})
	require.NoError(t, err)
	assert.Equal(t, "Café", title)
}

func TestTiddlerType_Default(t *testing.T) {
	assert.Equal(t, DefaultTiddlerType, TiddlerType(Fields{"title": "X"}))
	assert.Equal(t, "text/plain", TiddlerType(Fields{"title": "X", "type": "text/plain"}))
}

func TestErrorTaxonomy_As(t *testing.T) {
	cases := []struct {
		err   error
		check func(error) bool
	}{
		{NewValidationError("title", "missing"), IsValidation},
		{NewNotFoundError("bag", "b1"), IsNotFound},
		{NewPermissionError(EntityTypeBag, "b1", PermissionWrite, "no role"), IsPermission},
		{NewConflictError("recipe", "r1"), IsConflict},
	}

	for _, tc := range cases {
		assert.True(t, tc.check(tc.err), "direct: %v", tc.err)

		// Wrapped errors must still match.
		wrapped := fmt.Errorf("save tiddler: %w", tc.err)
		assert.True(t, tc.check(wrapped), "wrapped: %v", wrapped)
	}

	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsValidation(NewNotFoundError("bag", "b1")))
}

func TestRecipe_BagHelpers(t *testing.T) {
	r := &Recipe{
		Name: "r1",
		Bags: []RecipeBag{{Bag: "base", Position: 0}, {Bag: "over", Position: 1}},
	}
	assert.Equal(t, []string{"base", "over"}, r.BagNames())
	assert.Equal(t, 1, r.PositionOf("over"))
	assert.Equal(t, -1, r.PositionOf("missing"))
}

func TestFields_Clone(t *testing.T) {
	f := Fields{"title": "A", "text": "body"}
	c := f.Clone()
	c["text"] = "changed"
	assert.Equal(t, "body", f["text"])
}
