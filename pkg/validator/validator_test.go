package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID    int64  `json:"id" binding:"required,gt=0"`
	Color string `json:"color" binding:"max=32"`
}

func TestCustomValidator(t *testing.T) {
	v := NewCustomValidator()

	assert.NoError(t, v.ValidateStruct(&sample{ID: 1}))
	assert.NoError(t, v.ValidateStruct("not a struct"))

	err := v.ValidateStruct(&sample{})
	require.Error(t, err)
	errs, ok := err.(validator.ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, "id", errs[0].Field())

	msg := errs[0].Translate(v.Translator("en"))
	assert.Contains(t, msg, "id")

	zhMsg := errs[0].Translate(v.Translator("zh-CN"))
	assert.NotEqual(t, msg, zhMsg)
}
