package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrTo(t *testing.T) {
	assert.Equal(t, int64(42), StrTo(" 42 ").MustInt64())
	assert.Equal(t, int64(0), StrTo("x").MustInt64())
	_, err := StrTo("9223372036854775808").Int64()
	assert.Error(t, err)
	assert.Equal(t, 7, StrTo("7").MustInt())
}

type srcNote struct {
	ID    int64
	Color string
	Extra string
}

type dstNote struct {
	ID    int64  `json:"id"`
	Color string `json:"color"`
}

func TestStructAssign(t *testing.T) {
	var dst dstNote
	require.NoError(t, StructAssign(&srcNote{ID: 3, Color: "#fff", Extra: "x"}, &dst))
	assert.Equal(t, dstNote{ID: 3, Color: "#fff"}, dst)
}
