package fileurl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "backup", "notes.yaml")
	assert.False(t, IsExist(dst))

	require.NoError(t, WriteFileAtomic(dst, []byte("a: 1\n"), 0644))
	require.NoError(t, WriteFileAtomic(dst, []byte("a: 2\n"), 0644))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a: 2\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "/abs/x", Resolve("/abs/x", "/root"))
	assert.Equal(t, filepath.Join("/root", "rel/x"), Resolve("rel/x", "/root"))
	assert.Equal(t, "", Resolve("", "/root"))
}
