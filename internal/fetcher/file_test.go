package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_Get(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "drops", "2025"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "drops", "2025", "esg.csv"), []byte("ticker\n"), 0o644))

	src := NewFileSource(root)
	data, err := src.Get(context.Background(), "drops", "2025/esg.csv")
	require.NoError(t, err)
	assert.Equal(t, "ticker\n", string(data))
}

func TestFileSource_NotFound(t *testing.T) {
	src := NewFileSource(t.TempDir())
	_, err := src.Get(context.Background(), "drops", "missing.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestObjectPath(t *testing.T) {
	p, err := objectPath("drops", "a/b.csv")
	require.NoError(t, err)
	assert.Equal(t, "/drops/a/b.csv", p)

	for _, tc := range []struct{ bucket, key string }{
		{"", "a.csv"},
		{"drops", ""},
		{"drops", "../secret"},
		{"..", "a.csv"},
		{"a/b", "c.csv"},
	} {
		_, err := objectPath(tc.bucket, tc.key)
		assert.Error(t, err, "%s/%s", tc.bucket, tc.key)
	}
}
