package qr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWritesPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generated_qrs")
	g, err := New(dir)
	require.NoError(t, err)

	path, err := g.Generate("http://10.0.0.2:5000/verify?token=abc")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".png"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestGenerateUniqueFilenames(t *testing.T) {
	g, err := New(t.TempDir())
	require.NoError(t, err)

	a, err := g.Generate("payload")
	require.NoError(t, err)
	b, err := g.Generate("payload")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
