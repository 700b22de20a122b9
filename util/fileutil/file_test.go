package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct {
	io.Reader
}

func (failingCloser) Close() error {
	return errors.New("close failed")
}

func TestReadFileBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0o600))
	content, err := ReadFileBytes(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("onnx"), content)

	_, err = ReadFileBytes(filepath.Join(t.TempDir(), "missing.onnx"))
	assert.Error(t, err)
}

func TestReadAndCloseReportsCloseError(t *testing.T) {
	content, err := readAndClose(failingCloser{Reader: strings.NewReader("onnx")})
	assert.Nil(t, content)
	assert.ErrorContains(t, err, "close failed")

	content, err = readAndClose(io.NopCloser(strings.NewReader("onnx")))
	require.NoError(t, err)
	assert.Equal(t, []byte("onnx"), content)
}

func TestNewFileWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.json")
	for _, content := range []string{"a much longer first report", "short"} {
		writer, err := NewFileWriter(path)
		require.NoError(t, err)
		_, err = writer.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, writer.Close())
	}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "short", string(raw))

	require.NoError(t, DeleteFile(path))
	exists, err := FileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "graph")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	isDir, err := IsDir(dir)
	require.NoError(t, err)
	assert.True(t, isDir)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.ErrorContains(t, EnsureDir(file), "is not a directory")
}
