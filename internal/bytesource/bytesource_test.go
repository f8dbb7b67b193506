package bytesource

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wtmpx")
	content := []byte("0123456789abcdef")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	src, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, len(content), src.Len())
	assert.Equal(t, content, src.Bytes())
	assert.Equal(t, byte('a'), src.At(10))

	sub, err := src.Slice(4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("4567"), sub)

	_, err = src.Slice(14, 4)
	assert.Error(t, err)
	_, err = src.Slice(-1, 2)
	assert.Error(t, err)

	require.NoError(t, src.Close())
	assert.NoError(t, src.Close(), "second close is a no-op")
	assert.Nil(t, src.Bytes())
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wtmpx")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	src, err := ReadTail(path, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("6789"), src.Bytes())
	require.NoError(t, src.Close())

	src, err = ReadTail(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), src.Bytes())

	// a file that shrank below the cursor yields nothing rather than faulting
	require.NoError(t, os.Truncate(path, 4))
	src, err = ReadTail(path, 6)
	require.NoError(t, err)
	assert.Equal(t, 0, src.Len())

	_, err = ReadTail(filepath.Join(t.TempDir(), "missing"), 0)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, os.Truncate(path, 0))
	_, err = ReadTail(path, 0)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestFromBytes(t *testing.T) {
	src := FromBytes([]byte{1, 2, 3})
	assert.Equal(t, 3, src.Len())
	assert.Equal(t, byte(2), src.At(1))
	assert.NoError(t, src.Close())
}
