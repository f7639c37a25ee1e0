package storage

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

func newStore(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	base := t.TempDir()
	ls, err := NewLocalStorage(base, map[AssetType]string{AssetTypeExport: "exports"})
	require.NoError(t, err)
	return ls, base
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalStorage_SaveGetDelete(t *testing.T) {
	ls, base := newStore(t)

	rel, err := ls.Save(AssetTypeExport, "tree-1.ged", strings.NewReader("0 HEAD\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "exports/tree-1.ged", rel)

	rc, info, err := ls.Get(rel)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "0 HEAD\r\n", string(data))
	assert.Equal(t, int64(8), info.Size())

	// overwrite in place
	_, err = ls.Save(AssetTypeExport, "tree-1.ged", strings.NewReader("0 TRLR\r\n"))
	require.NoError(t, err)
	written, err := os.ReadFile(filepath.Join(base, "exports", "tree-1.ged"))
	require.NoError(t, err)
	assert.Equal(t, "0 TRLR\r\n", string(written))

	require.NoError(t, ls.Delete(rel))
	require.NoError(t, ls.Delete(rel), "deleting a missing file succeeds")
	_, _, err = ls.Get(rel)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocalStorage_FailedWriteLeavesNothing(t *testing.T) {
	ls, base := newStore(t)

	_, err := ls.Save(AssetTypeExport, "tree-2.ged", failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(base, "exports"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorage_RejectsEscapes(t *testing.T) {
	ls, _ := newStore(t)

	_, err := ls.Save(AssetTypeExport, "../evil.ged", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = ls.Save(AssetTypeExport, "", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = ls.Save(AssetType("thumbnail"), "a.ged", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = ls.GetFullPath("../../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, ls.Delete("../outside.ged"))

	_, err = NewLocalStorage(t.TempDir(), map[AssetType]string{AssetTypeExport: "../exports"})
	assert.Error(t, err)
}
