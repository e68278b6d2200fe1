package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MediaStore {
	t.Helper()
	store, err := NewMediaStore(filepath.Join(t.TempDir(), "media"))
	require.NoError(t, err)
	return store
}

func TestMediaStore_SaveListDelete(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Save("clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", saved.Name)
	assert.Equal(t, filepath.Join(store.Dir(), "clip.mp4"), saved.Path)
	assert.EqualValues(t, 6, saved.Size)

	_, err = store.Save("another.mkv", strings.NewReader("x"))
	require.NoError(t, err)

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "another.mkv", files[0].Name)
	assert.Equal(t, "clip.mp4", files[1].Name)

	require.NoError(t, store.Delete("clip.mp4"))
	files, err = store.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestMediaStore_SaveReplacesExisting(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("clip.mp4", strings.NewReader("old"))
	require.NoError(t, err)
	_, err = store.Save("clip.mp4", strings.NewReader("newer"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(store.Dir(), "clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "newer", string(b))
}

func TestMediaStore_NamesStayInsideDir(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Save("../../etc/evil.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "evil.mp4"), saved.Path)

	saved, err = store.Save(`C:\videos\win.mp4`, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "win.mp4", saved.Name)

	for _, bad := range []string{"", ".", "..", "/", ".hidden.mp4"} {
		_, err := store.Save(bad, strings.NewReader("x"))
		require.Error(t, err, "name %q", bad)
		assert.True(t, errors.Is(err, errInvalidFileName), "name %q: %v", bad, err)

		var ioErr *StoreIOError
		assert.True(t, errors.As(err, &ioErr))
	}
}

func TestMediaStore_FailedWriteLeavesNothing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("partial.mp4", &failingReader{after: "some bytes"})
	require.Error(t, err)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file or partial upload left behind")
}

func TestMediaStore_ListSkipsHiddenAndDirs(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), ".tmp-upload"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "sub"), 0o755))
	_, err := store.Save("visible.mp4", strings.NewReader("x"))
	require.NoError(t, err)

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "visible.mp4", files[0].Name)
}

func TestMediaStore_DeleteMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.Delete("nope.mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	var ioErr *StoreIOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "delete", ioErr.Op)
}

// failingReader returns its payload and then an error.
type failingReader struct {
	after string
	done  bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.after), nil
	}
	return 0, errors.New("connection reset")
}
