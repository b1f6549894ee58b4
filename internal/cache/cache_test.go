package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/reflgen/internal/model"
)

func setup(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	src := filepath.Join(dir, "widget.hpp")
	require.NoError(t, os.WriteFile(src, []byte("class Widget {};\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(src, old, old))
	return store, src
}

func header(path string) *model.Header {
	h := model.NewHeader(path)
	h.AddClass(model.NewClass("Widget", []string{"ui"}, false))
	h.RegisterBaseClass("ui::Widget", "wir::Class")
	return h
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	store, src := setup(t)
	flags := []string{"-Iinclude"}
	require.NoError(t, store.Save(header(src), flags))

	got, ok, err := store.Load(src, flags)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, src, got.Path)
	require.Len(t, got.Classes, 1)
	assert.True(t, got.DoesClassInherit("ui::Widget", "wir::Class"))

	_, ok, err = store.Load(src, []string{"-DOTHER"})
	require.NoError(t, err)
	assert.False(t, ok, "different flags must miss")
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	store, src := setup(t)
	_, ok, err := store.Load(src, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaleEntryMisses(t *testing.T) {
	t.Parallel()

	store, src := setup(t)
	require.NoError(t, store.Save(header(src), nil))

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, future, future))

	_, ok, err := store.Load(src, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncludedFileChangeMisses(t *testing.T) {
	t.Parallel()

	store, src := setup(t)
	inc := filepath.Join(filepath.Dir(src), "base.hpp")
	require.NoError(t, os.WriteFile(inc, []byte("class Base {};\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(inc, old, old))

	h := header(src)
	h.Files = []string{src, inc}
	require.NoError(t, store.Save(h, nil))

	got, ok, err := store.Load(src, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{src, inc}, got.Files)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(inc, future, future))
	_, ok, err = store.Load(src, nil)
	require.NoError(t, err)
	assert.False(t, ok, "newer include must miss")

	require.NoError(t, os.Remove(inc))
	_, ok, err = store.Load(src, nil)
	require.NoError(t, err)
	assert.False(t, ok, "missing include must miss")
}

func TestCorruptEntryMisses(t *testing.T) {
	t.Parallel()

	store, src := setup(t)
	require.NoError(t, os.WriteFile(store.blobPath(src, nil), []byte("RFLG\x02\x00garbage"), 0o644))

	_, ok, err := store.Load(src, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidHeaderNotSaved(t *testing.T) {
	t.Parallel()

	store, src := setup(t)
	h := model.NewHeader(src)
	h.AddDiagnostic(model.Diagnostic{Severity: model.Error, Message: "bad"})
	require.NoError(t, store.Save(h, nil))

	_, err := os.Stat(store.blobPath(src, nil))
	assert.True(t, os.IsNotExist(err))
}

func TestKeyDependsOnFlagBoundaries(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, Key("/a.hpp", []string{"-DA", "B"}), Key("/a.hpp", []string{"-DAB"}))
	assert.Equal(t, Key("/a.hpp", []string{"-DA"}), Key("/a.hpp", []string{"-DA"}))
	assert.Len(t, Key("/a.hpp", nil), 64)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	store, src := setup(t)
	require.NoError(t, store.Save(header(src), []string{"-DX"}))
	data, err := os.ReadFile(store.blobPath(src, []string{"-DX"}))
	require.NoError(t, err)

	h, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, src, h.Path)
	assert.Empty(t, h.Files)

	_, err = Decode([]byte("nope"))
	assert.True(t, errors.Is(err, ErrNotBlob))

	data[len(magic)] = 0xff
	_, err = Decode(data)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotBlob))
}
