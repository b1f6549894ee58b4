package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReportsHeaderChanges(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := filepath.Join(root, "generated")
	require.NoError(t, os.MkdirAll(out, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Root:       root,
			Extensions: []string{".hpp"},
			Exclude:    []string{out},
			Debounce:   50 * time.Millisecond,
		}, func(changed []string) { changes <- changed })
	}()

	// Give the watcher time to register the tree.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(out, "ignored.hpp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.hpp"), []byte("class B {};"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.hpp"), []byte("class A {};"), 0o644))

	select {
	case changed := <-changes:
		assert.Equal(t, []string{filepath.Join(root, "a.hpp"), filepath.Join(root, "b.hpp")}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRunMissingRoot(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), Options{Root: filepath.Join(t.TempDir(), "missing")}, func([]string) {})
	assert.Error(t, err)
}

func TestExcluded(t *testing.T) {
	t.Parallel()

	sep := string(filepath.Separator)
	exclude := []string{sep + "out"}
	assert.True(t, excluded(sep+"out", exclude))
	assert.True(t, excluded(filepath.Join(sep+"out", "a.cpp"), exclude))
	assert.False(t, excluded(sep+"output", exclude))
}

func TestIgnoredName(t *testing.T) {
	t.Parallel()

	assert.True(t, ignoredName(".#a.hpp"))
	assert.True(t, ignoredName("a.hpp.swp"))
	assert.True(t, ignoredName("a.hpp~"))
	assert.False(t, ignoredName("a.hpp"))
}

func TestSkipDir(t *testing.T) {
	t.Parallel()

	assert.True(t, skipDir(".cache", false))
	assert.True(t, skipDir("_deps", false))
	assert.False(t, skipDir("src", false))

	assert.False(t, skipDir(".cache", true))
	assert.False(t, skipDir("_deps", true))
	assert.True(t, skipDir(".git", true))
}
