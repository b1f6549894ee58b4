// Package watch reruns generation when headers under a tree change.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/phobologic/reflgen/internal/discover"
)

// DefaultDebounce is the quiet period after the last event before onChange
// fires.
const DefaultDebounce = 250 * time.Millisecond

// Options configures a watch loop.
type Options struct {
	Root       string
	Extensions []string
	// Exclude lists directories whose events are ignored, such as the
	// output and cache directories.
	Exclude []string
	// NoIgnore also watches hidden and dependency directories.
	NoIgnore bool
	Debounce time.Duration
	Logger   *zap.SugaredLogger
}

// Run watches opts.Root recursively and calls onChange with the sorted set
// of changed header paths once events settle. It returns nil when ctx is
// done.
func Run(ctx context.Context, opts Options, onChange func(changed []string)) error {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", opts.Root)
	}
	root = filepath.Clean(root)
	if info, err := os.Stat(root); err != nil {
		return errors.Wrapf(err, "watching %s", root)
	} else if !info.IsDir() {
		return errors.Newf("watching %s: not a directory", root)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	exts := discover.ExtensionSet(opts.Extensions)
	exclude := make([]string, 0, len(opts.Exclude))
	for _, dir := range opts.Exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			exclude = append(exclude, filepath.Clean(abs))
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root, exclude, opts.NoIgnore); err != nil {
		return err
	}
	logger.Infow("Watching for header changes", "root", root, "debounce", debounce)

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	pending := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if excluded(path, exclude) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					if err := addRecursive(watcher, path, exclude, opts.NoIgnore); err != nil {
						logger.Warnw("Cannot watch new directory", "dir", path, "error", err)
					}
					continue
				}
			}
			if !discover.Matches(filepath.Base(path), exts) || ignoredName(filepath.Base(path)) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debugw("Header changed", "path", path, "op", event.Op.String())
			if len(pending) > 0 {
				stopTimer(timer)
			}
			pending[path] = struct{}{}
			timer.Reset(debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			sort.Strings(changed)
			pending = map[string]struct{}{}
			onChange(changed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "watching")
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string, exclude []string, noIgnore bool) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (skipDir(d.Name(), noIgnore) || excluded(path, exclude)) {
			return filepath.SkipDir
		}
		return errors.Wrapf(watcher.Add(path), "watching %s", path)
	})
}

func skipDir(name string, noIgnore bool) bool {
	if noIgnore {
		return name == ".git" || name == ".hg" || name == ".svn"
	}
	return discover.SkipDir(name)
}

func excluded(path string, exclude []string) bool {
	for _, dir := range exclude {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ignoredName reports editor scratch files.
func ignoredName(base string) bool {
	return strings.HasPrefix(base, ".#") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, "~")
}
