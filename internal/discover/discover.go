// Package discover finds C++ headers in a source tree.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/reflgen/internal/lang"
)

// Entry is a discovered header.
type Entry struct {
	Path string // Relative to the scan root
	Abs  string // Absolute, cleaned
}

// vcsDirs are never descended into.
var vcsDirs = map[string]struct{}{
	".git": {},
	".hg":  {},
	".svn": {},
}

// skipDirs hold dependencies and build trees rather than project headers.
var skipDirs = map[string]struct{}{
	"node_modules": {},
	"CMakeFiles":   {},
	"_deps":        {},
}

// Options tunes a scan.
type Options struct {
	// Exclude lists directories (typically the output and cache
	// directories) that are not descended into.
	Exclude []string
	// NoIgnore keeps hidden entries, gitignored files and the skipDirs.
	NoIgnore bool
}

// SkipDir reports whether a directory named name is left out of a scan
// that honors ignore rules.
func SkipDir(name string) bool {
	if _, ok := vcsDirs[name]; ok {
		return true
	}
	if _, ok := skipDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".")
}

// Headers returns the headers under root whose extension is in exts,
// sorted by relative path. An empty exts accepts every recognized header
// extension.
func Headers(root string, exts []string, opts Options) ([]Entry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	extSet := ExtensionSet(exts)
	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, e := range opts.Exclude {
		if abs, err := filepath.Abs(e); err == nil {
			excluded[abs] = struct{}{}
		}
	}

	var gitFiles map[string]struct{}
	var gi *ignore.GitIgnore
	if !opts.NoIgnore {
		gitFiles = gitLsFiles(root)
		if gitFiles == nil {
			gi = loadGitignore(root)
		}
	}

	var results []Entry

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, vcs := vcsDirs[name]; vcs || (!opts.NoIgnore && SkipDir(name)) {
				return filepath.SkipDir
			}
			if _, skip := excluded[path]; skip {
				return filepath.SkipDir
			}
			return nil
		}

		if !opts.NoIgnore && strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if gitFiles != nil {
			if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		if !Matches(name, extSet) {
			return nil
		}

		results = append(results, Entry{Path: rel, Abs: path})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// Matches reports whether name is a recognized header whose extension is
// in exts (any recognized header when exts is empty).
func Matches(name string, exts map[string]struct{}) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if lang.ForExtension(ext) == "" {
		return false
	}
	if len(exts) == 0 {
		return true
	}
	_, ok := exts[ext]
	return ok
}

// ExtensionSet builds the set Matches expects.
func ExtensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	return set
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
