// Package lang holds the C++ grammar and the header extensions it applies to.
package lang

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language pairs a tree-sitter grammar with the file extensions it parses.
type Language struct {
	Name       string
	Extensions []string
	grammar    *sitter.Language
}

// CPP parses C++ headers.
var CPP = &Language{
	Name:       "cpp",
	Extensions: []string{".h", ".h++", ".hh", ".hpp", ".hxx"},
	grammar:    cpp.GetLanguage(),
}

var byExtension = func() map[string]*Language {
	m := make(map[string]*Language)
	for _, l := range []*Language{CPP} {
		for _, ext := range l.Extensions {
			m[ext] = l
		}
	}
	return m
}()

// Grammar returns the tree-sitter grammar.
func (l *Language) Grammar() *sitter.Language {
	return l.grammar
}

// Parse parses src with a parser private to this call; tree-sitter parsers
// must not be shared between goroutines. The caller closes the tree.
func (l *Language) Parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(l.grammar)
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", l.Name)
	}
	return tree, nil
}

// ForExtension returns the language name for a file extension, or "" if
// the extension is not a recognized header.
func ForExtension(ext string) string {
	if l, ok := byExtension[strings.ToLower(ext)]; ok {
		return l.Name
	}
	return ""
}

// IsHeader reports whether name has a recognized header extension.
func IsHeader(name string) bool {
	return ForExtension(filepath.Ext(name)) != ""
}

// Extensions returns every recognized extension, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(byExtension))
	for ext := range byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
