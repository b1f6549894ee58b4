package parse

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var (
	definedRe     = regexp.MustCompile(`^(!?)\s*defined\s*\(?\s*(\w+)\s*\)?$`)
	emptyDefineRe = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*define[ \t]+([A-Za-z_]\w*)[ \t]*(?:/[/*].*)?\r?$`)
	includeLineRe = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*include[ \t]*([<"])([^>"\r\n]+)[>"]`)
)

// options holds the compiler flags the parser understands.
type options struct {
	includeDirs []string
	defines     map[string]string
}

func parseFlags(flags []string) options {
	opts := options{defines: make(map[string]string)}
	apply := func(flag, value string) {
		switch flag {
		case "-I", "-isystem":
			if abs, err := filepath.Abs(value); err == nil {
				value = abs
			}
			opts.includeDirs = append(opts.includeDirs, value)
		case "-D":
			name, def, ok := strings.Cut(value, "=")
			if !ok {
				def = "1"
			}
			opts.defines[name] = def
		case "-U":
			delete(opts.defines, value)
		}
	}

	for i := 0; i < len(flags); i++ {
		f := flags[i]
		switch {
		case f == "-I" || f == "-D" || f == "-U" || f == "-isystem":
			if i+1 < len(flags) {
				apply(f, flags[i+1])
				i++
			}
		case strings.HasPrefix(f, "-isystem"):
			apply("-isystem", strings.TrimPrefix(f, "-isystem"))
		case strings.HasPrefix(f, "-I"), strings.HasPrefix(f, "-D"), strings.HasPrefix(f, "-U"):
			apply(f[:2], f[2:])
		}
	}
	return opts
}

func (u *unit) define(s *source, n *sitter.Node) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	value := "1"
	if v := n.ChildByFieldName("value"); v != nil {
		value = strings.TrimSpace(s.text(v))
	}
	u.defines[s.text(name)] = value
}

// directive handles the preprocessor lines tree-sitter leaves generic, of
// which only #undef matters here.
func (u *unit) directive(s *source, n *sitter.Node) {
	d := n.ChildByFieldName("directive")
	if d == nil || s.text(d) != "#undef" {
		return
	}
	if arg := n.ChildByFieldName("argument"); arg != nil {
		delete(u.defines, strings.TrimSpace(s.text(arg)))
	}
}

// branch visits the children of the taken branch of a conditional block.
func (u *unit) branch(s *source, n *sitter.Node, visit func(*sitter.Node)) {
	taken := true
	name := n.ChildByFieldName("name")
	cond := n.ChildByFieldName("condition")
	alt := n.ChildByFieldName("alternative")

	switch n.Type() {
	case "preproc_ifdef", "preproc_elifdef":
		negate := n.ChildCount() > 0 && strings.Contains(n.Child(0).Type(), "ndef")
		defined := false
		if name != nil {
			_, defined = u.defines[s.text(name)]
		}
		taken = defined != negate
	case "preproc_if", "preproc_elif":
		if cond != nil {
			taken = u.condition(s.text(cond))
		}
	}

	if !taken {
		if alt != nil {
			u.branch(s, alt, visit)
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if sameNode(child, name) || sameNode(child, cond) || sameNode(child, alt) {
			continue
		}
		visit(child)
	}
}

// condition evaluates the #if expressions that guard declarations in
// practice. Anything else is treated as true.
func (u *unit) condition(text string) bool {
	text = strings.TrimSpace(text)
	switch text {
	case "0", "false":
		return false
	case "1", "true":
		return true
	}
	if m := definedRe.FindStringSubmatch(text); m != nil {
		_, defined := u.defines[m[2]]
		return defined != (m[1] == "!")
	}
	if value, ok := u.defines[text]; ok {
		return value != "0"
	}
	if identRe.MatchString(text) {
		return false
	}
	return true
}

var identRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// emptyMacros returns the object-like macros defined with no replacement
// text by -D or by #define in path and the headers it includes. Such macros
// usually mark export attributes (class API Foo) which the grammar cannot
// parse unexpanded.
func (u *unit) emptyMacros(path string, src []byte) map[string]bool {
	names := make(map[string]bool)
	for name, value := range u.opts.defines {
		if value == "" {
			names[name] = true
		}
	}
	u.scanEmptyMacros(path, src, names, make(map[string]bool), 0)
	return names
}

func (u *unit) scanEmptyMacros(path string, src []byte, names, visited map[string]bool, depth int) {
	visited[path] = true
	for _, m := range emptyDefineRe.FindAllSubmatch(src, -1) {
		names[string(m[1])] = true
	}
	if depth >= u.p.maxDepth {
		return
	}
	for _, m := range includeLineRe.FindAllSubmatch(src, -1) {
		resolved, ok := u.resolveInclude(string(m[2]), filepath.Dir(path), string(m[1]) == `"`)
		if !ok || visited[resolved] {
			continue
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			continue
		}
		u.scanEmptyMacros(resolved, data, names, visited, depth+1)
	}
}

// blankMacros returns src with every use of names outside directives,
// comments and literals overwritten by spaces, so offsets are unchanged.
func blankMacros(src []byte, names map[string]bool) []byte {
	if len(names) == 0 {
		return src
	}
	var out []byte
	lineStart, directive := true, false
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\n':
			if i == 0 || src[i-1] != '\\' {
				directive = false
			}
			lineStart = true
			i++
			continue
		case c == ' ' || c == '\t' || c == '\r':
			i++
			continue
		case lineStart && c == '#':
			directive = true
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				i = len(src)
			} else {
				i += end + 4
			}
			lineStart = false
			continue
		case c == '"' || c == '\'':
			i = skipLiteral(src, i)
			lineStart = false
			continue
		case isIdentByte(c):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			if !directive && !isDigit(c) && names[string(src[i:j])] {
				if out == nil {
					out = bytes.Clone(src)
				}
				for k := i; k < j; k++ {
					out[k] = ' '
				}
			}
			i = j
			lineStart = false
			continue
		}
		lineStart = false
		i++
	}
	if out == nil {
		return src
	}
	return out
}

// skipLiteral returns the offset just past the string or character literal
// starting at i. Unterminated literals end at the newline.
func skipLiteral(src []byte, i int) int {
	quote := src[i]
	for i++; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		case '\n':
			return i
		}
	}
	return i
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
