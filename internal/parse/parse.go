// Package parse builds ast translation units from C++ headers using tree-sitter.
//
// Tree-sitter only produces a concrete syntax tree, so this package layers a
// small amount of semantics on top: it follows #include directives, tracks
// #define/#ifdef state, resolves forward declarations and base classes to
// their definitions, and turns ERROR/missing nodes into diagnostics.
package parse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/reflgen/internal/ast"
	"github.com/phobologic/reflgen/internal/lang"
)

const defaultMaxIncludeDepth = 64

// Parser parses C++ headers. It is safe for concurrent use; every call to
// Parse creates its own tree-sitter parser.
type Parser struct {
	lang     *lang.Language
	maxDepth int
}

// New returns a C++ parser.
func New() *Parser {
	return &Parser{
		lang:     lang.CPP,
		maxDepth: defaultMaxIncludeDepth,
	}
}

// Parse parses the header at path. flags accepts -I, -D and -U in their
// joined or separate forms; other flags are ignored. An error is returned
// only when the main file cannot be read or parsed at all; problems in the
// source are reported as diagnostics.
func (p *Parser) Parse(ctx context.Context, path string, flags []string) (*ast.TranslationUnit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", path)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", abs)
	}

	u := &unit{
		ctx:     ctx,
		p:       p,
		opts:    parseFlags(flags),
		root:    ast.NewTranslationUnit(abs),
		seen:    make(map[string]bool),
		defines: make(map[string]string),
	}
	for name, value := range u.opts.defines {
		u.defines[name] = value
	}

	u.blank = u.emptyMacros(abs, src)

	if err := u.file(abs, src, u.root, 0); err != nil {
		return nil, err
	}
	u.resolve()
	u.inheritAbstract()

	return &ast.TranslationUnit{
		Root:        u.root,
		Diagnostics: u.diags,
		Files:       u.files,
	}, nil
}

// unit is the state of one Parse call.
type unit struct {
	ctx     context.Context
	p       *Parser
	opts    options
	defines map[string]string
	blank   map[string]bool
	root    *ast.Node
	seen    map[string]bool
	files   []string
	diags   []ast.Diagnostic
	classes []*ast.Node
	bases   []*ast.Node
}

// source is a file being converted.
type source struct {
	path  string
	src   []byte
	depth int
}

func (s *source) text(n *sitter.Node) string {
	return lang.NodeText(n, s.src)
}

func (s *source) loc(n *sitter.Node) ast.Location {
	pt := n.StartPoint()
	return ast.Location{File: s.path, Line: pt.Row + 1, Column: pt.Column + 1}
}

func (u *unit) file(path string, src []byte, parent *ast.Node, depth int) error {
	u.seen[path] = true
	u.files = append(u.files, path)

	src = blankMacros(src, u.blank)
	tree, err := u.p.lang.Parse(u.ctx, src)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	defer tree.Close()

	s := &source{path: path, src: src, depth: depth}
	root := tree.RootNode()
	if root.HasError() {
		u.syntaxErrors(s, root)
	}
	u.declarations(s, root, parent)
	return nil
}

func (u *unit) diag(sev ast.Severity, loc ast.Location, format string, args ...any) {
	u.diags = append(u.diags, ast.Diagnostic{
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}

func (u *unit) syntaxErrors(s *source, n *sitter.Node) {
	switch {
	case n.Type() == "ERROR":
		u.diag(ast.SeverityError, s.loc(n), "syntax error near %q", excerpt(s.text(n)))
		return
	case n.IsMissing():
		u.diag(ast.SeverityError, s.loc(n), "expected %q", n.Type())
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.HasError() || child.IsMissing() {
			u.syntaxErrors(s, child)
		}
	}
}

func excerpt(text string) string {
	text = lang.CollapseWhitespace(text)
	if len(text) > 40 {
		return text[:40] + "..."
	}
	return text
}

func (u *unit) declarations(s *source, n *sitter.Node, parent *ast.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		u.item(s, n.Child(i), parent)
	}
}

func (u *unit) item(s *source, n *sitter.Node, parent *ast.Node) {
	switch n.Type() {
	case "namespace_definition":
		u.namespace(s, n, parent)
	case "class_specifier", "struct_specifier":
		u.class(s, n, parent, recordKind(n))
	case "enum_specifier":
		u.enum(s, n, parent)
	case "declaration", "type_definition":
		if t := n.ChildByFieldName("type"); t != nil {
			u.item(s, t, parent)
		}
	case "template_declaration":
		u.template(s, n, parent)
	case "linkage_specification":
		if body := n.ChildByFieldName("body"); body != nil {
			u.item(s, body, parent)
		}
	case "declaration_list":
		u.declarations(s, n, parent)
	case "preproc_include":
		u.include(s, n, parent)
	case "preproc_def", "preproc_function_def":
		u.define(s, n)
	case "preproc_call":
		u.directive(s, n)
	case "preproc_if", "preproc_ifdef", "preproc_elif", "preproc_elifdef", "preproc_else":
		u.branch(s, n, func(child *sitter.Node) {
			u.item(s, child, parent)
		})
	}
}

func (u *unit) namespace(s *source, n *sitter.Node, parent *ast.Node) {
	target := parent
	segments := []string{""}
	if name := n.ChildByFieldName("name"); name != nil {
		segments = splitScope(namespaceName(s.text(name)))
	}
	for _, seg := range segments {
		target = target.AddChild(ast.NewNode(ast.KindNamespace, seg, s.loc(n)))
	}
	if body := n.ChildByFieldName("body"); body != nil {
		u.declarations(s, body, target)
	}
}

func (u *unit) template(s *source, n *sitter.Node, parent *ast.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "class_specifier", "struct_specifier":
			u.class(s, child, parent, ast.KindClassTemplate)
		case "declaration":
			if t := child.ChildByFieldName("type"); t != nil && isRecord(t) {
				u.class(s, t, parent, ast.KindClassTemplate)
			}
		}
	}
}

func (u *unit) include(s *source, n *sitter.Node, parent *ast.Node) {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return
	}

	var name string
	quoted := false
	switch pathNode.Type() {
	case "string_literal":
		name = strings.Trim(s.text(pathNode), `"`)
		quoted = true
	case "system_lib_string":
		name = strings.TrimSuffix(strings.TrimPrefix(s.text(pathNode), "<"), ">")
	default:
		return
	}

	resolved, ok := u.resolveInclude(name, filepath.Dir(s.path), quoted)
	if !ok {
		if quoted {
			u.diag(ast.SeverityWarning, s.loc(n), "'%s' file not found, its declarations are not visible", name)
		}
		return
	}
	if u.seen[resolved] {
		return
	}
	if s.depth+1 > u.p.maxDepth {
		u.diag(ast.SeverityError, s.loc(n), "#include nested too deeply")
		return
	}

	src, err := os.ReadFile(resolved)
	if err != nil {
		u.diag(ast.SeverityError, s.loc(n), "reading '%s': %v", name, err)
		return
	}
	if err := u.file(resolved, src, parent, s.depth+1); err != nil {
		u.diag(ast.SeverityError, s.loc(n), "%v", err)
	}
}

func (u *unit) resolveInclude(name, dir string, quoted bool) (string, bool) {
	var candidates []string
	if filepath.IsAbs(name) {
		candidates = append(candidates, name)
	} else {
		if quoted {
			candidates = append(candidates, filepath.Join(dir, name))
		}
		for _, inc := range u.opts.includeDirs {
			candidates = append(candidates, filepath.Join(inc, name))
		}
	}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		return abs, true
	}
	return "", false
}

// resolve links forward declarations and base specifiers to definitions once
// every file of the unit has been converted.
func (u *unit) resolve() {
	defs := make(map[string]*ast.Node)
	decls := make(map[string]*ast.Node)
	for _, c := range u.classes {
		fqn := ast.QualifiedName(c)
		if _, ok := decls[fqn]; !ok {
			decls[fqn] = c
		}
		if ast.Equal(c.Definition(), c) {
			if _, ok := defs[fqn]; !ok {
				defs[fqn] = c
			}
		}
	}

	for _, c := range u.classes {
		if c.Definition() != nil {
			continue
		}
		if def, ok := defs[ast.QualifiedName(c)]; ok {
			c.SetDefinition(def)
		}
	}

	for _, b := range u.bases {
		if target := lookup(b, defs); target != nil {
			b.SetDefinition(target)
		} else if target := lookup(b, decls); target != nil {
			b.SetDefinition(target)
		}
	}
}

// inheritAbstract marks a class abstract when a pure virtual method of one
// of its resolved bases is not overridden by a method of the same name
// anywhere along the path.
func (u *unit) inheritAbstract() {
	memo := make(map[*ast.Node]map[string]bool)
	visiting := make(map[*ast.Node]bool)

	var pending func(c *ast.Node) map[string]bool
	pending = func(c *ast.Node) map[string]bool {
		if names, ok := memo[c]; ok {
			return names
		}
		if visiting[c] {
			return nil
		}
		visiting[c] = true
		defer delete(visiting, c)

		overridden := make(map[string]bool)
		names := make(map[string]bool)
		for _, child := range c.Nodes() {
			if child.Kind() != ast.KindCXXMethod {
				continue
			}
			if child.IsPureVirtual() {
				names[child.Spelling()] = true
			} else {
				overridden[child.Spelling()] = true
			}
		}
		for _, child := range c.Nodes() {
			if child.Kind() != ast.KindCXXBaseSpecifier {
				continue
			}
			base := definitionNode(child)
			if base != nil {
				base = definitionNode(base)
			}
			if base == nil {
				continue
			}
			for name := range pending(base) {
				if !overridden[name] {
					names[name] = true
				}
			}
		}
		memo[c] = names
		return names
	}

	for _, c := range u.classes {
		if definitionNode(c) == c && len(pending(c)) > 0 {
			c.SetAbstract(true)
		}
	}
}

func definitionNode(n *ast.Node) *ast.Node {
	def, _ := n.Definition().(*ast.Node)
	return def
}

// lookup finds the class a base specifier names, searching the scopes that
// enclose the derived class from the innermost outwards.
func lookup(base *ast.Node, index map[string]*ast.Node) *ast.Node {
	name := stripTemplateArgs(base.Spelling())
	if strings.HasPrefix(name, "::") {
		return index[strings.TrimPrefix(name, "::")]
	}

	derived := base.SemanticParent()
	if derived == nil {
		return index[name]
	}
	for scope := derived.SemanticParent(); scope != nil; scope = scope.SemanticParent() {
		prefix := ast.QualifiedName(scope)
		candidate := name
		if prefix != "" {
			candidate = prefix + "::" + name
		}
		if n, ok := index[candidate]; ok {
			return n
		}
	}
	return index[name]
}

func stripTemplateArgs(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

// splitScope splits a qualified name on "::" outside template arguments.
func splitScope(name string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ':':
			if depth == 0 && i+1 < len(name) && name[i+1] == ':' {
				parts = append(parts, name[start:i])
				start = i + 2
				i++
			}
		}
	}
	return append(parts, name[start:])
}

// namespaceName compacts a namespace name, dropping inline specifiers from
// nested names such as "a::inline b".
func namespaceName(text string) string {
	var kept []string
	for _, f := range strings.Fields(strings.ReplaceAll(text, "::", " :: ")) {
		if f != "inline" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, "")
}

// compact removes all whitespace, turning "wir :: Class" into "wir::Class".
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
