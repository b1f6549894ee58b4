package parse

import (
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/reflgen/internal/ast"
)

var (
	pureVirtualRe = regexp.MustCompile(`=\s*0\s*;?\s*$`)
	annotateRe    = regexp.MustCompile(`annotate\s*\(\s*"((?:[^"\\]|\\.)*)"\s*\)`)
)

func isRecord(n *sitter.Node) bool {
	t := n.Type()
	return t == "class_specifier" || t == "struct_specifier"
}

func recordKind(n *sitter.Node) ast.Kind {
	if n.Type() == "struct_specifier" {
		return ast.KindStructDecl
	}
	return ast.KindClassDecl
}

func accessFor(text string) ast.Access {
	switch strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ":")) {
	case "public":
		return ast.AccessPublic
	case "protected":
		return ast.AccessProtected
	case "private":
		return ast.AccessPrivate
	}
	return ast.AccessInvalid
}

// class converts a class or struct specifier. Specifiers without a body are
// forward declarations; their definition is linked by resolve.
func (u *unit) class(s *source, n *sitter.Node, parent *ast.Node, kind ast.Kind) *ast.Node {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	segments := splitScope(compact(s.text(nameNode)))
	node := parent.AddChild(ast.NewNode(kind, segments[len(segments)-1], s.loc(nameNode)))
	u.classes = append(u.classes, node)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "attribute_specifier", "attribute_declaration":
			u.annotations(s, child, node)
		case "base_class_clause":
			u.baseClause(s, child, node)
		}
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return node
	}
	node.SetDefinition(node)

	m := &members{u: u, s: s, class: node, access: ast.AccessPrivate}
	if n.Type() == "struct_specifier" {
		m.access = ast.AccessPublic
	}
	m.list(body)
	return node
}

func (u *unit) baseClause(s *source, clause *sitter.Node, class *ast.Node) {
	access := ast.AccessInvalid
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "access_specifier":
			access = accessFor(s.text(child))
		case "type_identifier", "qualified_identifier", "qualified_type_identifier", "template_type":
			spec := ast.NewNode(ast.KindCXXBaseSpecifier, compact(s.text(child)), s.loc(child))
			spec.SetAccess(access)
			class.AddChild(spec)
			u.bases = append(u.bases, spec)
			access = ast.AccessInvalid
		}
	}
}

// annotations adds an AnnotateAttr child to owner for every
// annotate("...") attribute found in n.
func (u *unit) annotations(s *source, n *sitter.Node, owner *ast.Node) {
	for _, match := range annotateRe.FindAllStringSubmatch(s.text(n), -1) {
		value, err := strconv.Unquote(`"` + match[1] + `"`)
		if err != nil {
			value = match[1]
		}
		owner.AddChild(ast.NewNode(ast.KindAnnotateAttr, value, s.loc(n)))
	}
}

// members converts the body of a class, tracking the current access level.
type members struct {
	u      *unit
	s      *source
	class  *ast.Node
	access ast.Access
}

func (m *members) list(body *sitter.Node) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m.item(body.NamedChild(i))
	}
}

func (m *members) item(n *sitter.Node) {
	switch n.Type() {
	case "access_specifier":
		m.access = accessFor(m.s.text(n))
	case "field_declaration", "declaration":
		if t := n.ChildByFieldName("type"); t != nil {
			m.nested(t)
		}
		m.method(n, hasChild(n, "pure_virtual_clause") || pureVirtualRe.MatchString(m.s.text(n)))
	case "function_definition":
		m.method(n, hasChild(n, "pure_virtual_clause"))
	case "template_declaration":
		m.u.template(m.s, n, m.class)
	case "preproc_if", "preproc_ifdef", "preproc_elif", "preproc_elifdef", "preproc_else":
		m.u.branch(m.s, n, m.item)
	case "preproc_def", "preproc_function_def":
		m.u.define(m.s, n)
	case "preproc_call":
		m.u.directive(m.s, n)
	}
}

// nested handles classes and enums declared inside the class body.
func (m *members) nested(t *sitter.Node) {
	switch {
	case isRecord(t):
		m.u.class(m.s, t, m.class, recordKind(t))
	case t.Type() == "enum_specifier":
		m.u.enum(m.s, t, m.class)
	}
}

func (m *members) method(n *sitter.Node, pure bool) {
	fd := functionDeclarator(n.ChildByFieldName("declarator"))
	if fd == nil {
		return
	}
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil {
		return
	}

	name := compact(m.s.text(nameNode))
	kind := ast.KindCXXMethod
	switch nameNode.Type() {
	case "destructor_name":
		kind = ast.KindDestructor
	case "identifier", "type_identifier", "field_identifier":
		if name == stripTemplateArgs(m.class.Spelling()) {
			kind = ast.KindConstructor
		}
	case "qualified_identifier":
		segments := splitScope(name)
		name = segments[len(segments)-1]
	case "operator_name", "template_function", "operator_cast":
	default:
		return
	}

	method := ast.NewNode(kind, name, m.s.loc(nameNode))
	method.SetAccess(m.access).SetPureVirtual(pure)
	m.class.AddChild(method)
	m.attributes(n, method)

	if pure {
		m.class.SetAbstract(true)
	}
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == typ {
			return true
		}
	}
	return false
}

// attributes collects annotations anywhere in a member declaration except
// inside a function body.
func (m *members) attributes(n *sitter.Node, method *ast.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "attribute_specifier", "attribute_declaration":
			m.u.annotations(m.s, child, method)
		case "compound_statement", "field_declaration_list":
		default:
			m.attributes(child, method)
		}
	}
}

// functionDeclarator unwraps pointer, reference and attributed declarators
// down to the function declarator, if any.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator", "reference_declarator", "parenthesized_declarator", "attributed_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(int(n.NamedChildCount()) - 1)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

func (u *unit) enum(s *source, n *sitter.Node, parent *ast.Node) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	segments := splitScope(compact(s.text(nameNode)))
	node := parent.AddChild(ast.NewNode(ast.KindEnumDecl, segments[len(segments)-1], s.loc(nameNode)))
	node.SetDefinition(node)

	e := &enumerators{u: u, s: s, enum: node, known: make(map[string]int64), next: 0}
	e.list(body)
}

// enumerators converts an enumerator list, assigning implicit values.
type enumerators struct {
	u     *unit
	s     *source
	enum  *ast.Node
	known map[string]int64
	next  int64
}

func (e *enumerators) list(body *sitter.Node) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		e.item(body.NamedChild(i))
	}
}

func (e *enumerators) item(n *sitter.Node) {
	switch n.Type() {
	case "enumerator":
		e.enumerator(n)
	case "preproc_if", "preproc_ifdef", "preproc_elif", "preproc_elifdef", "preproc_else":
		e.u.branch(e.s, n, e.item)
	}
}

func (e *enumerators) enumerator(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := e.s.text(nameNode)

	value := e.next
	if expr := n.ChildByFieldName("value"); expr != nil {
		v, ok := evaluate(expr, e.s.src, e.known)
		if ok {
			value = v
		} else {
			e.u.diag(ast.SeverityWarning, e.s.loc(expr),
				"cannot evaluate value of enumerator '%s', assuming %d", name, value)
		}
	}

	e.known[name] = value
	e.next = value + 1
	e.enum.AddChild(ast.NewNode(ast.KindEnumConstantDecl, name, e.s.loc(nameNode))).SetEnumValue(value)
}
