// Package ast defines the syntax-tree service consumed by header extraction.
//
// A Parser turns a header into a TranslationUnit: a tree of Cursors modelled
// on libclang's cursor API, plus the diagnostics produced while parsing.
// Node is the in-memory Cursor implementation shared by parser backends and
// tests.
package ast

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies what a cursor refers to.
type Kind int

const (
	KindUnknown Kind = iota
	KindTranslationUnit
	KindNamespace
	KindClassDecl
	KindStructDecl
	KindClassTemplate
	KindEnumDecl
	KindEnumConstantDecl
	KindCXXMethod
	KindConstructor
	KindDestructor
	KindCXXBaseSpecifier
	KindAnnotateAttr
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	KindTranslationUnit:  "TranslationUnit",
	KindNamespace:        "Namespace",
	KindClassDecl:        "ClassDecl",
	KindStructDecl:       "StructDecl",
	KindClassTemplate:    "ClassTemplate",
	KindEnumDecl:         "EnumDecl",
	KindEnumConstantDecl: "EnumConstantDecl",
	KindCXXMethod:        "CXXMethod",
	KindConstructor:      "Constructor",
	KindDestructor:       "Destructor",
	KindCXXBaseSpecifier: "CXXBaseSpecifier",
	KindAnnotateAttr:     "AnnotateAttr",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Access is the access specifier the parser reports for a member or base.
type Access int

const (
	AccessInvalid Access = iota
	AccessPublic
	AccessProtected
	AccessPrivate
)

// Location is the expansion location of a cursor. Line and Column are
// 1-based; File is an absolute, cleaned path or empty when unknown.
type Location struct {
	File   string
	Line   uint32
	Column uint32
}

// Severity is the parser's diagnostic severity.
type Severity int

const (
	SeverityIgnored Severity = iota
	SeverityNote
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Diagnostic is a message reported by the parser.
type Diagnostic struct {
	Severity Severity
	Message  string
	Location Location
}

// Cursor is a node of the parsed translation unit.
type Cursor interface {
	Kind() Kind
	// Spelling is the unqualified name of the entity.
	Spelling() string
	// DisplayName is the human-readable form; for AnnotateAttr cursors it
	// is the annotation text.
	DisplayName() string
	// Definition returns the cursor that defines the referenced entity, or
	// nil when the unit does not contain one.
	Definition() Cursor
	// SemanticParent returns the enclosing namespace, class or translation
	// unit, or nil for the translation unit itself.
	SemanticParent() Cursor
	Children() []Cursor
	Access() Access
	IsPureVirtual() bool
	IsAbstract() bool
	EnumValue() int64
	Location() Location
}

// TranslationUnit is the result of parsing one header.
type TranslationUnit struct {
	Root        Cursor
	Diagnostics []Diagnostic
	// Files lists every file that contributed cursors, main file first.
	Files []string
}

// Parser produces translation units. Implementations must be safe for
// concurrent use.
type Parser interface {
	Parse(ctx context.Context, path string, flags []string) (*TranslationUnit, error)
}

// VisitResult tells Visit how to continue after a callback.
type VisitResult int

const (
	// VisitBreak stops the traversal.
	VisitBreak VisitResult = iota
	// VisitContinue moves on to the next sibling.
	VisitContinue
	// VisitRecurse descends into the cursor's children before moving on.
	VisitRecurse
)

// Visit calls fn for each child of c, depth first, following the returned
// VisitResult. It reports whether the traversal was stopped by VisitBreak.
func Visit(c Cursor, fn func(cursor, parent Cursor) VisitResult) bool {
	for _, child := range c.Children() {
		switch fn(child, c) {
		case VisitBreak:
			return true
		case VisitRecurse:
			if Visit(child, fn) {
				return true
			}
		}
	}
	return false
}

// Equal reports whether a and b refer to the same cursor. Nil cursors are
// equal only to each other.
func Equal(a, b Cursor) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

// QualifiedName joins the spellings of c and its semantic parents with "::",
// outermost first. Anonymous scopes are skipped.
func QualifiedName(c Cursor) string {
	if c == nil {
		return ""
	}
	var parts []string
	for p := c; p != nil && p.Kind() != KindTranslationUnit; p = p.SemanticParent() {
		if name := p.Spelling(); name != "" {
			parts = append(parts, name)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::")
}

// Node is a mutable Cursor used to build translation units.
type Node struct {
	kind        Kind
	spelling    string
	displayName string
	definition  *Node
	parent      *Node
	children    []*Node
	access      Access
	pureVirtual bool
	abstract    bool
	enumValue   int64
	location    Location
}

// NewNode returns a detached node.
func NewNode(kind Kind, spelling string, loc Location) *Node {
	return &Node{kind: kind, spelling: spelling, location: loc}
}

// NewTranslationUnit returns the root node for the file at path.
func NewTranslationUnit(path string) *Node {
	return NewNode(KindTranslationUnit, path, Location{File: path})
}

// AddChild appends child and makes n its semantic parent. It returns child.
func (n *Node) AddChild(child *Node) *Node {
	child.parent = n
	n.children = append(n.children, child)
	return child
}

// SetDefinition sets the defining node. Pass n itself for definitions.
func (n *Node) SetDefinition(def *Node) *Node {
	n.definition = def
	return n
}

// SetDisplayName overrides the display name.
func (n *Node) SetDisplayName(name string) *Node {
	n.displayName = name
	return n
}

// SetAccess sets the access specifier.
func (n *Node) SetAccess(a Access) *Node {
	n.access = a
	return n
}

// SetPureVirtual marks a method as pure virtual.
func (n *Node) SetPureVirtual(v bool) *Node {
	n.pureVirtual = v
	return n
}

// SetAbstract marks a class as abstract.
func (n *Node) SetAbstract(v bool) *Node {
	n.abstract = v
	return n
}

// SetEnumValue sets the value of an enumerator.
func (n *Node) SetEnumValue(v int64) *Node {
	n.enumValue = v
	return n
}

// Nodes returns the children as concrete nodes.
func (n *Node) Nodes() []*Node {
	return n.children
}

func (n *Node) Kind() Kind       { return n.kind }
func (n *Node) Spelling() string { return n.spelling }

func (n *Node) DisplayName() string {
	if n.displayName != "" {
		return n.displayName
	}
	return n.spelling
}

func (n *Node) Definition() Cursor {
	if n.definition == nil {
		return nil
	}
	return n.definition
}

func (n *Node) SemanticParent() Cursor {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) Children() []Cursor {
	out := make([]Cursor, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *Node) Access() Access      { return n.access }
func (n *Node) IsPureVirtual() bool { return n.pureVirtual }
func (n *Node) IsAbstract() bool    { return n.abstract }
func (n *Node) EnumValue() int64    { return n.enumValue }
func (n *Node) Location() Location  { return n.location }
