// Package model defines the declarations extracted from a parsed header.
package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/reflgen/internal/graph"
)

// ScopeSeparator joins namespace segments and names.
const ScopeSeparator = "::"

// Annotated holds the annotate() attributes attached to a declaration.
// Embed it to give a declaration annotation support.
type Annotated struct {
	annotations []string
}

// AddAnnotation appends a, unless an identical annotation is already present.
func (a *Annotated) AddAnnotation(annotation string) {
	if a.HasAnnotation(annotation) {
		return
	}
	a.annotations = append(a.annotations, annotation)
}

// HasAnnotation reports whether annotation is present.
func (a *Annotated) HasAnnotation(annotation string) bool {
	for _, existing := range a.annotations {
		if existing == annotation {
			return true
		}
	}
	return false
}

// Annotations returns a copy of the annotations in insertion order.
func (a *Annotated) Annotations() []string {
	if len(a.annotations) == 0 {
		return nil
	}
	return append([]string(nil), a.annotations...)
}

// SetAnnotations replaces every annotation with list.
func (a *Annotated) SetAnnotations(list []string) {
	a.annotations = append([]string(nil), list...)
}

// Access is a C++ member access level.
type Access uint8

const (
	Public Access = iota
	Protected
	Private
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	}
	return fmt.Sprintf("access(%d)", uint8(a))
}

// Method is a member function declared in a class body.
type Method struct {
	Annotated
	Name        string
	Access      Access
	PureVirtual bool
}

// NewMethod returns a method with the given name and access level.
func NewMethod(name string, access Access, pureVirtual bool) Method {
	return Method{Name: name, Access: access, PureVirtual: pureVirtual}
}

// Class is a class or struct defined in the header being processed.
type Class struct {
	Annotated
	Name string
	// Namespace lists enclosing scopes, outermost first.
	Namespace []string
	Methods   []Method
	// Bases lists the fully-qualified names of the direct bases in
	// declaration order.
	Bases    []string
	Abstract bool
}

// NewClass returns a class declared inside namespace (outermost first).
func NewClass(name string, namespace []string, abstract bool) Class {
	return Class{
		Name:      name,
		Namespace: append([]string(nil), namespace...),
		Abstract:  abstract,
	}
}

// AddMethod appends a method declaration.
func (c *Class) AddMethod(m Method) {
	c.Methods = append(c.Methods, m)
}

// AddBase appends a direct base class.
func (c *Class) AddBase(fqn string) {
	c.Bases = append(c.Bases, fqn)
}

// FullyQualifiedName returns the namespace-qualified class name.
func (c *Class) FullyQualifiedName() string {
	return qualify(c.Namespace, c.Name)
}

// Enum is an enumeration defined in the header being processed.
type Enum struct {
	Annotated
	Name      string
	Namespace []string
	// Values maps enumerator names to their values. Iteration order is
	// unspecified; use Names for a stable order.
	Values map[string]int64
}

// NewEnum returns an empty enum declared inside namespace (outermost first).
func NewEnum(name string, namespace []string) Enum {
	return Enum{
		Name:      name,
		Namespace: append([]string(nil), namespace...),
		Values:    make(map[string]int64),
	}
}

// AddValue records an enumerator. A repeated name overwrites the earlier value.
func (e *Enum) AddValue(name string, value int64) {
	if e.Values == nil {
		e.Values = make(map[string]int64)
	}
	e.Values[name] = value
}

// Names returns the enumerator names, sorted.
func (e *Enum) Names() []string {
	names := make([]string, 0, len(e.Values))
	for name := range e.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FullyQualifiedName returns the namespace-qualified enum name.
func (e *Enum) FullyQualifiedName() string {
	return qualify(e.Namespace, e.Name)
}

func qualify(namespace []string, name string) string {
	if len(namespace) == 0 {
		return name
	}
	return strings.Join(namespace, ScopeSeparator) + ScopeSeparator + name
}

// Severity classifies a diagnostic. Lower values are more severe.
type Severity uint8

const (
	Fatal Severity = iota
	Error
	Warning
	Notice
	Ignored
)

func (s Severity) String() string {
	switch s {
	case Fatal:
		return "Fatal"
	case Error:
		return "Error"
	case Warning:
		return "Warning"
	case Notice:
		return "Notice"
	case Ignored:
		return "Ignored"
	}
	return fmt.Sprintf("Severity(%d)", uint8(s))
}

// AtLeastError reports whether s invalidates a header.
func (s Severity) AtLeastError() bool {
	return s <= Error
}

// Diagnostic is a message produced while parsing a header.
type Diagnostic struct {
	Severity Severity
	Message  string
	File     string
	Line     uint32
	Column   uint32
}

// PrettyPrint renders the diagnostic for operators.
func (d Diagnostic) PrettyPrint() string {
	return fmt.Sprintf("%s: in file \"%s\":%d:%d: %s", d.Severity, d.File, d.Line, d.Column, d.Message)
}

// Header is everything extracted from one header file.
type Header struct {
	Path        string
	Valid       bool
	Classes     []Class
	Enums       []Enum
	Diagnostics []Diagnostic

	// Inherits maps each class to its direct bases, including edges between
	// classes declared in other files.
	Inherits graph.Inheritance

	// Files lists every file read while parsing, main file first. It is not
	// part of the binary encoding.
	Files []string
}

// NewHeader returns an empty, valid header for path.
func NewHeader(path string) *Header {
	return &Header{Path: path, Valid: true}
}

// IsValid reports whether the header parsed without errors.
func (h *Header) IsValid() bool {
	return h.Valid
}

// AddClass appends a class declaration.
func (h *Header) AddClass(c Class) {
	h.Classes = append(h.Classes, c)
}

// AddEnum appends an enum declaration.
func (h *Header) AddEnum(e Enum) {
	h.Enums = append(h.Enums, e)
}

// AddDiagnostic appends d. Errors and fatal errors mark the header invalid.
func (h *Header) AddDiagnostic(d Diagnostic) {
	if d.Severity.AtLeastError() {
		h.Valid = false
	}
	h.Diagnostics = append(h.Diagnostics, d)
}

// ErrorCount returns the number of diagnostics at error severity or worse.
func (h *Header) ErrorCount() int {
	n := 0
	for _, d := range h.Diagnostics {
		if d.Severity.AtLeastError() {
			n++
		}
	}
	return n
}

// RegisterBaseClass records parent as a direct base of child.
func (h *Header) RegisterBaseClass(child, parent string) {
	h.Inherits.Register(child, parent)
}

// InheritedClassesFor returns the direct bases of className, or all of its
// ancestors when topLevelOnly is false.
func (h *Header) InheritedClassesFor(className string, topLevelOnly bool) graph.Set {
	return h.Inherits.InheritedClassesFor(className, topLevelOnly)
}

// DoesClassInherit reports whether parentClass is an ancestor of className.
func (h *Header) DoesClassInherit(className, parentClass string) bool {
	return h.Inherits.DoesClassInherit(className, parentClass)
}

// DoesAnyClassInherit reports whether any class declared in the header has
// parentClass as an ancestor.
func (h *Header) DoesAnyClassInherit(parentClass string) bool {
	for i := range h.Classes {
		if h.DoesClassInherit(h.Classes[i].FullyQualifiedName(), parentClass) {
			return true
		}
	}
	return false
}

// Class returns the declared class with the given fully-qualified name.
func (h *Header) Class(fqn string) (*Class, bool) {
	for i := range h.Classes {
		if h.Classes[i].FullyQualifiedName() == fqn {
			return &h.Classes[i], true
		}
	}
	return nil, false
}
