// Package extract converts a parsed translation unit into a model.Header.
package extract

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/phobologic/reflgen/internal/ast"
	"github.com/phobologic/reflgen/internal/model"
)

// UnknownFile names diagnostics that carry no file.
const UnknownFile = "<Unknown_File>"

// BaseFlags are passed to the parser ahead of the caller's flags.
var BaseFlags = []string{"-D", "__CODE_GENERATOR__", "-std=c++17"}

var severities = map[ast.Severity]model.Severity{
	ast.SeverityFatal:   model.Fatal,
	ast.SeverityError:   model.Error,
	ast.SeverityWarning: model.Warning,
	ast.SeverityNote:    model.Notice,
	ast.SeverityIgnored: model.Ignored,
}

var accesses = map[ast.Access]model.Access{
	ast.AccessInvalid:   model.Public,
	ast.AccessPublic:    model.Public,
	ast.AccessProtected: model.Protected,
	ast.AccessPrivate:   model.Private,
}

// Flags returns the full flag list handed to the parser.
func Flags(extra []string) []string {
	out := make([]string, 0, len(BaseFlags)+len(extra))
	out = append(out, BaseFlags...)
	return append(out, extra...)
}

// Header parses the header at path and extracts its classes, enums,
// inheritance edges and diagnostics. It never returns nil; parse failures
// produce an invalid header carrying a fatal diagnostic.
func Header(ctx context.Context, parser ast.Parser, path string, flags []string) *model.Header {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)
	h := model.NewHeader(path)

	tu, err := parser.Parse(ctx, path, Flags(flags))
	if err != nil {
		h.AddDiagnostic(model.Diagnostic{
			Severity: model.Fatal,
			Message:  "failed to parse translation unit: " + err.Error(),
			File:     path,
		})
		return h
	}

	h.Files = tu.Files
	for _, d := range tu.Diagnostics {
		h.AddDiagnostic(convertDiagnostic(d))
	}

	w := &walker{header: h}
	w.unit(tu.Root)

	for _, name := range h.Inherits.Cycles() {
		h.AddDiagnostic(model.Diagnostic{
			Severity: model.Warning,
			Message:  "inheritance cycle through " + name,
			File:     path,
		})
	}
	return h
}

func convertDiagnostic(d ast.Diagnostic) model.Diagnostic {
	sev, ok := severities[d.Severity]
	if !ok {
		sev = model.Error
	}
	file := d.Location.File
	if file == "" {
		file = UnknownFile
	}
	return model.Diagnostic{
		Severity: sev,
		Message:  d.Message,
		File:     file,
		Line:     d.Location.Line,
		Column:   d.Location.Column,
	}
}

// walker threads the namespace stack through the traversal.
type walker struct {
	header    *model.Header
	namespace []string
}

func (w *walker) unit(root ast.Cursor) {
	ast.Visit(root, func(c, _ ast.Cursor) ast.VisitResult {
		switch c.Kind() {
		case ast.KindNamespace:
			name := c.Spelling()
			if name != "" {
				w.namespace = append(w.namespace, name)
			}
			w.unit(c)
			if name != "" {
				w.namespace = w.namespace[:len(w.namespace)-1]
			}
		case ast.KindClassDecl, ast.KindStructDecl:
			if isForwardDeclaration(c) {
				break
			}
			if w.sameFile(c) {
				w.class(c)
			} else {
				w.basesOnly(c)
			}
		case ast.KindEnumDecl:
			if w.sameFile(c) && !isForwardDeclaration(c) {
				w.enum(c)
			}
		}
		return ast.VisitContinue
	})
}

func (w *walker) sameFile(c ast.Cursor) bool {
	return filepath.Clean(c.Location().File) == w.header.Path
}

// isForwardDeclaration reports whether c is not the defining cursor of its
// entity, including when the unit holds no definition at all.
func isForwardDeclaration(c ast.Cursor) bool {
	def := c.Definition()
	if def == nil {
		return true
	}
	return !ast.Equal(c, def)
}

func (w *walker) class(c ast.Cursor) {
	decl := model.NewClass(cleanName(c.Spelling()), w.namespace, c.IsAbstract())
	decl.SetAnnotations(annotations(c))

	for _, child := range c.Children() {
		switch child.Kind() {
		case ast.KindCXXBaseSpecifier:
			decl.AddBase(baseName(child))
		case ast.KindCXXMethod:
			m := model.NewMethod(child.Spelling(), accesses[child.Access()], child.IsPureVirtual())
			m.SetAnnotations(annotations(child))
			decl.AddMethod(m)
		}
	}

	fqn := decl.FullyQualifiedName()
	for _, base := range decl.Bases {
		w.header.RegisterBaseClass(fqn, base)
	}
	w.header.AddClass(decl)
}

// basesOnly records the inheritance edges of a class defined in another
// file so closures can pass through it.
func (w *walker) basesOnly(c ast.Cursor) {
	fqn := cleanName(ast.QualifiedName(c))
	for _, child := range c.Children() {
		if child.Kind() == ast.KindCXXBaseSpecifier {
			w.header.RegisterBaseClass(fqn, baseName(child))
		}
	}
}

func (w *walker) enum(c ast.Cursor) {
	decl := model.NewEnum(cleanName(c.Spelling()), w.namespace)
	decl.SetAnnotations(annotations(c))
	ast.Visit(c, func(child, _ ast.Cursor) ast.VisitResult {
		if child.Kind() == ast.KindEnumConstantDecl {
			decl.AddValue(child.Spelling(), child.EnumValue())
		}
		return ast.VisitRecurse
	})
	w.header.AddEnum(decl)
}

// annotations collects the AnnotateAttr children of c in order.
func annotations(c ast.Cursor) []string {
	var a model.Annotated
	for _, child := range c.Children() {
		if child.Kind() == ast.KindAnnotateAttr {
			a.AddAnnotation(child.DisplayName())
		}
	}
	return a.Annotations()
}

// baseName is the fully qualified name of the class a base specifier
// refers to, falling back to the written spelling when it has no
// definition in the unit.
func baseName(spec ast.Cursor) string {
	if def := spec.Definition(); def != nil {
		if name := ast.QualifiedName(def); name != "" {
			return cleanName(name)
		}
	}
	return cleanName(spec.Spelling())
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"class ", "struct "} {
		name = strings.TrimPrefix(name, prefix)
	}
	return strings.TrimPrefix(name, "::")
}
