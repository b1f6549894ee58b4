package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/reflgen/internal/ast"
	"github.com/phobologic/reflgen/internal/model"
	"github.com/phobologic/reflgen/internal/parse"
)

// fakeParser returns a prebuilt translation unit.
type fakeParser struct {
	tu    *ast.TranslationUnit
	err   error
	flags []string
}

func (f *fakeParser) Parse(_ context.Context, _ string, flags []string) (*ast.TranslationUnit, error) {
	f.flags = flags
	return f.tu, f.err
}

const mainFile = "/src/widgets.hpp"

func loc(file string) ast.Location {
	return ast.Location{File: file, Line: 1, Column: 1}
}

func class(kind ast.Kind, name, file string) *ast.Node {
	n := ast.NewNode(kind, name, loc(file))
	return n.SetDefinition(n)
}

func TestHeaderExtractsDeclarations(t *testing.T) {
	t.Parallel()

	root := ast.NewTranslationUnit(mainFile)

	// Class from an included file: contributes edges only.
	object := root.AddChild(ast.NewNode(ast.KindNamespace, "wir", loc("/inc/Class.hpp")))
	base := object.AddChild(class(ast.KindClassDecl, "Class", "/inc/Class.hpp"))
	node := object.AddChild(class(ast.KindClassDecl, "Object", "/inc/Class.hpp"))
	node.AddChild(ast.NewNode(ast.KindCXXBaseSpecifier, "Class", loc("/inc/Class.hpp")).SetDefinition(base))

	ns := root.AddChild(ast.NewNode(ast.KindNamespace, "ui", loc(mainFile)))
	anon := ns.AddChild(ast.NewNode(ast.KindNamespace, "", loc(mainFile)))
	widget := anon.AddChild(class(ast.KindClassDecl, "Widget", mainFile))
	widget.SetAbstract(true)
	widget.AddChild(ast.NewNode(ast.KindCXXBaseSpecifier, "wir::Object", loc(mainFile)).SetDefinition(node))
	widget.AddChild(ast.NewNode(ast.KindCXXBaseSpecifier, "class ext::Thing", loc(mainFile)))
	widget.AddChild(ast.NewNode(ast.KindAnnotateAttr, "reflect", loc(mainFile)))
	widget.AddChild(ast.NewNode(ast.KindAnnotateAttr, "reflect", loc(mainFile)))
	draw := widget.AddChild(ast.NewNode(ast.KindCXXMethod, "draw", loc(mainFile)).SetPureVirtual(true))
	draw.AddChild(ast.NewNode(ast.KindAnnotateAttr, "command", loc(mainFile)))
	widget.AddChild(ast.NewNode(ast.KindCXXMethod, "resize", loc(mainFile)).SetAccess(ast.AccessProtected))
	widget.AddChild(ast.NewNode(ast.KindConstructor, "Widget", loc(mainFile)))

	// Forward declaration with no definition in the unit.
	ns.AddChild(ast.NewNode(ast.KindClassDecl, "Later", loc(mainFile)))

	color := ns.AddChild(class(ast.KindEnumDecl, "Color", mainFile))
	color.AddChild(ast.NewNode(ast.KindEnumConstantDecl, "Red", loc(mainFile)).SetEnumValue(0))
	color.AddChild(ast.NewNode(ast.KindEnumConstantDecl, "Blue", loc(mainFile)).SetEnumValue(4))

	p := &fakeParser{tu: &ast.TranslationUnit{
		Root: root,
		Diagnostics: []ast.Diagnostic{
			{Severity: ast.SeverityWarning, Message: "unused", Location: loc(mainFile)},
			{Severity: ast.SeverityNote, Message: "note"},
		},
	}}

	h := Header(context.Background(), p, mainFile, []string{"-Iinc"})
	assert.Equal(t, []string{"-D", "__CODE_GENERATOR__", "-std=c++17", "-Iinc"}, p.flags)

	assert.True(t, h.IsValid())
	require.Len(t, h.Diagnostics, 2)
	assert.Equal(t, model.Warning, h.Diagnostics[0].Severity)
	assert.Equal(t, model.Notice, h.Diagnostics[1].Severity)
	assert.Equal(t, UnknownFile, h.Diagnostics[1].File)

	require.Len(t, h.Classes, 1)
	w := h.Classes[0]
	assert.Equal(t, "ui::Widget", w.FullyQualifiedName())
	assert.True(t, w.Abstract)
	assert.Equal(t, []string{"reflect"}, w.Annotations())
	assert.Equal(t, []string{"wir::Object", "ext::Thing"}, w.Bases)

	require.Len(t, w.Methods, 2)
	assert.Equal(t, "draw", w.Methods[0].Name)
	assert.Equal(t, model.Public, w.Methods[0].Access)
	assert.True(t, w.Methods[0].PureVirtual)
	assert.Equal(t, []string{"command"}, w.Methods[0].Annotations())
	assert.Equal(t, model.Protected, w.Methods[1].Access)

	require.Len(t, h.Enums, 1)
	assert.Equal(t, "ui::Color", h.Enums[0].FullyQualifiedName())
	assert.Equal(t, map[string]int64{"Red": 0, "Blue": 4}, h.Enums[0].Values)

	assert.True(t, h.DoesClassInherit("ui::Widget", "wir::Class"))
	assert.Equal(t, []string{"ext::Thing", "wir::Class", "wir::Object"},
		h.InheritedClassesFor("ui::Widget", false).Sorted())
}

func TestHeaderParseFailure(t *testing.T) {
	t.Parallel()

	p := &fakeParser{err: errors.New("out of memory")}
	h := Header(context.Background(), p, mainFile, nil)

	assert.False(t, h.IsValid())
	require.Len(t, h.Diagnostics, 1)
	assert.Equal(t, model.Fatal, h.Diagnostics[0].Severity)
	assert.Contains(t, h.Diagnostics[0].Message, "out of memory")
	assert.Empty(t, h.Classes)
}

func TestHeaderErrorDiagnosticInvalidates(t *testing.T) {
	t.Parallel()

	p := &fakeParser{tu: &ast.TranslationUnit{
		Root:        ast.NewTranslationUnit(mainFile),
		Diagnostics: []ast.Diagnostic{{Severity: ast.SeverityError, Message: "boom", Location: loc(mainFile)}},
	}}
	h := Header(context.Background(), p, mainFile, nil)
	assert.False(t, h.IsValid())
	assert.Equal(t, 1, h.ErrorCount())
}

func TestHeaderReportsCycles(t *testing.T) {
	t.Parallel()

	root := ast.NewTranslationUnit(mainFile)
	a := root.AddChild(class(ast.KindClassDecl, "A", mainFile))
	b := root.AddChild(class(ast.KindClassDecl, "B", mainFile))
	a.AddChild(ast.NewNode(ast.KindCXXBaseSpecifier, "B", loc(mainFile)).SetDefinition(b))
	b.AddChild(ast.NewNode(ast.KindCXXBaseSpecifier, "A", loc(mainFile)).SetDefinition(a))

	h := Header(context.Background(), &fakeParser{tu: &ast.TranslationUnit{Root: root}}, mainFile, nil)
	assert.True(t, h.IsValid())
	require.Len(t, h.Diagnostics, 2)
	for _, d := range h.Diagnostics {
		assert.Equal(t, model.Warning, d.Severity)
		assert.Contains(t, d.Message, "inheritance cycle")
	}
	assert.Equal(t, []string{"A", "B"}, h.InheritedClassesFor("A", false).Sorted())
}

func writeHeader(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHeaderChainThroughParser(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeHeader(t, dir, "Class.hpp", "namespace wir { class Class { public: virtual ~Class(); }; }\n")
	path := writeHeader(t, dir, "chain.hpp", `#include "Class.hpp"
class Base : public wir::Class {};
class Mid : public Base {};
class Derived : public Mid {};
`)

	h := Header(context.Background(), parse.New(), path, nil)
	require.True(t, h.IsValid(), "%v", h.Diagnostics)
	require.Len(t, h.Classes, 3)

	assert.ElementsMatch(t, []string{"Mid", "Base", "wir::Class"},
		h.InheritedClassesFor("Derived", false).Sorted())
	assert.Equal(t, []string{"Mid"}, h.InheritedClassesFor("Derived", true).Sorted())
	assert.True(t, h.DoesAnyClassInherit("wir::Class"))
}

func TestHeaderSyntaxErrorThroughParser(t *testing.T) {
	t.Parallel()

	path := writeHeader(t, t.TempDir(), "broken.hpp", "class Broken : public {\n  void run(\n};\n")
	h := Header(context.Background(), parse.New(), path, nil)

	assert.False(t, h.IsValid())
	assert.Positive(t, h.ErrorCount())
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a::B", cleanName("class a::B"))
	assert.Equal(t, "S", cleanName("struct S"))
	assert.Equal(t, "wir::Class", cleanName("::wir::Class"))
}
