package codegen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/reflgen/internal/model"
)

// chainHeader declares Base -> wir::Class, Mid -> Base, Derived -> Mid and
// an unrelated Plain class.
func chainHeader() *model.Header {
	h := model.NewHeader("/src/chain.hpp")
	base := model.NewClass("Base", []string{"app"}, true)
	base.AddBase("wir::Class")
	mid := model.NewClass("Mid", []string{"app"}, false)
	mid.AddBase("app::Base")
	derived := model.NewClass("Derived", []string{"app"}, false)
	derived.AddBase("app::Mid")
	derived.AddBase("app::Extra")
	plain := model.NewClass("Plain", nil, false)

	for _, c := range []model.Class{base, mid, derived, plain} {
		h.AddClass(c)
		for _, b := range c.Bases {
			h.RegisterBaseClass(c.FullyQualifiedName(), b)
		}
	}
	return h
}

func TestGenerateChain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := Generate(&buf, chainHeader(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "::initializeClass()"))
	assert.Equal(t, 1, strings.Count(out, "automatically generated"))
	assert.NotContains(t, out, "Plain")

	assert.True(t, strings.HasPrefix(out,
		"\n/* File is automatically generated by WIR, any changes manually made will be lost. */\n\n"+
			"#include \"/src/chain.hpp\"\n#include <WIR/Class.hpp>\n#include <functional>\n#include <memory>\nnamespace\n{\n"))

	assert.Contains(t, out, "  wir::ClassInfo *classInfo0 = nullptr;\n")
	assert.Contains(t, out, "wir::ClassInfo * app::Base::classInfo()\n")
	assert.Contains(t, out, "  ::classInfo2 = wir::Class::classInfo(\"app::Derived\");\n")
	assert.Contains(t, out, `registerClass("app::Derived", { "app::Extra", "app::Mid" }, `)
	assert.Contains(t, out, `registerClass("app::Base", { "wir::Class" }, `)
}

func TestGenerateFactories(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := Generate(&buf, chainHeader(), Options{})
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out,
		`[](wir::DynamicArguments const &args)->wir::Class*{ LogWarning("Attempted to construct pure virtual class instance app::Base"); return nullptr; }`)
	assert.Contains(t, out,
		`[](wir::Class *c)->void{ LogWarning("Attempted to destruct pure virtual class app::Base"); }`)
	assert.NotContains(t, out, "new app::Base(")

	assert.Contains(t, out, "[](wir::DynamicArguments const &args)->wir::Class*{ return new app::Mid(args); }")
	assert.Contains(t, out, "[](wir::DynamicArguments const & args)->wir::ClassPtr{ return std::make_shared<app::Mid>(args); } , [](wir::Class *c)->void{ delete c; });\n")
}

func TestGenerateNothingEligible(t *testing.T) {
	t.Parallel()

	h := model.NewHeader("/src/plain.hpp")
	h.AddClass(model.NewClass("Plain", nil, false))

	var buf bytes.Buffer
	n, err := Generate(&buf, h, Options{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, buf.Len())
}

func TestGenerateCustomRuntime(t *testing.T) {
	t.Parallel()

	h := model.NewHeader("/src/obj.hpp")
	c := model.NewClass("Thing", nil, false)
	h.AddClass(c)
	h.RegisterBaseClass("Thing", "rt::Object")

	var buf bytes.Buffer
	n, err := Generate(&buf, h, Options{RootMarker: "rt::Object", RuntimeInclude: "rt/Object.h"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "#include <rt/Object.h>\n")
	assert.Contains(t, buf.String(), "rt::ObjectInfo * Thing::classInfo()")
	assert.Contains(t, buf.String(), "->rt::ObjectPtr{ return std::make_shared<Thing>(args); }")
}

func TestRuntimeFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Runtime{
		Root: "wir::Class", Info: "wir::ClassInfo", Ptr: "wir::ClassPtr", Args: "wir::DynamicArguments",
	}, RuntimeFor("wir::Class"))
	assert.Equal(t, Runtime{
		Root: "Object", Info: "ObjectInfo", Ptr: "ObjectPtr", Args: "DynamicArguments",
	}, RuntimeFor("Object"))
}

func TestRegistrationsSlots(t *testing.T) {
	t.Parallel()

	regs := Registrations(chainHeader(), Options{})
	require.Len(t, regs, 3)
	for i, r := range regs {
		assert.Equal(t, i, r.Slot)
	}
	assert.IsType(t, AbstractFactory{}, regs[0].Factory)
	assert.IsType(t, ConcreteFactory{}, regs[1].Factory)
}
