// Package codegen renders the registration source for the classes of a
// parsed header.
package codegen

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"

	"github.com/phobologic/reflgen/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var tmpl = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

const (
	// DefaultRootMarker is the runtime base class every registered class
	// must inherit from.
	DefaultRootMarker = "wir::Class"
	// DefaultRuntimeInclude is the runtime header the generated file includes.
	DefaultRuntimeInclude = "WIR/Class.hpp"
)

// Options configures generation. Zero fields take their defaults.
type Options struct {
	RootMarker     string
	RuntimeInclude string
}

func (o Options) withDefaults() Options {
	if o.RootMarker == "" {
		o.RootMarker = DefaultRootMarker
	}
	if o.RuntimeInclude == "" {
		o.RuntimeInclude = DefaultRuntimeInclude
	}
	return o
}

// Runtime names the reflection runtime types the generated code refers to.
// They live next to the root marker: for wir::Class they are
// wir::ClassInfo, wir::ClassPtr and wir::DynamicArguments.
type Runtime struct {
	Root string
	Info string
	Ptr  string
	Args string
}

// RuntimeFor derives the runtime names from a root marker.
func RuntimeFor(root string) Runtime {
	ns, name := "", root
	if i := strings.LastIndex(root, model.ScopeSeparator); i >= 0 {
		ns, name = root[:i+len(model.ScopeSeparator)], root[i+len(model.ScopeSeparator):]
	}
	return Runtime{
		Root: root,
		Info: ns + name + "Info",
		Ptr:  ns + name + "Ptr",
		Args: ns + "DynamicArguments",
	}
}

// Factory renders the construction and destruction closures handed to the
// runtime for one class.
type Factory interface {
	Construct(r Registration) string
	ConstructShared(r Registration) string
	Destroy(r Registration) string
}

// ConcreteFactory constructs instances with new and std::make_shared.
type ConcreteFactory struct{}

func (ConcreteFactory) Construct(r Registration) string {
	return fmt.Sprintf("[](%s const &args)->%s*{ return new %s(args); }", r.Runtime.Args, r.Runtime.Root, r.Name)
}

func (ConcreteFactory) ConstructShared(r Registration) string {
	return fmt.Sprintf("[](%s const & args)->%s{ return std::make_shared<%s>(args); }", r.Runtime.Args, r.Runtime.Ptr, r.Name)
}

func (ConcreteFactory) Destroy(r Registration) string {
	return fmt.Sprintf("[](%s *c)->void{ delete c; }", r.Runtime.Root)
}

// AbstractFactory logs a warning and returns null, since abstract classes
// cannot be instantiated.
type AbstractFactory struct{}

func (AbstractFactory) Construct(r Registration) string {
	return fmt.Sprintf(`[](%s const &args)->%s*{ LogWarning("Attempted to construct pure virtual class instance %s"); return nullptr; }`,
		r.Runtime.Args, r.Runtime.Root, r.Name)
}

func (AbstractFactory) ConstructShared(r Registration) string {
	return fmt.Sprintf(`[](%s const &args)->%s { LogWarning("Attempted to construct pure virtual class instance %s"); return nullptr;}`,
		r.Runtime.Args, r.Runtime.Ptr, r.Name)
}

func (AbstractFactory) Destroy(r Registration) string {
	return fmt.Sprintf(`[](%s *c)->void{ LogWarning("Attempted to destruct pure virtual class %s"); }`, r.Runtime.Root, r.Name)
}

// Registration is the data behind one class's registration block.
type Registration struct {
	// Slot numbers the cached ClassInfo pointer within the file.
	Slot    int
	Name    string
	Bases   []string
	Runtime Runtime
	Factory Factory
}

// BaseList renders the direct bases as a C++ initializer list body.
func (r Registration) BaseList() string {
	quoted := make([]string, len(r.Bases))
	for i, b := range r.Bases {
		quoted[i] = `"` + b + `"`
	}
	return strings.Join(quoted, ", ")
}

func (r Registration) Construct() string       { return r.Factory.Construct(r) }
func (r Registration) ConstructShared() string { return r.Factory.ConstructShared(r) }
func (r Registration) Destroy() string         { return r.Factory.Destroy(r) }

// Registrations returns a registration for every class in h whose bases
// transitively include the root marker, in declaration order.
func Registrations(h *model.Header, opts Options) []Registration {
	opts = opts.withDefaults()
	runtime := RuntimeFor(opts.RootMarker)

	var out []Registration
	for i := range h.Classes {
		c := &h.Classes[i]
		fqn := c.FullyQualifiedName()
		if !h.DoesClassInherit(fqn, opts.RootMarker) {
			continue
		}
		var factory Factory = ConcreteFactory{}
		if c.Abstract {
			factory = AbstractFactory{}
		}
		out = append(out, Registration{
			Slot:    len(out),
			Name:    fqn,
			Bases:   h.InheritedClassesFor(fqn, true).Sorted(),
			Runtime: runtime,
			Factory: factory,
		})
	}
	return out
}

type preamble struct {
	Input          string
	RuntimeInclude string
}

// Generate writes the registration source for h to w and returns the number
// of classes registered. Nothing is written when no class is eligible.
func Generate(w io.Writer, h *model.Header, opts Options) (int, error) {
	opts = opts.withDefaults()
	regs := Registrations(h, opts)
	if len(regs) == 0 {
		return 0, nil
	}

	if err := tmpl.ExecuteTemplate(w, "preamble", preamble{Input: h.Path, RuntimeInclude: opts.RuntimeInclude}); err != nil {
		return 0, errors.Wrap(err, "writing preamble")
	}
	for i, r := range regs {
		if err := tmpl.ExecuteTemplate(w, "class", r); err != nil {
			return i, errors.Wrapf(err, "writing registration for %s", r.Name)
		}
	}
	return len(regs), nil
}
