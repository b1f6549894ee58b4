// Package graph tracks class inheritance and computes base-class closures.
package graph

import "sort"

// Set is an unordered collection of fully-qualified class names.
type Set map[string]struct{}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	return sortedKeys(s)
}

// Inheritance maps a class's fully-qualified name to the names it directly
// extends. Bases need not have an entry of their own: classes declared in
// other headers appear only as values.
// The zero value is ready to use.
type Inheritance struct {
	bases map[string]Set
}

// Register records parent as a direct base of child. Registering the same
// edge twice is a no-op.
func (g *Inheritance) Register(child, parent string) {
	if g.bases == nil {
		g.bases = make(map[string]Set)
	}
	set, ok := g.bases[child]
	if !ok {
		set = make(Set)
		g.bases[child] = set
	}
	set[parent] = struct{}{}
}

// InheritedClassesFor returns the direct bases of name when topLevelOnly is
// set, and the transitive closure otherwise. Unknown names yield an empty set.
//
// Every class is expanded at most once per call, so a malformed graph that
// contains a cycle still terminates.
func (g *Inheritance) InheritedClassesFor(name string, topLevelOnly bool) Set {
	out := make(Set)
	direct := g.bases[name]
	if topLevelOnly {
		for base := range direct {
			out[base] = struct{}{}
		}
		return out
	}

	expanded := map[string]struct{}{name: {}}
	stack := sortedKeys(direct)
	for len(stack) > 0 {
		base := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out[base] = struct{}{}
		if _, done := expanded[base]; done {
			continue
		}
		expanded[base] = struct{}{}
		for next := range g.bases[base] {
			if _, seen := out[next]; !seen {
				stack = append(stack, next)
			}
		}
	}
	return out
}

// DoesClassInherit reports whether parent is in the closure of name.
func (g *Inheritance) DoesClassInherit(name, parent string) bool {
	return g.InheritedClassesFor(name, false).Has(parent)
}

// Cycles returns the classes that reach themselves through their bases,
// sorted.
func (g *Inheritance) Cycles() []string {
	var cyclic []string
	for _, name := range g.Keys() {
		if g.DoesClassInherit(name, name) {
			cyclic = append(cyclic, name)
		}
	}
	return cyclic
}

// Keys returns every class with at least one recorded base, sorted.
func (g *Inheritance) Keys() []string {
	keys := make([]string, 0, len(g.bases))
	for k := range g.bases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of classes with recorded bases.
func (g *Inheritance) Len() int {
	return len(g.bases)
}

// Reset drops every recorded edge.
func (g *Inheritance) Reset() {
	g.bases = nil
}

func sortedKeys(m Set) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
