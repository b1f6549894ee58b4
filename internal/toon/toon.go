// Package toon renders extracted headers in TOON (Token-Oriented Object
// Notation).
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/reflgen/internal/codegen"
	"github.com/phobologic/reflgen/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a header into TOON. The registrations table is emitted
// only when regs is non-nil.
func Encode(h *model.Header, regs []codegen.Registration) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("header: %s", encodeValue(h.Path)))
	parts = append(parts, fmt.Sprintf("valid: %t", h.IsValid()))

	var classRows, methodRows [][]any
	for i := range h.Classes {
		c := &h.Classes[i]
		fqn := c.FullyQualifiedName()
		classRows = append(classRows, []any{
			fqn,
			c.Abstract,
			strings.Join(c.Bases, " "),
			strings.Join(c.Annotations(), " "),
		})
		for j := range c.Methods {
			m := &c.Methods[j]
			methodRows = append(methodRows, []any{
				fqn,
				m.Name,
				m.Access.String(),
				m.PureVirtual,
				strings.Join(m.Annotations(), " "),
			})
		}
	}
	parts = append(parts, formatTabular("classes", []string{"name", "abstract", "bases", "annotations"}, classRows))
	parts = append(parts, formatTabular("methods", []string{"class", "name", "access", "pure", "annotations"}, methodRows))

	var enumRows [][]any
	for i := range h.Enums {
		e := &h.Enums[i]
		values := make([]string, 0, len(e.Values))
		for _, name := range e.Names() {
			values = append(values, fmt.Sprintf("%s=%d", name, e.Values[name]))
		}
		enumRows = append(enumRows, []any{
			e.FullyQualifiedName(),
			strings.Join(values, " "),
			strings.Join(e.Annotations(), " "),
		})
	}
	parts = append(parts, formatTabular("enums", []string{"name", "values", "annotations"}, enumRows))

	var edgeRows [][]any
	for _, child := range h.Inherits.Keys() {
		for _, parent := range h.InheritedClassesFor(child, true).Sorted() {
			edgeRows = append(edgeRows, []any{child, parent})
		}
	}
	parts = append(parts, formatTabular("inheritance", []string{"class", "base"}, edgeRows))

	if regs != nil {
		var regRows [][]any
		for _, r := range regs {
			factory := "concrete"
			if _, ok := r.Factory.(codegen.AbstractFactory); ok {
				factory = "abstract"
			}
			regRows = append(regRows, []any{r.Slot, r.Name, factory, strings.Join(r.Bases, " ")})
		}
		parts = append(parts, formatTabular("registrations", []string{"slot", "class", "factory", "bases"}, regRows))
	}

	if len(h.Diagnostics) > 0 {
		var diagRows [][]any
		for _, d := range h.Diagnostics {
			diagRows = append(diagRows, []any{
				d.Severity.String(),
				d.File,
				d.Line,
				d.Column,
				d.Message,
			})
		}
		parts = append(parts, formatTabular("diagnostics", []string{"severity", "file", "line", "column", "message"}, diagRows))
	}

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeCell(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

// encodeCell writes booleans and numbers as literals and everything else
// as a string.
func encodeCell(cell any) string {
	switch v := cell.(type) {
	case string:
		return encodeValue(v)
	case bool:
		return strconv.FormatBool(v)
	case int, int64, uint32:
		return fmt.Sprint(v)
	}
	return encodeValue(fmt.Sprint(cell))
}

func encodeValue(value string) string {
	switch {
	case value == "":
		return `""`
	case value != strings.TrimSpace(value), strings.ContainsAny(value, "\n\r\t"):
		return quote(value)
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}
	if looksNumeric.MatchString(value) {
		return value
	}
	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}
	return value
}

func quote(value string) string {
	return strconv.Quote(value)
}
