// Package codec serializes model.Header values to a compact little-endian
// binary form and back.
//
// Layout, in order: valid flag, path, inheritance map (keys and bases
// sorted), classes, enums, diagnostics. Strings are a uint64 byte length
// followed by the bytes; sequences are a uint64 count followed by the
// elements; booleans are a single 0 or 1 byte. Namespaces are written as a
// uint32 count followed by the segments innermost first.
package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/phobologic/reflgen/internal/model"
)

const (
	// MaxStringLen bounds decoded string lengths.
	MaxStringLen = 1 << 24
	// MaxCount bounds decoded sequence lengths.
	MaxCount = 1 << 24
)

var (
	// ErrTruncated is returned when the stream ends mid-value.
	ErrTruncated = errors.New("codec: truncated stream")
	// ErrMalformed is returned for out-of-range tags, booleans or lengths.
	ErrMalformed = errors.New("codec: malformed stream")
)

var order = binary.LittleEndian

// Marshal returns the encoding of h.
func Marshal(h *model.Header) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into h, replacing its contents. Trailing bytes
// after a complete header are malformed.
func Unmarshal(data []byte, h *model.Header) error {
	r := bytes.NewReader(data)
	if err := Decode(r, h); err != nil {
		return err
	}
	if r.Len() != 0 {
		return errors.Wrapf(ErrMalformed, "%d trailing bytes", r.Len())
	}
	return nil
}

// Encode writes h to w.
func Encode(w io.Writer, h *model.Header) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}
	e.header(h)
	if e.err != nil {
		return errors.Wrap(e.err, "encoding header")
	}
	return errors.Wrap(bw.Flush(), "encoding header")
}

// Decode reads one header from r into h. h is reset first, so on error it
// holds whatever was decoded before the failure.
func Decode(r io.Reader, h *model.Header) error {
	*h = model.Header{}
	d := &decoder{r: r}
	d.header(h)
	return d.err
}

type encoder struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) u8(v uint8) {
	e.buf[0] = v
	e.write(e.buf[:1])
}

func (e *encoder) u32(v uint32) {
	order.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	order.PutUint64(e.buf[:8], v)
	e.write(e.buf[:8])
}

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) str(s string) {
	e.u64(uint64(len(s)))
	e.write([]byte(s))
}

func (e *encoder) strings(list []string) {
	e.u64(uint64(len(list)))
	for _, s := range list {
		e.str(s)
	}
}

func (e *encoder) namespace(ns []string) {
	e.u32(uint32(len(ns)))
	for i := len(ns) - 1; i >= 0; i-- {
		e.str(ns[i])
	}
}

func (e *encoder) header(h *model.Header) {
	e.boolean(h.Valid)
	e.str(h.Path)

	keys := h.Inherits.Keys()
	e.u64(uint64(len(keys)))
	for _, k := range keys {
		e.str(k)
		e.strings(h.Inherits.InheritedClassesFor(k, true).Sorted())
	}

	e.u64(uint64(len(h.Classes)))
	for i := range h.Classes {
		e.class(&h.Classes[i])
	}
	e.u64(uint64(len(h.Enums)))
	for i := range h.Enums {
		e.enum(&h.Enums[i])
	}
	e.u64(uint64(len(h.Diagnostics)))
	for _, d := range h.Diagnostics {
		e.u8(uint8(d.Severity))
		e.str(d.Message)
		e.str(d.File)
		e.u32(d.Line)
		e.u32(d.Column)
	}
}

func (e *encoder) class(c *model.Class) {
	e.str(c.Name)
	e.namespace(c.Namespace)
	e.u64(uint64(len(c.Methods)))
	for i := range c.Methods {
		m := &c.Methods[i]
		e.str(m.Name)
		e.u8(uint8(m.Access))
		e.boolean(m.PureVirtual)
		e.strings(m.Annotations())
	}
	e.strings(c.Bases)
	e.boolean(c.Abstract)
	e.strings(c.Annotations())
}

func (e *encoder) enum(en *model.Enum) {
	e.str(en.Name)
	e.namespace(en.Namespace)
	names := en.Names()
	e.u64(uint64(len(names)))
	for _, name := range names {
		e.str(name)
		e.u64(uint64(en.Values[name]))
	}
	e.strings(en.Annotations())
}

type decoder struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return nil
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.fail(err)
		return nil
	}
	return d.buf[:n]
}

func (d *decoder) fail(err error) {
	if d.err != nil {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = ErrTruncated
	}
	d.err = err
}

func (d *decoder) u8() uint8 {
	if b := d.read(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.read(4); b != nil {
		return order.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.read(8); b != nil {
		return order.Uint64(b)
	}
	return 0
}

func (d *decoder) boolean() bool {
	switch v := d.u8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail(errors.Wrapf(ErrMalformed, "boolean byte %d", v))
		return false
	}
}

// count reads a sequence length and checks it against MaxCount.
func (d *decoder) count() int {
	n := d.u64()
	if d.err != nil {
		return 0
	}
	if n > MaxCount {
		d.fail(errors.Wrapf(ErrMalformed, "sequence length %d", n))
		return 0
	}
	return int(n)
}

func (d *decoder) str() string {
	n := d.u64()
	if d.err != nil {
		return ""
	}
	if n > MaxStringLen {
		d.fail(errors.Wrapf(ErrMalformed, "string length %d", n))
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.fail(err)
		return ""
	}
	return string(b)
}

func (d *decoder) strings() []string {
	n := d.count()
	var out []string
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.str())
	}
	return out
}

func (d *decoder) namespace() []string {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	if n > MaxCount {
		d.fail(errors.Wrapf(ErrMalformed, "namespace depth %d", n))
		return nil
	}
	var ns []string
	for i := uint32(0); i < n && d.err == nil; i++ {
		ns = append(ns, d.str())
	}
	for i, j := 0, len(ns)-1; i < j; i, j = i+1, j-1 {
		ns[i], ns[j] = ns[j], ns[i]
	}
	return ns
}

func (d *decoder) header(h *model.Header) {
	h.Valid = d.boolean()
	h.Path = d.str()

	keys := d.count()
	for i := 0; i < keys && d.err == nil; i++ {
		child := d.str()
		for _, base := range d.strings() {
			if d.err == nil {
				h.Inherits.Register(child, base)
			}
		}
	}

	classes := d.count()
	for i := 0; i < classes && d.err == nil; i++ {
		if c, ok := d.class(); ok {
			h.Classes = append(h.Classes, c)
		}
	}
	enums := d.count()
	for i := 0; i < enums && d.err == nil; i++ {
		if e, ok := d.enum(); ok {
			h.Enums = append(h.Enums, e)
		}
	}
	diags := d.count()
	for i := 0; i < diags && d.err == nil; i++ {
		var diag model.Diagnostic
		sev := d.u8()
		if d.err == nil && sev > uint8(model.Ignored) {
			d.fail(errors.Wrapf(ErrMalformed, "severity %d", sev))
		}
		diag.Severity = model.Severity(sev)
		diag.Message = d.str()
		diag.File = d.str()
		diag.Line = d.u32()
		diag.Column = d.u32()
		if d.err == nil {
			h.Diagnostics = append(h.Diagnostics, diag)
		}
	}
}

func (d *decoder) class() (model.Class, bool) {
	c := model.Class{Name: d.str(), Namespace: d.namespace()}

	methods := d.count()
	for i := 0; i < methods && d.err == nil; i++ {
		name := d.str()
		access := d.u8()
		if d.err == nil && access > uint8(model.Private) {
			d.fail(errors.Wrapf(ErrMalformed, "access %d", access))
		}
		m := model.NewMethod(name, model.Access(access), d.boolean())
		m.SetAnnotations(d.strings())
		if d.err == nil {
			c.Methods = append(c.Methods, m)
		}
	}
	c.Bases = d.strings()
	c.Abstract = d.boolean()
	c.SetAnnotations(d.strings())
	return c, d.err == nil
}

func (d *decoder) enum() (model.Enum, bool) {
	e := model.NewEnum(d.str(), d.namespace())
	values := d.count()
	for i := 0; i < values && d.err == nil; i++ {
		name := d.str()
		v := d.u64()
		if d.err == nil {
			e.AddValue(name, int64(v))
		}
	}
	e.SetAnnotations(d.strings())
	return e, d.err == nil
}
