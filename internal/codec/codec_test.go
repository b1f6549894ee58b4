package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/reflgen/internal/model"
)

func sampleHeader() *model.Header {
	h := model.NewHeader("/src/ui/widget.hpp")

	widget := model.NewClass("Widget", []string{"app", "ui"}, true)
	widget.AddAnnotation("reflect")
	draw := model.NewMethod("draw", model.Public, true)
	draw.AddAnnotation("command")
	widget.AddMethod(draw)
	widget.AddMethod(model.NewMethod("resize", model.Protected, false))
	widget.AddBase("wir::Class")
	widget.AddBase("app::Base")
	h.AddClass(widget)
	h.RegisterBaseClass("app::ui::Widget", "wir::Class")
	h.RegisterBaseClass("app::ui::Widget", "app::Base")
	h.RegisterBaseClass("app::Base", "wir::Class")

	color := model.NewEnum("Color", []string{"app"})
	color.AddValue("Red", 0)
	color.AddValue("Blue", -4)
	color.AddValue("Green", 1<<40)
	h.AddEnum(color)

	h.AddDiagnostic(model.Diagnostic{
		Severity: model.Warning, Message: "unused", File: "/src/ui/widget.hpp", Line: 3, Column: 7,
	})
	return h
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	data, err := Marshal(h)
	require.NoError(t, err)

	var got model.Header
	require.NoError(t, Unmarshal(data, &got))

	assert.Equal(t, h.Path, got.Path)
	assert.Equal(t, h.Valid, got.Valid)
	assert.Equal(t, h.Classes, got.Classes)
	assert.Equal(t, h.Enums, got.Enums)
	assert.Equal(t, h.Diagnostics, got.Diagnostics)
	assert.Equal(t, h.Inherits.Keys(), got.Inherits.Keys())
	for _, k := range h.Inherits.Keys() {
		assert.Equal(t, h.InheritedClassesFor(k, true), got.InheritedClassesFor(k, true))
	}
	assert.True(t, got.DoesClassInherit("app::ui::Widget", "wir::Class"))
}

func TestEncodingIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Marshal(sampleHeader())
	require.NoError(t, err)
	b, err := Marshal(sampleHeader())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestInvalidHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := model.NewHeader("/src/broken.hpp")
	h.AddDiagnostic(model.Diagnostic{Severity: model.Error, Message: "expected ';'", File: "/src/broken.hpp", Line: 1, Column: 9})

	data, err := Marshal(h)
	require.NoError(t, err)

	var got model.Header
	require.NoError(t, Unmarshal(data, &got))
	assert.False(t, got.IsValid())
	assert.Equal(t, h.Diagnostics, got.Diagnostics)
}

func TestNamespaceWireOrderIsInnermostFirst(t *testing.T) {
	t.Parallel()

	h := model.NewHeader("p")
	h.AddClass(model.NewClass("C", []string{"outer", "inner"}, false))
	data, err := Marshal(h)
	require.NoError(t, err)

	// valid(1) + path(8+1) + inherit count(8) + class count(8) + name(8+1) + ns count(4)
	off := 1 + 9 + 8 + 8 + 9
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[off:]))
	off += 4
	require.Equal(t, uint64(5), binary.LittleEndian.Uint64(data[off:]))
	assert.Equal(t, "inner", string(data[off+8:off+13]))
}

func TestTruncatedAtEveryPrefix(t *testing.T) {
	t.Parallel()

	data, err := Marshal(sampleHeader())
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		var got model.Header
		err := Unmarshal(data[:n], &got)
		require.Error(t, err, "prefix %d", n)
		assert.True(t, errors.Is(err, ErrTruncated), "prefix %d: %v", n, err)
	}
}

func TestMalformed(t *testing.T) {
	t.Parallel()

	data, err := Marshal(model.NewHeader("p"))
	require.NoError(t, err)

	t.Run("bool", func(t *testing.T) {
		t.Parallel()
		bad := bytes.Clone(data)
		bad[0] = 7
		var got model.Header
		assert.True(t, errors.Is(Unmarshal(bad, &got), ErrMalformed))
	})

	t.Run("string length", func(t *testing.T) {
		t.Parallel()
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint64(bad[1:], MaxStringLen+1)
		var got model.Header
		assert.True(t, errors.Is(Unmarshal(bad, &got), ErrMalformed))
	})

	t.Run("trailing bytes", func(t *testing.T) {
		t.Parallel()
		bad := append(bytes.Clone(data), 0)
		var got model.Header
		assert.True(t, errors.Is(Unmarshal(bad, &got), ErrMalformed))
	})

	t.Run("access", func(t *testing.T) {
		t.Parallel()
		h := model.NewHeader("p")
		c := model.NewClass("C", nil, false)
		c.AddMethod(model.NewMethod("m", model.Private, false))
		h.AddClass(c)
		enc, err := Marshal(h)
		require.NoError(t, err)

		// valid + path + inherit count + class count + name + ns count + method count + method name
		off := 1 + 9 + 8 + 8 + 9 + 4 + 8 + 9
		enc[off] = 9
		var got model.Header
		assert.True(t, errors.Is(Unmarshal(enc, &got), ErrMalformed))
	})
}

func TestDecodeResetsTarget(t *testing.T) {
	t.Parallel()

	data, err := Marshal(model.NewHeader("/empty.hpp"))
	require.NoError(t, err)

	got := sampleHeader()
	require.NoError(t, Unmarshal(data, got))
	assert.Equal(t, "/empty.hpp", got.Path)
	assert.Empty(t, got.Classes)
	assert.Empty(t, got.Enums)
	assert.Empty(t, got.Diagnostics)
	assert.Zero(t, got.Inherits.Len())
}
