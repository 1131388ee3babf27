package classfile

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/jolt/vm"
)

// DefaultMajorVersion is written by Encode (Java 8).
const DefaultMajorVersion = 52

// poolWriter extends a definition's pool with the Utf8 and Class entries
// the file structure references by index.
type poolWriter struct {
	entries []vm.Constant
	utf8s   map[string]uint16
	classes map[string]uint16
}

func newPoolWriter(pool []vm.Constant) *poolWriter {
	pw := &poolWriter{
		entries: []vm.Constant{{}},
		utf8s:   make(map[string]uint16),
		classes: make(map[string]uint16),
	}
	if len(pool) > 0 {
		pw.entries = append([]vm.Constant(nil), pool...)
	}
	for i, c := range pw.entries {
		if c.Tag == vm.TagUtf8 {
			if _, ok := pw.utf8s[c.Utf8]; !ok {
				pw.utf8s[c.Utf8] = uint16(i)
			}
		}
	}
	for i, c := range pw.entries {
		if c.Tag == vm.TagClass && int(c.A) < len(pw.entries) {
			name := pw.entries[c.A].Utf8
			if _, ok := pw.classes[name]; !ok {
				pw.classes[name] = uint16(i)
			}
		}
	}
	return pw
}

func (pw *poolWriter) utf8(s string) uint16 {
	if i, ok := pw.utf8s[s]; ok {
		return i
	}
	pw.entries = append(pw.entries, vm.Constant{Tag: vm.TagUtf8, Utf8: s})
	i := uint16(len(pw.entries) - 1)
	pw.utf8s[s] = i
	return i
}

func (pw *poolWriter) class(name string) uint16 {
	if i, ok := pw.classes[name]; ok {
		return i
	}
	pw.entries = append(pw.entries, vm.Constant{Tag: vm.TagClass, A: pw.utf8(name)})
	i := uint16(len(pw.entries) - 1)
	pw.classes[name] = i
	return i
}

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) attribute(nameIndex uint16, body []byte) {
	w.u16(nameIndex)
	w.u32(uint32(len(body)))
	w.buf = append(w.buf, body...)
}

// Encode writes def as a class file. Entries the structure needs (member
// names, attribute names, class references) are appended to a copy of
// def's pool when absent.
func Encode(def *vm.ClassDef) ([]byte, error) {
	pw := newPoolWriter(def.Pool)

	// Everything that references the pool is laid out first so the pool
	// is complete before it is written.
	var body writer
	body.u16(uint16(def.Access))
	body.u16(pw.class(def.Name))
	if def.Super == "" {
		body.u16(0)
	} else {
		body.u16(pw.class(def.Super))
	}
	body.u16(uint16(len(def.Interfaces)))
	for _, name := range def.Interfaces {
		body.u16(pw.class(name))
	}

	body.u16(uint16(len(def.Fields)))
	for _, f := range def.Fields {
		body.u16(uint16(f.Access))
		body.u16(pw.utf8(f.Name))
		body.u16(pw.utf8(f.Descriptor))
		if f.ConstantValue == 0 {
			body.u16(0)
			continue
		}
		body.u16(1)
		body.attribute(pw.utf8("ConstantValue"), binary.BigEndian.AppendUint16(nil, f.ConstantValue))
	}

	body.u16(uint16(len(def.Methods)))
	for _, m := range def.Methods {
		body.u16(uint16(m.Access))
		body.u16(pw.utf8(m.Name))
		body.u16(pw.utf8(m.Descriptor))
		if m.Access.IsAbstract() || m.Access.IsNative() {
			body.u16(0)
			continue
		}
		if len(m.Code) > math.MaxUint16 {
			return nil, fmt.Errorf("classfile: %s%s: code too large (%d bytes)", m.Name, m.Descriptor, len(m.Code))
		}
		var code writer
		code.u16(uint16(m.MaxStack))
		code.u16(uint16(m.MaxLocals))
		code.u32(uint32(len(m.Code)))
		code.buf = append(code.buf, m.Code...)
		code.u16(uint16(len(m.Handlers)))
		for _, h := range m.Handlers {
			code.u16(uint16(h.StartPC))
			code.u16(uint16(h.EndPC))
			code.u16(uint16(h.HandlerPC))
			code.u16(h.CatchType)
		}
		code.u16(0)
		body.u16(1)
		body.attribute(pw.utf8("Code"), code.buf)
	}

	var attrs []func()
	if def.SourceFile != "" {
		nameIndex, value := pw.utf8("SourceFile"), pw.utf8(def.SourceFile)
		attrs = append(attrs, func() { body.attribute(nameIndex, binary.BigEndian.AppendUint16(nil, value)) })
	}
	if def.NestHost != "" {
		nameIndex, host := pw.utf8("NestHost"), pw.class(def.NestHost)
		attrs = append(attrs, func() { body.attribute(nameIndex, binary.BigEndian.AppendUint16(nil, host)) })
	}
	if len(def.BootstrapMethods) > 0 {
		nameIndex := pw.utf8("BootstrapMethods")
		var bw writer
		bw.u16(uint16(len(def.BootstrapMethods)))
		for _, bm := range def.BootstrapMethods {
			bw.u16(bm.MethodRef)
			bw.u16(uint16(len(bm.Args)))
			for _, a := range bm.Args {
				bw.u16(a)
			}
		}
		attrs = append(attrs, func() { body.attribute(nameIndex, bw.buf) })
	}
	body.u16(uint16(len(attrs)))
	for _, emit := range attrs {
		emit()
	}

	if len(pw.entries) > math.MaxUint16 {
		return nil, fmt.Errorf("classfile: %s: constant pool too large", def.Name)
	}
	var out writer
	out.u32(Magic)
	out.u16(0)
	out.u16(DefaultMajorVersion)
	writePool(&out, pw.entries)
	out.buf = append(out.buf, body.buf...)
	return out.buf, nil
}

func writePool(w *writer, entries []vm.Constant) {
	w.u16(uint16(len(entries)))
	for i := 1; i < len(entries); i++ {
		c := entries[i]
		w.u8(uint8(c.Tag))
		switch c.Tag {
		case vm.TagUtf8:
			b := encodeMUTF8(c.Utf8)
			w.u16(uint16(len(b)))
			w.buf = append(w.buf, b...)
		case vm.TagInteger:
			w.u32(uint32(c.Int))
		case vm.TagFloat:
			w.u32(math.Float32bits(c.Float))
		case vm.TagLong:
			w.u64(uint64(c.Long))
			i++
		case vm.TagDouble:
			w.u64(math.Float64bits(c.Double))
			i++
		case vm.TagClass, vm.TagString, vm.TagMethodType:
			w.u16(c.A)
		case vm.TagMethodHandle:
			w.u8(c.RefKind)
			w.u16(c.A)
		default:
			w.u16(c.A)
			w.u16(c.B)
		}
	}
}
