// Package classfile decodes and encodes JVM class files to and from the
// runtime's declarative class definitions.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/chazu/jolt/vm"
)

// Magic is the first four bytes of every class file.
const Magic = 0xCAFEBABE

// Supported class file major versions (JDK 1.1 through 25).
const (
	MinMajorVersion = 45
	MaxMajorVersion = 69
)

var (
	// ErrBadMagic is returned for data that is not a class file.
	ErrBadMagic = errors.New("classfile: bad magic number")
	// ErrTruncated is returned when the data ends inside a structure.
	ErrTruncated = errors.New("classfile: truncated")
	// ErrUnsupportedVersion is returned for major versions outside
	// MinMajorVersion..MaxMajorVersion.
	ErrUnsupportedVersion = errors.New("classfile: unsupported version")
)

// reader is a big-endian cursor with a sticky error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w at offset %d (need %d bytes)", ErrTruncated, r.pos, n)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// ParseFile reads and parses the class file at path.
func ParseFile(path string) (*vm.ClassDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classfile: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseReader reads a whole class file from r and parses it.
func ParseReader(r io.Reader) (*vm.ClassDef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("classfile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a class file.
func Parse(data []byte) (*vm.ClassDef, error) {
	r := &reader{data: data}
	if r.u32() != Magic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, ErrBadMagic
	}
	r.u16() // minor
	major := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	if major < MinMajorVersion || major > MaxMajorVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, major)
	}

	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	p := poolView(pool)

	def := &vm.ClassDef{Pool: pool}
	def.Access = vm.AccessFlags(r.u16())
	if def.Name, err = p.className(r.u16()); err != nil {
		return nil, fmt.Errorf("classfile: this_class: %w", err)
	}
	if super := r.u16(); super != 0 {
		if def.Super, err = p.className(super); err != nil {
			return nil, fmt.Errorf("classfile: super_class: %w", err)
		}
	}
	for i, n := 0, int(r.u16()); i < n && r.err == nil; i++ {
		name, err := p.className(r.u16())
		if err != nil {
			return nil, fmt.Errorf("classfile: interface %d: %w", i, err)
		}
		def.Interfaces = append(def.Interfaces, name)
	}

	for i, n := 0, int(r.u16()); i < n && r.err == nil; i++ {
		f, err := parseField(r, p)
		if err != nil {
			return nil, fmt.Errorf("classfile: field %d: %w", i, err)
		}
		def.Fields = append(def.Fields, f)
	}
	for i, n := 0, int(r.u16()); i < n && r.err == nil; i++ {
		m, err := parseMethod(r, p)
		if err != nil {
			return nil, fmt.Errorf("classfile: method %d: %w", i, err)
		}
		def.Methods = append(def.Methods, m)
	}
	if err := parseClassAttributes(r, p, def); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return def, nil
}

func parsePool(r *reader) ([]vm.Constant, error) {
	count := int(r.u16())
	if count == 0 {
		return nil, fmt.Errorf("classfile: empty constant pool")
	}
	pool := make([]vm.Constant, count)
	for i := 1; i < count && r.err == nil; i++ {
		c := vm.Constant{Tag: vm.Tag(r.u8())}
		switch c.Tag {
		case vm.TagUtf8:
			s, err := decodeMUTF8(r.take(int(r.u16())))
			if err != nil {
				return nil, fmt.Errorf("constant %d: %w", i, err)
			}
			c.Utf8 = s
		case vm.TagInteger:
			c.Int = int32(r.u32())
		case vm.TagFloat:
			c.Float = math.Float32frombits(r.u32())
		case vm.TagLong:
			c.Long = int64(r.u64())
		case vm.TagDouble:
			c.Double = math.Float64frombits(r.u64())
		case vm.TagClass, vm.TagString, vm.TagMethodType:
			c.A = r.u16()
		case vm.TagFieldref, vm.TagMethodref, vm.TagInterfaceMethodref,
			vm.TagNameAndType, vm.TagDynamic, vm.TagInvokeDynamic:
			c.A = r.u16()
			c.B = r.u16()
		case vm.TagMethodHandle:
			c.RefKind = r.u8()
			c.A = r.u16()
		default:
			if r.err != nil {
				break
			}
			return nil, fmt.Errorf("classfile: constant %d: unsupported tag %d", i, c.Tag)
		}
		pool[i] = c
		if c.Tag == vm.TagLong || c.Tag == vm.TagDouble {
			i++ // the following slot is unusable
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return pool, nil
}

// poolView answers the symbolic lookups the parser itself needs.
type poolView []vm.Constant

func (p poolView) entry(index uint16, tag vm.Tag) (vm.Constant, error) {
	if index == 0 || int(index) >= len(p) {
		return vm.Constant{}, fmt.Errorf("constant index %d out of range", index)
	}
	if c := p[index]; c.Tag == tag {
		return c, nil
	}
	return vm.Constant{}, fmt.Errorf("constant %d is %s, want %s", index, p[index].Tag, tag)
}

func (p poolView) utf8(index uint16) (string, error) {
	c, err := p.entry(index, vm.TagUtf8)
	return c.Utf8, err
}

func (p poolView) className(index uint16) (string, error) {
	c, err := p.entry(index, vm.TagClass)
	if err != nil {
		return "", err
	}
	return p.utf8(c.A)
}

type attribute struct {
	name string
	data []byte
}

func parseAttributes(r *reader, p poolView) ([]attribute, error) {
	n := int(r.u16())
	attrs := make([]attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		nameIndex := r.u16()
		data := r.take(int(r.u32()))
		if r.err != nil {
			break
		}
		name, err := p.utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, err)
		}
		attrs = append(attrs, attribute{name: name, data: data})
	}
	return attrs, r.err
}

func parseField(r *reader, p poolView) (vm.FieldDef, error) {
	var f vm.FieldDef
	var err error
	f.Access = vm.AccessFlags(r.u16())
	if f.Name, err = p.utf8(r.u16()); err != nil {
		return f, err
	}
	if f.Descriptor, err = p.utf8(r.u16()); err != nil {
		return f, err
	}
	attrs, err := parseAttributes(r, p)
	if err != nil {
		return f, err
	}
	for _, a := range attrs {
		if a.name == "ConstantValue" {
			if len(a.data) != 2 {
				return f, fmt.Errorf("%s: ConstantValue length %d", f.Name, len(a.data))
			}
			f.ConstantValue = binary.BigEndian.Uint16(a.data)
		}
	}
	return f, nil
}

func parseMethod(r *reader, p poolView) (vm.MethodDef, error) {
	var m vm.MethodDef
	var err error
	m.Access = vm.AccessFlags(r.u16())
	if m.Name, err = p.utf8(r.u16()); err != nil {
		return m, err
	}
	if m.Descriptor, err = p.utf8(r.u16()); err != nil {
		return m, err
	}
	attrs, err := parseAttributes(r, p)
	if err != nil {
		return m, err
	}
	for _, a := range attrs {
		if a.name == "Code" {
			if err := parseCode(a.data, &m); err != nil {
				return m, fmt.Errorf("%s%s: Code: %w", m.Name, m.Descriptor, err)
			}
		}
	}
	return m, nil
}

func parseCode(data []byte, m *vm.MethodDef) error {
	r := &reader{data: data}
	m.MaxStack = int(r.u16())
	m.MaxLocals = int(r.u16())
	code := r.take(int(r.u32()))
	m.Code = append([]byte(nil), code...)
	for i, n := 0, int(r.u16()); i < n && r.err == nil; i++ {
		h := vm.ExceptionHandler{
			StartPC:   int(r.u16()),
			EndPC:     int(r.u16()),
			HandlerPC: int(r.u16()),
			CatchType: r.u16(),
		}
		m.Handlers = append(m.Handlers, h)
	}
	// Code's own attributes (line numbers, stack maps) are not needed.
	return r.err
}

func parseClassAttributes(r *reader, p poolView, def *vm.ClassDef) error {
	attrs, err := parseAttributes(r, p)
	if err != nil {
		return fmt.Errorf("classfile: class attributes: %w", err)
	}
	for _, a := range attrs {
		ar := &reader{data: a.data}
		switch a.name {
		case "SourceFile":
			if def.SourceFile, err = p.utf8(ar.u16()); err != nil {
				return fmt.Errorf("classfile: SourceFile: %w", err)
			}
		case "NestHost":
			if def.NestHost, err = p.className(ar.u16()); err != nil {
				return fmt.Errorf("classfile: NestHost: %w", err)
			}
		case "BootstrapMethods":
			for i, n := 0, int(ar.u16()); i < n && ar.err == nil; i++ {
				bm := vm.BootstrapMethod{MethodRef: ar.u16()}
				for j, k := 0, int(ar.u16()); j < k && ar.err == nil; j++ {
					bm.Args = append(bm.Args, ar.u16())
				}
				def.BootstrapMethods = append(def.BootstrapMethods, bm)
			}
		}
		if ar.err != nil {
			return fmt.Errorf("classfile: %s: %w", a.name, ar.err)
		}
	}
	return nil
}
