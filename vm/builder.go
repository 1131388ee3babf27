package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// PoolBuilder: assembles constant pools with deduplicated entries
// ---------------------------------------------------------------------------

// PoolBuilder builds a constant pool. Each method returns the index of an
// entry, reusing an existing identical entry when there is one.
type PoolBuilder struct {
	entries []Constant
	index   map[string]uint16
}

// NewPoolBuilder creates an empty pool builder.
func NewPoolBuilder() *PoolBuilder {
	return &PoolBuilder{
		entries: []Constant{{}},
		index:   make(map[string]uint16),
	}
}

func (pb *PoolBuilder) add(key string, c Constant) uint16 {
	if i, ok := pb.index[key]; ok {
		return i
	}
	i := uint16(len(pb.entries))
	pb.entries = append(pb.entries, c)
	if c.Tag == TagLong || c.Tag == TagDouble {
		pb.entries = append(pb.entries, Constant{})
	}
	pb.index[key] = i
	return i
}

// Entries returns the pool entries, index 0 unused.
func (pb *PoolBuilder) Entries() []Constant {
	return pb.entries
}

// Utf8 adds a Utf8 entry.
func (pb *PoolBuilder) Utf8(s string) uint16 {
	return pb.add("U"+s, Constant{Tag: TagUtf8, Utf8: s})
}

// Int adds an Integer entry.
func (pb *PoolBuilder) Int(v int32) uint16 {
	return pb.add(fmt.Sprintf("I%d", v), Constant{Tag: TagInteger, Int: v})
}

// Float adds a Float entry.
func (pb *PoolBuilder) Float(v float32) uint16 {
	return pb.add(fmt.Sprintf("F%08x", math.Float32bits(v)), Constant{Tag: TagFloat, Float: v})
}

// Long adds a Long entry, which occupies two indices.
func (pb *PoolBuilder) Long(v int64) uint16 {
	return pb.add(fmt.Sprintf("J%d", v), Constant{Tag: TagLong, Long: v})
}

// Double adds a Double entry, which occupies two indices.
func (pb *PoolBuilder) Double(v float64) uint16 {
	return pb.add(fmt.Sprintf("D%016x", math.Float64bits(v)), Constant{Tag: TagDouble, Double: v})
}

// Class adds a Class entry.
func (pb *PoolBuilder) Class(name string) uint16 {
	n := pb.Utf8(name)
	return pb.add("C"+name, Constant{Tag: TagClass, A: n})
}

// String adds a String entry.
func (pb *PoolBuilder) String(s string) uint16 {
	n := pb.Utf8(s)
	return pb.add("S"+s, Constant{Tag: TagString, A: n})
}

// NameAndType adds a NameAndType entry.
func (pb *PoolBuilder) NameAndType(name, descriptor string) uint16 {
	n, d := pb.Utf8(name), pb.Utf8(descriptor)
	return pb.add("N"+name+":"+descriptor, Constant{Tag: TagNameAndType, A: n, B: d})
}

func (pb *PoolBuilder) member(tag Tag, class, name, descriptor string) uint16 {
	c, nt := pb.Class(class), pb.NameAndType(name, descriptor)
	return pb.add(fmt.Sprintf("%d%s.%s:%s", tag, class, name, descriptor), Constant{Tag: tag, A: c, B: nt})
}

// Fieldref adds a Fieldref entry.
func (pb *PoolBuilder) Fieldref(class, name, descriptor string) uint16 {
	return pb.member(TagFieldref, class, name, descriptor)
}

// Methodref adds a Methodref entry.
func (pb *PoolBuilder) Methodref(class, name, descriptor string) uint16 {
	return pb.member(TagMethodref, class, name, descriptor)
}

// InterfaceMethodref adds an InterfaceMethodref entry.
func (pb *PoolBuilder) InterfaceMethodref(class, name, descriptor string) uint16 {
	return pb.member(TagInterfaceMethodref, class, name, descriptor)
}

// MethodType adds a MethodType entry.
func (pb *PoolBuilder) MethodType(descriptor string) uint16 {
	d := pb.Utf8(descriptor)
	return pb.add("T"+descriptor, Constant{Tag: TagMethodType, A: d})
}

// MethodHandle adds a MethodHandle entry referring to the member at ref.
func (pb *PoolBuilder) MethodHandle(kind uint8, ref uint16) uint16 {
	return pb.add(fmt.Sprintf("H%d:%d", kind, ref), Constant{Tag: TagMethodHandle, RefKind: kind, A: ref})
}

// InvokeDynamic adds an InvokeDynamic entry.
func (pb *PoolBuilder) InvokeDynamic(bootstrap uint16, name, descriptor string) uint16 {
	nt := pb.NameAndType(name, descriptor)
	return pb.add(fmt.Sprintf("Y%d:%s:%s", bootstrap, name, descriptor), Constant{Tag: TagInvokeDynamic, A: bootstrap, B: nt})
}

// ---------------------------------------------------------------------------
// ClassBuilder: assembles ClassDefs
// ---------------------------------------------------------------------------

// ClassBuilder assembles a ClassDef together with its constant pool.
type ClassBuilder struct {
	def     ClassDef
	pool    *PoolBuilder
	methods []*MethodBuilder
}

// NewClassBuilder starts a public class extending super.
func NewClassBuilder(name, super string) *ClassBuilder {
	pb := NewPoolBuilder()
	pb.Class(name)
	return &ClassBuilder{
		def:  ClassDef{Name: name, Super: super, Access: AccPublic | AccSuper},
		pool: pb,
	}
}

// Pool returns the class's pool builder.
func (cb *ClassBuilder) Pool() *PoolBuilder { return cb.pool }

// Access replaces the class access flags.
func (cb *ClassBuilder) Access(flags AccessFlags) *ClassBuilder {
	cb.def.Access = flags
	return cb
}

// Implements adds superinterfaces.
func (cb *ClassBuilder) Implements(names ...string) *ClassBuilder {
	cb.def.Interfaces = append(cb.def.Interfaces, names...)
	return cb
}

// NestHost sets the nest host class name.
func (cb *ClassBuilder) NestHost(name string) *ClassBuilder {
	cb.def.NestHost = name
	return cb
}

// Bootstrap adds a BootstrapMethods entry and returns its index.
func (cb *ClassBuilder) Bootstrap(handle uint16, args ...uint16) uint16 {
	cb.def.BootstrapMethods = append(cb.def.BootstrapMethods, BootstrapMethod{MethodRef: handle, Args: args})
	return uint16(len(cb.def.BootstrapMethods) - 1)
}

// Field declares a field.
func (cb *ClassBuilder) Field(name, descriptor string, access AccessFlags) *ClassBuilder {
	cb.def.Fields = append(cb.def.Fields, FieldDef{Name: name, Descriptor: descriptor, Access: access})
	return cb
}

// ConstantField declares a static field initialized from a pool constant.
func (cb *ClassBuilder) ConstantField(name, descriptor string, access AccessFlags, constant uint16) *ClassBuilder {
	cb.def.Fields = append(cb.def.Fields, FieldDef{Name: name, Descriptor: descriptor, Access: access | AccStatic, ConstantValue: constant})
	return cb
}

// Method starts a method. Its code is emitted through the returned builder.
func (cb *ClassBuilder) Method(name, descriptor string, access AccessFlags) *MethodBuilder {
	mb := &MethodBuilder{
		def:  MethodDef{Name: name, Descriptor: descriptor, Access: access, MaxStack: 16},
		Code: NewBytecodeBuilder(),
	}
	if sig, err := ParseMethodDescriptor(descriptor); err == nil {
		mb.def.MaxLocals = sig.ArgSlots
		if !access.IsStatic() {
			mb.def.MaxLocals++
		}
	}
	cb.methods = append(cb.methods, mb)
	return mb
}

// AbstractMethod declares a method without code.
func (cb *ClassBuilder) AbstractMethod(name, descriptor string, access AccessFlags) *ClassBuilder {
	cb.Method(name, descriptor, access|AccAbstract)
	return cb
}

// NativeMethod declares a method implemented by the native bridge.
func (cb *ClassBuilder) NativeMethod(name, descriptor string, access AccessFlags) *ClassBuilder {
	cb.Method(name, descriptor, access|AccNative)
	return cb
}

// Build returns the finished definition.
func (cb *ClassBuilder) Build() *ClassDef {
	def := cb.def
	def.Methods = make([]MethodDef, len(cb.methods))
	for i, mb := range cb.methods {
		md := mb.def
		if !md.Access.IsAbstract() && !md.Access.IsNative() {
			md.Code = mb.Code.Bytes()
		}
		def.Methods[i] = md
	}
	def.Pool = cb.pool.Entries()
	return &def
}

// MethodBuilder assembles one method.
type MethodBuilder struct {
	def  MethodDef
	Code *BytecodeBuilder
}

// Limits sets max stack and max locals.
func (mb *MethodBuilder) Limits(maxStack, maxLocals int) *MethodBuilder {
	mb.def.MaxStack, mb.def.MaxLocals = maxStack, maxLocals
	return mb
}

// Handler adds an exception table entry.
func (mb *MethodBuilder) Handler(start, end, handler int, catchType uint16) *MethodBuilder {
	mb.def.Handlers = append(mb.def.Handlers, ExceptionHandler{StartPC: start, EndPC: end, HandlerPC: handler, CatchType: catchType})
	return mb
}
