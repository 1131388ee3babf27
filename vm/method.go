package vm

import "strings"

// ---------------------------------------------------------------------------
// Access flags
// ---------------------------------------------------------------------------

// AccessFlags holds JVMS access_flags bits for classes, fields and methods.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020 // methods
	AccSuper        AccessFlags = 0x0020 // classes
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

func (a AccessFlags) IsPublic() bool       { return a&AccPublic != 0 }
func (a AccessFlags) IsPrivate() bool      { return a&AccPrivate != 0 }
func (a AccessFlags) IsProtected() bool    { return a&AccProtected != 0 }
func (a AccessFlags) IsStatic() bool       { return a&AccStatic != 0 }
func (a AccessFlags) IsFinal() bool        { return a&AccFinal != 0 }
func (a AccessFlags) IsSynchronized() bool { return a&AccSynchronized != 0 }
func (a AccessFlags) IsNative() bool       { return a&AccNative != 0 }
func (a AccessFlags) IsInterface() bool    { return a&AccInterface != 0 }
func (a AccessFlags) IsAbstract() bool     { return a&AccAbstract != 0 }

// isPackagePrivate reports whether none of public/protected/private is set.
func (a AccessFlags) isPackagePrivate() bool {
	return a&(AccPublic|AccProtected|AccPrivate) == 0
}

// ---------------------------------------------------------------------------
// Method and Field
// ---------------------------------------------------------------------------

// ExceptionHandler is one entry of a method's exception table. CatchType is
// a constant-pool index of a Class entry, or 0 for "any".
type ExceptionHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType uint16
}

// Method is a linked method. The declaring class is a handle into the
// class arena. Immutable after linking except for the lazily resolved
// native binding and vtable slot.
type Method struct {
	Class      ClassID // declaring class
	Name       string
	Descriptor string
	Access     AccessFlags
	Code       []byte
	MaxStack   int
	MaxLocals  int
	Handlers   []ExceptionHandler
	Sig        *MethodSig

	table       *ClassTable
	native      NativeFunc
	vtableIndex int // -1 when not virtual
	caches      *InlineCacheTable
}

// InlineCaches returns the call-site caches of m, creating them on first
// use.
func (m *Method) InlineCaches() *InlineCacheTable {
	if m.caches == nil {
		m.caches = NewInlineCacheTable()
	}
	return m.caches
}

// DeclaringClass returns the class that declares m.
func (m *Method) DeclaringClass() *Class { return m.table.Get(m.Class) }

// IsStatic reports whether m is static.
func (m *Method) IsStatic() bool { return m.Access.IsStatic() }

// IsAbstract reports whether m has no implementation.
func (m *Method) IsAbstract() bool { return m.Access.IsAbstract() }

// IsNative reports whether m is implemented by the native bridge.
func (m *Method) IsNative() bool { return m.Access.IsNative() }

// IsInit reports whether m is an instance initializer.
func (m *Method) IsInit() bool { return m.Name == "<init>" }

// IsClinit reports whether m is a class initializer.
func (m *Method) IsClinit() bool { return m.Name == "<clinit>" }

// NameAndDescriptor returns name+descriptor, the native lookup key.
func (m *Method) NameAndDescriptor() string { return m.Name + m.Descriptor }

// ParamSlots returns the number of local slots the arguments occupy,
// counting the receiver of instance methods.
func (m *Method) ParamSlots() int {
	if m.IsStatic() {
		return m.Sig.ArgSlots
	}
	return m.Sig.ArgSlots + 1
}

func (m *Method) String() string {
	var b strings.Builder
	if m.table != nil {
		b.WriteString(m.DeclaringClass().Name)
		b.WriteByte('.')
	}
	b.WriteString(m.Name)
	b.WriteString(m.Descriptor)
	return b.String()
}

// Field is a linked field.
type Field struct {
	Class         ClassID // declaring class
	Name          string
	Descriptor    string
	Access        AccessFlags
	Slot          int    // instance slot or static storage index
	ConstantValue uint16 // ConstantValue attribute index, 0 if absent

	table *ClassTable
}

// DeclaringClass returns the class that declares f.
func (f *Field) DeclaringClass() *Class { return f.table.Get(f.Class) }

// IsStatic reports whether f is static.
func (f *Field) IsStatic() bool { return f.Access.IsStatic() }

// Kind returns the computational kind of the field's type.
func (f *Field) Kind() Kind { return descriptorKind(f.Descriptor) }

func (f *Field) String() string {
	if f.table != nil {
		return f.DeclaringClass().Name + "." + f.Name + ":" + f.Descriptor
	}
	return f.Name + ":" + f.Descriptor
}
