package vm

import "fmt"

// ---------------------------------------------------------------------------
// Constant pool entries
// ---------------------------------------------------------------------------

// Tag is a JVMS constant pool tag.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Tag(%d)", t)
}

// Method handle reference kinds.
const (
	RefGetField         uint8 = 1
	RefGetStatic        uint8 = 2
	RefPutField         uint8 = 3
	RefPutStatic        uint8 = 4
	RefInvokeVirtual    uint8 = 5
	RefInvokeStatic     uint8 = 6
	RefInvokeSpecial    uint8 = 7
	RefNewInvokeSpecial uint8 = 8
	RefInvokeInterface  uint8 = 9
)

// Constant is one constant pool entry as supplied by a class source.
//
// Index operands by tag:
//   - Class: A = name (Utf8)
//   - String: A = contents (Utf8)
//   - NameAndType: A = name, B = descriptor
//   - Fieldref, Methodref, InterfaceMethodref: A = class, B = name-and-type
//   - MethodHandle: RefKind, A = referenced member
//   - MethodType: A = descriptor
//   - Dynamic, InvokeDynamic: A = bootstrap method index, B = name-and-type
type Constant struct {
	Tag     Tag
	Int     int32
	Long    int64
	Float   float32
	Double  float64
	Utf8    string
	A, B    uint16
	RefKind uint8
}

// ---------------------------------------------------------------------------
// ConstantPool with resolution cells
// ---------------------------------------------------------------------------

type cellState uint8

const (
	cellUnresolved cellState = iota
	cellResolved
)

// cell memoizes the outcome of resolving one symbolic entry. Once resolved
// it never changes. value may be set alongside err when resolution found a
// member that then failed the access check.
type cell struct {
	state cellState
	value any
	err   *Throwable
}

// CallSite is the linked target of an invokedynamic instruction.
type CallSite struct {
	Target   *Method
	Appendix *Object
}

// ConstantPool is a class's constant pool. Index 0 is unused, and the slot
// following a Long or Double is unusable, as in the class file.
type ConstantPool struct {
	entries []Constant
	cells   []cell
}

// NewConstantPool copies entries into a pool with fresh resolution cells.
func NewConstantPool(entries []Constant) *ConstantPool {
	if len(entries) == 0 {
		entries = []Constant{{}}
	}
	cp := &ConstantPool{
		entries: make([]Constant, len(entries)),
		cells:   make([]cell, len(entries)),
	}
	copy(cp.entries, entries)
	return cp
}

// Len returns the pool size including the unused zero slot.
func (cp *ConstantPool) Len() int { return len(cp.entries) }

// Entry returns the entry at index.
func (cp *ConstantPool) Entry(index uint16) (*Constant, error) {
	if index == 0 || int(index) >= len(cp.entries) || cp.entries[index].Tag == 0 {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return &cp.entries[index], nil
}

func (cp *ConstantPool) expect(index uint16, tags ...Tag) (*Constant, error) {
	e, err := cp.Entry(index)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if e.Tag == t {
			return e, nil
		}
	}
	return nil, fmt.Errorf("constant pool index %d is %s, want %v", index, e.Tag, tags)
}

// Utf8 returns the string of a Utf8 entry.
func (cp *ConstantPool) Utf8(index uint16) (string, error) {
	e, err := cp.expect(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return e.Utf8, nil
}

// ClassName returns the name referenced by a Class entry.
func (cp *ConstantPool) ClassName(index uint16) (string, error) {
	e, err := cp.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return cp.Utf8(e.A)
}

// NameAndType extracts the name and descriptor of a NameAndType entry.
func (cp *ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	e, err := cp.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = cp.Utf8(e.A); err != nil {
		return "", "", err
	}
	if descriptor, err = cp.Utf8(e.B); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// MemberRef extracts the symbolic parts of a field or method reference.
func (cp *ConstantPool) MemberRef(index uint16) (class, name, descriptor string, err error) {
	e, err := cp.expect(index, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return "", "", "", err
	}
	if class, err = cp.ClassName(e.A); err != nil {
		return "", "", "", err
	}
	name, descriptor, err = cp.NameAndType(e.B)
	return class, name, descriptor, err
}

// cell returns the resolution cell for index.
func (cp *ConstantPool) cell(index uint16) *cell {
	return &cp.cells[index]
}

// IsResolved reports whether the entry at index has a memoized outcome.
func (cp *ConstantPool) IsResolved(index uint16) bool {
	return int(index) < len(cp.cells) && cp.cells[index].state == cellResolved
}

// settle records an outcome in the cell at index unless one is already
// present, and returns the cell's final content.
func settle[T any](cp *ConstantPool, index uint16, r Result[T]) Result[T] {
	c := cp.cell(index)
	if c.state == cellResolved {
		return cached[T](c)
	}
	if r.IsDefer() {
		return r
	}
	c.state = cellResolved
	c.value = r.value
	c.err = r.err
	return r
}

// settleDenied records a member that resolved but failed the access check.
func settleDenied[T any](cp *ConstantPool, index uint16, member T, err *Throwable) Result[T] {
	c := cp.cell(index)
	if c.state == cellResolved {
		return cached[T](c)
	}
	c.state = cellResolved
	c.value = member
	c.err = err
	return Failure[T](err)
}

func cached[T any](c *cell) Result[T] {
	if c.err != nil {
		return Failure[T](c.err)
	}
	v, _ := c.value.(T)
	return Success(v)
}
