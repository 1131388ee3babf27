package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Class: linked class metadata
// ---------------------------------------------------------------------------

// ClassID is a handle into a ClassTable. The zero ID names no class.
type ClassID int32

// NoClass is the zero ClassID.
const NoClass ClassID = 0

// ClassStatus is the initialization state of a class.
type ClassStatus uint8

const (
	StatusPrepared     ClassStatus = iota // linked, statics zeroed
	StatusInitializing                    // <clinit> running on initThread
	StatusInitialized                     // ready for use
	StatusError                           // <clinit> failed; further use raises NoClassDefFoundError
)

var statusNames = [...]string{"Prepared", "Initializing", "Initialized", "Error"}

func (s ClassStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("ClassStatus(%d)", s)
}

// BootstrapMethod is one entry of the BootstrapMethods attribute.
type BootstrapMethod struct {
	MethodRef uint16   // MethodHandle constant
	Args      []uint16 // static argument constants
}

// Class is a linked class, interface, array class or primitive class.
// Ancestor edges (Super, Interfaces) are direct pointers; everything that
// points back at a class (members, resolution cells) uses its ClassID.
type Class struct {
	ID               ClassID
	Name             string
	Access           AccessFlags
	Super            *Class
	Interfaces       []*Class
	Fields           []*Field
	Methods          []*Method
	Pool             *ConstantPool
	SourceFile       string
	NestHost         string
	BootstrapMethods []BootstrapMethod

	Component *Class // element class of an array class
	primitive byte   // descriptor character of a primitive class

	status      ClassStatus
	initThread  *Thread
	initWaiters []*Thread

	instanceSlots int
	statics       []Value
	methodIndex   map[string]*Method
	fieldIndex    map[string]*Field
	vtable        *VTable
	mirror        *Object
}

// Status returns the initialization status.
func (c *Class) Status() ClassStatus { return c.status }

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool { return c.Access.IsInterface() }

// IsAbstract reports whether c is abstract.
func (c *Class) IsAbstract() bool { return c.Access.IsAbstract() }

// IsArray reports whether c is an array class.
func (c *Class) IsArray() bool { return c.Component != nil }

// IsPrimitive reports whether c is a primitive pseudo-class such as int.
func (c *Class) IsPrimitive() bool { return c.primitive != 0 }

// Package returns the package portion of the class name.
func (c *Class) Package() string { return packageOf(c.Name) }

// Descriptor returns the field descriptor naming this class.
func (c *Class) Descriptor() string {
	if c.primitive != 0 {
		return string(c.primitive)
	}
	return classDescriptor(c.Name)
}

// InstanceSlots returns the number of instance field slots, inherited
// fields included.
func (c *Class) InstanceSlots() int { return c.instanceSlots }

// DeclaredMethod returns the method declared by c with the given name and
// descriptor, or nil.
func (c *Class) DeclaredMethod(name, descriptor string) *Method {
	return c.methodIndex[name+descriptor]
}

// DeclaredField returns the field declared by c with the given name and
// descriptor, or nil.
func (c *Class) DeclaredField(name, descriptor string) *Field {
	return c.fieldIndex[name+":"+descriptor]
}

// FieldByName returns the first field named name declared by c or a
// superclass, regardless of descriptor.
func (c *Class) FieldByName(name string) *Field {
	for k := c; k != nil; k = k.Super {
		for _, f := range k.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// FindMethod walks c and its superclasses for a declared method.
func (c *Class) FindMethod(name, descriptor string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.DeclaredMethod(name, descriptor); m != nil {
			return m
		}
	}
	return nil
}

// StaticValue returns the current value of a static field.
func (c *Class) StaticValue(f *Field) Value { return c.statics[f.Slot] }

// SetStaticValue stores a static field value.
func (c *Class) SetStaticValue(f *Field, v Value) { c.statics[f.Slot] = v }

// IsSubclassOf reports whether c equals other or has it as a superclass.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == other {
			return true
		}
	}
	return false
}

// Implements reports whether c, a superclass or a superinterface is other.
func (c *Class) Implements(other *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == other {
			return true
		}
		for _, i := range k.Interfaces {
			if i.Implements(other) {
				return true
			}
		}
	}
	return false
}

// IsAssignableTo implements checkCast: whether a value of class c may be
// stored in a variable of type target. It is reflexive and transitive over
// superclasses and superinterfaces, and follows the JVMS array rules.
func (c *Class) IsAssignableTo(target *Class) bool {
	if c == target {
		return true
	}
	if c.IsArray() {
		switch {
		case target.IsArray():
			sc, tc := c.Component, target.Component
			if sc.IsPrimitive() || tc.IsPrimitive() {
				return sc == tc
			}
			return sc.IsAssignableTo(tc)
		case target.IsInterface():
			return target.Name == "java/lang/Cloneable" || target.Name == "java/io/Serializable"
		default:
			return target.Name == "java/lang/Object"
		}
	}
	if target.IsInterface() {
		return c.Implements(target)
	}
	if c.IsInterface() {
		return target.Name == "java/lang/Object"
	}
	return c.IsSubclassOf(target)
}

func (c *Class) String() string {
	return c.Name
}

// ---------------------------------------------------------------------------
// ClassTable: the class arena
// ---------------------------------------------------------------------------

// ClassTable owns every class of one runtime and hands out ClassID handles.
// It is append-only and safe for concurrent readers.
type ClassTable struct {
	mu      sync.RWMutex
	classes []*Class
	byName  map[string]ClassID
}

// NewClassTable creates an empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make([]*Class, 1, 256), // slot 0 is NoClass
		byName:  make(map[string]ClassID),
	}
}

// Register adds c to the table and assigns its ID. Registering a second
// class with the same name returns the existing one unchanged.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if id, ok := ct.byName[c.Name]; ok {
		return ct.classes[id]
	}
	c.ID = ClassID(len(ct.classes))
	ct.classes = append(ct.classes, c)
	ct.byName[c.Name] = c.ID
	for _, m := range c.Methods {
		m.Class, m.table = c.ID, ct
	}
	for _, f := range c.Fields {
		f.Class, f.table = c.ID, ct
	}
	return c
}

// Get returns the class for id, or nil.
func (ct *ClassTable) Get(id ClassID) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if id <= NoClass || int(id) >= len(ct.classes) {
		return nil
	}
	return ct.classes[id]
}

// Lookup finds a class by internal name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if id, ok := ct.byName[name]; ok {
		return ct.classes[id]
	}
	return nil
}

// All returns all registered classes in registration order.
func (ct *ClassTable) All() []*Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make([]*Class, len(ct.classes)-1)
	copy(out, ct.classes[1:])
	return out
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes) - 1
}
