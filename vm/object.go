package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Object: heap instances and arrays
// ---------------------------------------------------------------------------

var identityCounter atomic.Int32

// Object is a guest object or array. Instance fields are indexed by
// Field.Slot; array elements live in Elems. Payload carries host-side state
// for runtime-owned classes (a *Class for mirrors, a *Thread for thread
// objects, the Go string for strings).
type Object struct {
	class   *Class
	fields  []Value
	elems   []Value
	monitor *Monitor
	hash    int32
	Payload any
}

// NewObject allocates an instance of c with default field values.
func NewObject(c *Class) *Object {
	o := &Object{class: c, fields: make([]Value, c.instanceSlots)}
	for k := c; k != nil; k = k.Super {
		for _, f := range k.Fields {
			if !f.IsStatic() {
				o.fields[f.Slot] = zeroValue(f.Descriptor)
			}
		}
	}
	return o
}

// NewArray allocates an array of class c (an array class) with length
// default elements.
func NewArray(c *Class, length int) *Object {
	zero := zeroValue(c.Component.Descriptor())
	elems := make([]Value, length)
	for i := range elems {
		elems[i] = zero
	}
	return &Object{class: c, elems: elems}
}

// Class returns the runtime class of o.
func (o *Object) Class() *Class { return o.class }

// IsArray reports whether o is an array.
func (o *Object) IsArray() bool { return o.class.IsArray() }

// Len returns the array length.
func (o *Object) Len() int { return len(o.elems) }

// Elems returns the array elements. The slice aliases the array.
func (o *Object) Elems() []Value { return o.elems }

// Get returns the value of an instance field.
func (o *Object) Get(f *Field) Value { return o.fields[f.Slot] }

// Set stores an instance field value.
func (o *Object) Set(f *Field, v Value) { o.fields[f.Slot] = v }

// GetNamed returns the field named name, or Void if o has no such field.
func (o *Object) GetNamed(name string) Value {
	if f := o.class.FieldByName(name); f != nil && !f.IsStatic() {
		return o.fields[f.Slot]
	}
	return Void
}

// SetNamed stores into the field named name, reporting whether it exists.
func (o *Object) SetNamed(name string, v Value) bool {
	if f := o.class.FieldByName(name); f != nil && !f.IsStatic() {
		o.fields[f.Slot] = v
		return true
	}
	return false
}

// IdentityHash returns a stable per-object hash code.
func (o *Object) IdentityHash() int32 {
	if o.hash == 0 {
		o.hash = identityCounter.Add(0x61c88647) | 1
	}
	return o.hash
}

// Monitor returns the object's monitor, creating it on first use.
func (o *Object) Monitor() *Monitor {
	if o.monitor == nil {
		o.monitor = &Monitor{}
	}
	return o.monitor
}

// Clone returns a shallow copy with a fresh identity and monitor.
func (o *Object) Clone() *Object {
	c := &Object{class: o.class, Payload: o.Payload}
	if o.fields != nil {
		c.fields = append([]Value(nil), o.fields...)
	}
	if o.elems != nil {
		c.elems = append([]Value(nil), o.elems...)
	}
	return c
}

func (o *Object) String() string {
	if s, ok := o.Payload.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if o.IsArray() {
		return fmt.Sprintf("%s[%d]", o.class.Name, len(o.elems))
	}
	return fmt.Sprintf("%s@%x", o.class.Name, uint32(o.IdentityHash()))
}
