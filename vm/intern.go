package vm

import (
	"unicode/utf16"

	cmap "github.com/orcaman/concurrent-map"
)

// ---------------------------------------------------------------------------
// Strings and the intern table
// ---------------------------------------------------------------------------

// InternTable maps string contents to their canonical String object.
type InternTable struct {
	m cmap.ConcurrentMap
}

// NewInternTable creates an empty intern table.
func NewInternTable() *InternTable {
	return &InternTable{m: cmap.New()}
}

// Lookup returns the interned object for s, if any.
func (it *InternTable) Lookup(s string) (*Object, bool) {
	v, ok := it.m.Get(s)
	if !ok {
		return nil, false
	}
	return v.(*Object), true
}

// Intern returns the canonical object for s, storing o when s is new.
func (it *InternTable) Intern(s string, o *Object) *Object {
	if it.m.SetIfAbsent(s, o) {
		return o
	}
	v, _ := it.m.Get(s)
	return v.(*Object)
}

// Len returns the number of interned strings.
func (it *InternTable) Len() int { return it.m.Count() }

// NewString allocates a fresh java/lang/String holding s.
func (vm *VM) NewString(s string) *Object {
	units := utf16.Encode([]rune(s))
	chars := NewArray(vm.arrayClass("[C"), len(units))
	for i, u := range units {
		chars.elems[i] = FromInt(int32(u))
	}
	o := NewObject(vm.StringClass)
	o.SetNamed("value", FromRef(chars))
	o.Payload = s
	return o
}

// Intern returns the canonical String for s. Equal contents always yield
// the same object.
func (vm *VM) Intern(s string) *Object {
	if o, ok := vm.strings.Lookup(s); ok {
		return o
	}
	return vm.strings.Intern(s, vm.NewString(s))
}

// GoString returns the contents of a String object.
func (vm *VM) GoString(o *Object) string {
	if o == nil {
		return "null"
	}
	if s, ok := o.Payload.(string); ok {
		return s
	}
	v := o.GetNamed("value")
	if v.Kind() != KindRef || v.IsNull() {
		return ""
	}
	arr := v.Ref()
	switch arr.Class().Name {
	case "[C":
		units := make([]uint16, arr.Len())
		for i, e := range arr.elems {
			units[i] = uint16(e.Int())
		}
		return string(utf16.Decode(units))
	case "[B":
		b := make([]rune, arr.Len())
		for i, e := range arr.elems {
			b[i] = rune(uint8(e.Int()))
		}
		return string(b)
	}
	return ""
}

// NewStringArray builds a String[] from Go strings.
func (vm *VM) NewStringArray(ss []string) *Object {
	arr := NewArray(vm.arrayClass("[Ljava/lang/String;"), len(ss))
	for i, s := range ss {
		arr.elems[i] = FromRef(vm.NewString(s))
	}
	return arr
}
