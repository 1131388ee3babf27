package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Value: a single operand-stack or local-variable slot
// ---------------------------------------------------------------------------

// Kind identifies the computational type held by a Value.
type Kind uint8

const (
	KindVoid          Kind = iota // no value (void returns, unset locals)
	KindInt                       // int32, also boolean/byte/char/short
	KindLong                      // int64, occupies two slots
	KindFloat                     // IEEE754 binary32
	KindDouble                    // IEEE754 binary64, occupies two slots
	KindRef                       // object or array reference, possibly null
	KindReturnAddress             // jsr/ret target
)

var kindNames = [...]string{"void", "int", "long", "float", "double", "ref", "returnAddress"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Wide reports whether values of this kind occupy two slots.
func (k Kind) Wide() bool {
	return k == KindLong || k == KindDouble
}

// Value is an immutable tagged slot value. Numeric payloads live in bits;
// references live in ref. A wide value is stored in both of its slots.
type Value struct {
	kind Kind
	bits uint64
	ref  *Object
}

// Null is the null reference.
var Null = Value{kind: KindRef}

// Void is the absent value returned by void methods.
var Void = Value{}

// FromInt creates an int value.
func FromInt(v int32) Value {
	return Value{kind: KindInt, bits: uint64(uint32(v))}
}

// FromBool creates an int value of 1 or 0.
func FromBool(b bool) Value {
	if b {
		return FromInt(1)
	}
	return FromInt(0)
}

// FromLong creates a long value.
func FromLong(v int64) Value {
	return Value{kind: KindLong, bits: uint64(v)}
}

// FromFloat creates a float value. The binary32 bit pattern is preserved,
// including NaN payloads and the sign of zero.
func FromFloat(v float32) Value {
	return Value{kind: KindFloat, bits: uint64(math.Float32bits(v))}
}

// FromDouble creates a double value.
func FromDouble(v float64) Value {
	return Value{kind: KindDouble, bits: math.Float64bits(v)}
}

// FromRef creates a reference value. A nil object yields Null.
func FromRef(o *Object) Value {
	return Value{kind: KindRef, ref: o}
}

// FromReturnAddress creates a jsr return address.
func FromReturnAddress(pc int) Value {
	return Value{kind: KindReturnAddress, bits: uint64(pc)}
}

// Kind returns the computational type of v.
func (v Value) Kind() Kind { return v.kind }

// IsVoid reports whether v carries no value.
func (v Value) IsVoid() bool { return v.kind == KindVoid }

// IsWide reports whether v occupies two slots.
func (v Value) IsWide() bool { return v.kind.Wide() }

// Int returns the int payload.
func (v Value) Int() int32 { return int32(uint32(v.bits)) }

// Long returns the long payload.
func (v Value) Long() int64 { return int64(v.bits) }

// Float returns the float payload.
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }

// Double returns the double payload.
func (v Value) Double() float64 { return math.Float64frombits(v.bits) }

// Ref returns the referenced object, or nil for null.
func (v Value) Ref() *Object { return v.ref }

// IsNull reports whether v is a null reference.
func (v Value) IsNull() bool { return v.kind == KindRef && v.ref == nil }

// ReturnAddress returns the jsr target pc.
func (v Value) ReturnAddress() int { return int(v.bits) }

// Bool returns the int payload as a boolean.
func (v Value) Bool() bool { return v.Int() != 0 }

func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindInt:
		return fmt.Sprintf("%d", v.Int())
	case KindLong:
		return fmt.Sprintf("%dL", v.Long())
	case KindFloat:
		return fmt.Sprintf("%gf", v.Float())
	case KindDouble:
		return fmt.Sprintf("%gd", v.Double())
	case KindRef:
		if v.ref == nil {
			return "null"
		}
		return v.ref.String()
	case KindReturnAddress:
		return fmt.Sprintf("ret@%d", v.bits)
	}
	return "?"
}

// zeroValue returns the default value for a field descriptor.
func zeroValue(descriptor string) Value {
	if descriptor == "" {
		return Null
	}
	switch descriptor[0] {
	case 'J':
		return FromLong(0)
	case 'F':
		return FromFloat(0)
	case 'D':
		return FromDouble(0)
	case 'L', '[':
		return Null
	}
	return FromInt(0)
}
