package vm

// Array element loads and stores, arraylength and the allocation opcodes.

func registerArrays() {
	for _, op := range []Opcode{OpIaload, OpFaload, OpAaload, OpBaload, OpCaload, OpSaload} {
		instructions[op] = func(t *Thread, f *JavaFrame) { arrayLoad(t, f, false) }
	}
	for _, op := range []Opcode{OpLaload, OpDaload} {
		instructions[op] = func(t *Thread, f *JavaFrame) { arrayLoad(t, f, true) }
	}
	instructions[OpIastore] = func(t *Thread, f *JavaFrame) { arrayStore(t, f, false, nil) }
	instructions[OpFastore] = func(t *Thread, f *JavaFrame) { arrayStore(t, f, false, nil) }
	instructions[OpLastore] = func(t *Thread, f *JavaFrame) { arrayStore(t, f, true, nil) }
	instructions[OpDastore] = func(t *Thread, f *JavaFrame) { arrayStore(t, f, true, nil) }
	instructions[OpBastore] = func(t *Thread, f *JavaFrame) {
		arrayStore(t, f, false, func(arr *Object, v Value) Value {
			if arr.Class().Name == "[Z" {
				return FromInt(v.Int() & 1)
			}
			return FromInt(i2b(v.Int()))
		})
	}
	instructions[OpCastore] = func(t *Thread, f *JavaFrame) {
		arrayStore(t, f, false, func(_ *Object, v Value) Value { return FromInt(i2c(v.Int())) })
	}
	instructions[OpSastore] = func(t *Thread, f *JavaFrame) {
		arrayStore(t, f, false, func(_ *Object, v Value) Value { return FromInt(i2s(v.Int())) })
	}
	instructions[OpAastore] = opAastore
	instructions[OpArraylength] = func(t *Thread, f *JavaFrame) {
		ref := f.Pop()
		if ref.IsNull() {
			t.Raise(NullPointerException, "Cannot read the array length because value is null")
			return
		}
		f.Push(FromInt(int32(ref.Ref().Len())))
		f.PC++
	}
	instructions[OpNewarray] = opNewarray
	instructions[OpAnewarray] = opAnewarray
	instructions[OpMultianewarray] = opMultianewarray
}

// checkIndex raises NullPointerException or ArrayIndexOutOfBoundsException
// and reports false when ref[index] is not a valid element.
func checkIndex(t *Thread, ref Value, index int32) bool {
	if ref.IsNull() {
		t.Raise(NullPointerException, "Cannot load from or store to a null array")
		return false
	}
	if index < 0 || int(index) >= ref.Ref().Len() {
		t.Raise(ArrayIndexOutOfBoundsException, "Index %d out of bounds for length %d", index, ref.Ref().Len())
		return false
	}
	return true
}

func arrayLoad(t *Thread, f *JavaFrame, wide bool) {
	index := f.Pop().Int()
	ref := f.Pop()
	if !checkIndex(t, ref, index) {
		return
	}
	v := ref.Ref().elems[index]
	if wide {
		f.Push64(v)
	} else {
		f.Push(v)
	}
	f.PC++
}

// arrayStore stores the top value into an array; narrow, when non-nil,
// truncates it to the element type.
func arrayStore(t *Thread, f *JavaFrame, wide bool, narrow func(*Object, Value) Value) {
	var v Value
	if wide {
		v = f.Pop64()
	} else {
		v = f.Pop()
	}
	index := f.Pop().Int()
	ref := f.Pop()
	if !checkIndex(t, ref, index) {
		return
	}
	arr := ref.Ref()
	if narrow != nil {
		v = narrow(arr, v)
	}
	arr.elems[index] = v
	f.PC++
}

func opAastore(t *Thread, f *JavaFrame) {
	v := f.Pop()
	index := f.Pop().Int()
	ref := f.Pop()
	if !checkIndex(t, ref, index) {
		return
	}
	arr := ref.Ref()
	if !v.IsNull() && !v.Ref().Class().IsAssignableTo(arr.Class().Component) {
		t.Raise(ArrayStoreException, "%s", JavaName(v.Ref().Class().Name))
		return
	}
	arr.elems[index] = v
	f.PC++
}

// newarray atype operand values.
var newarrayTypes = map[uint8]string{
	4:  "[Z",
	5:  "[C",
	6:  "[F",
	7:  "[D",
	8:  "[B",
	9:  "[S",
	10: "[I",
	11: "[J",
}

func opNewarray(t *Thread, f *JavaFrame) {
	name, ok := newarrayTypes[f.u8(1)]
	if !ok {
		panic(fault("newarray with bad atype %d", f.u8(1)))
	}
	count := f.Pop().Int()
	if count < 0 {
		t.Raise(NegativeArraySizeException, "%d", count)
		return
	}
	f.Push(FromRef(NewArray(t.vm.arrayClass(name), int(count))))
	f.PC += 2
}

func opAnewarray(t *Thread, f *JavaFrame) {
	component, ok := settled(t, t.vm.ResolveClass(f.Class.Pool, f.u16(1), f.Class))
	if !ok {
		return
	}
	c, ok := settled(t, t.vm.LoadClass("["+component.Descriptor()))
	if !ok {
		return
	}
	count := f.Pop().Int()
	if count < 0 {
		t.Raise(NegativeArraySizeException, "%d", count)
		return
	}
	f.Push(FromRef(NewArray(c, int(count))))
	f.PC += 3
}

func opMultianewarray(t *Thread, f *JavaFrame) {
	c, ok := settled(t, t.vm.ResolveClass(f.Class.Pool, f.u16(1), f.Class))
	if !ok {
		return
	}
	dims := int(f.u8(3))
	if dims < 1 {
		panic(fault("multianewarray with %d dimensions", dims))
	}
	counts := make([]int, dims)
	for i := dims - 1; i >= 0; i-- {
		n := f.Pop().Int()
		if n < 0 {
			t.Raise(NegativeArraySizeException, "%d", n)
			return
		}
		counts[i] = int(n)
	}
	f.Push(FromRef(newMultiArray(c, counts)))
	f.PC += 4
}

// newMultiArray allocates nested arrays for each requested dimension;
// deeper dimensions keep their default null elements.
func newMultiArray(c *Class, counts []int) *Object {
	arr := NewArray(c, counts[0])
	if len(counts) > 1 && c.Component.IsArray() {
		for i := range arr.elems {
			arr.elems[i] = FromRef(newMultiArray(c.Component, counts[1:]))
		}
	}
	return arr
}
