package vm

// ---------------------------------------------------------------------------
// Constant pool resolution
// ---------------------------------------------------------------------------

// Every symbolic entry resolves at most once. The outcome, success or
// error, is memoized in the entry's cell and returned verbatim on every
// later request. Class cells store a ClassID into the arena.

func malformed(err error) *Throwable {
	return NewThrowable(ClassFormatError, "%v", err)
}

// ResolveClass resolves the Class entry at index on behalf of from.
func (vm *VM) ResolveClass(cp *ConstantPool, index uint16, from *Class) Result[*Class] {
	name, err := cp.ClassName(index)
	if err != nil {
		return Failure[*Class](malformed(err))
	}
	c := cp.cell(index)
	if c.state == cellResolved {
		if c.err != nil {
			return Failure[*Class](c.err)
		}
		return Success(vm.Classes.Get(c.value.(ClassID)))
	}
	r := vm.LoadClass(name)
	c.state = cellResolved
	if !r.IsSuccess() {
		c.err = r.Err()
		vm.log.Debugf("resolve %s: %s", name, c.err)
		return r
	}
	cls := r.Value()
	c.value = cls.ID
	if !classAccessible(from, cls) {
		c.err = NewThrowable(IllegalAccessError, "failed to access class %s from class %s", JavaName(cls.Name), JavaName(from.Name))
		return Failure[*Class](c.err)
	}
	return Success(cls)
}

// ResolveField resolves the Fieldref at index on behalf of from.
func (vm *VM) ResolveField(cp *ConstantPool, index uint16, from *Class) Result[*Field] {
	e, err := cp.expect(index, TagFieldref)
	if err != nil {
		return Failure[*Field](malformed(err))
	}
	if cp.IsResolved(index) {
		return cached[*Field](cp.cell(index))
	}
	cr := vm.ResolveClass(cp, e.A, from)
	if !cr.IsSuccess() {
		return settle(cp, index, recast[*Class, *Field](cr))
	}
	name, desc, err := cp.NameAndType(e.B)
	if err != nil {
		return settle(cp, index, Failure[*Field](malformed(err)))
	}
	symbolic := cr.Value()
	f := findField(symbolic, name, desc)
	if f == nil {
		return settle(cp, index, Failure[*Field](NewThrowable(NoSuchFieldError, "%s", name)))
	}
	if !memberAccessible(from, f.Access, f.DeclaringClass(), symbolic, f.IsStatic()) {
		return settleDenied(cp, index, f, accessDenied(visibility(f.Access)+" field", from, f.String()))
	}
	return settle(cp, index, Success(f))
}

// ResolveMethod resolves the Methodref or InterfaceMethodref at index on
// behalf of from.
func (vm *VM) ResolveMethod(cp *ConstantPool, index uint16, from *Class) Result[*Method] {
	e, err := cp.expect(index, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return Failure[*Method](malformed(err))
	}
	if cp.IsResolved(index) {
		return cached[*Method](cp.cell(index))
	}
	cr := vm.ResolveClass(cp, e.A, from)
	if !cr.IsSuccess() {
		return settle(cp, index, recast[*Class, *Method](cr))
	}
	name, desc, err := cp.NameAndType(e.B)
	if err != nil {
		return settle(cp, index, Failure[*Method](malformed(err)))
	}
	symbolic := cr.Value()
	var r Result[*Method]
	if e.Tag == TagInterfaceMethodref {
		r = vm.resolveInterfaceMethod(symbolic, name, desc)
	} else {
		r = vm.resolveMethod(symbolic, name, desc)
	}
	if !r.IsSuccess() {
		vm.log.Debugf("resolve %s.%s%s: %s", symbolic.Name, name, desc, r.Err())
		return settle(cp, index, r)
	}
	m := r.Value()
	if !memberAccessible(from, m.Access, m.DeclaringClass(), symbolic, m.IsStatic()) {
		return settleDenied(cp, index, m, accessDenied(visibility(m.Access)+" method", from, m.String()))
	}
	return settle(cp, index, r)
}

// symbolicClass returns the class named by a member reference.
func (vm *VM) symbolicClass(cp *ConstantPool, index uint16, from *Class) Result[*Class] {
	e, err := cp.expect(index, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return Failure[*Class](malformed(err))
	}
	return vm.ResolveClass(cp, e.A, from)
}

// ResolveString returns the interned String for the String entry at index.
func (vm *VM) ResolveString(cp *ConstantPool, index uint16) Result[*Object] {
	e, err := cp.expect(index, TagString)
	if err != nil {
		return Failure[*Object](malformed(err))
	}
	if cp.IsResolved(index) {
		return cached[*Object](cp.cell(index))
	}
	s, err := cp.Utf8(e.A)
	if err != nil {
		return settle(cp, index, Failure[*Object](malformed(err)))
	}
	return settle(cp, index, Success(vm.Intern(s)))
}

// Mirror returns the java/lang/Class object for c.
func (vm *VM) Mirror(c *Class) *Object {
	if c.mirror == nil {
		m := NewObject(vm.ClassClass)
		m.Payload = c
		c.mirror = m
	}
	return c.mirror
}

// ClassOfMirror returns the class a java/lang/Class object mirrors.
func ClassOfMirror(o *Object) *Class {
	if o == nil {
		return nil
	}
	c, _ := o.Payload.(*Class)
	return c
}

// Box wraps a primitive value in its java/lang wrapper object.
func (vm *VM) Box(v Value) Result[*Object] {
	var name string
	switch v.Kind() {
	case KindInt:
		name = "java/lang/Integer"
	case KindLong:
		name = "java/lang/Long"
	case KindFloat:
		name = "java/lang/Float"
	case KindDouble:
		name = "java/lang/Double"
	case KindRef:
		return Success(v.Ref())
	default:
		return Failure[*Object](NewThrowable(InternalError, "cannot box %s", v.Kind()))
	}
	r := vm.LoadClass(name)
	if !r.IsSuccess() {
		return recast[*Class, *Object](r)
	}
	o := NewObject(r.Value())
	o.SetNamed("value", v)
	return Success(o)
}

// ---------------------------------------------------------------------------
// Method handles, method types and call sites
// ---------------------------------------------------------------------------

// These entries are linked by upcalls into java/lang/invoke/MethodHandleNatives.
// An upcall runs above an internal frame whose callbacks fill the cell;
// the resolving instruction gets Defer and runs again once it is done.

// methodHandleNatives returns the initialized MethodHandleNatives class.
func (t *Thread) methodHandleNatives() Result[*Class] {
	r := t.vm.LoadClass(methodHandleNativesClass)
	if !r.IsSuccess() {
		return r
	}
	return t.ensureInitialized(r.Value())
}

func declaredMethodNamed(c *Class, name string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.IsStatic() {
			return m
		}
	}
	return nil
}

// upcall runs the static MethodHandleNatives method name with args and
// settles the cell at index with its outcome, converted by done.
func upcall[T any](t *Thread, mhn *Class, name string, args []Value, cp *ConstantPool, index uint16, done func(Value) Result[T]) Result[T] {
	m := declaredMethodNamed(mhn, name)
	if m == nil {
		return settle(cp, index, Failure[T](NewThrowable(NoSuchMethodError, "%s.%s", JavaName(mhn.Name), name)))
	}
	t.Upcall(name, m, args,
		func(t *Thread, v Value) { settle(cp, index, done(v)) },
		func(t *Thread, exc *Object) { settle(cp, index, Failure[T](ThrowableOf(exc))) })
	// A native upcall completes synchronously. A failure has already been
	// thrown on t, so the caller must not raise it again.
	if cp.IsResolved(index) && cp.cell(index).err == nil {
		return cached[T](cp.cell(index))
	}
	return Deferred[T]()
}

// methodTypeFor returns the MethodType object for descriptor. Types are
// shared per VM; the first request for a descriptor upcalls
// findMethodHandleType and returns Defer.
func (t *Thread) methodTypeFor(mhn *Class, descriptor string, cp *ConstantPool, index uint16) Result[*Object] {
	if mt, ok := t.vm.methodTypes[descriptor]; ok {
		return Success(mt)
	}
	sig, err := ParseMethodDescriptor(descriptor)
	if err != nil {
		return settle(cp, index, Failure[*Object](malformed(err)))
	}
	rt := t.vm.classForDescriptor(sig.Return)
	if !rt.IsSuccess() {
		return settle(cp, index, recast[*Class, *Object](rt))
	}
	ptypes := NewArray(t.vm.arrayClass("[Ljava/lang/Class;"), len(sig.Params))
	for i, p := range sig.Params {
		pt := t.vm.classForDescriptor(p)
		if !pt.IsSuccess() {
			return settle(cp, index, recast[*Class, *Object](pt))
		}
		ptypes.elems[i] = FromRef(t.vm.Mirror(pt.Value()))
	}
	m := declaredMethodNamed(mhn, "findMethodHandleType")
	if m == nil {
		return settle(cp, index, Failure[*Object](NewThrowable(NoSuchMethodError, "%s.findMethodHandleType", JavaName(mhn.Name))))
	}
	t.Upcall("findMethodHandleType", m, []Value{FromRef(t.vm.Mirror(rt.Value())), FromRef(ptypes)},
		func(t *Thread, v Value) { t.vm.methodTypes[descriptor] = v.Ref() },
		func(t *Thread, exc *Object) { settle(cp, index, Failure[*Object](ThrowableOf(exc))) })
	if mt, ok := t.vm.methodTypes[descriptor]; ok {
		return Success(mt)
	}
	return Deferred[*Object]()
}

// ResolveMethodType resolves the MethodType entry at index.
func (t *Thread) ResolveMethodType(cp *ConstantPool, index uint16, from *Class) Result[*Object] {
	e, err := cp.expect(index, TagMethodType)
	if err != nil {
		return Failure[*Object](malformed(err))
	}
	if cp.IsResolved(index) {
		return cached[*Object](cp.cell(index))
	}
	mhn := t.methodHandleNatives()
	if !mhn.IsSuccess() {
		if mhn.IsDefer() {
			return Deferred[*Object]()
		}
		return settle(cp, index, recast[*Class, *Object](mhn))
	}
	desc, err := cp.Utf8(e.A)
	if err != nil {
		return settle(cp, index, Failure[*Object](malformed(err)))
	}
	r := t.methodTypeFor(mhn.Value(), desc, cp, index)
	if r.IsDefer() {
		return r
	}
	return settle(cp, index, r)
}

// ResolveMethodHandle resolves the MethodHandle entry at index through
// MethodHandleNatives.linkMethodHandleConstant.
func (t *Thread) ResolveMethodHandle(cp *ConstantPool, index uint16, from *Class) Result[*Object] {
	e, err := cp.expect(index, TagMethodHandle)
	if err != nil {
		return Failure[*Object](malformed(err))
	}
	if cp.IsResolved(index) {
		return cached[*Object](cp.cell(index))
	}
	mhn := t.methodHandleNatives()
	if !mhn.IsSuccess() {
		if mhn.IsDefer() {
			return Deferred[*Object]()
		}
		return settle(cp, index, recast[*Class, *Object](mhn))
	}

	var (
		declarer *Class
		name     string
		typ      Value
	)
	switch e.RefKind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		fr := t.vm.ResolveField(cp, e.A, from)
		if !fr.IsSuccess() {
			return settle(cp, index, recast[*Field, *Object](fr))
		}
		f := fr.Value()
		ft := t.vm.classForDescriptor(f.Descriptor)
		if !ft.IsSuccess() {
			return settle(cp, index, recast[*Class, *Object](ft))
		}
		declarer, name, typ = f.DeclaringClass(), f.Name, FromRef(t.vm.Mirror(ft.Value()))
	case RefInvokeVirtual, RefInvokeStatic, RefInvokeSpecial, RefNewInvokeSpecial, RefInvokeInterface:
		mr := t.vm.ResolveMethod(cp, e.A, from)
		if !mr.IsSuccess() {
			return settle(cp, index, recast[*Method, *Object](mr))
		}
		m := mr.Value()
		mt := t.methodTypeFor(mhn.Value(), m.Descriptor, cp, index)
		if !mt.IsSuccess() {
			return mt
		}
		declarer, name, typ = m.DeclaringClass(), m.Name, FromRef(mt.Value())
	default:
		return settle(cp, index, Failure[*Object](NewThrowable(ClassFormatError, "bad method handle kind %d", e.RefKind)))
	}

	args := []Value{
		FromRef(t.vm.Mirror(from)),
		FromInt(int32(e.RefKind)),
		FromRef(t.vm.Mirror(declarer)),
		FromRef(t.vm.Intern(name)),
		typ,
	}
	return upcall(t, mhn.Value(), "linkMethodHandleConstant", args, cp, index, func(v Value) Result[*Object] {
		return Success(v.Ref())
	})
}

// ResolveCallSite links the InvokeDynamic entry at index: the bootstrap
// method handle and static arguments are resolved, then
// MethodHandleNatives.linkCallSite produces the target.
func (t *Thread) ResolveCallSite(cp *ConstantPool, index uint16, from *Class) Result[*CallSite] {
	e, err := cp.expect(index, TagInvokeDynamic)
	if err != nil {
		return Failure[*CallSite](malformed(err))
	}
	if cp.IsResolved(index) {
		return cached[*CallSite](cp.cell(index))
	}
	mhn := t.methodHandleNatives()
	if !mhn.IsSuccess() {
		if mhn.IsDefer() {
			return Deferred[*CallSite]()
		}
		return settle(cp, index, recast[*Class, *CallSite](mhn))
	}
	if int(e.A) >= len(from.BootstrapMethods) {
		return settle(cp, index, Failure[*CallSite](NewThrowable(ClassFormatError, "bootstrap method %d out of range", e.A)))
	}
	bsm := from.BootstrapMethods[e.A]
	handle := t.ResolveMethodHandle(cp, bsm.MethodRef, from)
	if !handle.IsSuccess() {
		if handle.IsDefer() {
			return Deferred[*CallSite]()
		}
		return settle(cp, index, recast[*Object, *CallSite](handle))
	}
	static := NewArray(t.vm.arrayClass("[Ljava/lang/Object;"), len(bsm.Args))
	for i, a := range bsm.Args {
		v := t.resolveLoadable(cp, a, from)
		if !v.IsSuccess() {
			if v.IsDefer() {
				return Deferred[*CallSite]()
			}
			return settle(cp, index, recast[Value, *CallSite](v))
		}
		boxed := t.vm.Box(v.Value())
		if !boxed.IsSuccess() {
			return settle(cp, index, recast[*Object, *CallSite](boxed))
		}
		static.elems[i] = FromRef(boxed.Value())
	}
	name, desc, err := cp.NameAndType(e.B)
	if err != nil {
		return settle(cp, index, Failure[*CallSite](malformed(err)))
	}
	mt := t.methodTypeFor(mhn.Value(), desc, cp, index)
	if !mt.IsSuccess() {
		return recast[*Object, *CallSite](mt)
	}

	appendix := NewArray(t.vm.arrayClass("[Ljava/lang/Object;"), 1)
	args := []Value{
		FromRef(t.vm.Mirror(from)),
		FromRef(handle.Value()),
		FromRef(t.vm.Intern(name)),
		FromRef(mt.Value()),
		FromRef(static),
		FromRef(appendix),
	}
	return upcall(t, mhn.Value(), "linkCallSite", args, cp, index, func(v Value) Result[*CallSite] {
		target, ok := v.Ref().payloadMethod()
		if !ok {
			return Failure[*CallSite](NewThrowable(InternalError, "call site %s%s was not linked to a method", name, desc))
		}
		return Success(&CallSite{Target: target, Appendix: appendix.elems[0].Ref()})
	})
}

func (o *Object) payloadMethod() (*Method, bool) {
	if o == nil {
		return nil, false
	}
	m, ok := o.Payload.(*Method)
	return m, ok
}

// resolveLoadable returns the value an ldc of the entry at index pushes.
func (t *Thread) resolveLoadable(cp *ConstantPool, index uint16, from *Class) Result[Value] {
	e, err := cp.Entry(index)
	if err != nil {
		return Failure[Value](malformed(err))
	}
	switch e.Tag {
	case TagInteger:
		return Success(FromInt(e.Int))
	case TagFloat:
		return Success(FromFloat(e.Float))
	case TagLong:
		return Success(FromLong(e.Long))
	case TagDouble:
		return Success(FromDouble(e.Double))
	case TagString:
		return refResult(t.vm.ResolveString(cp, index))
	case TagClass:
		r := t.vm.ResolveClass(cp, index, from)
		if !r.IsSuccess() {
			return recast[*Class, Value](r)
		}
		return Success(FromRef(t.vm.Mirror(r.Value())))
	case TagMethodType:
		return refResult(t.ResolveMethodType(cp, index, from))
	case TagMethodHandle:
		return refResult(t.ResolveMethodHandle(cp, index, from))
	}
	return Failure[Value](NewThrowable(ClassFormatError, "constant %d (%s) is not loadable", index, e.Tag))
}

func refResult(r Result[*Object]) Result[Value] {
	if !r.IsSuccess() {
		return recast[*Object, Value](r)
	}
	return Success(FromRef(r.Value()))
}
