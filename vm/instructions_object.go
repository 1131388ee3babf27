package vm

// Field access, invocation, allocation, type checks, athrow and monitors.

func registerObjects() {
	instructions[OpGetstatic] = opGetstatic
	instructions[OpPutstatic] = opPutstatic
	instructions[OpGetfield] = opGetfield
	instructions[OpPutfield] = opPutfield
	instructions[OpInvokevirtual] = opInvokevirtual
	instructions[OpInvokespecial] = opInvokespecial
	instructions[OpInvokestatic] = opInvokestatic
	instructions[OpInvokeinterface] = opInvokeinterface
	instructions[OpInvokedynamic] = opInvokedynamic
	instructions[OpNew] = opNew
	instructions[OpAthrow] = opAthrow
	instructions[OpCheckcast] = opCheckcast
	instructions[OpInstanceof] = opInstanceof
	instructions[OpMonitorenter] = opMonitorenter
	instructions[OpMonitorexit] = opMonitorexit
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// staticField resolves the static field operand and initializes its
// declaring class.
func staticField(t *Thread, f *JavaFrame) (*Field, bool) {
	fld, ok := settled(t, t.vm.ResolveField(f.Class.Pool, f.u16(1), f.Class))
	if !ok {
		return nil, false
	}
	if !fld.IsStatic() {
		t.Raise(IncompatibleClassChangeError, "Expected static field %s", fld)
		return nil, false
	}
	if _, ok := settled(t, t.ensureInitialized(fld.DeclaringClass())); !ok {
		return nil, false
	}
	return fld, true
}

func instanceField(t *Thread, f *JavaFrame) (*Field, bool) {
	fld, ok := settled(t, t.vm.ResolveField(f.Class.Pool, f.u16(1), f.Class))
	if !ok {
		return nil, false
	}
	if fld.IsStatic() {
		t.Raise(IncompatibleClassChangeError, "Expected non-static field %s", fld)
		return nil, false
	}
	return fld, true
}

// finalWriteAllowed reports whether f may store into fld: a final field
// only from code in its declaring class.
func finalWriteAllowed(t *Thread, f *JavaFrame, fld *Field) bool {
	if fld.Access.IsFinal() && fld.DeclaringClass() != f.Class {
		kind := "non-static"
		if fld.IsStatic() {
			kind = "static"
		}
		t.Raise(IllegalAccessError, "Update to %s final field %s attempted from a different class (%s)", kind, fld, JavaName(f.Class.Name))
		return false
	}
	return true
}

func popField(f *JavaFrame, fld *Field) Value {
	if fld.Kind().Wide() {
		return f.Pop64()
	}
	return f.Pop()
}

func opGetstatic(t *Thread, f *JavaFrame) {
	fld, ok := staticField(t, f)
	if !ok {
		return
	}
	f.PushValue(fld.DeclaringClass().StaticValue(fld))
	f.PC += 3
}

func opPutstatic(t *Thread, f *JavaFrame) {
	fld, ok := staticField(t, f)
	if !ok || !finalWriteAllowed(t, f, fld) {
		return
	}
	fld.DeclaringClass().SetStaticValue(fld, popField(f, fld))
	f.PC += 3
}

func opGetfield(t *Thread, f *JavaFrame) {
	fld, ok := instanceField(t, f)
	if !ok {
		return
	}
	ref := f.Pop()
	if ref.IsNull() {
		t.Raise(NullPointerException, "Cannot read field %q because value is null", fld.Name)
		return
	}
	f.PushValue(ref.Ref().Get(fld))
	f.PC += 3
}

func opPutfield(t *Thread, f *JavaFrame) {
	fld, ok := instanceField(t, f)
	if !ok || !finalWriteAllowed(t, f, fld) {
		return
	}
	v := popField(f, fld)
	ref := f.Pop()
	if ref.IsNull() {
		t.Raise(NullPointerException, "Cannot assign field %q because value is null", fld.Name)
		return
	}
	ref.Ref().Set(fld, v)
	f.PC += 3
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// receiver returns the object m would be invoked on, raising
// NullPointerException for null.
func receiver(t *Thread, f *JavaFrame, m *Method) (*Object, bool) {
	v := f.Peek(m.Sig.ArgSlots)
	if v.IsNull() {
		t.Raise(NullPointerException, "Cannot invoke %q because value is null", m.Name)
		return nil, false
	}
	return v.Ref(), true
}

func resolvedMethod(t *Thread, f *JavaFrame) (*Method, bool) {
	return settled(t, t.vm.ResolveMethod(f.Class.Pool, f.u16(1), f.Class))
}

func opInvokevirtual(t *Thread, f *JavaFrame) {
	m, ok := resolvedMethod(t, f)
	if !ok {
		return
	}
	if m.IsStatic() {
		t.Raise(IncompatibleClassChangeError, "Expecting non-static method %s", m)
		return
	}
	recv, ok := receiver(t, f, m)
	if !ok {
		return
	}
	target, ok := t.dispatch(f, m, recv.Class())
	if !ok {
		return
	}
	t.call(f, target, f.popSlots(m.ParamSlots()), 3)
}

// opInvokespecial invokes without dispatch, except that a non-private,
// non-constructor method named through a superclass of the current class
// is looked up from the direct superclass (ACC_SUPER semantics).
func opInvokespecial(t *Thread, f *JavaFrame) {
	m, ok := resolvedMethod(t, f)
	if !ok {
		return
	}
	if m.IsStatic() {
		t.Raise(IncompatibleClassChangeError, "Expecting non-static method %s", m)
		return
	}
	target := m
	if !m.IsInit() && !m.Access.IsPrivate() && f.Class.Access&AccSuper != 0 {
		sym, ok := settled(t, t.vm.symbolicClass(f.Class.Pool, f.u16(1), f.Class))
		if !ok {
			return
		}
		if !sym.IsInterface() && sym != f.Class && f.Class.IsSubclassOf(sym) && f.Class.Super != nil {
			if target, ok = settled(t, t.vm.lookupMethod(m, f.Class.Super)); !ok {
				return
			}
		}
	}
	if _, ok := receiver(t, f, m); !ok {
		return
	}
	t.call(f, target, f.popSlots(m.ParamSlots()), 3)
}

func opInvokestatic(t *Thread, f *JavaFrame) {
	m, ok := resolvedMethod(t, f)
	if !ok {
		return
	}
	if !m.IsStatic() {
		t.Raise(IncompatibleClassChangeError, "Expected static method %s", m)
		return
	}
	if _, ok := settled(t, t.ensureInitialized(m.DeclaringClass())); !ok {
		return
	}
	t.call(f, m, f.popSlots(m.ParamSlots()), 3)
}

func opInvokeinterface(t *Thread, f *JavaFrame) {
	m, ok := resolvedMethod(t, f)
	if !ok {
		return
	}
	if m.IsStatic() {
		t.Raise(IncompatibleClassChangeError, "Expecting non-static method %s", m)
		return
	}
	recv, ok := receiver(t, f, m)
	if !ok {
		return
	}
	if iface := m.DeclaringClass(); iface.IsInterface() && !recv.Class().Implements(iface) {
		t.Raise(IncompatibleClassChangeError, "Class %s does not implement the requested interface %s",
			JavaName(recv.Class().Name), JavaName(iface.Name))
		return
	}
	target, ok := t.dispatch(f, m, recv.Class())
	if !ok {
		return
	}
	if !target.Access.IsPublic() && !target.Access.IsPrivate() {
		t.Raise(IllegalAccessError, "Receiver class %s must implement %s as public", JavaName(recv.Class().Name), target)
		return
	}
	t.call(f, target, f.popSlots(m.ParamSlots()), 5)
}

// opInvokedynamic calls the call site's target with the stacked arguments
// followed by the appendix, when the linker supplied one.
func opInvokedynamic(t *Thread, f *JavaFrame) {
	index := f.u16(1)
	cs, ok := settled(t, t.ResolveCallSite(f.Class.Pool, index, f.Class))
	if !ok {
		return
	}
	e, err := f.Class.Pool.expect(index, TagInvokeDynamic)
	if err != nil {
		t.ThrowError(malformed(err))
		return
	}
	_, desc, err := f.Class.Pool.NameAndType(e.B)
	if err != nil {
		t.ThrowError(malformed(err))
		return
	}
	sig, err := ParseMethodDescriptor(desc)
	if err != nil {
		t.ThrowError(malformed(err))
		return
	}
	args := f.popSlots(sig.ArgSlots)
	if cs.Appendix != nil {
		args = append(args, FromRef(cs.Appendix))
	}
	t.call(f, cs.Target, args, 5)
}

// ---------------------------------------------------------------------------
// Objects and types
// ---------------------------------------------------------------------------

func opNew(t *Thread, f *JavaFrame) {
	c, ok := settled(t, t.vm.ResolveClass(f.Class.Pool, f.u16(1), f.Class))
	if !ok {
		return
	}
	if c.IsInterface() || c.IsAbstract() {
		t.Raise(InstantiationError, "%s", JavaName(c.Name))
		return
	}
	if _, ok := settled(t, t.ensureInitialized(c)); !ok {
		return
	}
	f.Push(FromRef(NewObject(c)))
	f.PC += 3
}

func opAthrow(t *Thread, f *JavaFrame) {
	v := f.Pop()
	if v.IsNull() {
		t.Raise(NullPointerException, "Cannot throw exception because value is null")
		return
	}
	t.Throw(v.Ref())
}

func opCheckcast(t *Thread, f *JavaFrame) {
	v := f.Peek(0)
	if v.IsNull() {
		f.PC += 3
		return
	}
	c, ok := settled(t, t.vm.ResolveClass(f.Class.Pool, f.u16(1), f.Class))
	if !ok {
		return
	}
	if !v.Ref().Class().IsAssignableTo(c) {
		t.Raise(ClassCastException, "class %s cannot be cast to class %s", JavaName(v.Ref().Class().Name), JavaName(c.Name))
		return
	}
	f.PC += 3
}

func opInstanceof(t *Thread, f *JavaFrame) {
	v := f.Peek(0)
	if v.IsNull() {
		f.Pop()
		f.Push(FromInt(0))
		f.PC += 3
		return
	}
	c, ok := settled(t, t.vm.ResolveClass(f.Class.Pool, f.u16(1), f.Class))
	if !ok {
		return
	}
	f.Pop()
	f.Push(FromBool(v.Ref().Class().IsAssignableTo(c)))
	f.PC += 3
}

// opMonitorenter leaves the reference on the stack while the thread is
// blocked so the instruction can run again when the monitor frees up.
func opMonitorenter(t *Thread, f *JavaFrame) {
	v := f.Peek(0)
	if v.IsNull() {
		f.Pop()
		t.Raise(NullPointerException, "Cannot enter synchronized block because value is null")
		return
	}
	if !v.Ref().Monitor().Enter(t) {
		return
	}
	f.Pop()
	f.PC++
}

func opMonitorexit(t *Thread, f *JavaFrame) {
	v := f.Pop()
	if v.IsNull() {
		t.Raise(NullPointerException, "Cannot exit synchronized block because value is null")
		return
	}
	if !v.Ref().Monitor().Exit(t) {
		t.Raise(IllegalMonitorStateException, "current thread is not owner")
		return
	}
	f.PC++
}
