package vm

// ---------------------------------------------------------------------------
// Method and field resolution (JVMS 5.4.3) and selection (JVMS 5.4.6)
// ---------------------------------------------------------------------------

// resolveMethod resolves a Methodref against symbolic, which must be a
// class: the class chain first, then the maximally specific
// superinterface methods.
func (vm *VM) resolveMethod(symbolic *Class, name, descriptor string) Result[*Method] {
	if symbolic.IsInterface() {
		return Failure[*Method](NewThrowable(IncompatibleClassChangeError, "Found interface %s, but class was expected", JavaName(symbolic.Name)))
	}
	if m := symbolic.FindMethod(name, descriptor); m != nil {
		return Success(m)
	}
	return superinterfaceMethod(symbolic, name, descriptor)
}

// resolveInterfaceMethod resolves an InterfaceMethodref against symbolic,
// which must be an interface. Public instance methods of Object are found
// too.
func (vm *VM) resolveInterfaceMethod(symbolic *Class, name, descriptor string) Result[*Method] {
	if !symbolic.IsInterface() {
		return Failure[*Method](NewThrowable(IncompatibleClassChangeError, "Found class %s, but interface was expected", JavaName(symbolic.Name)))
	}
	if m := symbolic.DeclaredMethod(name, descriptor); m != nil {
		return Success(m)
	}
	if vm.ObjectClass != nil {
		if m := vm.ObjectClass.DeclaredMethod(name, descriptor); m != nil && m.Access.IsPublic() && !m.IsStatic() {
			return Success(m)
		}
	}
	return superinterfaceMethod(symbolic, name, descriptor)
}

// superinterfaceMethod picks among the maximally specific superinterface
// methods of c: the single non-abstract one, else any abstract one. Two
// non-abstract candidates are ambiguous.
func superinterfaceMethod(c *Class, name, descriptor string) Result[*Method] {
	candidates := maximallySpecific(c, name, descriptor)
	var concrete, abstract *Method
	for _, m := range candidates {
		if m.IsAbstract() {
			if abstract == nil {
				abstract = m
			}
			continue
		}
		if concrete != nil && concrete != m {
			return Failure[*Method](NewThrowable(IncompatibleClassChangeError, "Conflicting default methods: %s %s", concrete, m))
		}
		concrete = m
	}
	switch {
	case concrete != nil:
		return Success(concrete)
	case abstract != nil:
		return Success(abstract)
	}
	return Failure[*Method](NewThrowable(NoSuchMethodError, "'%s %s.%s'", descriptor, JavaName(c.Name), name))
}

// maximallySpecific collects the non-private, non-static methods named
// name+descriptor declared in superinterfaces of c for which no
// subinterface among the candidates declares the same method.
func maximallySpecific(c *Class, name, descriptor string) []*Method {
	var all []*Method
	seen := make(map[*Class]bool)
	var visit func(i *Class)
	visit = func(i *Class) {
		if seen[i] {
			return
		}
		seen[i] = true
		if m := i.DeclaredMethod(name, descriptor); m != nil && !m.Access.IsPrivate() && !m.IsStatic() {
			all = append(all, m)
		}
		for _, s := range i.Interfaces {
			visit(s)
		}
	}
	for k := c; k != nil; k = k.Super {
		if k.IsInterface() && k != c {
			visit(k)
		}
		for _, i := range k.Interfaces {
			visit(i)
		}
	}
	out := all[:0:0]
	for _, m := range all {
		shadowed := false
		for _, other := range all {
			if other != m && other.DeclaringClass() != m.DeclaringClass() && other.DeclaringClass().Implements(m.DeclaringClass()) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, m)
		}
	}
	return out
}

// findField resolves a field: c itself, then its direct superinterfaces
// recursively, then its superclass chain.
func findField(c *Class, name, descriptor string) *Field {
	if f := c.DeclaredField(name, descriptor); f != nil {
		return f
	}
	for _, i := range c.Interfaces {
		if f := findField(i, name, descriptor); f != nil {
			return f
		}
	}
	if c.Super != nil {
		return findField(c.Super, name, descriptor)
	}
	return nil
}

// overrides reports whether m, declared in a subclass, overrides the
// resolved method r.
func overrides(m, r *Method) bool {
	if m == r {
		return true
	}
	if m.Name != r.Name || m.Descriptor != r.Descriptor || m.IsStatic() {
		return false
	}
	if m.Access.IsPrivate() || r.Access.IsPrivate() {
		return false
	}
	if r.Access.IsPublic() || r.Access.IsProtected() {
		return true
	}
	return m.DeclaringClass().Package() == r.DeclaringClass().Package()
}

// lookupMethod selects the implementation of resolved for a receiver of
// class receiver: the first overriding declaration up the class chain,
// else a unique default method.
func (vm *VM) lookupMethod(resolved *Method, receiver *Class) Result[*Method] {
	if resolved.Access.IsPrivate() {
		return Success(resolved)
	}
	for k := receiver; k != nil; k = k.Super {
		m := k.DeclaredMethod(resolved.Name, resolved.Descriptor)
		if m == nil || !overrides(m, resolved) {
			continue
		}
		if m.IsAbstract() {
			return abstractSelected(receiver, resolved)
		}
		return Success(m)
	}
	r := superinterfaceMethod(receiver, resolved.Name, resolved.Descriptor)
	if r.IsFailure() && r.Err().Class == IncompatibleClassChangeError {
		return r
	}
	if r.IsSuccess() && !r.Value().IsAbstract() {
		return r
	}
	return abstractSelected(receiver, resolved)
}

func abstractSelected(receiver *Class, resolved *Method) Result[*Method] {
	return Failure[*Method](NewThrowable(AbstractMethodError, "Receiver class %s does not define or inherit an implementation of the resolved method '%s'", JavaName(receiver.Name), resolved))
}
