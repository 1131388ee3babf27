package vm

// VTable is the virtual dispatch table of a class. Slots are inherited
// from the parent table; a method that overrides an inherited slot
// replaces it, and new virtual methods are appended. Methods record the
// slot they were first assigned in Method.vtableIndex.
type VTable struct {
	class   *Class
	parent  *VTable
	methods []*Method
}

// Class returns the class this table belongs to.
func (vt *VTable) Class() *Class { return vt.class }

// Parent returns the superclass's table.
func (vt *VTable) Parent() *VTable { return vt.parent }

// Len returns the number of slots.
func (vt *VTable) Len() int { return len(vt.methods) }

// At returns the method in slot i, or nil.
func (vt *VTable) At(i int) *Method {
	if i < 0 || i >= len(vt.methods) {
		return nil
	}
	return vt.methods[i]
}

// Slot returns the slot index of m in this table, or -1.
func (vt *VTable) Slot(m *Method) int {
	for i, x := range vt.methods {
		if x == m {
			return i
		}
	}
	return -1
}

func isVirtual(m *Method) bool {
	return !m.IsStatic() && !m.Access.IsPrivate() && !m.IsInit() && !m.IsClinit()
}

// vtableOf returns c's table, building it and its ancestors' on first use.
func (vm *VM) vtableOf(c *Class) *VTable {
	if c.vtable != nil {
		return c.vtable
	}
	vt := &VTable{class: c}
	if c.Super != nil {
		vt.parent = vm.vtableOf(c.Super)
		vt.methods = append(make([]*Method, 0, len(vt.parent.methods)+len(c.Methods)), vt.parent.methods...)
	}
	if !c.IsInterface() {
		for _, m := range c.Methods {
			if !isVirtual(m) {
				continue
			}
			placed := false
			for i, inherited := range vt.methods {
				if inherited.DeclaringClass() != c && overrides(m, inherited) {
					vt.methods[i] = m
					if !placed {
						m.vtableIndex = i
						placed = true
					}
				}
			}
			if !placed {
				m.vtableIndex = len(vt.methods)
				vt.methods = append(vt.methods, m)
			}
		}
	}
	c.vtable = vt
	return vt
}

// selectVirtual picks the implementation of resolved for receiver through
// the vtable when resolved occupies a slot, and through lookupMethod
// otherwise (interface and default methods).
func (vm *VM) selectVirtual(resolved *Method, receiver *Class) Result[*Method] {
	if resolved.Access.IsPrivate() {
		return Success(resolved)
	}
	vt := vm.vtableOf(receiver)
	if m := vt.At(resolved.vtableIndex); m != nil && m.Name == resolved.Name && m.Descriptor == resolved.Descriptor && !m.IsAbstract() {
		return Success(m)
	}
	return vm.lookupMethod(resolved, receiver)
}
