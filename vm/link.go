package vm

import (
	"errors"
	"strings"
)

// ---------------------------------------------------------------------------
// Loading and linking
// ---------------------------------------------------------------------------

var primitiveNames = map[byte]string{
	'Z': "boolean",
	'B': "byte",
	'C': "char",
	'S': "short",
	'I': "int",
	'J': "long",
	'F': "float",
	'D': "double",
	'V': "void",
}

// LoadClass returns the linked class named name, loading it and its
// ancestors from the class source on first use. Array names are
// synthesized. Loading never initializes.
func (vm *VM) LoadClass(name string) Result[*Class] {
	if c := vm.Classes.Lookup(name); c != nil {
		return Success(c)
	}
	if strings.HasPrefix(name, "[") {
		return vm.loadArrayClass(name)
	}
	if vm.loading[name] {
		return Failure[*Class](NewThrowable(ClassCircularityError, "%s", JavaName(name)))
	}
	vm.loading[name] = true
	defer delete(vm.loading, name)

	def, err := vm.source.FindClass(name)
	if err != nil {
		if errors.Is(err, ErrClassNotFound) {
			return Failure[*Class](NewThrowable(ClassNotFoundException, "%s", JavaName(name)))
		}
		return Failure[*Class](NewThrowable(ClassFormatError, "%s: %v", JavaName(name), err))
	}
	if def.Name != name {
		return Failure[*Class](NewThrowable(NoClassDefFoundError, "%s (wrong name: %s)", name, def.Name))
	}
	return vm.Define(def)
}

// Define links def into the class arena. Its superclass and interfaces
// are loaded first; fields are laid out after the inherited ones.
func (vm *VM) Define(def *ClassDef) Result[*Class] {
	if c := vm.Classes.Lookup(def.Name); c != nil {
		return Success(c)
	}
	c := &Class{
		Name:             def.Name,
		Access:           def.Access,
		Pool:             NewConstantPool(def.Pool),
		SourceFile:       def.SourceFile,
		NestHost:         def.NestHost,
		BootstrapMethods: def.BootstrapMethods,
		methodIndex:      make(map[string]*Method, len(def.Methods)),
		fieldIndex:       make(map[string]*Field, len(def.Fields)),
	}

	if def.Super != "" {
		r := vm.LoadClass(def.Super)
		if !r.IsSuccess() {
			return r
		}
		super := r.Value()
		if super.IsInterface() {
			return Failure[*Class](NewThrowable(IncompatibleClassChangeError, "class %s has interface %s as super class", JavaName(def.Name), JavaName(super.Name)))
		}
		if super.Access.IsFinal() {
			return Failure[*Class](NewThrowable(IncompatibleClassChangeError, "class %s cannot inherit from final class %s", JavaName(def.Name), JavaName(super.Name)))
		}
		c.Super = super
		c.instanceSlots = super.instanceSlots
	} else if def.Name != "java/lang/Object" {
		return Failure[*Class](NewThrowable(ClassFormatError, "%s has no superclass", JavaName(def.Name)))
	}
	for _, in := range def.Interfaces {
		r := vm.LoadClass(in)
		if !r.IsSuccess() {
			return r
		}
		if !r.Value().IsInterface() {
			return Failure[*Class](NewThrowable(IncompatibleClassChangeError, "class %s can not implement %s, because it is not an interface", JavaName(def.Name), JavaName(in)))
		}
		c.Interfaces = append(c.Interfaces, r.Value())
	}

	statics := 0
	for _, fd := range def.Fields {
		if _, err := fieldDescriptorLen(fd.Descriptor); err != nil {
			return Failure[*Class](NewThrowable(ClassFormatError, "field %s.%s: %v", def.Name, fd.Name, err))
		}
		f := &Field{Name: fd.Name, Descriptor: fd.Descriptor, Access: fd.Access, ConstantValue: fd.ConstantValue}
		if f.IsStatic() {
			f.Slot = statics
			statics++
		} else {
			f.Slot = c.instanceSlots
			c.instanceSlots++
		}
		c.Fields = append(c.Fields, f)
		c.fieldIndex[f.Name+":"+f.Descriptor] = f
	}
	c.statics = make([]Value, statics)
	for _, f := range c.Fields {
		if f.IsStatic() {
			c.statics[f.Slot] = vm.staticInitialValue(c, f)
		}
	}

	for _, md := range def.Methods {
		sig, err := ParseMethodDescriptor(md.Descriptor)
		if err != nil {
			return Failure[*Class](NewThrowable(ClassFormatError, "method %s.%s: %v", def.Name, md.Name, err))
		}
		m := &Method{
			Name:        md.Name,
			Descriptor:  md.Descriptor,
			Access:      md.Access,
			Code:        md.Code,
			MaxStack:    md.MaxStack,
			MaxLocals:   md.MaxLocals,
			Handlers:    md.Handlers,
			Sig:         sig,
			vtableIndex: -1,
		}
		c.Methods = append(c.Methods, m)
		c.methodIndex[m.NameAndDescriptor()] = m
	}

	c = vm.Classes.Register(c)
	vm.log.Debugf("linked %s (%d fields, %d methods)", c.Name, len(c.Fields), len(c.Methods))
	return Success(c)
}

// staticInitialValue returns the prepared value of a static field: its
// ConstantValue literal when present, the type's default otherwise.
func (vm *VM) staticInitialValue(c *Class, f *Field) Value {
	zero := zeroValue(f.Descriptor)
	if f.ConstantValue == 0 {
		return zero
	}
	e, err := c.Pool.Entry(f.ConstantValue)
	if err != nil {
		vm.log.Warningf("%s.%s: %v", c.Name, f.Name, err)
		return zero
	}
	switch e.Tag {
	case TagInteger:
		return FromInt(e.Int)
	case TagLong:
		return FromLong(e.Long)
	case TagFloat:
		return FromFloat(e.Float)
	case TagDouble:
		return FromDouble(e.Double)
	case TagString:
		if s, err := c.Pool.Utf8(e.A); err == nil && vm.StringClass != nil {
			return FromRef(vm.Intern(s))
		}
	}
	return zero
}

// ---------------------------------------------------------------------------
// Array and primitive classes
// ---------------------------------------------------------------------------

func (vm *VM) loadArrayClass(name string) Result[*Class] {
	elem := name[1:]
	var component *Class
	if len(elem) == 1 {
		component = vm.primitiveClass(elem[0])
		if component == nil || elem[0] == 'V' {
			return Failure[*Class](NewThrowable(ClassNotFoundException, "%s", name))
		}
	} else {
		r := vm.LoadClass(descriptorClassName(elem))
		if !r.IsSuccess() {
			return r
		}
		component = r.Value()
	}
	c := &Class{
		Name:        name,
		Access:      AccPublic | AccFinal | AccAbstract,
		Super:       vm.ObjectClass,
		Component:   component,
		Pool:        NewConstantPool(nil),
		status:      StatusInitialized,
		methodIndex: map[string]*Method{},
		fieldIndex:  map[string]*Field{},
	}
	if !component.IsPrimitive() {
		c.Access = component.Access&(AccPublic|AccPrivate|AccProtected) | AccFinal | AccAbstract
	}
	if c.Super == nil {
		c.Super = vm.Classes.Lookup("java/lang/Object")
	}
	for _, n := range []string{"java/lang/Cloneable", "java/io/Serializable"} {
		if r := vm.LoadClass(n); r.IsSuccess() {
			c.Interfaces = append(c.Interfaces, r.Value())
		}
	}
	return Success(vm.Classes.Register(c))
}

// arrayClass returns the array class for a descriptor such as "[I". It is
// for runtime-internal use where the component is known to exist.
func (vm *VM) arrayClass(name string) *Class {
	r := vm.LoadClass(name)
	if !r.IsSuccess() {
		panic(fault("array class %s: %s", name, r.Err()))
	}
	return r.Value()
}

// primitiveClass returns the pseudo-class for a primitive descriptor
// character, creating it on first use.
func (vm *VM) primitiveClass(desc byte) *Class {
	if c, ok := vm.primitives[desc]; ok {
		return c
	}
	name, ok := primitiveNames[desc]
	if !ok {
		return nil
	}
	c := &Class{
		Name:        name,
		Access:      AccPublic | AccFinal | AccAbstract,
		primitive:   desc,
		Pool:        NewConstantPool(nil),
		status:      StatusInitialized,
		methodIndex: map[string]*Method{},
		fieldIndex:  map[string]*Field{},
	}
	vm.primitives[desc] = c
	return c
}

// classForDescriptor returns the class a field descriptor names, including
// primitive pseudo-classes.
func (vm *VM) classForDescriptor(desc string) Result[*Class] {
	if len(desc) == 1 {
		if c := vm.primitiveClass(desc[0]); c != nil {
			return Success(c)
		}
	}
	return vm.LoadClass(descriptorClassName(desc))
}
