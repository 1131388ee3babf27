package vm

// ---------------------------------------------------------------------------
// Bootstrap classes
// ---------------------------------------------------------------------------

// The core of java.lang is synthesized so that programs run without a JDK
// class library. A ClassSource earlier in the chain may supply real
// definitions instead; their natives then bind through the same resolver.

const (
	objectName     = "java/lang/Object"
	stringName     = "java/lang/String"
	throwableName  = "java/lang/Throwable"
	threadName     = "java/lang/Thread"
	runnableName   = "java/lang/Runnable"
	printStream    = "java/io/PrintStream"
	stringDesc     = "Ljava/lang/String;"
	objectDesc     = "Ljava/lang/Object;"
	throwableDesc  = "Ljava/lang/Throwable;"
	voidInit       = "()V"
	stringInitDesc = "(Ljava/lang/String;)V"
)

// exceptionHierarchy lists every exception class the runtime can raise,
// each after its superclass.
var exceptionHierarchy = []struct{ name, super string }{
	{"java/lang/Exception", throwableName},
	{"java/lang/Error", throwableName},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/ReflectiveOperationException", "java/lang/Exception"},
	{ClassNotFoundException, "java/lang/ReflectiveOperationException"},
	{CloneNotSupportedException, "java/lang/Exception"},
	{InterruptedException, "java/lang/Exception"},
	{"java/lang/LinkageError", "java/lang/Error"},
	{NoClassDefFoundError, "java/lang/LinkageError"},
	{ClassFormatError, "java/lang/LinkageError"},
	{ClassCircularityError, "java/lang/LinkageError"},
	{UnsatisfiedLinkError, "java/lang/LinkageError"},
	{IncompatibleClassChangeError, "java/lang/LinkageError"},
	{NoSuchMethodError, IncompatibleClassChangeError},
	{NoSuchFieldError, IncompatibleClassChangeError},
	{AbstractMethodError, IncompatibleClassChangeError},
	{IllegalAccessError, IncompatibleClassChangeError},
	{InstantiationError, IncompatibleClassChangeError},
	{"java/lang/VirtualMachineError", "java/lang/Error"},
	{StackOverflowError, "java/lang/VirtualMachineError"},
	{InternalError, "java/lang/VirtualMachineError"},
	{ArithmeticException, "java/lang/RuntimeException"},
	{NullPointerException, "java/lang/RuntimeException"},
	{"java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"},
	{ArrayIndexOutOfBoundsException, "java/lang/IndexOutOfBoundsException"},
	{StringIndexOutOfBoundsException, "java/lang/IndexOutOfBoundsException"},
	{ArrayStoreException, "java/lang/RuntimeException"},
	{ClassCastException, "java/lang/RuntimeException"},
	{NegativeArraySizeException, "java/lang/RuntimeException"},
	{IllegalMonitorStateException, "java/lang/RuntimeException"},
	{IllegalArgumentException, "java/lang/RuntimeException"},
	{IllegalThreadStateException, IllegalArgumentException},
}

// bootstrapSource returns the synthesized core classes.
func bootstrapSource() *MapSource {
	src := NewMapSource(
		objectClass(),
		classClass(),
		stringClass(),
		throwableClass(),
		threadClass(),
		systemClass(),
		printStreamClass(),
		interfaceClass("java/lang/Cloneable"),
		interfaceClass("java/io/Serializable"),
		runnableClass(),
	)
	for _, e := range exceptionHierarchy {
		src.Add(exceptionClass(e.name, e.super))
	}
	for _, b := range []struct{ name, desc string }{
		{"java/lang/Integer", "I"},
		{"java/lang/Long", "J"},
		{"java/lang/Float", "F"},
		{"java/lang/Double", "D"},
	} {
		src.Add(boxClass(b.name, b.desc))
	}
	return src
}

func interfaceClass(name string) *ClassDef {
	return NewClassBuilder(name, objectName).Access(AccPublic | AccInterface | AccAbstract).Build()
}

func runnableClass() *ClassDef {
	return NewClassBuilder(runnableName, objectName).
		Access(AccPublic|AccInterface|AccAbstract).
		AbstractMethod("run", "()V", AccPublic).
		Build()
}

func objectClass() *ClassDef {
	cb := NewClassBuilder(objectName, "")
	cb.Method("<init>", voidInit, AccPublic).Code.Emit(OpReturn)

	// equals is identity.
	code := cb.Method("equals", "(Ljava/lang/Object;)Z", AccPublic).Code
	differ := code.NewLabel()
	code.Emit(OpAload0, OpAload1).
		EmitJump(OpIfAcmpne, differ).
		Emit(OpIconst1, OpIreturn).
		Mark(differ).
		Emit(OpIconst0, OpIreturn)

	cb.NativeMethod("hashCode", "()I", AccPublic)
	cb.NativeMethod("getClass", "()Ljava/lang/Class;", AccPublic|AccFinal)
	cb.NativeMethod("clone", "()Ljava/lang/Object;", AccProtected)
	cb.NativeMethod("toString", "()Ljava/lang/String;", AccPublic)
	cb.NativeMethod("wait", "()V", AccPublic|AccFinal)
	cb.NativeMethod("wait", "(J)V", AccPublic|AccFinal)
	cb.NativeMethod("notify", "()V", AccPublic|AccFinal)
	cb.NativeMethod("notifyAll", "()V", AccPublic|AccFinal)
	return cb.Build()
}

func classClass() *ClassDef {
	cb := NewClassBuilder("java/lang/Class", objectName).Access(AccPublic | AccFinal | AccSuper)
	cb.NativeMethod("getName", "()Ljava/lang/String;", AccPublic)
	cb.NativeMethod("getSuperclass", "()Ljava/lang/Class;", AccPublic)
	cb.NativeMethod("isArray", "()Z", AccPublic)
	cb.NativeMethod("isInterface", "()Z", AccPublic)
	cb.NativeMethod("isPrimitive", "()Z", AccPublic)
	cb.NativeMethod("isInstance", "(Ljava/lang/Object;)Z", AccPublic)
	return cb.Build()
}

func stringClass() *ClassDef {
	cb := NewClassBuilder(stringName, objectName).
		Access(AccPublic|AccFinal|AccSuper).
		Implements("java/io/Serializable").
		Field("value", "[C", AccPrivate|AccFinal)
	p := cb.Pool()

	cb.Method("toString", "()Ljava/lang/String;", AccPublic).Code.Emit(OpAload0, OpAreturn)

	code := cb.Method("valueOf", "(Ljava/lang/Object;)Ljava/lang/String;", AccPublic|AccStatic).Code
	present := code.NewLabel()
	code.Emit(OpAload0).
		EmitJump(OpIfnonnull, present).
		EmitU8(OpLdc, uint8(p.String("null"))).
		Emit(OpAreturn).
		Mark(present).
		Emit(OpAload0).
		EmitU16(OpInvokevirtual, p.Methodref(objectName, "toString", "()Ljava/lang/String;")).
		Emit(OpAreturn)

	cb.NativeMethod("length", "()I", AccPublic)
	cb.NativeMethod("charAt", "(I)C", AccPublic)
	cb.NativeMethod("equals", "(Ljava/lang/Object;)Z", AccPublic)
	cb.NativeMethod("hashCode", "()I", AccPublic)
	cb.NativeMethod("concat", "(Ljava/lang/String;)Ljava/lang/String;", AccPublic)
	cb.NativeMethod("intern", "()Ljava/lang/String;", AccPublic)
	cb.NativeMethod("valueOf", "(I)Ljava/lang/String;", AccPublic|AccStatic)
	cb.NativeMethod("valueOf", "(J)Ljava/lang/String;", AccPublic|AccStatic)
	return cb.Build()
}

func throwableClass() *ClassDef {
	cb := NewClassBuilder(throwableName, objectName).
		Implements("java/io/Serializable").
		Field("detailMessage", stringDesc, AccPrivate).
		Field("cause", throwableDesc, AccPrivate)
	p := cb.Pool()
	objectInit := p.Methodref(objectName, "<init>", voidInit)
	fill := p.Methodref(throwableName, "fillInStackTrace", "()Ljava/lang/Throwable;")
	message := p.Fieldref(throwableName, "detailMessage", stringDesc)
	cause := p.Fieldref(throwableName, "cause", throwableDesc)

	cb.Method("<init>", voidInit, AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, objectInit).
		Emit(OpAload0).EmitU16(OpInvokevirtual, fill).Emit(OpPop).
		Emit(OpReturn)
	cb.Method("<init>", stringInitDesc, AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, objectInit).
		Emit(OpAload0).EmitU16(OpInvokevirtual, fill).Emit(OpPop).
		Emit(OpAload0, OpAload1).EmitU16(OpPutfield, message).
		Emit(OpReturn)
	cb.Method("<init>", "(Ljava/lang/String;Ljava/lang/Throwable;)V", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, objectInit).
		Emit(OpAload0).EmitU16(OpInvokevirtual, fill).Emit(OpPop).
		Emit(OpAload0, OpAload1).EmitU16(OpPutfield, message).
		Emit(OpAload0, OpAload2).EmitU16(OpPutfield, cause).
		Emit(OpReturn)
	cb.Method("getMessage", "()Ljava/lang/String;", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpGetfield, message).Emit(OpAreturn)
	cb.Method("getCause", "()Ljava/lang/Throwable;", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpGetfield, cause).Emit(OpAreturn)
	cb.Method("initCause", "(Ljava/lang/Throwable;)Ljava/lang/Throwable;", AccPublic).Code.
		Emit(OpAload0, OpAload1).EmitU16(OpPutfield, cause).
		Emit(OpAload0, OpAreturn)

	cb.NativeMethod("fillInStackTrace", "()Ljava/lang/Throwable;", AccPublic)
	cb.NativeMethod("toString", "()Ljava/lang/String;", AccPublic)
	cb.NativeMethod("printStackTrace", "()V", AccPublic)
	return cb.Build()
}

// exceptionClass defines name with the two conventional constructors,
// both delegating to super.
func exceptionClass(name, super string) *ClassDef {
	cb := NewClassBuilder(name, super)
	p := cb.Pool()
	cb.Method("<init>", voidInit, AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, p.Methodref(super, "<init>", voidInit)).
		Emit(OpReturn)
	cb.Method("<init>", stringInitDesc, AccPublic).Code.
		Emit(OpAload0, OpAload1).EmitU16(OpInvokespecial, p.Methodref(super, "<init>", stringInitDesc)).
		Emit(OpReturn)
	return cb.Build()
}

func threadClass() *ClassDef {
	cb := NewClassBuilder(threadName, objectName).
		Implements(runnableName).
		Field("name", stringDesc, AccPrivate).
		Field("target", "Ljava/lang/Runnable;", AccPrivate).
		Field("daemon", "Z", AccPrivate)
	p := cb.Pool()
	objectInit := p.Methodref(objectName, "<init>", voidInit)
	name := p.Fieldref(threadName, "name", stringDesc)
	target := p.Fieldref(threadName, "target", "Ljava/lang/Runnable;")

	cb.Method("<init>", voidInit, AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, objectInit).
		Emit(OpReturn)
	cb.Method("<init>", "(Ljava/lang/Runnable;)V", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, objectInit).
		Emit(OpAload0, OpAload1).EmitU16(OpPutfield, target).
		Emit(OpReturn)
	cb.Method("<init>", stringInitDesc, AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, objectInit).
		Emit(OpAload0, OpAload1).EmitU16(OpPutfield, name).
		Emit(OpReturn)
	cb.Method("<init>", "(Ljava/lang/Runnable;Ljava/lang/String;)V", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, objectInit).
		Emit(OpAload0, OpAload1).EmitU16(OpPutfield, target).
		Emit(OpAload0, OpAload2).EmitU16(OpPutfield, name).
		Emit(OpReturn)

	code := cb.Method("run", "()V", AccPublic).Code
	none := code.NewLabel()
	code.Emit(OpAload0).EmitU16(OpGetfield, target).
		Emit(OpDup).EmitJump(OpIfnull, none).
		EmitInvokeInterface(p.InterfaceMethodref(runnableName, "run", "()V"), 1).
		Emit(OpReturn).
		Mark(none).
		Emit(OpPop, OpReturn)
	cb.Method("getName", "()Ljava/lang/String;", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpGetfield, name).Emit(OpAreturn)

	cb.NativeMethod("currentThread", "()Ljava/lang/Thread;", AccPublic|AccStatic)
	cb.NativeMethod("yield", "()V", AccPublic|AccStatic)
	cb.NativeMethod("sleep", "(J)V", AccPublic|AccStatic)
	cb.NativeMethod("interrupted", "()Z", AccPublic|AccStatic)
	cb.NativeMethod("start", "()V", AccPublic)
	cb.NativeMethod("join", "()V", AccPublic|AccFinal)
	cb.NativeMethod("isAlive", "()Z", AccPublic|AccFinal)
	cb.NativeMethod("interrupt", "()V", AccPublic)
	cb.NativeMethod("isInterrupted", "()Z", AccPublic)
	cb.NativeMethod("setDaemon", "(Z)V", AccPublic|AccFinal)
	cb.NativeMethod("isDaemon", "()Z", AccPublic|AccFinal)
	return cb.Build()
}

func systemClass() *ClassDef {
	cb := NewClassBuilder("java/lang/System", objectName).
		Access(AccPublic|AccFinal|AccSuper).
		Field("out", "Ljava/io/PrintStream;", AccPublic|AccStatic|AccFinal).
		Field("err", "Ljava/io/PrintStream;", AccPublic|AccStatic|AccFinal)
	p := cb.Pool()
	cb.Method("<clinit>", "()V", AccStatic).Code.
		EmitU16(OpInvokestatic, p.Methodref("java/lang/System", "initStreams", "()V")).
		Emit(OpReturn)
	cb.NativeMethod("initStreams", "()V", AccPrivate|AccStatic)
	cb.NativeMethod("arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", AccPublic|AccStatic)
	cb.NativeMethod("identityHashCode", "(Ljava/lang/Object;)I", AccPublic|AccStatic)
	cb.NativeMethod("currentTimeMillis", "()J", AccPublic|AccStatic)
	cb.NativeMethod("nanoTime", "()J", AccPublic|AccStatic)
	return cb.Build()
}

// printStreamClass declares PrintStream with native printing; the stream
// object's payload is the destination io.Writer.
func printStreamClass() *ClassDef {
	cb := NewClassBuilder(printStream, objectName)
	for _, d := range []string{"", "Ljava/lang/String;", objectDesc, "I", "J", "F", "D", "Z", "C"} {
		cb.NativeMethod("println", "("+d+")V", AccPublic)
		if d != "" {
			cb.NativeMethod("print", "("+d+")V", AccPublic)
		}
	}
	cb.NativeMethod("flush", "()V", AccPublic)
	return cb.Build()
}

// boxClass defines a wrapper with a final value field, an accessor and
// the raw-bit natives of Float and Double.
func boxClass(name, desc string) *ClassDef {
	cb := NewClassBuilder(name, objectName).
		Access(AccPublic|AccFinal|AccSuper).
		Field("value", desc, AccPrivate|AccFinal)
	p := cb.Pool()
	value := p.Fieldref(name, "value", desc)
	ret, load := OpIreturn, OpIload1
	switch desc {
	case "J":
		ret, load = OpLreturn, OpLload1
	case "F":
		ret, load = OpFreturn, OpFload1
	case "D":
		ret, load = OpDreturn, OpDload1
	}
	cb.Method("<init>", "("+desc+")V", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, p.Methodref(objectName, "<init>", voidInit)).
		Emit(OpAload0, load).EmitU16(OpPutfield, value).
		Emit(OpReturn)
	accessor := map[string]string{"I": "intValue", "J": "longValue", "F": "floatValue", "D": "doubleValue"}[desc]
	cb.Method(accessor, "()"+desc, AccPublic).Code.
		Emit(OpAload0).EmitU16(OpGetfield, value).Emit(ret)
	switch desc {
	case "F":
		cb.NativeMethod("floatToRawIntBits", "(F)I", AccPublic|AccStatic)
		cb.NativeMethod("intBitsToFloat", "(I)F", AccPublic|AccStatic)
	case "D":
		cb.NativeMethod("doubleToRawLongBits", "(D)J", AccPublic|AccStatic)
		cb.NativeMethod("longBitsToDouble", "(J)D", AccPublic|AccStatic)
	}
	return cb.Build()
}
