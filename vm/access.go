package vm

// ---------------------------------------------------------------------------
// Access control
// ---------------------------------------------------------------------------

// classAccessible reports whether accessor may refer to c: c is public or
// both are in the same package. Array classes follow their element class.
func classAccessible(accessor, c *Class) bool {
	for c.IsArray() {
		c = c.Component
	}
	if c.IsPrimitive() || accessor == nil || c.Access.IsPublic() {
		return true
	}
	return accessor.Package() == c.Package()
}

// memberAccessible decides whether code in accessor may use a member with
// the given flags declared by declarer, named through symbolic.
func memberAccessible(accessor *Class, flags AccessFlags, declarer, symbolic *Class, static bool) bool {
	if accessor == nil || flags.IsPublic() {
		return true
	}
	switch {
	case flags.IsProtected():
		if accessor.Package() == declarer.Package() {
			return true
		}
		if !accessor.IsSubclassOf(declarer) {
			return false
		}
		if static {
			return true
		}
		return symbolic.IsAssignableTo(accessor) || accessor.IsAssignableTo(symbolic)
	case flags.IsPrivate():
		return accessor == declarer || sameNest(accessor, declarer)
	}
	return accessor.Package() == declarer.Package()
}

// nestHostName returns the name of c's nest host; a class without a
// NestHost attribute hosts its own nest.
func nestHostName(c *Class) string {
	if c.NestHost != "" {
		return c.NestHost
	}
	return c.Name
}

func sameNest(a, b *Class) bool {
	return a.Package() == b.Package() && nestHostName(a) == nestHostName(b)
}

func accessDenied(kind string, accessor *Class, what string) *Throwable {
	return NewThrowable(IllegalAccessError, "class %s tried to access %s %s", JavaName(accessor.Name), kind, what)
}

func visibility(flags AccessFlags) string {
	switch {
	case flags.IsPrivate():
		return "private"
	case flags.IsProtected():
		return "protected"
	case flags.IsPublic():
		return "public"
	}
	return "package-private"
}
