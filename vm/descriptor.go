package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// MethodSig is a parsed method descriptor.
type MethodSig struct {
	Params    []string // field descriptors, in declaration order
	Return    string   // field descriptor, or "V"
	ArgSlots  int      // slots used by the parameters (receiver excluded)
	ParamWide []bool   // whether each parameter occupies two slots
}

// ReturnKind returns the computational kind of the return type.
func (s *MethodSig) ReturnKind() Kind {
	return descriptorKind(s.Return)
}

// ParseMethodDescriptor parses a descriptor such as "(IJLjava/lang/String;)V".
func ParseMethodDescriptor(desc string) (*MethodSig, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, fmt.Errorf("malformed method descriptor %q", desc)
	}
	sig := &MethodSig{}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescriptorLen(desc[i:])
		if err != nil {
			return nil, fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		p := desc[i : i+n]
		sig.Params = append(sig.Params, p)
		wide := p == "J" || p == "D"
		sig.ParamWide = append(sig.ParamWide, wide)
		if wide {
			sig.ArgSlots += 2
		} else {
			sig.ArgSlots++
		}
		i += n
	}
	if i >= len(desc) {
		return nil, fmt.Errorf("method descriptor %q: missing ')'", desc)
	}
	ret := desc[i+1:]
	if ret == "V" {
		sig.Return = ret
		return sig, nil
	}
	n, err := fieldDescriptorLen(ret)
	if err != nil || n != len(ret) {
		return nil, fmt.Errorf("method descriptor %q: bad return type", desc)
	}
	sig.Return = ret
	return sig, nil
}

// fieldDescriptorLen returns the length of the field descriptor at the
// start of s.
func fieldDescriptorLen(s string) (int, error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims >= len(s) {
		return 0, fmt.Errorf("truncated descriptor %q", s)
	}
	switch s[dims] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return dims + 1, nil
	case 'L':
		end := strings.IndexByte(s[dims:], ';')
		if end < 0 {
			return 0, fmt.Errorf("unterminated class descriptor %q", s)
		}
		return dims + end + 1, nil
	}
	return 0, fmt.Errorf("bad descriptor character %q in %q", s[dims], s)
}

// descriptorKind maps a field descriptor to its computational kind.
func descriptorKind(desc string) Kind {
	if desc == "" || desc == "V" {
		return KindVoid
	}
	switch desc[0] {
	case 'J':
		return KindLong
	case 'F':
		return KindFloat
	case 'D':
		return KindDouble
	case 'L', '[':
		return KindRef
	}
	return KindInt
}

// descriptorClassName returns the class name a reference descriptor names:
// "Ljava/lang/String;" → "java/lang/String", "[I" → "[I".
func descriptorClassName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// classDescriptor is the inverse of descriptorClassName for element types.
func classDescriptor(name string) string {
	if strings.HasPrefix(name, "[") || len(name) == 1 {
		return name
	}
	return "L" + name + ";"
}

// packageOf returns the package portion of an internal class name.
func packageOf(name string) string {
	for strings.HasPrefix(name, "[") {
		name = name[1:]
	}
	name = descriptorClassName(name)
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// JavaName converts an internal name to its dotted form.
func JavaName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// InternalName converts a dotted class name to its internal form.
func InternalName(javaName string) string {
	return strings.ReplaceAll(javaName, ".", "/")
}
