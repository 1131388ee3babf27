package native

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/jolt/vm"
)

// argFormatter renders the argument slots of a print call.
type argFormatter func(t *vm.Thread, args []vm.Value) string

var printFormats = map[string]argFormatter{
	"I": func(t *vm.Thread, args []vm.Value) string { return strconv.Itoa(int(args[1].Int())) },
	"J": func(t *vm.Thread, args []vm.Value) string { return strconv.FormatInt(args[1].Long(), 10) },
	"F": func(t *vm.Thread, args []vm.Value) string { return FormatFloat(float64(args[1].Float()), 32) },
	"D": func(t *vm.Thread, args []vm.Value) string { return FormatFloat(args[1].Double(), 64) },
	"Z": func(t *vm.Thread, args []vm.Value) string { return strconv.FormatBool(args[1].Bool()) },
	"C": func(t *vm.Thread, args []vm.Value) string { return string(rune(uint16(args[1].Int()))) },
	"Ljava/lang/String;": func(t *vm.Thread, args []vm.Value) string {
		return t.VM().GoString(args[1].Ref())
	},
}

func (l *Library) registerPrintStream() {
	l.Register(printStream, "println()V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return write(streamWriter(t, args[0]), "\n")
	})
	for desc, format := range printFormats {
		l.Register(printStream, "print("+desc+")V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
			return write(streamWriter(t, args[0]), format(t, args))
		})
		l.Register(printStream, "println("+desc+")V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
			return write(streamWriter(t, args[0]), format(t, args)+"\n")
		})
	}
	l.Register(printStream, "print(Ljava/lang/Object;)V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return printObject(t, streamWriter(t, args[0]), args[1].Ref(), "")
	})
	l.Register(printStream, "println(Ljava/lang/Object;)V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return printObject(t, streamWriter(t, args[0]), args[1].Ref(), "\n")
	})
	l.Register(printStream, "flush()V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		if f, ok := streamWriter(t, args[0]).(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				log.Warningf("flush: %s", err)
			}
		}
		return vm.NativeVoid()
	})
}

func streamWriter(t *vm.Thread, stream vm.Value) io.Writer {
	if w, ok := stream.Ref().Payload.(io.Writer); ok {
		return w
	}
	return t.VM().Stdout()
}

func write(w io.Writer, s string) vm.NativeResult {
	if _, err := io.WriteString(w, s); err != nil {
		log.Warningf("write: %s", err)
	}
	return vm.NativeVoid()
}

// printObject prints String.valueOf(obj), calling the guest toString for
// anything that is not already a String.
func printObject(t *vm.Thread, w io.Writer, obj *vm.Object, suffix string) vm.NativeResult {
	machine := t.VM()
	if obj == nil {
		return write(w, "null"+suffix)
	}
	if obj.Class() == machine.StringClass {
		return write(w, machine.GoString(obj)+suffix)
	}
	return t.InvokeVirtual(obj, "toString", "()Ljava/lang/String;", nil, func(t *vm.Thread, v vm.Value) vm.NativeResult {
		return write(w, machine.GoString(v.Ref())+suffix)
	})
}

// FormatFloat renders f the way Float.toString (bits 32) and
// Double.toString (bits 64) do: the shortest digits that round-trip,
// a decimal point always present, and computerized scientific notation
// outside [1e-3, 1e7).
func FormatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	abs := math.Abs(f)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(f, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(f, 'E', -1, bits)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	n, err := strconv.Atoi(exp)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%sE%d", mant, n)
}
