package native

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/chazu/jolt/vm"
)

// ConsoleClass is the internal name of the console class the library
// defines.
const ConsoleClass = "jolt/Console"

// console serializes line reads from the library's input.
type console struct {
	mu     sync.Mutex
	reader *bufio.Reader
}

func (c *console) readLine() (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, err := c.reader.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if line == "" {
			return "", false, nil
		}
		err = nil
	}
	return strings.TrimRight(line, "\r\n"), true, err
}

// registerConsole defines jolt/Console, a static print sink and line
// reader for programs run from the command line:
//
//	public final class jolt.Console {
//	    static native void print(Object);
//	    static native void println(Object);
//	    static native String readLine();   // null at end of input
//	    static native void log(String);    // through the host logger
//	}
func (l *Library) registerConsole() {
	cb := vm.NewClassBuilder(ConsoleClass, "java/lang/Object").Access(vm.AccPublic | vm.AccFinal | vm.AccSuper)
	for _, m := range []string{"print(Ljava/lang/Object;)V", "println(Ljava/lang/Object;)V", "readLine()Ljava/lang/String;", "log(Ljava/lang/String;)V"} {
		name, desc, _ := strings.Cut(m, "(")
		cb.NativeMethod(name, "("+desc, vm.AccPublic|vm.AccStatic)
	}
	l.classes.Add(cb.Build())

	in := &console{reader: bufio.NewReader(l.stdin)}
	l.Register(ConsoleClass, "print(Ljava/lang/Object;)V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return printObject(t, t.VM().Stdout(), args[0].Ref(), "")
	})
	l.Register(ConsoleClass, "println(Ljava/lang/Object;)V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return printObject(t, t.VM().Stdout(), args[0].Ref(), "\n")
	})
	l.Register(ConsoleClass, "readLine()Ljava/lang/String;", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		machine := t.VM()
		return machine.Async(t, func() (vm.Value, *vm.Throwable) {
			line, ok, err := in.readLine()
			switch {
			case err != nil:
				return vm.Void, vm.NewThrowable("java/io/IOException", "%s", err)
			case !ok:
				return vm.Null, nil
			}
			var s vm.Value
			// Strings are allocated on the scheduler goroutine.
			done := make(chan struct{})
			machine.Post(func() {
				s = vm.FromRef(machine.NewString(line))
				close(done)
			})
			<-done
			return s, nil
		})
	})
	l.Register(ConsoleClass, "log(Ljava/lang/String;)V", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		log.Infof("[%s] %s", t.Name, t.VM().GoString(args[0].Ref()))
		return vm.NativeVoid()
	})
}
