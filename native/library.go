// Package native is the host library of native methods: System, the
// standard streams, raw float bits and the jolt/Console class used by the
// command line runner.
package native

import (
	"io"
	"os"
	"strings"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/tliron/commonlog"

	"github.com/chazu/jolt/vm"
)

var log = commonlog.GetLogger("jolt.native")

// Library is a vm.NativeResolver backed by a concurrent registry, so one
// library can serve runtimes created on different goroutines. It is also
// a vm.ClassSource for the classes it defines.
type Library struct {
	natives cmap.ConcurrentMap // "class.name(desc)ret" -> vm.NativeFunc
	classes *vm.MapSource
	stdin   io.Reader
}

// Option configures a Library.
type Option func(*Library)

// WithStdin sets the reader Console.readLine consumes. The default is
// os.Stdin.
func WithStdin(r io.Reader) Option {
	return func(l *Library) { l.stdin = r }
}

// New creates a library with every built-in native registered.
func New(opts ...Option) *Library {
	l := &Library{
		natives: cmap.New(),
		classes: vm.NewMapSource(),
		stdin:   os.Stdin,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.registerSystem()
	l.registerBits()
	l.registerPrintStream()
	l.registerConsole()
	log.Debugf("registered %d natives", l.natives.Count())
	return l
}

// Register binds fn to the native method name+descriptor of className,
// replacing any earlier binding.
func (l *Library) Register(className, nameAndDescriptor string, fn vm.NativeFunc) {
	l.natives.Set(className+"."+nameAndDescriptor, fn)
}

// Len returns the number of registered natives.
func (l *Library) Len() int { return l.natives.Count() }

// ResolveNative implements vm.NativeResolver. The JDK's registerNatives
// and initIDs hooks resolve to no-ops on every class.
func (l *Library) ResolveNative(className, nameAndDescriptor string) vm.Result[vm.NativeFunc] {
	if v, ok := l.natives.Get(className + "." + nameAndDescriptor); ok {
		return vm.Success(v.(vm.NativeFunc))
	}
	switch nameAndDescriptor {
	case "registerNatives()V", "initIDs()V":
		return vm.Success[vm.NativeFunc](noop)
	}
	if strings.HasPrefix(className, "jolt/") {
		log.Warningf("no native %s.%s", className, nameAndDescriptor)
	}
	return vm.Failure[vm.NativeFunc](vm.NewThrowable(vm.UnsatisfiedLinkError, "%s.%s", vm.JavaName(className), nameAndDescriptor))
}

// FindClass implements vm.ClassSource for the library's own classes.
func (l *Library) FindClass(name string) (*vm.ClassDef, error) {
	return l.classes.FindClass(name)
}

func noop(t *vm.Thread, args []vm.Value) vm.NativeResult { return vm.NativeVoid() }
