// Jolt CLI - runs a main class from a classpath of directories and archives
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/jolt/loader"
	"github.com/chazu/jolt/manifest"
	"github.com/chazu/jolt/native"
	"github.com/chazu/jolt/vm"
)

func main() {
	classpath := flag.String("cp", "", "Classpath (directories, .jar, .zip or .jmod, separated by the OS list separator)")
	verbosity := flag.Int("v", -1, "Log verbosity (0 quiet, 1 info, 2 debug); overrides jolt.toml")
	logFile := flag.String("log", "", "Log file (default stderr)")
	dumpPath := flag.String("dump", "", "Write a CBOR thread dump here when the program ends")
	quantum := flag.Int("quantum", 0, "Instructions per scheduling slice")
	maxDepth := flag.Int("max-frame-depth", 0, "Maximum frames per thread")
	configDir := flag.String("C", ".", "Directory to search for jolt.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jolt [options] [main-class] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Loads classes from the classpath and runs main(String[]) of the main class.\n")
		fmt.Fprintf(os.Stderr, "Settings come from the nearest jolt.toml; flags override them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  jolt -cp out demo.Main            # Run demo.Main from ./out\n")
		fmt.Fprintf(os.Stderr, "  jolt -cp app.jar -dump t.cbor Main  # Dump threads on exit\n")
		fmt.Fprintf(os.Stderr, "  jolt                              # Run [classpath] main from jolt.toml\n")
	}
	flag.Parse()

	os.Exit(run(options{
		classpath: *classpath,
		verbosity: *verbosity,
		logFile:   *logFile,
		dumpPath:  *dumpPath,
		quantum:   *quantum,
		maxDepth:  *maxDepth,
		configDir: *configDir,
		args:      flag.Args(),
	}))
}

type options struct {
	classpath string
	verbosity int
	logFile   string
	dumpPath  string
	quantum   int
	maxDepth  int
	configDir string
	args      []string
}

// run returns the process exit status.
func run(o options) int {
	m, err := manifest.FindAndLoad(o.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if m == nil {
		dir, _ := filepath.Abs(o.configDir)
		m = manifest.Default(dir)
	}
	applyFlags(m, o)
	configureLogging(m)
	log := commonlog.GetLogger("jolt")

	mainClass := m.Classpath.Main
	args := o.args
	if len(args) > 0 {
		mainClass, args = args[0], args[1:]
	}
	if mainClass == "" {
		flag.Usage()
		return 2
	}

	var paths []string
	if o.classpath != "" {
		paths = loader.ParseClasspath(o.classpath)
	} else {
		paths, err = manifest.NewResolver(m).Classpath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	classes, err := loader.New(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Debugf("classpath: %v", paths)

	lib := native.New(native.WithStdin(os.Stdin))
	host := &exitHost{}
	machine, err := vm.New(vm.Options{
		Source:        vm.ChainSource{classes, lib},
		Natives:       lib,
		Host:          host,
		Quantum:       m.Runtime.Quantum,
		MaxFrameDepth: m.Runtime.MaxFrameDepth,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	host.vm = machine

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := machine.RunMain(ctx, mainClass, args)
	if dump := m.Path(m.Runtime.Dump); dump != "" {
		if err := writeDump(machine, dump); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			log.Infof("thread dump written to %s", dump)
		}
	}

	switch {
	case runErr == nil && host.uncaught:
		return 1
	case runErr == nil:
		return 0
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(os.Stderr, "interrupted")
		return 130
	case errors.Is(runErr, vm.ErrDeadlock):
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		if dump, err := machine.DumpThreads(); err == nil {
			if td, err := vm.DecodeThreadDump(dump); err == nil {
				for _, ti := range td.Threads {
					fmt.Fprintf(os.Stderr, "  %s: %s %s\n", ti.Name, ti.Status, ti.WaitFor)
				}
			}
		}
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}
}

// applyFlags overrides manifest settings with explicitly set flags.
func applyFlags(m *manifest.Manifest, o options) {
	if o.verbosity >= 0 {
		m.Log.Verbosity = o.verbosity
	}
	if o.logFile != "" {
		m.Log.File = o.logFile
	}
	if o.quantum > 0 {
		m.Runtime.Quantum = o.quantum
	}
	if o.maxDepth > 0 {
		m.Runtime.MaxFrameDepth = o.maxDepth
	}
	if o.dumpPath != "" {
		abs, err := filepath.Abs(o.dumpPath)
		if err == nil {
			m.Runtime.Dump = abs
		}
	}
}

func configureLogging(m *manifest.Manifest) {
	if m.Log.File == "" {
		commonlog.Configure(m.Log.Verbosity, nil)
		return
	}
	path := m.Path(m.Log.File)
	commonlog.Configure(m.Log.Verbosity, &path)
}

func writeDump(machine *vm.VM, path string) error {
	data, err := machine.DumpThreads()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing thread dump: %w", err)
	}
	return nil
}

// exitHost prints uncaught exceptions the way the JDK launcher does and
// remembers that one happened so the process exits non-zero.
type exitHost struct {
	vm       *vm.VM
	uncaught bool
}

func (h *exitHost) OnUncaught(t *vm.Thread, exc *vm.Object) {
	h.uncaught = true
	fmt.Fprintf(h.vm.Stderr(), "Exception in thread %q %s\n", t.Name, h.vm.FormatException(exc))
}

func (h *exitHost) OnExit() {}
