package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/jolt/classfile"
	"github.com/chazu/jolt/manifest"
	"github.com/chazu/jolt/vm"
)

// writeMain writes a class whose main either returns or divides by zero.
func writeMain(t *testing.T, dir, name string, fail bool) {
	t.Helper()
	cb := vm.NewClassBuilder(name, "java/lang/Object")
	code := cb.Method("main", "([Ljava/lang/String;)V", vm.AccPublic|vm.AccStatic).Code
	if fail {
		code.Emit(vm.OpIconst1, vm.OpIconst0, vm.OpIdiv, vm.OpPop)
	}
	code.Emit(vm.OpReturn)
	data, err := classfile.Encode(cb.Build())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(dir, filepath.FromSlash(name)+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunExitStatus(t *testing.T) {
	classes := t.TempDir()
	writeMain(t, classes, "demo/Ok", false)
	writeMain(t, classes, "demo/Boom", true)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"normal completion", []string{"demo.Ok"}, 0},
		{"slash name", []string{"demo/Ok", "extra"}, 0},
		{"uncaught exception", []string{"demo.Boom"}, 1},
		{"missing class", []string{"demo.Missing"}, 1},
		{"no main class", nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(options{
				classpath: classes,
				verbosity: 0,
				configDir: t.TempDir(),
				args:      tt.args,
			})
			if got != tt.want {
				t.Errorf("exit status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunWritesDump(t *testing.T) {
	classes := t.TempDir()
	writeMain(t, classes, "demo/Ok", false)
	dump := filepath.Join(t.TempDir(), "threads.cbor")

	if got := run(options{classpath: classes, configDir: t.TempDir(), dumpPath: dump, args: []string{"demo.Ok"}}); got != 0 {
		t.Fatalf("exit status = %d, want 0", got)
	}
	data, err := os.ReadFile(dump)
	if err != nil {
		t.Fatalf("dump not written: %v", err)
	}
	if _, err := vm.DecodeThreadDump(data); err != nil {
		t.Errorf("DecodeThreadDump: %v", err)
	}
}

func TestApplyFlags(t *testing.T) {
	m := manifest.Default(t.TempDir())
	applyFlags(m, options{verbosity: -1})
	if m.Runtime.Quantum != vm.DefaultQuantum || m.Runtime.MaxFrameDepth != vm.DefaultMaxFrameDepth {
		t.Errorf("unset flags changed runtime settings: %+v", m.Runtime)
	}
	if m.Log.Verbosity != 0 {
		t.Errorf("verbosity = %d, want 0", m.Log.Verbosity)
	}

	applyFlags(m, options{verbosity: 2, logFile: "jolt.log", quantum: 7, maxDepth: 64, dumpPath: "t.cbor"})
	if m.Log.Verbosity != 2 || m.Log.File != "jolt.log" {
		t.Errorf("log = %+v", m.Log)
	}
	if m.Runtime.Quantum != 7 || m.Runtime.MaxFrameDepth != 64 {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	if !filepath.IsAbs(m.Runtime.Dump) || filepath.Base(m.Runtime.Dump) != "t.cbor" {
		t.Errorf("dump = %q, want an absolute path to t.cbor", m.Runtime.Dump)
	}
}
