package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/jolt/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"

[runtime]
quantum = 250
max-frame-depth = 64
dump = "threads.cbor"

[classpath]
entries = ["build/classes", "lib/util.jar"]
main = "demo/Main"

[log]
verbosity = 2
file = "jolt.log"

[dependencies]
helper = { path = "../helper" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "demo" {
		t.Errorf("project name = %q, want demo", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Runtime.Quantum != 250 {
		t.Errorf("quantum = %d, want 250", m.Runtime.Quantum)
	}
	if m.Runtime.MaxFrameDepth != 64 {
		t.Errorf("max frame depth = %d, want 64", m.Runtime.MaxFrameDepth)
	}
	if m.Runtime.Dump != "threads.cbor" {
		t.Errorf("dump = %q, want threads.cbor", m.Runtime.Dump)
	}
	if m.Classpath.Main != "demo/Main" {
		t.Errorf("main = %q, want demo/Main", m.Classpath.Main)
	}
	if m.Log.Verbosity != 2 || m.Log.File != "jolt.log" {
		t.Errorf("log = %+v, want verbosity 2 file jolt.log", m.Log)
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" {
		t.Errorf("helper dep = %v, want path ../helper", m.Dependencies["helper"])
	}

	abs, _ := filepath.Abs(dir)
	if m.Dir != abs {
		t.Errorf("dir = %q, want %q", m.Dir, abs)
	}
	want := []string{filepath.Join(abs, "build/classes"), filepath.Join(abs, "lib/util.jar")}
	if got := m.ClasspathPaths(); !reflect.DeepEqual(got, want) {
		t.Errorf("ClasspathPaths() = %v, want %v", got, want)
	}
}

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project]\nname = \"bare\"\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Runtime.Quantum != vm.DefaultQuantum {
		t.Errorf("quantum = %d, want %d", m.Runtime.Quantum, vm.DefaultQuantum)
	}
	if m.Runtime.MaxFrameDepth != vm.DefaultMaxFrameDepth {
		t.Errorf("max frame depth = %d, want %d", m.Runtime.MaxFrameDepth, vm.DefaultMaxFrameDepth)
	}
	if !reflect.DeepEqual(m.Classpath.Entries, []string{"classes"}) {
		t.Errorf("entries = %v, want [classes]", m.Classpath.Entries)
	}

	d := Default("/work")
	if got := d.ClasspathPaths(); !reflect.DeepEqual(got, []string{filepath.Join("/work", "classes")}) {
		t.Errorf("Default ClasspathPaths() = %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[runtime]\nquantumm = 5\n", "unknown key"},
		{"syntax", "[runtime\n", "parse error"},
		{"wrong type", "[runtime]\nquantum = \"fast\"\n", "parse error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tc.want)
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a directory without jolt.toml should fail")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"outer\"\n")
	nested := filepath.Join(root, "src", "demo")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "outer" {
		t.Fatalf("FindAndLoad = %+v, want project outer", m)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	// Assumes no jolt.toml above the temp directory.
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("FindAndLoad = %+v, want nil", m)
	}
}

func TestLockRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.toml")
	lf := &LockFile{Deps: []LockedDep{
		{Name: "a", Git: "https://example.com/a.git", Tag: "v1.0.0", Commit: "abc123"},
		{Name: "b", Path: "/src/b"},
	}}
	if err := WriteLock(path, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}
	got, err := ReadLock(path)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}
	if !reflect.DeepEqual(got, lf) {
		t.Errorf("ReadLock = %+v, want %+v", got, lf)
	}
	if d := got.FindLockedDep("b"); d == nil || d.Path != "/src/b" {
		t.Errorf("FindLockedDep(b) = %+v", d)
	}
	if d := got.FindLockedDep("c"); d != nil {
		t.Errorf("FindLockedDep(c) = %+v, want nil", d)
	}
}

func TestReadLockMissing(t *testing.T) {
	lf, err := ReadLock(filepath.Join(t.TempDir(), "lock.toml"))
	if err != nil || lf != nil {
		t.Errorf("ReadLock = %v, %v, want nil, nil", lf, err)
	}
	if d := lf.FindLockedDep("x"); d != nil {
		t.Errorf("FindLockedDep on nil lock = %+v", d)
	}
}

func TestResolvePathDeps(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	lib := filepath.Join(root, "lib")
	base := filepath.Join(root, "base.jar")

	writeManifest(t, app, `
[classpath]
entries = ["out"]

[dependencies]
lib = { path = "../lib" }
`)
	writeManifest(t, lib, `
[classpath]
entries = ["classes", "extra"]

[dependencies]
base = { path = "../base.jar" }
`)
	if err := os.WriteFile(base, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(app)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	r := NewResolver(m)
	deps, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var names []string
	for _, d := range deps {
		names = append(names, d.Name)
	}
	if !reflect.DeepEqual(names, []string{"base", "lib"}) {
		t.Errorf("resolve order = %v, want [base lib]", names)
	}

	cp, err := r.Classpath()
	if err != nil {
		t.Fatalf("Classpath failed: %v", err)
	}
	want := []string{
		base,
		filepath.Join(lib, "classes"),
		filepath.Join(lib, "extra"),
		filepath.Join(app, "out"),
	}
	if !reflect.DeepEqual(cp, want) {
		t.Errorf("Classpath() = %v, want %v", cp, want)
	}

	lf, err := ReadLock(m.LockFilePath())
	if err != nil || lf == nil {
		t.Fatalf("ReadLock = %v, %v", lf, err)
	}
	if d := lf.FindLockedDep("lib"); d == nil || d.Path != lib {
		t.Errorf("locked lib = %+v, want path %s", d, lib)
	}
}

func TestResolveErrors(t *testing.T) {
	cases := []struct {
		name string
		deps string
		want string
	}{
		{"missing path", `gone = { path = "nowhere" }`, "local dependency not found"},
		{"no source", `empty = { tag = "v1" }`, "no git or path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, "[dependencies]\n"+tc.deps+"\n")
			m, err := Load(dir)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			_, err = NewResolver(m).Resolve()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Resolve() error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestResolveNoDeps(t *testing.T) {
	m := Default(t.TempDir())
	deps, err := NewResolver(m).Resolve()
	if err != nil || deps != nil {
		t.Errorf("Resolve = %v, %v, want nil, nil", deps, err)
	}
	if _, err := os.Stat(m.LockFilePath()); err == nil {
		t.Error("lock file written for a project without dependencies")
	}
}
