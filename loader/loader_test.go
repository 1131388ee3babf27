package loader

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chazu/jolt/classfile"
	"github.com/chazu/jolt/vm"
)

func classBytes(t *testing.T, name string) []byte {
	t.Helper()
	cb := vm.NewClassBuilder(name, "java/lang/Object")
	cb.Method("answer", "()I", vm.AccPublic|vm.AccStatic).Code.
		EmitI8(vm.OpBipush, 42).
		Emit(vm.OpIreturn)
	data, err := classfile.Encode(cb.Build())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func writeClass(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name)+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeJar(t *testing.T, path string, header []byte, files map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write(header); err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFindClassInDirectory(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "demo/Answer", classBytes(t, "demo/Answer"))

	src, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	def, err := src.FindClass("demo/Answer")
	if err != nil {
		t.Fatalf("FindClass: %v", err)
	}
	if def.Name != "demo/Answer" {
		t.Errorf("Name = %q, want demo/Answer", def.Name)
	}
	again, _ := src.FindClass("demo/Answer")
	if again != def {
		t.Error("second FindClass returned a different definition")
	}
}

func TestFindClassInArchives(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	writeJar(t, jar, nil, map[string][]byte{"demo/InJar.class": classBytes(t, "demo/InJar")})
	jmod := filepath.Join(dir, "base.jmod")
	writeJar(t, jmod, jmodMagic, map[string][]byte{"classes/demo/InJmod.class": classBytes(t, "demo/InJmod")})

	src, err := New(jar, jmod)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []string{"demo/InJar", "demo/InJmod"} {
		def, err := src.FindClass(name)
		if err != nil {
			t.Errorf("FindClass(%s): %v", name, err)
			continue
		}
		if def.Name != name {
			t.Errorf("Name = %q, want %q", def.Name, name)
		}
	}
}

func TestSearchOrder(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeClass(t, second, "demo/Answer", classBytes(t, "demo/Answer"))
	// A broken copy earlier on the path wins and fails loudly.
	writeClass(t, first, "demo/Answer", []byte{0xCA, 0xFE})

	src, err := New(first, second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := src.FindClass("demo/Answer"); !errors.Is(err, classfile.ErrTruncated) {
		t.Errorf("FindClass error = %v, want ErrTruncated", err)
	}
}

func TestFindClassErrors(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "demo/Wrong", classBytes(t, "demo/Other"))

	src, err := New(dir, filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := src.Entries(); len(got) != 1 || got[0] != dir {
		t.Errorf("Entries = %v, want [%s]", got, dir)
	}
	if _, err := src.FindClass("demo/Nope"); !errors.Is(err, vm.ErrClassNotFound) {
		t.Errorf("missing class error = %v, want ErrClassNotFound", err)
	}
	if _, err := src.FindClass("demo/Wrong"); err == nil {
		t.Error("mismatched class name loaded without error")
	}

	plain := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(plain, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(plain); err == nil {
		t.Error("New accepted a plain file")
	}
}

func TestConcurrentLookups(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "demo/Answer", classBytes(t, "demo/Answer"))
	src, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 16
	defs := make([]*vm.ClassDef, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defs[i], _ = src.FindClass("demo/Answer")
		}()
	}
	wg.Wait()
	for i, d := range defs {
		if d == nil || d != defs[0] {
			t.Fatalf("defs[%d] = %p, want %p", i, d, defs[0])
		}
	}
}

func TestRunsFromClasspath(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "demo/Answer", classBytes(t, "demo/Answer"))
	src, err := New(ParseClasspath(dir)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	machine, err := vm.New(vm.Options{Source: src})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	r := machine.LoadClass("demo/Answer")
	if !r.IsSuccess() {
		t.Fatalf("LoadClass: %v", r.Err())
	}
	if r.Value().DeclaredMethod("answer", "()I") == nil {
		t.Error("answer()I missing")
	}
}

func TestParseClasspath(t *testing.T) {
	sep := string(os.PathListSeparator)
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a" + sep + "b.jar", 2},
	}
	for _, tt := range tests {
		if got := ParseClasspath(tt.in); len(got) != tt.want {
			t.Errorf("ParseClasspath(%q) = %v, want %d entries", tt.in, got, tt.want)
		}
	}
}
