// Package loader finds class files on a classpath of directories and
// archives and hands them to the runtime as class definitions.
package loader

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chazu/jolt/classfile"
	"github.com/chazu/jolt/vm"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"
)

var log = commonlog.GetLogger("jolt.loader")

// jmodMagic prefixes the zip data of a JDK .jmod file.
var jmodMagic = []byte("JM\x01\x00")

// entry is one classpath element.
type entry interface {
	// read returns the bytes of name+".class", or fs.ErrNotExist.
	read(name string) ([]byte, error)
	String() string
}

type dirEntry string

func (d dirEntry) read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(string(d), filepath.FromSlash(name)+".class"))
}

func (d dirEntry) String() string { return string(d) }

// archiveEntry is a .jar, .zip or .jmod file, opened on first use.
type archiveEntry struct {
	path   string
	prefix string // "classes/" inside a jmod

	once  sync.Once
	files map[string]*zip.File
	err   error
}

func (a *archiveEntry) open() {
	data, err := os.ReadFile(a.path)
	if err != nil {
		a.err = err
		return
	}
	if bytes.HasPrefix(data, jmodMagic) {
		data = data[len(jmodMagic):]
		a.prefix = "classes/"
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		a.err = fmt.Errorf("loader: opening %s: %w", a.path, err)
		return
	}
	a.files = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		a.files[f.Name] = f
	}
	log.Debugf("opened %s (%d entries)", a.path, len(a.files))
}

func (a *archiveEntry) read(name string) ([]byte, error) {
	a.once.Do(a.open)
	if a.err != nil {
		return nil, a.err
	}
	f, ok := a.files[a.prefix+name+".class"]
	if !ok {
		return nil, fs.ErrNotExist
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("loader: %s!%s: %w", a.path, f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *archiveEntry) String() string { return a.path }

// DirSource is a vm.ClassSource over a classpath. Parsed definitions are
// cached, and concurrent lookups of one name (several runtimes may share
// a source) parse the file once.
type DirSource struct {
	entries []entry

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*vm.ClassDef
}

// New creates a source over the given paths, each a directory or a .jar,
// .zip or .jmod archive. Paths that do not exist are skipped with a
// warning, as the JDK does.
func New(paths ...string) (*DirSource, error) {
	s := &DirSource{cache: make(map[string]*vm.ClassDef)}
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warningf("classpath entry %s does not exist", p)
			continue
		case err != nil:
			return nil, fmt.Errorf("loader: %w", err)
		case info.IsDir():
			s.entries = append(s.entries, dirEntry(p))
		default:
			switch strings.ToLower(filepath.Ext(p)) {
			case ".jar", ".zip", ".jmod":
				s.entries = append(s.entries, &archiveEntry{path: p})
			default:
				return nil, fmt.Errorf("loader: %s: not a directory or archive", p)
			}
		}
	}
	return s, nil
}

// ParseClasspath splits a classpath string on the OS list separator.
func ParseClasspath(cp string) []string {
	if cp == "" {
		return nil
	}
	return filepath.SplitList(cp)
}

// Entries returns the classpath elements in search order.
func (s *DirSource) Entries() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.String()
	}
	return out
}

// FindClass implements vm.ClassSource.
func (s *DirSource) FindClass(name string) (*vm.ClassDef, error) {
	s.mu.RLock()
	def, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return def, nil
	}
	v, err, shared := s.group.Do(name, func() (any, error) {
		return s.load(name)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debugf("shared load of %s", name)
	}
	return v.(*vm.ClassDef), nil
}

func (s *DirSource) load(name string) (*vm.ClassDef, error) {
	for _, e := range s.entries {
		data, err := e.read(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		def, err := classfile.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("loader: %s in %s: %w", name, e, err)
		}
		if def.Name != name {
			return nil, fmt.Errorf("loader: %s in %s defines %s", name, e, def.Name)
		}
		s.mu.Lock()
		s.cache[name] = def
		s.mu.Unlock()
		log.Debugf("loaded %s from %s", name, e)
		return def, nil
	}
	return nil, fmt.Errorf("loader: %s: %w", name, vm.ErrClassNotFound)
}
