// Package manifest handles jolt.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/jolt/vm"
)

// FileName is the name of the project configuration file.
const FileName = "jolt.toml"

// Manifest represents a jolt.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Runtime      Runtime               `toml:"runtime"`
	Classpath    Classpath             `toml:"classpath"`
	Log          Log                   `toml:"log"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the jolt.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Runtime configures the interpreter.
type Runtime struct {
	Quantum       int    `toml:"quantum"`
	MaxFrameDepth int    `toml:"max-frame-depth"`
	Dump          string `toml:"dump"` // thread dump written on exit, relative to Dir
}

// Classpath configures where classes come from and what runs.
type Classpath struct {
	Entries []string `toml:"entries"`
	Main    string   `toml:"main"`
}

// Log configures host logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Dependency is another project or archive whose classes join the
// classpath.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// Default returns the configuration used when dir has no jolt.toml.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Runtime.Quantum <= 0 {
		m.Runtime.Quantum = vm.DefaultQuantum
	}
	if m.Runtime.MaxFrameDepth <= 0 {
		m.Runtime.MaxFrameDepth = vm.DefaultMaxFrameDepth
	}
	if len(m.Classpath.Entries) == 0 {
		m.Classpath.Entries = []string{"classes"}
	}
}

// Load parses the jolt.toml file in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("manifest: %s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a jolt.toml file, then
// loads and returns the manifest. It returns nil, nil if there is none.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	for {
		_, err := os.Stat(filepath.Join(dir, FileName))
		if err == nil {
			return Load(dir)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Path resolves p against the manifest directory.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ClasspathPaths returns the configured classpath entries as paths.
func (m *Manifest) ClasspathPaths() []string {
	paths := make([]string, 0, len(m.Classpath.Entries))
	for _, e := range m.Classpath.Entries {
		paths = append(paths, m.Path(e))
	}
	return paths
}

// DepsDir returns the path to the .jolt/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".jolt", "deps")
}

// LockFilePath returns the path to .jolt/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".jolt", "lock.toml")
}
