package manifest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jolt.manifest")

// ResolvedDep is a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string
	LocalPath string
	Manifest  *Manifest // the dependency's own manifest, or nil
}

// ClasspathPaths returns the classpath the dependency contributes: its
// manifest's entries, or the path itself (a class directory or archive)
// when it has no manifest.
func (d ResolvedDep) ClasspathPaths() []string {
	if d.Manifest != nil {
		return d.Manifest.ClasspathPaths()
	}
	return []string{d.LocalPath}
}

// Resolver resolves a manifest's dependencies, cloning git dependencies
// into the project's deps directory.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a resolver for m.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies, transitive ones included, and
// returns them dependencies-first. The lock file is rewritten.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, err
	}
	r.lock = lock

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest, resolved)
	if err != nil {
		return nil, err
	}
	if err := r.writeLock(order); err != nil {
		return nil, err
	}
	return order, nil
}

// Classpath returns the full classpath: dependencies first, then the
// project's own entries.
func (r *Resolver) Classpath() ([]string, error) {
	deps, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	var cp []string
	for _, d := range deps {
		cp = append(cp, d.ClasspathPaths()...)
	}
	return append(cp, r.manifest.ClasspathPaths()...), nil
}

func (r *Resolver) resolveAll(owner *Manifest, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(owner.Dependencies))
	for name := range owner.Dependencies {
		names = append(names, name)
	}
	slices.Sort(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}
		rd, err := r.resolveOne(owner, name, owner.Dependencies[name])
		if err != nil {
			return nil, fmt.Errorf("manifest: resolving %s: %w", name, err)
		}
		resolved[name] = rd
		if rd.Manifest != nil {
			transitive, err := r.resolveAll(rd.Manifest, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var local string
	switch {
	case dep.Path != "":
		p, err := filepath.Abs(owner.Path(dep.Path))
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("local dependency not found: %w", err)
		}
		local = p
	case dep.Git != "":
		local = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetch(name, dep, local); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("dependency has no git or path specified")
	}

	rd := &ResolvedDep{Name: name, LocalPath: local}
	if info, err := os.Stat(filepath.Join(local, FileName)); err == nil && !info.IsDir() {
		m, err := Load(local)
		if err != nil {
			return nil, err
		}
		rd.Manifest = m
	}
	log.Debugf("resolved %s to %s", name, local)
	return rd, nil
}

// fetch clones or updates a git dependency and checks out its tag.
func (r *Resolver) fetch(name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return fmt.Errorf("creating deps dir: %w", err)
		}
		if _, err := git("", "clone", "--quiet", dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if _, err := git(dir, "fetch", "--quiet", "--all", "--tags"); err != nil {
			return err
		}
	}
	if dep.Tag != "" {
		if _, err := git(dir, "checkout", "--quiet", dep.Tag); err != nil {
			return err
		}
	}
	return nil
}

func git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Resolver) writeLock(order []ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range order {
		ld := LockedDep{Name: rd.Name}
		dep, direct := r.manifest.Dependencies[rd.Name]
		switch {
		case direct && dep.Git != "":
			ld.Git, ld.Tag = dep.Git, dep.Tag
			if commit, err := git(rd.LocalPath, "rev-parse", "HEAD"); err == nil {
				ld.Commit = commit
			}
		default:
			ld.Path = rd.LocalPath
		}
		lf.Deps = append(lf.Deps, ld)
	}
	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0o755); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
