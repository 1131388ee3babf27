package vm

import (
	"errors"
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Class sources: where class definitions come from
// ---------------------------------------------------------------------------

// ErrClassNotFound is returned (possibly wrapped) by a ClassSource that has
// no definition for the requested name.
var ErrClassNotFound = errors.New("class not found")

// ClassDef is the declarative form of a class handed to the runtime by a
// class source. The runtime links it by name into its class arena.
type ClassDef struct {
	Name             string
	Access           AccessFlags
	Super            string // "" only for java/lang/Object
	Interfaces       []string
	Fields           []FieldDef
	Methods          []MethodDef
	Pool             []Constant // index 0 unused
	SourceFile       string
	NestHost         string
	BootstrapMethods []BootstrapMethod
}

// FieldDef declares a field.
type FieldDef struct {
	Name          string
	Descriptor    string
	Access        AccessFlags
	ConstantValue uint16
}

// MethodDef declares a method and its code.
type MethodDef struct {
	Name       string
	Descriptor string
	Access     AccessFlags
	MaxStack   int
	MaxLocals  int
	Code       []byte
	Handlers   []ExceptionHandler
}

// ClassSource supplies class definitions by internal name.
type ClassSource interface {
	FindClass(name string) (*ClassDef, error)
}

// MapSource is an in-memory ClassSource.
type MapSource struct {
	mu    sync.RWMutex
	defs  map[string]*ClassDef
	Loads int // number of FindClass calls served, for instrumentation
}

// NewMapSource creates a source holding defs.
func NewMapSource(defs ...*ClassDef) *MapSource {
	s := &MapSource{defs: make(map[string]*ClassDef)}
	for _, d := range defs {
		s.defs[d.Name] = d
	}
	return s
}

// Add registers a definition.
func (s *MapSource) Add(def *ClassDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Name] = def
}

// FindClass implements ClassSource.
func (s *MapSource) FindClass(name string) (*ClassDef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loads++
	if d, ok := s.defs[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
}

// ChainSource consults each source in order.
type ChainSource []ClassSource

// FindClass implements ClassSource.
func (cs ChainSource) FindClass(name string) (*ClassDef, error) {
	for _, s := range cs {
		def, err := s.FindClass(name)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
}
