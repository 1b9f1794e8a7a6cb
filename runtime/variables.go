package runtime

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// FlowPrefix namespaces author-declared variables, e.g. "Flow:score".
const FlowPrefix = "Flow:"

// System variable names. They are session truth: mutated by the surrounding
// chat system, read-only from a flow's point of view.
var systemNames = map[string]bool{
	"Player":   true,
	"Char":     true,
	"Capacity": true,
	"Feeling":  true,
	"Emotion":  true,
	"Gender":   true,
}

// IsSystemVariable reports whether name is one of the reserved session
// variables.
func IsSystemVariable(name string) bool {
	return systemNames[name]
}

// Store is the shared session variable store. One store serves every
// execution running in a session, so implementations must be safe for
// concurrent use. Lookups of variables that were never declared or assigned
// fail explicitly rather than defaulting.
type Store interface {
	Get(name string) (string, bool)
	// Set assigns a flow variable. System variables are rejected; flows
	// cannot write session truth.
	Set(name, value string) error
	// Declare creates a flow variable with a default unless it already
	// exists.
	Declare(name, def string) error
	Exists(name string) bool
	// SetSystem is the session-side write path for system variables.
	SetSystem(name, value string)
	Snapshot() map[string]string
}

// MemoryStore is the default, process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *MemoryStore) Set(name, value string) error {
	if err := checkFlowName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}

func (s *MemoryStore) Declare(name, def string) error {
	if err := checkFlowName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		s.values[name] = def
	}
	return nil
}

func (s *MemoryStore) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

func (s *MemoryStore) SetSystem(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// ValidateFlowName reports whether a name is writable as a flow variable.
// External store implementations share the same namespace rules.
func ValidateFlowName(name string) error {
	return checkFlowName(name)
}

func checkFlowName(name string) error {
	if IsSystemVariable(name) {
		return fmt.Errorf("variable %q is read-only", name)
	}
	if !strings.HasPrefix(name, FlowPrefix) || len(name) == len(FlowPrefix) {
		return fmt.Errorf("flow variables must be named %q, got %q", FlowPrefix+"name", name)
	}
	return nil
}

// tokenPattern matches [Name] for system variables and [Flow:name] for flow
// variables. The grammar is bit-exact: case-sensitive system names, no
// nesting.
var tokenPattern = regexp.MustCompile(`\[(Flow:[^\[\]]+|[A-Za-z][A-Za-z0-9_]*)\]`)

// Substitute replaces every known [Token] and [Flow:name] occurrence with its
// current stringified value. Unknown tokens pass through verbatim: the text
// is user-facing, so substitution fails soft, never hard.
func Substitute(template string, s Store) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := s.Get(name); ok {
			return v
		}
		return match
	})
}
