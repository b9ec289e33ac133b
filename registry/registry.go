// Package registry owns the suite tree between declaration and execution.
// A Registry is constructed explicitly, populated during the declaration
// phase and destroyed explicitly; no global state survives Close.
package registry

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

// Config contains registry configuration
type Config struct {
	Log log.Logger
}

// Registry manages root suites and their declared tests. Declaration is
// guarded by a lock; during execution the tree is read-only, so runners
// take a snapshot once and iterate freely.
type Registry struct {
	log log.Logger

	mu     sync.RWMutex
	roots  []*types.Suite
	closed bool
}

// NewRegistry creates an empty registry instance
func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Registry{log: cfg.Log}
}

// AddSuite creates a suite under parent and returns it. A nil parent
// creates a root suite. Suites only ever attach to an existing parent, so
// the tree cannot contain cycles. The returned node may be adjusted
// (hooks, Skip/Only, Timeout) until execution begins.
func (r *Registry) AddSuite(parent *types.Suite, name string) *types.Suite {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen()

	s := &types.Suite{Name: name, Parent: parent}
	if parent == nil {
		r.roots = append(r.roots, s)
	} else {
		parent.Suites = append(parent.Suites, s)
	}
	r.log.Debug("Suite registered", "suite", s.Path())
	return s
}

// AddTest declares a test in the given suite and returns it. Tests always
// belong to a suite.
func (r *Registry) AddTest(suite *types.Suite, name string, fn types.TestFunc) *types.TestCase {
	if suite == nil {
		panic("registry: AddTest requires a suite")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen()

	t := &types.TestCase{
		Name:   name,
		Suite:  suite,
		Fn:     fn,
		Mode:   types.ExecModeSync,
		Status: types.TestStatusPending,
	}
	suite.Tests = append(suite.Tests, t)
	return t
}

// Roots returns a snapshot of the root suites in declaration order.
func (r *Registry) Roots() []*types.Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roots := make([]*types.Suite, len(r.roots))
	copy(roots, r.roots)
	return roots
}

// TestCount returns the number of declared tests across all roots.
func (r *Registry) TestCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.roots {
		n += s.CountTests()
	}
	return n
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close tears the registry down: the tree is released and any further
// declaration panics. Close is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.roots = nil
	r.log.Debug("Registry closed")
}

// mustBeOpen is called with the lock held.
func (r *Registry) mustBeOpen() {
	if r.closed {
		panic("registry: used after Close")
	}
}
