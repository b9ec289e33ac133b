package types

import (
	"context"
	"time"
)

// HookFunc is a setup or teardown function attached to a suite.
type HookFunc func(ctx context.Context) error

// HookKind identifies which of the four hook lists a hook belongs to.
type HookKind string

// String implements the Stringer interface for HookKind
func (k HookKind) String() string {
	return string(k)
}

// HookKind enum values
const (
	HookBeforeAll  HookKind = "beforeAll"
	HookAfterAll   HookKind = "afterAll"
	HookBeforeEach HookKind = "beforeEach"
	HookAfterEach  HookKind = "afterEach"
)

// Hook is a named setup/teardown function. The name and owner are only
// used in error messages and logs.
type Hook struct {
	Kind  HookKind
	Name  string
	Owner *Suite // the suite the hook was registered on
	Fn    HookFunc
}

// Suite is a named grouping node of the tree. Child order is insertion
// order and is significant: it is the report order. Suites are created
// under an existing parent only, so the tree is acyclic by construction.
type Suite struct {
	Name   string
	Parent *Suite // nil for root suites, non-owning
	Suites []*Suite
	Tests  []*TestCase

	BeforeAll  []Hook
	AfterAll   []Hook
	BeforeEach []Hook
	AfterEach  []Hook

	Timeout time.Duration // 0 means inherit
	Skip    bool
	Only    bool
}

// Path returns the slash-joined names from the root suite down to this one.
func (s *Suite) Path() string {
	if s.Parent == nil {
		return s.Name
	}
	return s.Parent.Path() + "/" + s.Name
}

// AddBeforeAll appends a beforeAll hook. Hooks run in registration order.
func (s *Suite) AddBeforeAll(name string, fn HookFunc) {
	s.BeforeAll = append(s.BeforeAll, Hook{Kind: HookBeforeAll, Name: name, Owner: s, Fn: fn})
}

// AddAfterAll appends an afterAll hook.
func (s *Suite) AddAfterAll(name string, fn HookFunc) {
	s.AfterAll = append(s.AfterAll, Hook{Kind: HookAfterAll, Name: name, Owner: s, Fn: fn})
}

// AddBeforeEach appends a beforeEach hook inherited by every descendant test.
func (s *Suite) AddBeforeEach(name string, fn HookFunc) {
	s.BeforeEach = append(s.BeforeEach, Hook{Kind: HookBeforeEach, Name: name, Owner: s, Fn: fn})
}

// AddAfterEach appends an afterEach hook inherited by every descendant test.
func (s *Suite) AddAfterEach(name string, fn HookFunc) {
	s.AfterEach = append(s.AfterEach, Hook{Kind: HookAfterEach, Name: name, Owner: s, Fn: fn})
}

// ancestry returns the suite chain for a test from the root down to its
// immediate parent.
func ancestry(t *TestCase) []*Suite {
	var chain []*Suite
	for s := t.Suite; s != nil; s = s.Parent {
		chain = append(chain, s)
	}
	// collected parent-first, callers want root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// ResolveBeforeEach returns the effective beforeEach sequence for a test:
// each ancestor's hooks from the root down to the immediate parent, in
// registration order within each suite. The walk is pure and O(depth).
func ResolveBeforeEach(t *TestCase) []Hook {
	var hooks []Hook
	for _, s := range ancestry(t) {
		hooks = append(hooks, s.BeforeEach...)
	}
	return hooks
}

// ResolveAfterEach returns the effective afterEach sequence for a test: the
// ancestor chain reversed (immediate parent first, root last), hooks in
// registration order within each suite.
func ResolveAfterEach(t *TestCase) []Hook {
	chain := ancestry(t)
	var hooks []Hook
	for i := len(chain) - 1; i >= 0; i-- {
		hooks = append(hooks, chain[i].AfterEach...)
	}
	return hooks
}

// HasOnly reports whether any suite or test in the forest is marked only.
func HasOnly(roots []*Suite) bool {
	for _, s := range roots {
		if s.hasOnly() {
			return true
		}
	}
	return false
}

func (s *Suite) hasOnly() bool {
	if s.Only {
		return true
	}
	for _, t := range s.Tests {
		if t.Only {
			return true
		}
	}
	for _, child := range s.Suites {
		if child.hasOnly() {
			return true
		}
	}
	return false
}

// EffectiveSkip decides whether a test is skipped for a run. An explicit
// skip on the test or any ancestor always wins. When onlyMode is set (some
// node in the tree is marked only), a test additionally runs only if it is
// reachable through an only-marked node: itself or an ancestor suite.
func EffectiveSkip(t *TestCase, onlyMode bool) bool {
	if t.Skip {
		return true
	}
	for s := t.Suite; s != nil; s = s.Parent {
		if s.Skip {
			return true
		}
	}
	if !onlyMode {
		return false
	}
	if t.Only {
		return false
	}
	for s := t.Suite; s != nil; s = s.Parent {
		if s.Only {
			return false
		}
	}
	return true
}

// CountTests returns the number of test cases in the subtree.
func (s *Suite) CountTests() int {
	n := len(s.Tests)
	for _, child := range s.Suites {
		n += child.CountTests()
	}
	return n
}

// WalkTests visits every test in the subtree in declaration order:
// a suite's own tests first, then each child suite depth-first.
func (s *Suite) WalkTests(visit func(*TestCase)) {
	for _, t := range s.Tests {
		visit(t)
	}
	for _, child := range s.Suites {
		child.WalkTests(visit)
	}
}
