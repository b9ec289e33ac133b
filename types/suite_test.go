package types

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopHook(ctx context.Context) error { return nil }

// buildNestedTree returns root suite A containing suite B containing test T.
func buildNestedTree(t *testing.T) (*Suite, *Suite, *TestCase) {
	t.Helper()
	a := &Suite{Name: "A"}
	b := &Suite{Name: "B", Parent: a}
	a.Suites = append(a.Suites, b)
	tc := &TestCase{Name: "T", Suite: b, Fn: func(ctx context.Context) error { return nil }}
	b.Tests = append(b.Tests, tc)
	return a, b, tc
}

func hookNames(hooks []Hook) []string {
	names := make([]string, 0, len(hooks))
	for _, h := range hooks {
		names = append(names, h.Name)
	}
	return names
}

func TestResolveBeforeEachRootToLeaf(t *testing.T) {
	a, b, tc := buildNestedTree(t)
	a.AddBeforeEach("a1", nopHook)
	b.AddBeforeEach("b1", nopHook)

	got := ResolveBeforeEach(tc)
	assert.Equal(t, []string{"a1", "b1"}, hookNames(got), "beforeEach should run root to leaf")
	assert.Empty(t, ResolveAfterEach(tc), "no afterEach registered")
}

func TestResolveAfterEachLeafToRoot(t *testing.T) {
	a, b, tc := buildNestedTree(t)
	a.AddBeforeEach("a1", nopHook)
	b.AddBeforeEach("b1", nopHook)
	a.AddAfterEach("a2", nopHook)
	b.AddAfterEach("b2", nopHook)

	assert.Equal(t, []string{"a1", "b1"}, hookNames(ResolveBeforeEach(tc)))
	assert.Equal(t, []string{"b2", "a2"}, hookNames(ResolveAfterEach(tc)), "afterEach should run leaf to root")
}

func TestResolveHooksKeepRegistrationOrderWithinSuite(t *testing.T) {
	a, b, tc := buildNestedTree(t)
	a.AddBeforeEach("a1", nopHook)
	a.AddBeforeEach("a2", nopHook)
	b.AddAfterEach("b1", nopHook)
	b.AddAfterEach("b2", nopHook)

	assert.Equal(t, []string{"a1", "a2"}, hookNames(ResolveBeforeEach(tc)))
	assert.Equal(t, []string{"b1", "b2"}, hookNames(ResolveAfterEach(tc)),
		"hooks of one suite keep registration order, only the ancestry is reversed")
}

func TestResolveHooksRootTest(t *testing.T) {
	tc := &TestCase{Name: "orphan"}
	assert.Empty(t, ResolveBeforeEach(tc))
	assert.Empty(t, ResolveAfterEach(tc))
}

func TestEffectiveSkip(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(a, b *Suite, tc *TestCase)
		onlyMode bool
		want     bool
	}{
		{
			name:  "plain test runs",
			setup: func(a, b *Suite, tc *TestCase) {},
			want:  false,
		},
		{
			name:  "explicit skip on test",
			setup: func(a, b *Suite, tc *TestCase) { tc.Skip = true },
			want:  true,
		},
		{
			name:  "skip propagates from ancestor",
			setup: func(a, b *Suite, tc *TestCase) { a.Skip = true },
			want:  true,
		},
		{
			name:     "only elsewhere skips unmarked test",
			setup:    func(a, b *Suite, tc *TestCase) {},
			onlyMode: true,
			want:     true,
		},
		{
			name:     "only on test keeps it running",
			setup:    func(a, b *Suite, tc *TestCase) { tc.Only = true },
			onlyMode: true,
			want:     false,
		},
		{
			name:     "only on ancestor keeps descendants running",
			setup:    func(a, b *Suite, tc *TestCase) { a.Only = true },
			onlyMode: true,
			want:     false,
		},
		{
			name:     "explicit skip wins over only",
			setup:    func(a, b *Suite, tc *TestCase) { tc.Only = true; tc.Skip = true },
			onlyMode: true,
			want:     true,
		},
		{
			name:     "skipped ancestor wins over only on test",
			setup:    func(a, b *Suite, tc *TestCase) { b.Skip = true; tc.Only = true },
			onlyMode: true,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, tc := buildNestedTree(t)
			tt.setup(a, b, tc)
			assert.Equal(t, tt.want, EffectiveSkip(tc, tt.onlyMode))
		})
	}
}

func TestHasOnly(t *testing.T) {
	a, b, tc := buildNestedTree(t)
	require.False(t, HasOnly([]*Suite{a}))

	tc.Only = true
	assert.True(t, HasOnly([]*Suite{a}), "only on a test is detected")

	tc.Only = false
	b.Only = true
	assert.True(t, HasOnly([]*Suite{a}), "only on a nested suite is detected")
}

func TestSuitePathAndFullName(t *testing.T) {
	a, b, tc := buildNestedTree(t)
	assert.Equal(t, "A", a.Path())
	assert.Equal(t, "A/B", b.Path())
	assert.Equal(t, "A/B/T", tc.FullName())
}

func TestEffectiveTimeout(t *testing.T) {
	global := 30 * time.Second
	a, b, tc := buildNestedTree(t)

	assert.Equal(t, global, tc.EffectiveTimeout(global), "unset timeouts inherit the global default")

	a.Timeout = 10 * time.Second
	assert.Equal(t, 10*time.Second, tc.EffectiveTimeout(global), "suite override applies to descendants")

	b.Timeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, tc.EffectiveTimeout(global), "nearest ancestor wins")

	tc.Timeout = time.Second
	assert.Equal(t, time.Second, tc.EffectiveTimeout(global), "per-test override wins over everything")
}

func TestWalkTestsDeclarationOrder(t *testing.T) {
	root := &Suite{Name: "root"}
	t1 := &TestCase{Name: "t1", Suite: root}
	root.Tests = append(root.Tests, t1)
	child := &Suite{Name: "child", Parent: root}
	root.Suites = append(root.Suites, child)
	t2 := &TestCase{Name: "t2", Suite: child}
	t3 := &TestCase{Name: "t3", Suite: child}
	child.Tests = append(child.Tests, t2, t3)

	var visited []string
	root.WalkTests(func(tc *TestCase) { visited = append(visited, tc.Name) })
	assert.Equal(t, []string{"t1", "t2", "t3"}, visited, "own tests first, then child suites depth-first")
	assert.Equal(t, 3, root.CountTests())
}
