package registry

import (
	"context"
	"testing"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(Config{Log: log.NewLogger(log.DiscardHandler())})
}

func nopTest(ctx context.Context) error { return nil }

func TestRegistryBuildsTree(t *testing.T) {
	r := setupTestRegistry(t)

	api := r.AddSuite(nil, "api")
	storage := r.AddSuite(api, "storage")
	r.AddTest(api, "ping", nopTest)
	r.AddTest(storage, "read", nopTest)
	r.AddTest(storage, "write", nopTest)

	roots := r.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "api", roots[0].Name)
	require.Len(t, roots[0].Suites, 1)
	assert.Equal(t, "api/storage", roots[0].Suites[0].Path())
	assert.Equal(t, 3, r.TestCount())
}

func TestRegistryPreservesDeclarationOrder(t *testing.T) {
	r := setupTestRegistry(t)

	for _, name := range []string{"c", "a", "b"} {
		r.AddSuite(nil, name)
	}

	roots := r.Roots()
	got := []string{roots[0].Name, roots[1].Name, roots[2].Name}
	assert.Equal(t, []string{"c", "a", "b"}, got, "insertion order is report order, not lexical order")
}

func TestRegistryAddTestDefaults(t *testing.T) {
	r := setupTestRegistry(t)
	s := r.AddSuite(nil, "s")
	tc := r.AddTest(s, "t", nopTest)

	assert.Equal(t, types.TestStatusPending, tc.Status)
	assert.Equal(t, types.ExecModeSync, tc.Mode)
	assert.Same(t, s, tc.Suite)
}

func TestRegistryAddTestRequiresSuite(t *testing.T) {
	r := setupTestRegistry(t)
	assert.Panics(t, func() { r.AddTest(nil, "orphan", nopTest) })
}

func TestRegistryClose(t *testing.T) {
	r := setupTestRegistry(t)
	r.AddSuite(nil, "s")

	require.False(t, r.Closed())
	r.Close()
	assert.True(t, r.Closed())
	assert.Empty(t, r.Roots(), "close releases the tree")

	r.Close() // idempotent

	assert.Panics(t, func() { r.AddSuite(nil, "late") })
}

func TestRegistryRootsIsASnapshot(t *testing.T) {
	r := setupTestRegistry(t)
	r.AddSuite(nil, "one")

	roots := r.Roots()
	r.AddSuite(nil, "two")

	assert.Len(t, roots, 1, "snapshot must not observe later declarations")
	assert.Len(t, r.Roots(), 2)
}
