// Package checks declares the built-in verification suites that ship with
// the op-harness binary. Every check runs against the local process and
// filesystem only, so a default run produces a deterministic pass on any
// healthy host. The suites double as a live exercise of the declaration
// API: nested suites, hooks of all four kinds, per-suite timeouts and the
// async mode tag.
package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/registry"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// RegisterAll declares every built-in suite on the registry.
func RegisterAll(reg *registry.Registry) {
	registerRuntime(reg)
	registerFilesystem(reg)
}

func registerRuntime(reg *registry.Registry) {
	s := reg.AddSuite(nil, "runtime")

	tc := reg.AddTest(s, "TestGoroutineRoundtrip", func(ctx context.Context) error {
		const workers = 8
		var (
			wg    sync.WaitGroup
			count atomic.Int32
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				count.Add(1)
			}()
		}
		wg.Wait()
		if got := count.Load(); got != workers {
			return fmt.Errorf("expected %d goroutines to report, got %d", workers, got)
		}
		return nil
	})
	tc.Mode = types.ExecModeAsync

	reg.AddTest(s, "TestGarbageCollector", func(ctx context.Context) error {
		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)
		runtime.GC()
		runtime.ReadMemStats(&after)
		if after.NumGC <= before.NumGC {
			return fmt.Errorf("GC cycle did not advance: %d -> %d", before.NumGC, after.NumGC)
		}
		return nil
	})

	clock := reg.AddSuite(s, "clock")

	reg.AddTest(clock, "TestMonotonicReadings", func(ctx context.Context) error {
		first := time.Now()
		second := time.Now()
		if second.Before(first) {
			return fmt.Errorf("clock went backwards: %v then %v", first, second)
		}
		return nil
	})

	tc = reg.AddTest(clock, "TestTimerFires", func(ctx context.Context) error {
		start := time.Now()
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
		if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
			return fmt.Errorf("timer fired after %v, want at least 10ms", elapsed)
		}
		return nil
	})
	tc.Timeout = 10 * time.Second
}

// fsChecks carries the workspace path from the setup hook to the checks.
type fsChecks struct {
	root string
}

func registerFilesystem(reg *registry.Registry) {
	f := &fsChecks{}
	s := reg.AddSuite(nil, "filesystem")
	s.Timeout = 30 * time.Second

	s.AddBeforeAll("create-workspace", func(ctx context.Context) error {
		dir, err := os.MkdirTemp("", "op-harness-checks-")
		if err != nil {
			return fmt.Errorf("creating workspace: %w", err)
		}
		f.root = dir
		return nil
	})
	s.AddAfterAll("remove-workspace", func(ctx context.Context) error {
		if f.root == "" {
			return nil
		}
		return os.RemoveAll(f.root)
	})
	s.AddBeforeEach("require-workspace", func(ctx context.Context) error {
		if f.root == "" {
			return errors.New("workspace was not created")
		}
		if _, err := os.Stat(f.root); err != nil {
			return fmt.Errorf("workspace vanished: %w", err)
		}
		return nil
	})

	reg.AddTest(s, "TestWriteReadRoundtrip", func(ctx context.Context) error {
		dir, err := f.caseDir()
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "payload.bin")
		payload := []byte("op-harness filesystem check payload")
		if err := os.WriteFile(path, payload, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if !bytes.Equal(got, payload) {
			return fmt.Errorf("payload mismatch: wrote %d bytes, read %d", len(payload), len(got))
		}
		return nil
	})

	reg.AddTest(s, "TestRename", func(ctx context.Context) error {
		dir, err := f.caseDir()
		if err != nil {
			return err
		}
		oldPath := filepath.Join(dir, "old")
		newPath := filepath.Join(dir, "new")
		if err := os.WriteFile(oldPath, []byte("x"), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", oldPath, err)
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			return fmt.Errorf("renaming: %w", err)
		}
		if _, err := os.Stat(newPath); err != nil {
			return fmt.Errorf("renamed file missing: %w", err)
		}
		if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
			return errors.New("old path still present after rename")
		}
		return nil
	})

	reg.AddTest(s, "TestListDir", func(ctx context.Context) error {
		dir, err := f.caseDir()
		if err != nil {
			return err
		}
		names := []string{"a.txt", "b.txt", "c.txt"}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("listing %s: %w", dir, err)
		}
		if len(entries) != len(names) {
			return fmt.Errorf("expected %d entries, found %d", len(names), len(entries))
		}
		return nil
	})
}

// caseDir returns a fresh directory for one check so checks stay
// independent under concurrent execution.
func (f *fsChecks) caseDir() (string, error) {
	dir, err := os.MkdirTemp(f.root, "case-")
	if err != nil {
		return "", fmt.Errorf("creating case directory: %w", err)
	}
	return dir, nil
}
