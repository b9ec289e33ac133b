package reporting

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestFileSinkWritesRunDocument(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, testLogger())

	sink.OnSuiteStart("api")
	sink.OnTestResult(types.Result{
		Index: 0, Test: "TestGet", Suite: "api",
		Status: types.TestStatusPass, Duration: 150 * time.Millisecond,
		Mode: types.ExecModeSync,
	})
	sink.OnTestResult(types.Result{
		Index: 1, Test: "TestPut", Suite: "api",
		Status: types.TestStatusFail, Duration: 50 * time.Millisecond,
		Mode: types.ExecModeSync,
		Err:  errors.New("\x1b[31mexpected 200\x1b[0m got 500"),
	})
	sink.OnSuiteEnd("api")
	sink.OnRunComplete(types.RunSummary{
		RunID: "run-7", Total: 2, Passed: 1, Failed: 1,
		Duration: 300 * time.Millisecond,
	})

	data, err := os.ReadFile(sink.Path("run-7"))
	require.NoError(t, err)

	var doc runRecord
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "run-7", doc.RunID)
	assert.Equal(t, "fail", doc.Status)
	assert.Equal(t, 2, doc.Total)
	assert.Equal(t, 1, doc.Passed)
	assert.Equal(t, 1, doc.Failed)
	assert.Equal(t, int64(300), doc.DurationMS)
	assert.False(t, doc.CreatedAt.IsZero())

	require.Len(t, doc.Results, 2)
	assert.Equal(t, "TestGet", doc.Results[0].Test)
	assert.Equal(t, "pass", doc.Results[0].Status)
	assert.Equal(t, int64(150), doc.Results[0].DurationMS)
	assert.Equal(t, "sync", doc.Results[1].Mode)
	// ANSI escapes from assertion output are stripped.
	assert.Equal(t, "expected 200 got 500", doc.Results[1].Error)

	// The companion summary line lands next to the JSON document.
	line, err := os.ReadFile(filepath.Join(filepath.Dir(sink.Path("run-7")), "summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(line), "RunID: run-7")
	assert.Contains(t, string(line), "Status: fail")
}

func TestFileSinkEmptyRun(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, testLogger())

	sink.OnRunComplete(types.RunSummary{RunID: "run-empty"})

	data, err := os.ReadFile(sink.Path("run-empty"))
	require.NoError(t, err)

	var doc runRecord
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotNil(t, doc.Results)
	assert.Empty(t, doc.Results)
}

func TestFileSinkResetsBetweenRuns(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, testLogger())

	sink.OnTestResult(types.Result{Index: 0, Test: "TestA", Suite: "s", Status: types.TestStatusPass})
	sink.OnRunComplete(types.RunSummary{RunID: "first", Total: 1, Passed: 1})

	sink.OnTestResult(types.Result{Index: 0, Test: "TestB", Suite: "s", Status: types.TestStatusPass})
	sink.OnRunComplete(types.RunSummary{RunID: "second", Total: 1, Passed: 1})

	data, err := os.ReadFile(sink.Path("second"))
	require.NoError(t, err)

	var doc runRecord
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Results, 1)
	assert.Equal(t, "TestB", doc.Results[0].Test)
}
