package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

// testRecord is the JSON shape of one test result.
type testRecord struct {
	Index      int    `json:"index"`
	Suite      string `json:"suite"`
	Test       string `json:"test"`
	Status     string `json:"status"`
	Mode       string `json:"mode"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// runRecord is the JSON document written per run.
type runRecord struct {
	RunID      string       `json:"run_id"`
	Status     string       `json:"status"`
	Total      int          `json:"total"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	TimedOut   int          `json:"timed_out"`
	DurationMS int64        `json:"duration_ms"`
	CreatedAt  time.Time    `json:"created_at"`
	Results    []testRecord `json:"results"`
}

// FileSink persists each run under <baseDir>/testrun-<runID>/: the full
// result set as results.json plus a one-line summary.txt. Error messages
// are stripped of ANSI escape codes so the artifacts stay grep-friendly
// when assertion libraries colorize their output.
type FileSink struct {
	baseDir string
	log     log.Logger

	mu      sync.Mutex
	records []testRecord
}

var _ Reporter = (*FileSink)(nil)

// NewFileSink writes run documents under baseDir.
func NewFileSink(baseDir string, logger log.Logger) *FileSink {
	if logger == nil {
		logger = log.New()
	}
	return &FileSink{baseDir: baseDir, log: logger}
}

func (s *FileSink) OnSuiteStart(string) {}
func (s *FileSink) OnSuiteEnd(string)   {}

func (s *FileSink) OnTestResult(result types.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := testRecord{
		Index:      result.Index,
		Suite:      result.Suite,
		Test:       result.Test,
		Status:     result.Status.String(),
		Mode:       string(result.Mode),
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		rec.Error = stripansi.Strip(result.Err.Error())
	}
	s.records = append(s.records, rec)
}

func (s *FileSink) OnRunComplete(summary types.RunSummary) {
	s.mu.Lock()
	records := s.records
	s.records = nil
	s.mu.Unlock()

	if records == nil {
		records = []testRecord{}
	}
	doc := runRecord{
		RunID:      summary.RunID,
		Status:     summary.Status().String(),
		Total:      summary.Total,
		Passed:     summary.Passed,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		TimedOut:   summary.TimedOut,
		DurationMS: summary.Duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
		Results:    records,
	}
	if err := s.write(doc, summary.String()); err != nil {
		s.log.Error("Failed to write results file", "runID", summary.RunID, "error", err)
	}
}

func (s *FileSink) write(doc runRecord, summaryLine string) error {
	outputDir := filepath.Join(s.baseDir, "testrun-"+doc.RunID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	path := filepath.Join(outputDir, "results.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results file %s: %w", path, err)
	}

	summaryPath := filepath.Join(outputDir, "summary.txt")
	if err := os.WriteFile(summaryPath, []byte(summaryLine+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write summary file %s: %w", summaryPath, err)
	}
	return nil
}

// Path returns where the results document for runID is written.
func (s *FileSink) Path(runID string) string {
	return filepath.Join(s.baseDir, "testrun-"+runID, "results.json")
}
