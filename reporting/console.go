package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ConsoleReporter renders the run as a tree-shaped table. Rows accumulate
// during replay; nothing prints before OnRunComplete.
type ConsoleReporter struct {
	out io.Writer

	mu    sync.Mutex
	rows  []table.Row
	stack []*consoleFrame
}

var _ Reporter = (*ConsoleReporter)(nil)

// consoleFrame buffers a suite's own test results until it is known
// whether a child suite follows them, which decides the branch glyphs.
type consoleFrame struct {
	path    string
	depth   int
	pending []types.Result
}

// NewConsoleReporter writes the results table to out; nil means stdout.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out}
}

func (c *ConsoleReporter) OnSuiteStart(suitePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	depth := 0
	if len(c.stack) > 0 {
		c.flushPending(c.top(), false)
		depth = c.top().depth + 1
	}
	c.stack = append(c.stack, &consoleFrame{path: suitePath, depth: depth})

	name := suitePath
	if i := strings.LastIndex(suitePath, "/"); i >= 0 {
		name = suitePath[i+1:]
	}
	c.rows = append(c.rows, table.Row{"Suite", indent(depth) + name, "", "", ""})
}

func (c *ConsoleReporter) OnTestResult(result types.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	top := c.top()
	top.pending = append(top.pending, result)
}

func (c *ConsoleReporter) OnSuiteEnd(suitePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.stack) == 0 {
		return
	}
	c.flushPending(c.top(), true)
	c.stack = c.stack[:len(c.stack)-1]
}

func (c *ConsoleReporter) OnRunComplete(summary types.RunSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(summary.Duration)))

	t.AppendHeader(table.Row{"Type", "Name", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, row := range c.rows {
		t.AppendRow(row)
	}

	switch summary.Status() {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed, %d skipped, %d timed out",
			summary.Passed, summary.Failed, summary.Skipped, summary.TimedOut),
		formatDuration(summary.Duration),
		getResultString(summary.Status()),
		"",
	})
	t.Render()

	c.rows = nil
	c.stack = nil
}

func (c *ConsoleReporter) top() *consoleFrame {
	return c.stack[len(c.stack)-1]
}

// flushPending appends the frame's buffered test rows. closing means the
// suite is ending, so its last test gets the closing branch glyph; when a
// child suite follows instead, every test keeps the open glyph.
func (c *ConsoleReporter) flushPending(f *consoleFrame, closing bool) {
	for i, res := range f.pending {
		prefix := "├─"
		if closing && i == len(f.pending)-1 {
			prefix = "└─"
		}
		errStr := ""
		if res.Err != nil {
			errStr = res.Err.Error()
		}
		c.rows = append(c.rows, table.Row{
			"",
			fmt.Sprintf("%s%s %s", indent(f.depth), prefix, res.Test),
			formatDuration(res.Duration),
			getResultString(res.Status),
			errStr,
		})
	}
	f.pending = f.pending[:0]
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// getResultString returns a glyph-prefixed string for the test status
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusTimeout:
		return "✗ timeout"
	default:
		return "✗ fail"
	}
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
