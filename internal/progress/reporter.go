package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback during bulk document ingestion.
// Implementations are safe for concurrent use by ingest workers.
type Reporter interface {
	Start(total int)
	// Advance records one finished document. err is nil on success.
	Advance(name string, err error)
	Finish() Summary
}

// Summary counts the outcomes reported between Start and Finish.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a CIReporter if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{out: os.Stderr}
	}
	return &TerminalReporter{}
}

type counter struct {
	mu      sync.Mutex
	summary Summary
}

func (c *counter) start(total int) {
	c.mu.Lock()
	c.summary = Summary{Total: total}
	c.mu.Unlock()
}

func (c *counter) record(err error) (done int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.summary.Failed++
	} else {
		c.summary.Succeeded++
	}
	return c.summary.Succeeded + c.summary.Failed
}

func (c *counter) result() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	counter
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int) {
	r.start(total)
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Ingesting documents"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Advance(name string, err error) {
	done := r.record(err)
	if r.bar != nil {
		r.bar.Describe(name)
		_ = r.bar.Set(done)
	}
}

func (r *TerminalReporter) Finish() Summary {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
	return r.result()
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	counter
	out io.Writer
}

// NewCIReporter writes progress lines to w.
func NewCIReporter(w io.Writer) *CIReporter {
	return &CIReporter{out: w}
}

func (r *CIReporter) Start(total int) {
	r.start(total)
	fmt.Fprintf(r.out, "Ingesting %d documents\n", total)
}

func (r *CIReporter) Advance(name string, err error) {
	done := r.record(err)
	total := r.result().Total
	if err != nil {
		fmt.Fprintf(r.out, "[%d/%d] %s: FAILED: %v\n", done, total, name, err)
		return
	}
	fmt.Fprintf(r.out, "[%d/%d] %s\n", done, total, name)
}

func (r *CIReporter) Finish() Summary {
	s := r.result()
	fmt.Fprintf(r.out, "Ingestion complete: %d succeeded, %d failed\n", s.Succeeded, s.Failed)
	return s
}
