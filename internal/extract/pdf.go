package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH (install poppler-utils)")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDFExtractor shells out to poppler's pdftotext.
type PDFExtractor struct {
	runner CommandRunner
}

// NewPDFExtractor returns a PDFExtractor when pdftotext is available.
func NewPDFExtractor() (*PDFExtractor, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, ErrPDFToolNotFound
	}
	return &PDFExtractor{runner: execRunner{}}, nil
}

// NewPDFExtractorWithRunner is used by tests to stub the command.
func NewPDFExtractorWithRunner(r CommandRunner) *PDFExtractor {
	return &PDFExtractor{runner: r}
}

func (p *PDFExtractor) Extensions() []string { return []string{"pdf"} }

func (p *PDFExtractor) Extract(ctx context.Context, data []byte, fileName string) (string, error) {
	f, err := os.CreateTemp("", "compoundrag-*.pdf")
	if err != nil {
		return "", fmt.Errorf("staging %s: %w", fileName, err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("staging %s: %w", fileName, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("staging %s: %w", fileName, err)
	}

	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", f.Name(), "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w", fileName, err)
	}
	return string(out), nil
}
