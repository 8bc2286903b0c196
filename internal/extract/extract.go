// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

// AcceptedExtensions is every file extension an upload may carry. Some of
// them need an external extractor before they can be indexed.
var AcceptedExtensions = []string{"pdf", "txt", "docx", "doc", "xlsx", "xls", "csv", "md"}

// Extractor converts one family of document formats into text.
type Extractor interface {
	// Extensions lists the lowercase extensions, without the dot, handled.
	Extensions() []string
	Extract(ctx context.Context, data []byte, fileName string) (string, error)
}

// Registry picks an extractor by file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry with the built-in extractors. Later
// extractors win over earlier ones for an extension they share.
func NewRegistry(extra ...Extractor) *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	for _, e := range []Extractor{TextExtractor{}, CSVExtractor{}, MarkdownExtractor{}, DocxExtractor{}, XlsxExtractor{}} {
		r.Register(e)
	}
	for _, e := range extra {
		r.Register(e)
	}
	return r
}

// Register adds e for each of its extensions.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[ext] = e
	}
}

// Ext returns the normalized extension of fileName.
func Ext(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}

// Accepted reports whether the extension may be uploaded at all.
func Accepted(ext string) bool {
	for _, a := range AcceptedExtensions {
		if a == ext {
			return true
		}
	}
	return false
}

// Supports reports whether an extractor is available for ext.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[ext]
	return ok
}

// Extensions returns the supported extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Check validates that fileName can be extracted.
func (r *Registry) Check(fileName string) error {
	ext := Ext(fileName)
	if !Accepted(ext) {
		return apperr.Validation(apperr.CodeUnsupportedFormat,
			"unsupported file type %q; accepted: %s", ext, strings.Join(AcceptedExtensions, ", ")).
			WithDetail("extension", ext)
	}
	if !r.Supports(ext) {
		return apperr.Validation(apperr.CodeUnsupportedFormat,
			"no extractor configured for %q files", ext).
			WithDetail("extension", ext)
	}
	return nil
}

// Extract returns the text of data. An empty result is an extraction error.
func (r *Registry) Extract(ctx context.Context, data []byte, fileName string) (string, error) {
	if err := r.Check(fileName); err != nil {
		return "", err
	}
	text, err := r.byExt[Ext(fileName)].Extract(ctx, data, fileName)
	if err != nil {
		return "", apperr.FromExternal(err, apperr.KindExtraction, apperr.CodeExtractionFailed,
			"extracting text from "+fileName)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.New(apperr.KindExtraction, apperr.CodeExtractionFailed,
			"%s contains no extractable text", fileName)
	}
	return text, nil
}

// NewDefaultRegistry wires the optional extractors available on this host:
// pdftotext when installed and a Tika server when extractorURL is set.
func NewDefaultRegistry(extractorURL string) *Registry {
	var extra []Extractor
	if pdf, err := NewPDFExtractor(); err == nil {
		extra = append(extra, pdf)
	} else {
		log.Debug().Err(err).Msg("pdf extraction via pdftotext disabled")
	}
	if extractorURL != "" {
		extra = append(extra, NewTikaExtractor(extractorURL, 0))
	}
	return NewRegistry(extra...)
}
