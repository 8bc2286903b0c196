package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

var bom = []byte("\ufeff")

// TextExtractor passes UTF-8 text through unchanged.
type TextExtractor struct{}

func (TextExtractor) Extensions() []string { return []string{"txt"} }

func (TextExtractor) Extract(_ context.Context, data []byte, fileName string) (string, error) {
	if !utf8.Valid(data) {
		return "", apperr.Validation(apperr.CodeExtractionFailed, "%s is not valid UTF-8 text", fileName)
	}
	return string(bytes.TrimPrefix(data, bom)), nil
}

// CSVExtractor renders each record as "header: value" pairs so rows stay
// meaningful once split into chunks.
type CSVExtractor struct{}

func (CSVExtractor) Extensions() []string { return []string{"csv"} }

func (CSVExtractor) Extract(_ context.Context, data []byte, fileName string) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, bom)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s header: %w", fileName, err)
	}

	var sb strings.Builder
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", fileName, err)
		}
		writeRecord(&sb, header, rec)
	}
	return sb.String(), nil
}

func writeRecord(sb *strings.Builder, header, rec []string) {
	first := true
	for i, v := range rec {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !first {
			sb.WriteString("; ")
		}
		first = false
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			sb.WriteString(strings.TrimSpace(header[i]))
			sb.WriteString(": ")
		}
		sb.WriteString(v)
	}
	if !first {
		sb.WriteString("\n")
	}
}

// MarkdownExtractor strips markdown syntax, keeping the readable text of
// headings, paragraphs, lists, tables and code blocks.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extensions() []string { return []string{"md"} }

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func (MarkdownExtractor) Extract(_ context.Context, data []byte, _ string) (string, error) {
	doc := markdown.Parser().Parse(text.NewReader(data))

	var sb strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.Kind() {
			case ast.KindParagraph, ast.KindHeading, ast.KindListItem, ast.KindBlockquote,
				east.KindTableRow, east.KindTableHeader:
				sb.WriteString("\n")
			case east.KindTableCell:
				sb.WriteString(" ")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.URL(data))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(data))
			}
			sb.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
