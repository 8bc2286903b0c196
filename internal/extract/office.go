package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

// DocxExtractor reads the paragraphs of word/document.xml.
type DocxExtractor struct{}

func (DocxExtractor) Extensions() []string { return []string{"docx"} }

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
		Tables     []struct {
			Rows []struct {
				Cells []struct {
					Paragraphs []docxParagraph `xml:"p"`
				} `xml:"tc"`
			} `xml:"tr"`
		} `xml:"tbl"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

func (p docxParagraph) text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			sb.WriteString(t)
		}
	}
	return sb.String()
}

func (DocxExtractor) Extract(_ context.Context, data []byte, fileName string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%s is not a valid docx archive: %w", fileName, err)
	}
	raw, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", fileName, err)
	}

	var doc docxDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parsing %s: %w", fileName, err)
	}

	var sb strings.Builder
	for _, p := range doc.Body.Paragraphs {
		if t := p.text(); t != "" {
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, c := range row.Cells {
				var parts []string
				for _, p := range c.Paragraphs {
					if t := p.text(); t != "" {
						parts = append(parts, t)
					}
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			sb.WriteString(strings.Join(cells, " | "))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// XlsxExtractor reads every worksheet, treating the first row of each sheet
// as its header.
type XlsxExtractor struct{}

func (XlsxExtractor) Extensions() []string { return []string{"xlsx"} }

type xlsxSharedStrings struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type xlsxSheet struct {
	Rows []struct {
		Cells []struct {
			Ref    string `xml:"r,attr"`
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func (XlsxExtractor) Extract(_ context.Context, data []byte, fileName string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%s is not a valid xlsx archive: %w", fileName, err)
	}

	var shared []string
	if raw, err := readZipFile(zr, "xl/sharedStrings.xml"); err == nil {
		var sst xlsxSharedStrings
		if err := xml.Unmarshal(raw, &sst); err != nil {
			return "", fmt.Errorf("parsing shared strings of %s: %w", fileName, err)
		}
		for _, si := range sst.Items {
			s := si.Text
			for _, r := range si.Runs {
				s += r.Text
			}
			shared = append(shared, s)
		}
	}

	var sheets []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/") && path.Ext(f.Name) == ".xml" {
			sheets = append(sheets, f.Name)
		}
	}
	sort.Slice(sheets, func(i, j int) bool { return sheetNumber(sheets[i]) < sheetNumber(sheets[j]) })

	var sb strings.Builder
	for _, name := range sheets {
		raw, err := readZipFile(zr, name)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
		var sheet xlsxSheet
		if err := xml.Unmarshal(raw, &sheet); err != nil {
			return "", fmt.Errorf("parsing %s: %w", name, err)
		}

		var header []string
		for i, row := range sheet.Rows {
			var rec []string
			for _, c := range row.Cells {
				col := columnIndex(c.Ref)
				if col < 0 {
					col = len(rec)
				}
				for len(rec) < col {
					rec = append(rec, "")
				}
				v := c.Value
				switch c.Type {
				case "s":
					if idx, err := strconv.Atoi(v); err == nil && idx >= 0 && idx < len(shared) {
						v = shared[idx]
					}
				case "inlineStr":
					v = c.Inline.Text
				}
				if col < len(rec) {
					rec[col] = v
				} else {
					rec = append(rec, v)
				}
			}
			if i == 0 {
				header = rec
				continue
			}
			writeRecord(&sb, header, rec)
		}
	}
	return sb.String(), nil
}

// columnIndex converts a cell reference such as "C7" to a zero-based column.
func columnIndex(ref string) int {
	n := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}

func sheetNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), ".xml")
	n, _ := strconv.Atoi(strings.TrimPrefix(base, "sheet"))
	return n
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
