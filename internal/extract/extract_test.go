package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRegistry_TextFormats(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	got, err := r.Extract(ctx, []byte("\ufeffHello world\n"), "notes.TXT")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)

	got, err = r.Extract(ctx, []byte("name,role\nAda,Engineer\nGrace,\n"), "people.csv")
	require.NoError(t, err)
	assert.Equal(t, "name: Ada; role: Engineer\nname: Grace", got)

	md := "# Handbook\n\nVacation is **25 days**.\n\n- first item\n- second item\n\n```\ncode line\n```\n"
	got, err = r.Extract(ctx, []byte(md), "handbook.md")
	require.NoError(t, err)
	assert.Contains(t, got, "Handbook")
	assert.Contains(t, got, "Vacation is 25 days.")
	assert.Contains(t, got, "second item")
	assert.Contains(t, got, "code line")
	assert.NotContains(t, got, "**")
	assert.NotContains(t, got, "#")
}

func TestRegistry_Docx(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Safety manual</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Wear </w:t></w:r><w:r><w:t>helmets.</w:t></w:r></w:p>
    <w:tbl><w:tr><w:tc><w:p><w:r><w:t>Zone</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>B</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
  </w:body>
</w:document>`
	data := buildZip(t, map[string]string{"word/document.xml": docXML})

	got, err := NewRegistry().Extract(context.Background(), data, "manual.docx")
	require.NoError(t, err)
	assert.Equal(t, "Safety manual\nWear helmets.\nZone | B", got)
}

func TestRegistry_Xlsx(t *testing.T) {
	shared := `<sst><si><t>item</t></si><si><t>qty</t></si><si><t>Bolts</t></si></sst>`
	sheet := `<worksheet><sheetData>
  <row><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
  <row><c r="A2" t="s"><v>2</v></c><c r="B2"><v>40</v></c></row>
  <row><c r="B3" t="inlineStr"><is><t>n/a</t></is></c></row>
</sheetData></worksheet>`
	data := buildZip(t, map[string]string{
		"xl/sharedStrings.xml":     shared,
		"xl/worksheets/sheet1.xml": sheet,
	})

	got, err := NewRegistry().Extract(context.Background(), data, "stock.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "item: Bolts; qty: 40\nqty: n/a", got)
}

func TestRegistry_UnsupportedAndUnconfigured(t *testing.T) {
	r := NewRegistry()

	err := r.Check("image.png")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// Accepted for upload but no extractor without Tika.
	err = r.Check("legacy.doc")
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeUnsupportedFormat, ae.Code)
	assert.Equal(t, "doc", ae.Details["extension"])
}

func TestRegistry_EmptyTextIsExtractionError(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), []byte("  \n "), "blank.txt")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExtraction))
}

func TestRegistry_InvalidUTF8IsUserError(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), []byte{'o', 'k', 0xff, 0xfe}, "latin1.txt")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.True(t, apperr.IsUserError(err))
}

func TestRegistry_CorruptDocx(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), []byte("not a zip"), "broken.docx")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExtraction))
}

func TestTikaExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-fake", string(body))
		w.Write([]byte("Quarterly report text"))
	}))
	defer srv.Close()

	r := NewRegistry(NewTikaExtractor(srv.URL+"/", 0))
	assert.True(t, r.Supports("pdf"))
	assert.True(t, r.Supports("doc"))

	got, err := r.Extract(context.Background(), []byte("%PDF-fake"), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report text", got)
}

func TestTikaExtractor_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewRegistry(NewTikaExtractor(srv.URL, 0)).Extract(context.Background(), []byte("x"), "x.xls")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExtraction))
}

type mockRunner struct {
	output []byte
	err    error
	args   []string
}

func (m *mockRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	m.args = args
	return m.output, m.err
}

func TestPDFExtractor_WithRunner(t *testing.T) {
	runner := &mockRunner{output: []byte("Page one\fPage two")}
	r := NewRegistry(NewPDFExtractorWithRunner(runner))

	got, err := r.Extract(context.Background(), []byte("%PDF"), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Page one\fPage two", got)
	require.Len(t, runner.args, 5)
	assert.Equal(t, "-", runner.args[4])
}

func TestAcceptedExtensions(t *testing.T) {
	for _, ext := range []string{"pdf", "txt", "docx", "doc", "xlsx", "xls", "csv", "md"} {
		assert.True(t, Accepted(ext), ext)
	}
	assert.False(t, Accepted("exe"))
	assert.Equal(t, "md", Ext("Read.Me.MD"))
}
