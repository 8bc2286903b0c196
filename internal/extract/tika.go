package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TikaExtractor delegates to an Apache Tika server for the formats that
// have no built-in extractor.
type TikaExtractor struct {
	baseURL string
	client  *http.Client
}

// NewTikaExtractor returns an extractor posting to baseURL/tika.
func NewTikaExtractor(baseURL string, timeout time.Duration) *TikaExtractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TikaExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *TikaExtractor) Extensions() []string { return []string{"pdf", "doc", "xls"} }

func (t *TikaExtractor) Extract(ctx context.Context, data []byte, fileName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating tika request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tika request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading tika response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tika returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
