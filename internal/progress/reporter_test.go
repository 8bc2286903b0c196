package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestCIReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewCIReporter(&buf)

	r.Start(2)
	r.Advance("handbook/safety.txt", nil)
	r.Advance("finance/budget.csv", errors.New("DUPLICATE_CONTENT"))
	s := r.Finish()

	if s != (Summary{Total: 2, Succeeded: 1, Failed: 1}) {
		t.Errorf("unexpected summary %+v", s)
	}
	out := buf.String()
	for _, want := range []string{
		"Ingesting 2 documents",
		"[1/2] handbook/safety.txt",
		"[2/2] finance/budget.csv: FAILED: DUPLICATE_CONTENT",
		"1 succeeded, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReporterConcurrentAdvance(t *testing.T) {
	r := &TerminalReporter{}
	r.start(50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%10 == 0 {
				err = errors.New("boom")
			}
			r.Advance("doc", err)
		}(i)
	}
	wg.Wait()

	if s := r.Finish(); s.Succeeded != 45 || s.Failed != 5 {
		t.Errorf("unexpected summary %+v", s)
	}
}
