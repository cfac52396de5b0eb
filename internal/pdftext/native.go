package pdftext

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// NativeReader reads embedded page text with ledongthuc/pdf.
type NativeReader struct{}

// PageTexts returns the plain text of every page. Pages the parser cannot
// decode come back empty. Malformed files that make the parser panic are
// reported as errors.
func (NativeReader) PageTexts(path string) (texts []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			texts, err = nil, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	texts = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			// Image-only or problematic page.
			texts = append(texts, "")
			continue
		}
		texts = append(texts, strings.TrimRight(txt, "\n"))
	}
	return texts, nil
}
