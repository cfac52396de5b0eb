// Package corpus reads and writes the line-delimited JSON training corpus.
package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyCorpus is returned when the corpus file is missing or empty.
var ErrEmptyCorpus = errors.New("corpus file is missing or empty")

// Record is one extracted PDF.
type Record struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Writer appends records to a JSONL stream.
type Writer struct {
	w     *bufio.Writer
	c     io.Closer
	enc   *json.Encoder
	count int
}

// NewWriter wraps w. Close flushes but only closes w if it is an io.Closer.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	c, _ := w.(io.Closer)
	return &Writer{w: bw, c: c, enc: enc}
}

// Create truncates (or creates) path, making parent directories as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewWriter(f), nil
}

// Write encodes one record followed by a newline.
func (w *Writer) Write(r Record) error {
	if err := w.enc.Encode(r); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

// Close flushes buffered records and closes the underlying file.
func (w *Writer) Close() error {
	ferr := w.w.Flush()
	if w.c != nil {
		if err := w.c.Close(); err != nil && ferr == nil {
			ferr = err
		}
	}
	return ferr
}

// Check returns ErrEmptyCorpus if path does not exist or has zero size.
func Check(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrEmptyCorpus)
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s: %w", path, ErrEmptyCorpus)
	}
	return nil
}

// Read loads every record from path. Blank lines are skipped.
func Read(path string) ([]Record, error) {
	if err := Check(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads JSONL records from r.
func Decode(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var out []Record
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
