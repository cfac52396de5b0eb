// Package pdftext extracts text from PDF files, falling back to OCR when a
// file has little or no embedded text.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pdfqa/internal/logging"
)

var (
	// ErrNoText is returned when neither native extraction nor OCR yields text.
	ErrNoText = errors.New("no usable text extracted")

	// ErrOCRUnavailable is returned by OCR engines in builds without cgo.
	ErrOCRUnavailable = errors.New("ocr: not available (binary built without cgo)")
)

// Method names how the text of a Result was obtained.
type Method string

const (
	MethodNative Method = "native"
	MethodOCR    Method = "ocr"
)

// Result is the text extracted from one PDF.
type Result struct {
	Source string
	Text   string
	Method Method
	Pages  int
}

// TextReader returns the embedded text of each page.
type TextReader interface {
	PageTexts(path string) ([]string, error)
}

// PageRenderer rasterizes each page to PNG bytes.
type PageRenderer interface {
	RenderPages(ctx context.Context, path string) ([][]byte, error)
}

// OCREngine recognizes text in a page image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Options configures an Extractor.
type Options struct {
	MinNativeChars int
	DisableOCR     bool
}

// Extractor runs native extraction with an OCR fallback.
type Extractor struct {
	reader   TextReader
	renderer PageRenderer
	ocr      OCREngine
	opts     Options
	logger   *zap.Logger
}

// NewExtractor wires the extraction backends. renderer and ocr may be nil,
// in which case OCR is skipped.
func NewExtractor(reader TextReader, renderer PageRenderer, ocr OCREngine, opts Options, logger *zap.Logger) *Extractor {
	if opts.MinNativeChars <= 0 {
		opts.MinNativeChars = 50
	}
	return &Extractor{reader: reader, renderer: renderer, ocr: ocr, opts: opts, logger: logging.OrNop(logger)}
}

// ExtractFile returns the text of a single PDF.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (Result, error) {
	source := filepath.Base(path)
	log := e.logger.With(zap.String("file", source))

	pages, err := e.reader.PageTexts(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", source, err)
	}
	var b strings.Builder
	for _, p := range pages {
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteString("\n")
	}
	res := Result{Source: source, Text: b.String(), Method: MethodNative, Pages: len(pages)}

	if len(strings.TrimSpace(res.Text)) < e.opts.MinNativeChars && e.ocrEnabled() {
		log.Info("native extraction insufficient, attempting OCR",
			zap.Int("native_chars", len(strings.TrimSpace(res.Text))))
		ocrText, err := e.runOCR(ctx, path, log)
		switch {
		case err != nil && ctx.Err() != nil:
			return Result{}, ctx.Err()
		case err != nil:
			log.Warn("ocr failed, keeping native text", zap.Error(err))
		case strings.TrimSpace(ocrText) != "":
			res.Text = ocrText
			res.Method = MethodOCR
		}
	}

	if strings.TrimSpace(res.Text) == "" {
		return res, ErrNoText
	}
	return res, nil
}

func (e *Extractor) ocrEnabled() bool {
	return !e.opts.DisableOCR && e.renderer != nil && e.ocr != nil
}

func (e *Extractor) runOCR(ctx context.Context, path string, log *zap.Logger) (string, error) {
	images, err := e.renderer.RenderPages(ctx, path)
	if err != nil {
		return "", fmt.Errorf("render pages: %w", err)
	}
	var b strings.Builder
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		if strings.TrimSpace(text) == "" {
			log.Info("ocr found no text on page", zap.Int("page", i+1))
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// DirStats summarizes an ExtractDir run.
type DirStats struct {
	Processed int
	Extracted int
	Skipped   int
	Failed    int
}

// ExtractDir extracts every *.pdf in dir in name order and hands each
// successful result to fn. Files that fail are logged and skipped. An error
// from fn stops the walk.
func (e *Extractor) ExtractDir(ctx context.Context, dir string, fn func(Result) error) (DirStats, error) {
	var stats DirStats
	files, err := ListPDFs(dir)
	if err != nil {
		return stats, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		name := filepath.Base(path)
		e.logger.Info("processing pdf", zap.String("file", name))
		stats.Processed++

		res, err := e.ExtractFile(ctx, path)
		if errors.Is(err, ErrNoText) {
			e.logger.Warn("no usable text extracted", zap.String("file", name))
			stats.Skipped++
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			e.logger.Error("error processing pdf", zap.String("file", name), zap.Error(err))
			stats.Failed++
			continue
		}
		if err := fn(res); err != nil {
			return stats, err
		}
		stats.Extracted++
		e.logger.Info("extracted text",
			zap.String("file", name),
			zap.String("method", string(res.Method)),
			zap.Int("chars", len(res.Text)))
	}
	return stats, nil
}

// ListPDFs returns the paths of the regular *.pdf files in dir, sorted.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pdf dir: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}
