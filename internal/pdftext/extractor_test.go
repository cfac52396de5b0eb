package pdftext

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeReader struct {
	pages map[string][]string
	errs  map[string]error
}

func (f fakeReader) PageTexts(path string) ([]string, error) {
	name := filepath.Base(path)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	return f.pages[name], nil
}

type fakeRenderer struct {
	pages int
	calls int
}

func (f *fakeRenderer) RenderPages(_ context.Context, _ string) ([][]byte, error) {
	f.calls++
	out := make([][]byte, f.pages)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out, nil
}

type fakeOCR struct {
	texts []string
	err   error
}

func (f fakeOCR) Recognize(_ context.Context, img []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.texts[int(img[0])], nil
}

var longText = strings.Repeat("Native text that is long enough. ", 3)

func TestExtractFile_NativeSufficient(t *testing.T) {
	renderer := &fakeRenderer{pages: 1}
	e := NewExtractor(
		fakeReader{pages: map[string][]string{"a.pdf": {longText, "", "second page"}}},
		renderer, fakeOCR{texts: []string{"ocr"}}, Options{}, nil)

	res, err := e.ExtractFile(context.Background(), "/x/a.pdf")
	require.NoError(t, err)

	assert.Equal(t, "a.pdf", res.Source)
	assert.Equal(t, MethodNative, res.Method)
	assert.Equal(t, longText+"\nsecond page\n", res.Text)
	assert.Equal(t, 3, res.Pages)
	assert.Zero(t, renderer.calls, "ocr must not run when native text is sufficient")
}

func TestExtractFile_OCRFallback(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	renderer := &fakeRenderer{pages: 3}
	e := NewExtractor(
		fakeReader{pages: map[string][]string{"scan.pdf": {"tiny"}}},
		renderer, fakeOCR{texts: []string{"page one", "   ", "page three"}}, Options{}, zap.New(core))

	res, err := e.ExtractFile(context.Background(), "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, MethodOCR, res.Method)
	assert.Equal(t, "page one\npage three\n", res.Text)
	assert.Equal(t, 1, renderer.calls)
	assert.Equal(t, 1, logs.FilterMessage("ocr found no text on page").Len())
}

func TestExtractFile_OCRBlankKeepsNative(t *testing.T) {
	e := NewExtractor(
		fakeReader{pages: map[string][]string{"a.pdf": {"short"}}},
		&fakeRenderer{pages: 1}, fakeOCR{texts: []string{""}}, Options{}, nil)

	res, err := e.ExtractFile(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, res.Method)
	assert.Equal(t, "short\n", res.Text)
}

func TestExtractFile_OCRErrorKeepsNative(t *testing.T) {
	e := NewExtractor(
		fakeReader{pages: map[string][]string{"a.pdf": {"short"}}},
		&fakeRenderer{pages: 1}, fakeOCR{err: ErrOCRUnavailable}, Options{}, nil)

	res, err := e.ExtractFile(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "short\n", res.Text)
}

func TestExtractFile_NoText(t *testing.T) {
	e := NewExtractor(
		fakeReader{pages: map[string][]string{"a.pdf": {"", ""}}},
		&fakeRenderer{pages: 2}, fakeOCR{texts: []string{"", ""}}, Options{}, nil)

	_, err := e.ExtractFile(context.Background(), "a.pdf")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractFile_OCRDisabled(t *testing.T) {
	renderer := &fakeRenderer{pages: 1}
	e := NewExtractor(
		fakeReader{pages: map[string][]string{"a.pdf": {"short"}}},
		renderer, fakeOCR{texts: []string{"ocr text"}}, Options{DisableOCR: true}, nil)

	res, err := e.ExtractFile(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, res.Method)
	assert.Zero(t, renderer.calls)
}

func TestExtractDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.pdf", "broken.pdf", "empty.pdf", "notes.txt", "upper.PDF"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	core, logs := observer.New(zapcore.InfoLevel)
	e := NewExtractor(fakeReader{
		pages: map[string][]string{
			"a.pdf":     {longText},
			"b.pdf":     {longText + "b"},
			"empty.pdf": {""},
		},
		errs: map[string]error{"broken.pdf": errors.New("malformed xref")},
	}, nil, nil, Options{}, zap.New(core))

	var got []string
	stats, err := e.ExtractDir(context.Background(), dir, func(r Result) error {
		got = append(got, r.Source)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, got)
	assert.Equal(t, DirStats{Processed: 4, Extracted: 2, Skipped: 1, Failed: 1}, stats)
	assert.Equal(t, 1, logs.FilterMessage("error processing pdf").Len())
}

func TestExtractDir_CallbackErrorStops(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("x"), 0o644))

	e := NewExtractor(fakeReader{pages: map[string][]string{"a.pdf": {longText}, "b.pdf": {longText}}}, nil, nil, Options{}, nil)
	boom := errors.New("disk full")
	stats, err := e.ExtractDir(context.Background(), dir, func(Result) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, stats.Processed)
}

func TestExtractDir_MissingDir(t *testing.T) {
	e := NewExtractor(fakeReader{}, nil, nil, Options{}, nil)
	_, err := e.ExtractDir(context.Background(), filepath.Join(t.TempDir(), "missing"), func(Result) error { return nil })
	assert.Error(t, err)
}

func TestExtractDir_Cancelled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExtractor(fakeReader{}, nil, nil, Options{}, nil)
	_, err := e.ExtractDir(ctx, dir, func(Result) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
