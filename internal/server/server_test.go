package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/service"
)

type fakePipeline struct {
	hasIndex   bool
	file       string
	saved      []string
	processed  int
	processErr error
	answer     service.Answer
	askErr     error
	imported   []byte
	importErr  error
	docs       []service.DocumentInfo
}

func (f *fakePipeline) HasIndex() bool         { return f.hasIndex }
func (f *fakePipeline) EmbeddingsFile() string { return f.file }

func (f *fakePipeline) SavePDF(name string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	f.saved = append(f.saved, name)
	return name, nil
}

func (f *fakePipeline) Process(context.Context) (service.ProcessStats, error) {
	f.processed++
	return service.ProcessStats{}, f.processErr
}

func (f *fakePipeline) Ask(context.Context, string) (service.Answer, error) {
	return f.answer, f.askErr
}

func (f *fakePipeline) Import(_ context.Context, r io.Reader) (int, error) {
	f.imported, _ = io.ReadAll(r)
	return 3, f.importErr
}

func (f *fakePipeline) Documents(context.Context) ([]service.DocumentInfo, error) {
	if !f.hasIndex {
		return nil, service.ErrNoIndex
	}
	return f.docs, nil
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		w, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	s := New(&fakePipeline{}, Config{}, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="pdfs"`)
	assert.Contains(t, rec.Body.String(), `name="embeddings"`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestUpload(t *testing.T) {
	t.Run("no files", func(t *testing.T) {
		fp := &fakePipeline{}
		body, ct := multipartBody(t, "other", map[string]string{"a.pdf": "x"})
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)

		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoFiles, rec.Body.String())
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := do(t, New(&fakePipeline{}, Config{}, nil), httptest.NewRequest(http.MethodPost, "/upload", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoFiles, rec.Body.String())
	})

	t.Run("non-pdf rejected", func(t *testing.T) {
		fp := &fakePipeline{}
		body, ct := multipartBody(t, "pdfs", map[string]string{"notes.txt": "x", "scan.PDF": "y"})
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)

		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoPDFs, rec.Body.String())
		assert.Empty(t, fp.saved)
		assert.Zero(t, fp.processed)
	})

	t.Run("pdfs saved and processed", func(t *testing.T) {
		fp := &fakePipeline{}
		body, ct := multipartBody(t, "pdfs", map[string]string{"a.pdf": "x", "skip.txt": "y"})
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)

		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, msgProcessed, rec.Body.String())
		assert.Equal(t, []string{"a.pdf"}, fp.saved)
		assert.Equal(t, 1, fp.processed)
	})

	t.Run("processing error", func(t *testing.T) {
		fp := &fakePipeline{processErr: errors.New("embedder down")}
		body, ct := multipartBody(t, "pdfs", map[string]string{"a.pdf": "x"})
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)

		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func queryRequest(question string) *http.Request {
	form := url.Values{}
	if question != "" {
		form.Set("question", question)
	}
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestQuery(t *testing.T) {
	t.Run("no index", func(t *testing.T) {
		rec := do(t, New(&fakePipeline{}, Config{}, nil), queryRequest("what?"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, msgNoModel, rec.Body.String())
	})

	t.Run("missing question", func(t *testing.T) {
		rec := do(t, New(&fakePipeline{hasIndex: true}, Config{}, nil), queryRequest(""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty index", func(t *testing.T) {
		fp := &fakePipeline{hasIndex: true, askErr: service.ErrNoIndex}
		rec := do(t, New(fp, Config{}, nil), queryRequest("what?"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("answer as text", func(t *testing.T) {
		fp := &fakePipeline{hasIndex: true, answer: service.Answer{Text: "quarenta", Source: "a.pdf"}}
		rec := do(t, New(fp, Config{}, nil), queryRequest("quanto?"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "quarenta", rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	})

	t.Run("answer as json", func(t *testing.T) {
		fp := &fakePipeline{hasIndex: true, answer: service.Answer{Text: "quarenta", Source: "a.pdf"}}
		req := queryRequest("quanto?")
		req.Header.Set("Accept", "application/json")
		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"answer":"quarenta","model":"","source":"a.pdf","context":"","summary":"","score":0}`, rec.Body.String())
	})
}

func TestImport(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		body, ct := multipartBody(t, "other", map[string]string{"e.pkl": "x"})
		req := httptest.NewRequest(http.MethodPost, "/import", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, New(&fakePipeline{}, Config{}, nil), req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoImportFile, rec.Body.String())
	})

	t.Run("wrong extension", func(t *testing.T) {
		fp := &fakePipeline{}
		body, ct := multipartBody(t, "embeddings", map[string]string{"e.json": "x"})
		req := httptest.NewRequest(http.MethodPost, "/import", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgBadImportFormat, rec.Body.String())
		assert.Nil(t, fp.imported)
	})

	t.Run("invalid content", func(t *testing.T) {
		fp := &fakePipeline{importErr: service.ErrInvalidIndex}
		body, ct := multipartBody(t, "embeddings", map[string]string{"e.pkl": "junk"})
		req := httptest.NewRequest(http.MethodPost, "/import", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgBadImport, rec.Body.String())
	})

	t.Run("imported", func(t *testing.T) {
		fp := &fakePipeline{}
		body, ct := multipartBody(t, "embeddings", map[string]string{"e.pkl": "payload"})
		req := httptest.NewRequest(http.MethodPost, "/import", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, New(fp, Config{}, nil), req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, msgImported, rec.Body.String())
		assert.Equal(t, "payload", string(fp.imported))
	})
}

func TestExport(t *testing.T) {
	rec := do(t, New(&fakePipeline{}, Config{}, nil), httptest.NewRequest(http.MethodGet, "/export", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgNoExport, rec.Body.String())

	path := filepath.Join(t.TempDir(), "embeddings.pkl")
	require.NoError(t, os.WriteFile(path, []byte("index bytes"), 0o644))
	fp := &fakePipeline{hasIndex: true, file: path}
	rec = do(t, New(fp, Config{}, nil), httptest.NewRequest(http.MethodGet, "/export", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "index bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="embeddings.pkl"`)
}

func TestDocumentsHealthMetrics(t *testing.T) {
	fp := &fakePipeline{}
	s := New(fp, Config{}, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	fp.hasIndex = true
	fp.docs = []service.DocumentInfo{{Source: "a.pdf", Chunks: 2, Summary: "s"}}
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"source":"a.pdf","chunks":2,"summary":"s"}]`, rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok","index":true}`, rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pdfqa_http_requests_total{code="404",route="/documents"} 1`)
}

func TestUpload_BodyLimit(t *testing.T) {
	fp := &fakePipeline{}
	s := New(fp, Config{MaxUploadMB: 1}, nil)
	body, ct := multipartBody(t, "pdfs", map[string]string{"big.pdf": strings.Repeat("x", 2<<20)})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)

	rec := do(t, s, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, fp.saved)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(&fakePipeline{}, Config{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
