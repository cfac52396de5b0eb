package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pdfqa/internal/chunker"
	"pdfqa/internal/config"
	"pdfqa/internal/domain"
	"pdfqa/internal/finetune"
	"pdfqa/internal/service"
	"pdfqa/internal/vectorstore/local"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "paths:\n  base_dir: " + dir + "\nextract:\n  disable_ocr: true\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return dir, path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { cfgPath, logLevel, logFormat = "", "", "" })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportWithoutIndex(t *testing.T) {
	dir, cfg := writeConfig(t)
	dst := filepath.Join(dir, "out.pkl")

	_, err := execute(t, "--config", cfg, "export", dst)
	require.ErrorIs(t, err, service.ErrNoIndex)
	assert.NoFileExists(t, dst)
}

func TestImportThenExport(t *testing.T) {
	dir, cfg := writeConfig(t)

	src := filepath.Join(dir, "upload.pkl")
	store := local.New(nil)
	require.NoError(t, store.Add(context.Background(), []domain.Record{
		{Chunk: domain.Chunk{ChunkID: "a:0", Source: "a.pdf", Text: "alpha"}, Vector: []float32{1, 0}},
		{Chunk: domain.Chunk{ChunkID: "b:0", Source: "b.pdf", Text: "beta"}, Vector: []float32{0, 1}},
	}))
	require.NoError(t, store.Save(src))

	out, err := execute(t, "--config", cfg, "import", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 chunks")
	assert.FileExists(t, filepath.Join(dir, "embeddings.pkl"))

	dst := filepath.Join(dir, "copy.pkl")
	_, err = execute(t, "--config", cfg, "export", dst)
	require.NoError(t, err)
	n, err := local.Validate(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportRejectsGarbage(t *testing.T) {
	dir, cfg := writeConfig(t)
	src := filepath.Join(dir, "bad.pkl")
	require.NoError(t, os.WriteFile(src, []byte("not an index"), 0o644))

	_, err := execute(t, "--config", cfg, "import", src)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "embeddings.pkl"))
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	_, path := writeConfig(t)
	cfgPath, logLevel, logFormat = path, "debug", "json"
	t.Cleanup(func() { cfgPath, logLevel, logFormat = "", "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestComponentSwitches(t *testing.T) {
	cfg := &config.AppConfig{}
	cfg.Chunker.Type = "document"
	ch, err := newChunker(cfg)
	require.NoError(t, err)
	assert.IsType(t, chunker.DocumentChunker{}, ch)

	cfg.Chunker.Type = "paragraph"
	_, err = newChunker(cfg)
	assert.EqualError(t, err, "unknown chunker: paragraph")

	cfg.Embedder.Type = "word2vec"
	_, err = newEmbedder(cfg)
	assert.EqualError(t, err, "unknown embedder: word2vec")

	cfg.Embedder.Type = "openai"
	_, err = newEmbedder(cfg)
	assert.EqualError(t, err, "openai embedder config missing")

	cfg.Summarizer.Type = "lexrank"
	_, err = newSummarizer(cfg)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	got := describe([]service.DocumentInfo{{Source: "a.pdf", Chunks: 2}, {Source: "b.pdf", Chunks: 1}})
	assert.Equal(t, "2 PDFs, 3 chunks: a.pdf, b.pdf", got)
}

func TestTunedModels(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.AppConfig{}
	cfg.Paths.BaseDir = dir
	cfg.Paths.FineTuneDir = "fine_tuned_model"
	cfg.LLM.TunedModel = "pdfqa-tuned"

	assert.Equal(t, []string{"pdfqa-tuned"}, tunedModels(cfg, zap.NewNop()))

	require.NoError(t, os.MkdirAll(cfg.FineTuneDir(), 0o755))
	manifest := filepath.Join(cfg.FineTuneDir(), finetune.ManifestFile)
	require.NoError(t, finetune.WriteManifest(manifest, finetune.Manifest{FineTunedModel: "ft:base:pdfqa:abc"}))
	assert.Equal(t, []string{"ft:base:pdfqa:abc", "pdfqa-tuned"}, tunedModels(cfg, zap.NewNop()))

	require.NoError(t, os.WriteFile(manifest, []byte("{"), 0o644))
	core, logs := observer.New(zap.WarnLevel)
	assert.Equal(t, []string{"pdfqa-tuned"}, tunedModels(cfg, zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("ignoring fine-tune manifest").Len())
}

func TestLoggerConfigTagsCommand(t *testing.T) {
	cfg := &config.AppConfig{}
	cfg.Log.Level, cfg.Log.Format = "warn", "json"
	lc := loggerConfig(cfg, "serve")
	assert.Equal(t, "warn", lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, map[string]string{"command": "serve"}, lc.Fields)
}
