package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"pdfqa/internal/chunker"
	"pdfqa/internal/config"
	"pdfqa/internal/domain"
	"pdfqa/internal/embedding/fastembed"
	"pdfqa/internal/embedding/openai"
	"pdfqa/internal/finetune"
	"pdfqa/internal/llm"
	"pdfqa/internal/logging"
	"pdfqa/internal/pdftext"
	"pdfqa/internal/service"
	"pdfqa/internal/summarizer"
	"pdfqa/internal/vectorstore/qdrant"
)

// app holds what every command needs. Close releases the embedder and the
// Qdrant connection.
type app struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	pipeline *service.Pipeline
	closers  []func() error
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// newApp loads the config and assembles the pipeline for the named command.
// Commands that never embed pass withEmbedder=false so a missing model does
// not block them.
func newApp(command string, withEmbedder bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(loggerConfig(cfg, command))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	deps := service.Deps{
		Extractor: newExtractor(cfg, logger),
		Logger:    logger,
	}
	if deps.Chunker, err = newChunker(cfg); err != nil {
		return nil, a.fail(err)
	}
	if deps.Summarizer, err = newSummarizer(cfg); err != nil {
		return nil, a.fail(err)
	}
	if withEmbedder {
		emb, err := newEmbedder(cfg)
		if err != nil {
			return nil, a.fail(err)
		}
		deps.Embedder = emb
		a.closers = append(a.closers, emb.Close)
	}
	if deps.Mirror, err = a.newMirror(); err != nil {
		return nil, a.fail(err)
	}

	chatter, err := llm.NewOllamaChatter(cfg.LLM.BaseURL, cfg.LLM.DefaultModel)
	if err != nil {
		return nil, a.fail(err)
	}
	deps.Chatter = chatter
	deps.Selector = llm.NewSelector(llm.NewTagsClient(cfg.LLM.BaseURL), tunedModels(cfg, logger), cfg.LLM.DefaultModel, logger)

	a.pipeline = service.NewPipeline(deps,
		service.Paths{
			PDFDir:         cfg.PDFDir(),
			CorpusFile:     cfg.CorpusFile(),
			EmbeddingsFile: cfg.EmbeddingsFile(),
		},
		service.Options{
			SystemPrompt:        cfg.LLM.SystemPrompt,
			ContextChars:        cfg.LLM.ContextChars,
			SummaryMaxSentences: cfg.Summarizer.MaxSentences,
			AskTimeout:          time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		},
	)
	return a, nil
}

// loggerConfig tags every log line with the running command.
func loggerConfig(cfg *config.AppConfig, command string) logging.Config {
	return logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Fields: map[string]string{"command": command},
	}
}

func (a *app) fail(err error) error {
	_ = a.Close()
	return err
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	_ = logging.Sync(a.logger)
	return first
}

// tunedModels lists the chat models to prefer: the model recorded by the
// last fine-tuning run, then llm.tuned_model.
func tunedModels(cfg *config.AppConfig, logger *zap.Logger) []string {
	var models []string
	path := filepath.Join(cfg.FineTuneDir(), finetune.ManifestFile)
	m, err := finetune.ReadManifest(path)
	switch {
	case err == nil:
		models = append(models, m.FineTunedModel)
	case !errors.Is(err, os.ErrNotExist):
		logger.Warn("ignoring fine-tune manifest", zap.String("path", path), zap.Error(err))
	}
	if cfg.LLM.TunedModel != "" && (len(models) == 0 || models[0] != cfg.LLM.TunedModel) {
		models = append(models, cfg.LLM.TunedModel)
	}
	return models
}

func newExtractor(cfg *config.AppConfig, logger *zap.Logger) *pdftext.Extractor {
	opts := pdftext.Options{
		MinNativeChars: cfg.Extract.MinNativeChars,
		DisableOCR:     cfg.Extract.DisableOCR,
	}
	if cfg.Extract.DisableOCR {
		return pdftext.NewExtractor(pdftext.NativeReader{}, nil, nil, opts, logger)
	}
	return pdftext.NewExtractor(
		pdftext.NativeReader{},
		pdftext.FitzRenderer{DPI: cfg.Extract.OCRDPI},
		pdftext.TesseractEngine{Language: cfg.Extract.OCRLanguage},
		opts,
		logger,
	)
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "fastembed", "":
		fe := cfg.Embedder.FastEmbed
		if fe == nil {
			return nil, fmt.Errorf("fastembed embedder config missing")
		}
		return fastembed.New(fastembed.Config{
			Model:     fe.Model,
			CacheDir:  cfg.Resolve(fe.CacheDir),
			MaxLength: fe.MaxLength,
			BatchSize: fe.BatchSize,
		})
	case "openai":
		oa := cfg.Embedder.OpenAI
		if oa == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:      oa.BaseURL,
			APIKeyEnv:    oa.APIKeyEnv,
			Model:        oa.Model,
			Timeout:      time.Duration(oa.TimeoutSecs) * time.Second,
			LegacyPrompt: oa.LegacyPrompt,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "sentence", "":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	case "document":
		return chunker.NewDocumentChunker(), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func newSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}

// newMirror returns nil for the file store. Qdrant mirrors the file.
func (a *app) newMirror() (domain.VectorStore, error) {
	switch a.cfg.VectorStore.Type {
	case "file", "":
		return nil, nil
	case "qdrant":
		q := a.cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		st, err := qdrant.Dial(qdrant.Config{
			Host:       q.Host,
			Port:       q.Port,
			APIKey:     q.APIKey,
			UseTLS:     q.UseTLS,
			Collection: q.Collection,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", a.cfg.VectorStore.Type)
	}
}

func (a *app) newFineTuneRunner() *finetune.Runner {
	ft := a.cfg.FineTune
	client := finetune.NewClient(finetune.ClientConfig{
		BaseURL:   ft.BaseURL,
		APIKeyEnv: ft.APIKeyEnv,
	})
	return finetune.NewRunner(client, a.logger)
}
