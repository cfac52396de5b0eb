package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PathsConfig locates the working files. Relative entries are resolved
// against BaseDir.
type PathsConfig struct {
	BaseDir        string `yaml:"base_dir"`
	PDFDir         string `yaml:"pdf_dir"`
	CorpusFile     string `yaml:"corpus_file"`
	EmbeddingsFile string `yaml:"embeddings_file"`
	FineTuneDir    string `yaml:"finetune_dir"`
}

// ExtractConfig controls native extraction and the OCR fallback.
type ExtractConfig struct {
	MinNativeChars int     `yaml:"min_native_chars"`
	DisableOCR     bool    `yaml:"disable_ocr"`
	OCRLanguage    string  `yaml:"ocr_language"`
	OCRDPI         float64 `yaml:"ocr_dpi"`
}

// FastEmbedConfig configures the local ONNX embedder.
type FastEmbedConfig struct {
	Model     string `yaml:"model"`
	CacheDir  string `yaml:"cache_dir"`
	MaxLength int    `yaml:"max_length"`
	BatchSize int    `yaml:"batch_size"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
// LegacyPrompt adds the "prompt" field Ollama's /api/embeddings reads.
type OpenAIEmbedderConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env"`
	Model        string `yaml:"model"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	LegacyPrompt bool   `yaml:"legacy_prompt"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	FastEmbed *FastEmbedConfig      `yaml:"fastembed,omitempty"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects where queries are answered from.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for the Qdrant mirror.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LLMConfig configures the chat model used to answer questions.
type LLMConfig struct {
	BaseURL      string `yaml:"base_url"`
	TunedModel   string `yaml:"tuned_model"`
	DefaultModel string `yaml:"default_model"`
	SystemPrompt string `yaml:"system_prompt"`
	ContextChars int    `yaml:"context_chars"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
}

// FineTuneConfig configures the remote fine-tuning job.
type FineTuneConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	BaseModel        string `yaml:"base_model"`
	Format           string `yaml:"format"`
	Epochs           int    `yaml:"epochs"`
	BatchSize        int    `yaml:"batch_size"`
	MaxTokens        int    `yaml:"max_tokens"`
	PollIntervalSecs int    `yaml:"poll_interval_secs"`
}

// ServerConfig configures the web form server.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	MaxUploadMB         int    `yaml:"max_upload_mb"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Paths       PathsConfig       `yaml:"paths"`
	Extract     ExtractConfig     `yaml:"extract"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	LLM         LLMConfig         `yaml:"llm"`
	FineTune    FineTuneConfig    `yaml:"finetune"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Environment variables that override the file.
const (
	EnvBaseDir       = "PDFQA_DIR"
	EnvBaseModel     = "HF_MODEL"
	EnvSelectedModel = "SELECTED_MODEL"
	EnvOllamaHost    = "OLLAMA_HOST"
)

const (
	DefaultSystemPrompt = "Você é um assistente útil que responde com base no conteúdo dos PDFs fornecidos."
	DefaultTunedModel   = "pdfqa-tuned"
	DefaultChatModel    = "codellama:7b-code"
)

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Resolve returns p joined to the base directory unless it is absolute.
func (c *AppConfig) Resolve(p string) string {
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.Paths.BaseDir), p)
}

func (c *AppConfig) PDFDir() string         { return c.Resolve(c.Paths.PDFDir) }
func (c *AppConfig) CorpusFile() string     { return c.Resolve(c.Paths.CorpusFile) }
func (c *AppConfig) EmbeddingsFile() string { return c.Resolve(c.Paths.EmbeddingsFile) }
func (c *AppConfig) FineTuneDir() string    { return c.Resolve(c.Paths.FineTuneDir) }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "fastembed"},
		Chunker:     ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "file"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 2},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	p := &cfg.Paths
	if p.BaseDir == "" {
		p.BaseDir = "~/pdfqa"
	}
	if p.PDFDir == "" {
		p.PDFDir = "pdfs"
	}
	if p.CorpusFile == "" {
		p.CorpusFile = filepath.Join("fine_tune_data", "pdf_texts.jsonl")
	}
	if p.EmbeddingsFile == "" {
		p.EmbeddingsFile = "embeddings.pkl"
	}
	if p.FineTuneDir == "" {
		p.FineTuneDir = "fine_tuned_model"
	}

	if cfg.Extract.MinNativeChars == 0 {
		cfg.Extract.MinNativeChars = 50
	}
	if cfg.Extract.OCRLanguage == "" {
		cfg.Extract.OCRLanguage = "eng"
	}
	if cfg.Extract.OCRDPI == 0 {
		cfg.Extract.OCRDPI = 300
	}

	switch cfg.Embedder.Type {
	case "fastembed", "":
		cfg.Embedder.Type = "fastembed"
		if cfg.Embedder.FastEmbed == nil {
			cfg.Embedder.FastEmbed = &FastEmbedConfig{}
		}
		fe := cfg.Embedder.FastEmbed
		if fe.Model == "" {
			fe.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if fe.CacheDir == "" {
			fe.CacheDir = "~/.cache/pdfqa/models"
		}
		if fe.MaxLength == 0 {
			fe.MaxLength = 256
		}
		if fe.BatchSize == 0 {
			fe.BatchSize = 32
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		oa := cfg.Embedder.OpenAI
		if oa.BaseURL == "" {
			oa.BaseURL = "https://api.openai.com/v1"
		}
		if oa.APIKeyEnv == "" {
			oa.APIKeyEnv = "OPENAI_API_KEY"
		}
		if oa.Model == "" {
			oa.Model = "text-embedding-3-small"
		}
		if oa.TimeoutSecs == 0 {
			oa.TimeoutSecs = 30
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "file"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.Host == "" {
			q.Host = "localhost"
		}
		if q.Port == 0 {
			q.Port = 6334
		}
		if q.Collection == "" {
			q.Collection = "pdfqa"
		}
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 2
	}

	l := &cfg.LLM
	if l.BaseURL == "" {
		l.BaseURL = "http://localhost:11434"
	}
	if l.TunedModel == "" {
		l.TunedModel = DefaultTunedModel
	}
	if l.DefaultModel == "" {
		l.DefaultModel = DefaultChatModel
	}
	if l.SystemPrompt == "" {
		l.SystemPrompt = DefaultSystemPrompt
	}
	if l.ContextChars == 0 {
		l.ContextChars = 1000
	}
	if l.TimeoutSecs == 0 {
		l.TimeoutSecs = 300
	}

	ft := &cfg.FineTune
	if ft.BaseURL == "" {
		ft.BaseURL = "https://api.openai.com/v1"
	}
	if ft.APIKeyEnv == "" {
		ft.APIKeyEnv = "OPENAI_API_KEY"
	}
	if ft.Format == "" {
		ft.Format = "text"
	}
	if ft.Epochs == 0 {
		ft.Epochs = 1
	}
	if ft.BatchSize == 0 {
		ft.BatchSize = 1
	}
	if ft.MaxTokens == 0 {
		ft.MaxTokens = 512
	}
	if ft.PollIntervalSecs == 0 {
		ft.PollIntervalSecs = 30
	}

	s := &cfg.Server
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 5000
	}
	if s.MaxUploadMB == 0 {
		s.MaxUploadMB = 100
	}
	if s.ShutdownTimeoutSecs == 0 {
		s.ShutdownTimeoutSecs = 10
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv(EnvBaseDir); v != "" {
		cfg.Paths.BaseDir = v
	}
	if v := os.Getenv(EnvBaseModel); v != "" {
		cfg.FineTune.BaseModel = v
	}
	if v := os.Getenv(EnvSelectedModel); v != "" {
		cfg.LLM.DefaultModel = v
	}
	if v := os.Getenv(EnvOllamaHost); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		cfg.LLM.BaseURL = v
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
