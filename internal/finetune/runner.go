package finetune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pdfqa/internal/corpus"
)

var (
	// ErrNoBaseModel is returned when no base model is configured.
	ErrNoBaseModel = errors.New("no base model configured (set HF_MODEL)")

	// ErrEmptyCorpus is returned when there is nothing to train on.
	ErrEmptyCorpus = corpus.ErrEmptyCorpus

	// ErrJobFailed is returned when the remote job ends in any state but succeeded.
	ErrJobFailed = errors.New("fine-tuning job failed")
)

const (
	DatasetFile  = "train.jsonl"
	ManifestFile = "manifest.json"
)

// API is the subset of the fine-tuning API the runner needs.
type API interface {
	UploadFile(ctx context.Context, name string, r io.Reader) (File, error)
	CreateJob(ctx context.Context, req JobRequest) (Job, error)
	GetJob(ctx context.Context, id string) (Job, error)
}

// Options for one run.
type Options struct {
	BaseModel    string
	CorpusFile   string
	OutputDir    string
	Format       string
	SystemPrompt string
	Suffix       string
	MaxTokens    int
	Epochs       int
	BatchSize    int
	PollInterval time.Duration
}

// Manifest records a finished job next to the dataset.
type Manifest struct {
	BaseModel      string    `json:"base_model"`
	FineTunedModel string    `json:"fine_tuned_model"`
	JobID          string    `json:"job_id"`
	TrainingFile   string    `json:"training_file"`
	Samples        int       `json:"samples"`
	Status         string    `json:"status"`
	FinishedAt     time.Time `json:"finished_at"`
}

type Runner struct {
	api    API
	logger *zap.Logger
}

func NewRunner(api API, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{api: api, logger: logger}
}

// Run builds the dataset, submits the job and waits for it to finish.
func (r *Runner) Run(ctx context.Context, opts Options) (Manifest, error) {
	if opts.BaseModel == "" {
		return Manifest{}, ErrNoBaseModel
	}
	records, err := corpus.Read(opts.CorpusFile)
	if err != nil {
		return Manifest{}, err
	}
	samples := Split(records, opts.MaxTokens)
	if len(samples) == 0 {
		return Manifest{}, fmt.Errorf("%s: %w", opts.CorpusFile, ErrEmptyCorpus)
	}
	r.logger.Info("prepared dataset",
		zap.Int("documents", len(records)),
		zap.Int("samples", len(samples)),
		zap.String("base_model", opts.BaseModel),
	)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return Manifest{}, err
	}
	datasetPath := filepath.Join(opts.OutputDir, DatasetFile)
	if err := writeDatasetFile(datasetPath, samples, opts.Format, opts.SystemPrompt); err != nil {
		return Manifest{}, fmt.Errorf("writing dataset: %w", err)
	}

	f, err := os.Open(datasetPath)
	if err != nil {
		return Manifest{}, err
	}
	file, err := r.api.UploadFile(ctx, DatasetFile, f)
	_ = f.Close()
	if err != nil {
		return Manifest{}, fmt.Errorf("uploading dataset: %w", err)
	}
	r.logger.Info("uploaded dataset", zap.String("file_id", file.ID))

	job, err := r.api.CreateJob(ctx, JobRequest{
		Model:        opts.BaseModel,
		TrainingFile: file.ID,
		Suffix:       opts.Suffix,
		Hyperparameters: Hyperparameters{
			NEpochs:   max(opts.Epochs, 1),
			BatchSize: max(opts.BatchSize, 1),
		},
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("creating job: %w", err)
	}
	r.logger.Info("created fine-tuning job", zap.String("job_id", job.ID), zap.String("status", job.Status))

	job, err = r.wait(ctx, job, opts.PollInterval)
	if err != nil {
		return Manifest{}, err
	}
	if job.Status != StatusSucceeded {
		msg := job.Status
		if job.Error != nil && job.Error.Message != "" {
			msg = job.Error.Message
		}
		return Manifest{}, fmt.Errorf("%w: job %s: %s", ErrJobFailed, job.ID, msg)
	}

	m := Manifest{
		BaseModel:      opts.BaseModel,
		FineTunedModel: job.FineTunedModel,
		JobID:          job.ID,
		TrainingFile:   file.ID,
		Samples:        len(samples),
		Status:         job.Status,
		FinishedAt:     finishedAt(job),
	}
	manifestPath := filepath.Join(opts.OutputDir, ManifestFile)
	if err := WriteManifest(manifestPath, m); err != nil {
		return Manifest{}, err
	}
	if _, err := ReadManifest(manifestPath); err != nil {
		return Manifest{}, fmt.Errorf("verifying manifest: %w", err)
	}
	r.logger.Info("fine-tuned model saved",
		zap.String("model", m.FineTunedModel),
		zap.String("manifest", manifestPath),
	)
	return m, nil
}

// wait polls until the job is terminal, at most once per interval.
func (r *Runner) wait(ctx context.Context, job Job, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	last := job.Status
	for !job.Terminal() {
		if err := limiter.Wait(ctx); err != nil {
			return job, err
		}
		next, err := r.api.GetJob(ctx, job.ID)
		if err != nil {
			return job, fmt.Errorf("polling job %s: %w", job.ID, err)
		}
		job = next
		if job.Status != last {
			r.logger.Info("job status", zap.String("job_id", job.ID), zap.String("status", job.Status))
			last = job.Status
		}
	}
	return job, nil
}

func finishedAt(job Job) time.Time {
	if job.FinishedAt > 0 {
		return time.Unix(job.FinishedAt, 0).UTC()
	}
	return time.Now().UTC()
}

func writeDatasetFile(path string, samples []Sample, format, systemPrompt string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteDataset(f, samples, format, systemPrompt); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteManifest writes m as indented JSON.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadManifest loads a manifest and checks it names a model.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	if m.FineTunedModel == "" {
		return Manifest{}, errors.New("manifest has no fine-tuned model")
	}
	return m, nil
}
