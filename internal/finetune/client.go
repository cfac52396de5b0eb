package finetune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

// Job states reported by the API.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// File is an uploaded training file.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Purpose  string `json:"purpose"`
}

// Job is a fine-tuning job as reported by the API.
type Job struct {
	ID             string    `json:"id"`
	Model          string    `json:"model"`
	Status         string    `json:"status"`
	TrainingFile   string    `json:"training_file"`
	FineTunedModel string    `json:"fine_tuned_model"`
	FinishedAt     int64     `json:"finished_at"`
	Error          *JobError `json:"error"`
}

// JobError carries the remote failure reason.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Terminal reports whether the job will not change state again.
func (j Job) Terminal() bool {
	switch j.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Hyperparameters for a job.
type Hyperparameters struct {
	NEpochs   int `json:"n_epochs,omitempty"`
	BatchSize int `json:"batch_size,omitempty"`
}

// JobRequest creates a job.
type JobRequest struct {
	Model           string          `json:"model"`
	TrainingFile    string          `json:"training_file"`
	Suffix          string          `json:"suffix,omitempty"`
	Hyperparameters Hyperparameters `json:"hyperparameters"`
}

// Client is a minimal OpenAI-compatible fine-tuning API client.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type ClientConfig struct {
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 5 * time.Minute
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		client:  &http.Client{Timeout: t},
	}
}

// UploadFile sends a training file with purpose "fine-tune".
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "fine-tune"); err != nil {
		return File{}, err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return File{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return File{}, err
	}
	if err := mw.Close(); err != nil {
		return File{}, err
	}

	var out File
	err = c.do(ctx, http.MethodPost, "/files", mw.FormDataContentType(), &buf, &out)
	return out, err
}

// CreateJob starts a fine-tuning job.
func (c *Client) CreateJob(ctx context.Context, req JobRequest) (Job, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Job{}, err
	}
	var out Job
	err = c.do(ctx, http.MethodPost, "/fine_tuning/jobs", "application/json", bytes.NewReader(data), &out)
	return out, err
}

// GetJob fetches the current job state.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var out Job
	err := c.do(ctx, http.MethodGet, "/fine_tuning/jobs/"+id, "", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, apiMessage(payload))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

// apiMessage extracts {"error":{"message":...}} or falls back to the raw body.
func apiMessage(payload []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(payload))
}
