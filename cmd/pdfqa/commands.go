package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdfqa/internal/finetune"
	"pdfqa/internal/server"
	"pdfqa/internal/service"
	"pdfqa/internal/tui"
)

var (
	// ask flags
	askQuestion string
	askJSON     bool

	// finetune flags
	ftBaseModel string
	ftSuffix    string

	// serve flags
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(extractCmd, finetuneCmd, processCmd, askCmd, importCmd, exportCmd, serveCmd)

	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "Answer a single question and exit instead of opening the TUI")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the answer as JSON (with -q)")

	finetuneCmd.Flags().StringVar(&ftBaseModel, "base-model", "", "Base model to fine-tune (overrides HF_MODEL and the config)")
	finetuneCmd.Flags().StringVar(&ftSuffix, "suffix", "pdfqa", "Suffix for the fine-tuned model name")

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides the config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides the config)")
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract text from every PDF into the training corpus",
	Long: `Extract text from every PDF in the PDF folder and write one JSON line per
document to the training corpus. Pages without embedded text go through OCR.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

var finetuneCmd = &cobra.Command{
	Use:   "finetune",
	Short: "Fine-tune a model on the training corpus",
	Long: `Build a dataset from the training corpus, submit a fine-tuning job and wait
for it to finish. The base model comes from --base-model, HF_MODEL or the config.

The job's model name is recorded in manifest.json in the fine-tune folder.
ask and serve prefer that model, then llm.tuned_model, whenever the Ollama
server lists it, so register the job's output in Ollama under either name.`,
	Args: cobra.NoArgs,
	RunE: runFinetune,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Index every PDF into the embeddings file",
	Args:  cobra.NoArgs,
	RunE:  runProcess,
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask questions about the indexed PDFs",
	Long: `Open the terminal client, or answer one question with -q.

Examples:
  pdfqa ask
  pdfqa ask -q "Quem assinou o contrato?" --json`,
	Args: cobra.NoArgs,
	RunE: runAsk,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the embeddings file with an exported one",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Copy the embeddings file to <file>",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload and question form",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runExtract(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Name(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.pipeline.Extract(cmd.Context())
	if err != nil {
		return fmt.Errorf("extract failed: %w", err)
	}
	printf(cmd, "Extracted %d of %d PDFs into %s (%d without text, %d failed)\n",
		stats.Extracted, stats.Processed, a.cfg.CorpusFile(), stats.Skipped, stats.Failed)
	return nil
}

func runFinetune(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Name(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	ft := a.cfg.FineTune
	base := ft.BaseModel
	if ftBaseModel != "" {
		base = ftBaseModel
	}
	m, err := a.newFineTuneRunner().Run(cmd.Context(), finetune.Options{
		BaseModel:    base,
		CorpusFile:   a.cfg.CorpusFile(),
		OutputDir:    a.cfg.FineTuneDir(),
		Format:       ft.Format,
		SystemPrompt: a.cfg.LLM.SystemPrompt,
		Suffix:       ftSuffix,
		MaxTokens:    ft.MaxTokens,
		Epochs:       ft.Epochs,
		BatchSize:    ft.BatchSize,
		PollInterval: time.Duration(ft.PollIntervalSecs) * time.Second,
	})
	if errors.Is(err, finetune.ErrNoBaseModel) {
		return fmt.Errorf("%w: set HF_MODEL or finetune.base_model", err)
	}
	if err != nil {
		return fmt.Errorf("fine-tuning failed: %w", err)
	}
	printf(cmd, "Fine-tuned model %s saved to %s\n", m.FineTunedModel, a.cfg.FineTuneDir())
	return nil
}

func runProcess(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Name(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	stats, err := a.pipeline.Process(cmd.Context())
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	a.logger.Debug("process finished", zap.Duration("took", time.Since(start)))
	printf(cmd, "Indexed %d chunks from %d PDFs into %s\n", stats.Chunks, stats.Extracted, a.pipeline.EmbeddingsFile())
	return nil
}

func runAsk(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Name(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if askQuestion != "" {
		ans, err := a.pipeline.Ask(ctx, askQuestion)
		if err != nil {
			return err
		}
		if askJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		}
		printf(cmd, "%s\n\n(model %s, source %s, score %.3f)\n", ans.Text, ans.Model, ans.Source, ans.Score)
		return nil
	}

	docs, err := a.pipeline.Documents(ctx)
	if err != nil {
		if errors.Is(err, service.ErrNoIndex) {
			return fmt.Errorf("%w: run 'pdfqa process' first", err)
		}
		return err
	}
	_, err = tea.NewProgram(tui.New(ctx, a.pipeline, describe(docs)), tea.WithContext(ctx)).Run()
	if ctx.Err() != nil {
		// interrupted by a signal
		return nil
	}
	return err
}

func describe(docs []service.DocumentInfo) string {
	names := make([]string, 0, len(docs))
	chunks := 0
	for _, d := range docs {
		names = append(names, d.Source)
		chunks += d.Chunks
	}
	return fmt.Sprintf("%d PDFs, %d chunks: %s", len(docs), chunks, strings.Join(names, ", "))
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Name(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := a.pipeline.Import(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	printf(cmd, "Imported %d chunks into %s\n", n, a.pipeline.EmbeddingsFile())
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Name(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.pipeline.HasIndex() {
		return service.ErrNoIndex
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := a.pipeline.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(args[0])
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	printf(cmd, "Exported %s to %s\n", a.pipeline.EmbeddingsFile(), args[0])
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Name(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	sc := a.cfg.Server
	if serveHost != "" {
		sc.Host = serveHost
	}
	if servePort != 0 {
		sc.Port = servePort
	}
	srv := server.New(a.pipeline, server.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		MaxUploadMB:     sc.MaxUploadMB,
		ShutdownTimeout: time.Duration(sc.ShutdownTimeoutSecs) * time.Second,
	}, a.logger)
	return srv.Run(cmd.Context())
}
