// Package main implements the pdfqa CLI: PDF extraction, indexing,
// question answering and the web form.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// persistent flags
	cfgPath   string
	logLevel  string
	logFormat string

	version = "dev"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pdfqa",
	Short: "Ask questions about a folder of PDFs",
	Long: `pdfqa extracts text from PDFs (with OCR for scanned pages), indexes it
into an embeddings file and answers questions with a local Ollama model.

Examples:
  # Index the PDFs in the configured folder
  pdfqa process

  # Ask a single question
  pdfqa ask -q "Qual é o prazo de entrega?"

  # Serve the upload and question form
  pdfqa serve`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (uses ./config.yaml or ~/.config/pdfqa/config.yaml if not provided)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (console or json)")
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
