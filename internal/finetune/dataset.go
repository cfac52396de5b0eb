// Package finetune prepares a training set from the corpus and drives a
// remote OpenAI-compatible fine-tuning job.
package finetune

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"pdfqa/internal/corpus"
)

// Dataset formats.
const (
	FormatText = "text"
	FormatChat = "chat"
)

// Sample is one training example cut from a corpus record.
type Sample struct {
	Source string
	Text   string
}

// Split cuts every record into samples of at most maxTokens whitespace
// separated tokens. Blank records yield nothing.
func Split(records []corpus.Record, maxTokens int) []Sample {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	var out []Sample
	for _, r := range records {
		toks := strings.Fields(r.Text)
		for start := 0; start < len(toks); start += maxTokens {
			end := min(start+maxTokens, len(toks))
			out = append(out, Sample{Source: r.Source, Text: strings.Join(toks[start:end], " ")})
		}
	}
	return out
}

type textLine struct {
	Text string `json:"text"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatLine struct {
	Messages []message `json:"messages"`
}

// WriteDataset writes samples as JSONL in the given format. The chat format
// asks about the source file and answers with the sample text.
func WriteDataset(w io.Writer, samples []Sample, format, systemPrompt string) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, s := range samples {
		var line any
		switch format {
		case FormatText, "":
			line = textLine{Text: s.Text}
		case FormatChat:
			line = chatLine{Messages: []message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: fmt.Sprintf("O que diz o documento %s?", s.Source)},
				{Role: "assistant", Content: s.Text},
			}}
		default:
			return fmt.Errorf("unknown dataset format %q", format)
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}
