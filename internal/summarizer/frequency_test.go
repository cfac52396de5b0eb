package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_KeepsDocumentOrder(t *testing.T) {
	text := "Go compiles fast. The weather was nice. Go binaries are static and Go is simple. Lunch happened."
	s := NewFrequencySummarizer()

	out, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Go compiles fast. Go binaries are static and Go is simple.", out)
}

func TestSummarize_ShortAndEmpty(t *testing.T) {
	s := NewFrequencySummarizer()

	out, err := s.Summarize("Only one sentence here.", 3)
	require.NoError(t, err)
	assert.Equal(t, "Only one sentence here.", out)

	out, err = s.Summarize("   ", 2)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = s.Summarize("a title without stops", 0)
	require.NoError(t, err)
	assert.Equal(t, "a title without stops", out)
}

func TestSentences(t *testing.T) {
	assert.Equal(t,
		[]string{"Primeira frase.", "Segunda aqui!", "resto"},
		Sentences("Primeira   frase.\nSegunda aqui! resto"),
	)
	assert.Empty(t, Sentences(""))
}

func TestBestSentence(t *testing.T) {
	s := NewFrequencySummarizer()
	sentences := []string{"The invoice total is 40 euros.", "Payment is due in March.", "Contact support."}

	assert.Equal(t, 1, s.BestSentence(sentences, "When is the payment due?"))
	assert.Equal(t, -1, s.BestSentence(sentences, "the of and"))
}
