package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/service"
)

type fakeAsker struct {
	questions []string
	err       error
}

func (f *fakeAsker) Ask(_ context.Context, q string) (service.Answer, error) {
	f.questions = append(f.questions, q)
	return service.Answer{Text: "answer to " + q, Model: "m", Source: "a.pdf", Context: "Intro. The payment is due in March. Bye."}, f.err
}

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestAskFlow(t *testing.T) {
	asker := &fakeAsker{}
	var m tea.Model = New(context.Background(), asker, "2 documents")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})

	m = typeText(m, "payment due?")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.(Model).waiting)
	assert.Empty(t, m.(Model).input.Value())

	// A second Enter while waiting is ignored.
	_, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, again)

	m, _ = m.Update(cmd())
	model := m.(Model)
	assert.False(t, model.waiting)
	require.Len(t, model.history, 1)
	assert.Equal(t, []string{"payment due?"}, asker.questions)

	out := model.renderCurrent()
	assert.Contains(t, out, "answer to payment due?")
	assert.Contains(t, out, "source=a.pdf")
	assert.Contains(t, out, "The payment is due in March.")
	assert.Contains(t, model.View(), "PDF Q&A")
}

func TestAskError(t *testing.T) {
	asker := &fakeAsker{err: errors.New("no trained model found")}
	var m tea.Model = New(context.Background(), asker, "")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = typeText(m, "q")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(cmd())

	model := m.(Model)
	assert.Equal(t, "Error: no trained model found", model.status)
	assert.Empty(t, model.history)
}

func TestHistoryNavigation(t *testing.T) {
	m := New(context.Background(), &fakeAsker{}, "")
	m.history = []exchange{{question: "one"}, {question: "two"}}
	m.cursor = 1

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, next.(Model).cursor)
	prev, _ := next.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, prev.(Model).cursor)
}

func TestHighlightBestSentence(t *testing.T) {
	m := New(context.Background(), &fakeAsker{}, "")
	out := m.highlightBestSentence("Intro here. The payment is due in March.", "payment")
	assert.Contains(t, out, "Intro here.")
	assert.Contains(t, out, "The payment is due in March.")
	assert.Equal(t, "", m.highlightBestSentence("", "q"))
}
