package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mitey/internal/conversation"
	"mitey/internal/domain"
	"mitey/internal/service"
)

type fakeChat struct {
	answer *service.Answer
	err    error
	asked  []string
}

func (f *fakeChat) Ask(_ context.Context, h *conversation.History, q string) (*service.Answer, error) {
	f.asked = append(f.asked, q)
	if f.err != nil {
		return nil, f.err
	}
	h.Append(q, f.answer.Reply)
	return f.answer, nil
}

func sized(t *testing.T, svc ChatPort) Model {
	t.Helper()
	m := New(context.Background(), svc, conversation.NewHistory(), "2 files indexed")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func enter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestViewBeforeResize(t *testing.T) {
	m := New(context.Background(), &fakeChat{}, conversation.NewHistory(), "")
	assert.Equal(t, "Loading...", m.View())
}

func TestSubmitAsksAndRendersAnswer(t *testing.T) {
	svc := &fakeChat{answer: &service.Answer{
		Reply:   "It starts the server. Nothing else.",
		Context: domain.RetrievedContext{Mode: domain.ModeDirect, Sources: []string{"src/app.ts"}},
		Elapsed: 1200 * time.Millisecond,
	}}
	m := sized(t, svc)

	m, cmd := enter(t, m, "what does app.ts do")
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "what does app.ts do")

	next, _ := m.Update(m.ask("what does app.ts do")())
	m = next.(Model)
	assert.False(t, m.pending)
	assert.Equal(t, []string{"what does app.ts do"}, svc.asked)
	assert.Equal(t, "Answered from src/app.ts in 1.2s", m.status)

	view := m.View()
	assert.Contains(t, view, "starts the server")
	assert.Contains(t, view, "sources: src/app.ts")
	assert.Equal(t, 2, m.history.Len())
}

func TestSubmitIgnoredWhilePending(t *testing.T) {
	m := sized(t, &fakeChat{answer: &service.Answer{}})
	m, cmd := enter(t, m, "first")
	require.NotNil(t, cmd)

	m, cmd = enter(t, m, "second")
	assert.Nil(t, cmd)
	assert.Len(t, m.entries, 1)
}

func TestSubmitErrorShowsStatus(t *testing.T) {
	svc := &fakeChat{err: domain.ErrModelUnavailable}
	m := sized(t, svc)
	m, _ = enter(t, m, "hello")

	next, _ := m.Update(m.ask("hello")())
	m = next.(Model)
	assert.Equal(t, "Error: "+domain.ErrModelUnavailable.Error(), m.status)
	require.Len(t, m.entries, 2)
	assert.True(t, m.entries[1].failed)
	assert.Zero(t, m.history.Len())
}

func TestExitQuits(t *testing.T) {
	m := sized(t, &fakeChat{})
	_, cmd := enter(t, m, "exit")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestBlankInputDoesNothing(t *testing.T) {
	m := sized(t, &fakeChat{})
	m, cmd := enter(t, m, "   ")
	assert.Nil(t, cmd)
	assert.Empty(t, m.entries)
}

func TestHighlightBestSentence(t *testing.T) {
	text := "The cache expires entries. The router picks a handler."
	got := highlightBestSentence(text, "how does the router pick")
	assert.Contains(t, got, "The cache expires entries. ")
	assert.Contains(t, got, "router picks a handler.")

	assert.Equal(t, "single sentence", highlightBestSentence("single sentence", "sentence"))
	assert.Equal(t, text, highlightBestSentence(text, ""))
}
