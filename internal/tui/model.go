package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mitey/internal/conversation"
	"mitey/internal/domain"
	"mitey/internal/service"
)

// ChatPort is the TUI-facing subset of the RAG service.
type ChatPort interface {
	Ask(ctx context.Context, history *conversation.History, query string) (*service.Answer, error)
}

type entry struct {
	role    domain.Role
	text    string
	query   string
	sources []string
	failed  bool
}

type answerMsg struct {
	query  string
	answer *service.Answer
	err    error
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	ctx      context.Context
	service  ChatPort
	history  *conversation.History
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	entries  []entry
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a chat model. summary is shown under the title.
func New(ctx context.Context, svc ChatPort, history *conversation.History, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "mitey > "
	ti.Placeholder = "Ask about the project, or type exit"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		service:  svc,
		history:  history,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Ready.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, resize and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.input.Width = max(10, msg.Width-len(m.input.Prompt)-4)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{role: domain.RoleAssistant, text: msg.err.Error(), failed: true})
			m.status = "Error: " + msg.err.Error()
		} else {
			m.entries = append(m.entries, entry{
				role:    domain.RoleAssistant,
				text:    msg.answer.Reply,
				query:   msg.query,
				sources: msg.answer.Context.Sources,
			})
			m.status = describe(msg.answer)
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.pending {
		return m, nil
	}
	if strings.EqualFold(q, "exit") {
		return m, tea.Quit
	}
	m.input.Reset()
	m.entries = append(m.entries, entry{role: domain.RoleUser, text: q})
	m.pending = true
	m.status = "Thinking..."
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.ask(q))
}

// ask runs the question off the UI goroutine.
func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ans, err := m.service.Ask(m.ctx, m.history, q)
		return answerMsg{query: q, answer: ans, err: err}
	}
}

// View renders the TUI layout and transcript.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Mitey")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case e.role == domain.RoleUser:
			b.WriteString(userStyle.Render("you > ") + e.text)
		case e.failed:
			b.WriteString(errorStyle.Render("error > ") + e.text)
		default:
			b.WriteString(assistantStyle.Render("mitey > ") + highlightBestSentence(e.text, e.query))
			if len(e.sources) > 0 {
				b.WriteString("\n" + sourceStyle.Render("sources: "+strings.Join(e.sources, ", ")))
			}
		}
	}
	return lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String())
}

func describe(a *service.Answer) string {
	switch a.Context.Mode {
	case domain.ModeDirect:
		return fmt.Sprintf("Answered from %s in %s", a.Context.Sources[0], a.Elapsed.Round(time.Millisecond))
	case domain.ModeSemantic:
		return fmt.Sprintf("Answered from %d file(s) in %s", len(a.Context.Sources), a.Elapsed.Round(time.Millisecond))
	default:
		return "Answered without project context"
	}
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	wordRe             = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	sentenceRe         = regexp.MustCompile(`(?s).+?(?:[.!?]+(?:\s+|$)|\n|$)`)
)

// highlightBestSentence marks the reply sentence sharing the most words with
// the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(query) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) < 2 {
		return text
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 {
		return text
	}
	s := sentences[bestIdx]
	trimmed := strings.TrimRight(s, " \t\n")
	sentences[bestIdx] = highlightStyle.Render(trimmed) + s[len(trimmed):]
	return strings.Join(sentences, "")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlap(query map[string]struct{}, sentence string) int {
	score := 0
	for t := range toTokenSet(sentence) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}
