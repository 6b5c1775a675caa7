// Package conversation assembles the message list sent to the chat model
// and keeps the session's turn history.
package conversation

import (
	"strings"

	"mitey/internal/domain"
)

const (
	DefaultPersona = "Your name is Mitey. You are small, but mighty! Act as a highly skilled assistant."
	citeFiles      = "Use the context to answer. State which file you are referring to."
	foldedPrefix   = "Summary of earlier conversation: "
)

type Options struct {
	Persona string
	// MaxHistoryTokens caps the history replayed to the model. Zero replays
	// everything. Older turns over the cap are summarized into the system
	// message instead of being dropped.
	MaxHistoryTokens int
	SummarySentences int
}

// Assembler builds prompts. It is safe for concurrent use.
type Assembler struct {
	persona          string
	budget           int
	summarySentences int
	counter          TokenCounter
	summarizer       domain.Summarizer
}

// NewAssembler returns an assembler. counter and summarizer are only used
// when opts.MaxHistoryTokens is positive and may otherwise be nil.
func NewAssembler(opts Options, counter TokenCounter, summarizer domain.Summarizer) *Assembler {
	if opts.Persona == "" {
		opts.Persona = DefaultPersona
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 4
	}
	return &Assembler{
		persona:          opts.Persona,
		budget:           opts.MaxHistoryTokens,
		summarySentences: opts.SummarySentences,
		counter:          counter,
		summarizer:       summarizer,
	}
}

// SystemPrompt names the persona, every indexed file and the citation rule.
func SystemPrompt(persona string, manifest domain.Manifest) string {
	return persona + " Project files: " + manifest.String() + ".\n" + citeFiles
}

// UserPrompt wraps the retrieved context and the question.
func UserPrompt(context, query string) string {
	return "Context snippets:\n" + context + "\n\nQuestion: " + query
}

// BuildPrompt returns the system message, then the history in order, then
// the user message carrying the retrieved context and the question.
func (a *Assembler) BuildPrompt(manifest domain.Manifest, history []domain.Message, rc domain.RetrievedContext, query string) []domain.Message {
	system := SystemPrompt(a.persona, manifest)
	kept, folded := a.fit(history)
	if summary := a.summarize(folded); summary != "" {
		system += "\n" + foldedPrefix + summary
	}

	msgs := make([]domain.Message, 0, len(kept)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: system})
	msgs = append(msgs, kept...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: UserPrompt(rc.Text, query)})
	return msgs
}

// fit splits history into the newest user/assistant pairs that fit the
// token budget and the older remainder.
func (a *Assembler) fit(history []domain.Message) (kept, folded []domain.Message) {
	if a.budget <= 0 || a.counter == nil {
		return history, nil
	}
	used := 0
	cut := len(history)
	for cut > 0 {
		start := cut - 1
		if start > 0 && history[start].Role == domain.RoleAssistant && history[start-1].Role == domain.RoleUser {
			start--
		}
		cost := 0
		for _, m := range history[start:cut] {
			cost += a.counter.Count(m.Content)
		}
		if used+cost > a.budget {
			break
		}
		used += cost
		cut = start
	}
	return history[cut:], history[:cut]
}

func (a *Assembler) summarize(turns []domain.Message) string {
	if len(turns) == 0 || a.summarizer == nil {
		return ""
	}
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(strings.TrimSpace(t.Content))
		b.WriteString("\n")
	}
	summary, err := a.summarizer.Summarize(b.String(), a.summarySentences)
	if err != nil {
		return ""
	}
	return summary
}
