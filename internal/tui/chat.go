// Package tui is the terminal chat surface over the retrieval core.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/query"
	"github.com/kutub-ai/cli/internal/retrieve"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	inputStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
	Meta    string // strategy/confidence line shown under assistant turns
}

// Backend is everything the chat needs from the core.
type Backend struct {
	Analyzer *query.Analyzer
	Engine   *retrieve.Engine
	Reasoner *retrieve.Reasoner
	Builder  *retrieve.ContextBuilder
	Invoker  *invoke.Invoker
	DocIDs   []string
	DocNames map[string]string
	DocLang  query.Language
	MaxHops  int
}

// Model is the bubbletea chat model.
type Model struct {
	backend  *Backend
	messages []Message
	input    string
	loading  bool
	width    int

	// last turn's retrieval, reused when the next question is a follow-up
	lastResult *retrieve.Result
	lastQuery  string
}

// NewModel creates the chat model.
func NewModel(backend *Backend) *Model {
	return &Model{backend: backend, width: 80}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

type answerMsg struct {
	content string
	meta    string
	result  *retrieve.Result
	err     error
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.loading || strings.TrimSpace(m.input) == "" {
				return m, nil
			}
			question := m.input
			m.input = ""
			m.loading = true
			m.messages = append(m.messages, Message{Role: "user", Content: question})
			return m, m.answerCmd(question)
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				runes := []rune(m.input)
				m.input = string(runes[:len(runes)-1])
			}
			return m, nil
		case tea.KeyRunes:
			m.input += string(msg.Runes)
			return m, nil
		case tea.KeySpace:
			m.input += " "
			return m, nil
		}

	case answerMsg:
		m.loading = false
		if msg.err != nil {
			m.messages = append(m.messages, Message{
				Role:    "assistant",
				Content: errorStyle.Render(fmt.Sprintf("service error, try again: %v", msg.err)),
			})
			return m, nil
		}
		m.messages = append(m.messages, Message{Role: "assistant", Content: msg.content, Meta: msg.meta})
		if msg.result != nil {
			m.lastResult = msg.result
		}
		return m, nil
	}
	return m, nil
}

// answerCmd runs the full answer path off the UI loop: analyze, retrieve
// (skipped for follow-up turns), build the prompt, generate.
func (m *Model) answerCmd(question string) tea.Cmd {
	backend := m.backend
	lastResult := m.lastResult
	hadPrior := m.lastQuery != ""
	m.lastQuery = question

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		// Follow-up turns reuse the previous context; the engine is skipped
		// entirely and must not be consulted.
		if hadPrior && lastResult != nil && query.IsFollowUp(question, true) {
			contextText := backend.Builder.BuildContext(lastResult, backend.DocNames)
			return m.generate(ctx, contextText, question, lastResult.Confidence, "follow-up", nil)
		}

		analysis, err := backend.Analyzer.Analyze(ctx, question, backend.DocLang)
		if err != nil {
			return answerMsg{err: err}
		}

		if retrieve.IsComplex(question, analysis) && backend.MaxHops > 1 {
			composite, err := backend.Reasoner.ReasonOrRetrieve(ctx, question, backend.DocIDs,
				backend.DocNames, backend.DocLang, backend.MaxHops,
				string(analysis.DetectedLanguage), false, false)
			if err != nil {
				return answerMsg{err: err}
			}
			meta := fmt.Sprintf("multihop · %d hops · %d chunks · confidence %.2f",
				composite.Hops, composite.ChunksUsed, composite.Confidence)
			return m.generate(ctx, composite.Context, question, composite.Confidence, meta, nil)
		}

		result, err := backend.Engine.Retrieve(ctx, analysis, backend.DocIDs, true, true)
		if err != nil {
			return answerMsg{err: err}
		}
		contextText := backend.Builder.BuildContext(result, backend.DocNames)
		meta := fmt.Sprintf("%s · %d chunks · confidence %.2f",
			result.Strategy, len(result.Chunks), result.Confidence)
		return m.generate(ctx, contextText, question, result.Confidence, meta, result)
	}
}

func (m *Model) generate(ctx context.Context, contextText, question string, confidence float64, meta string, result *retrieve.Result) tea.Msg {
	lang := string(query.DetectLanguage(question))
	prompt := m.backend.Builder.BuildPrompt(contextText, question, confidence, lang)
	res, err := m.backend.Invoker.GenerateAnswer(ctx, prompt)
	if err != nil {
		return answerMsg{err: err}
	}
	if contextText == "" {
		meta = meta + " · no relevant information found"
	}
	return answerMsg{content: res.Text, meta: meta, result: result}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(metaStyle.Render("kutub - ask your library (esc to quit)"))
	b.WriteString("\n\n")

	for _, msg := range m.messages {
		switch msg.Role {
		case "user":
			b.WriteString(userStyle.Render("you: "))
			b.WriteString(msg.Content)
		default:
			b.WriteString(assistantStyle.Render(msg.Content))
			if msg.Meta != "" {
				b.WriteString("\n")
				b.WriteString(metaStyle.Render(msg.Meta))
			}
		}
		b.WriteString("\n\n")
	}

	if m.loading {
		b.WriteString(metaStyle.Render("thinking..."))
		b.WriteString("\n")
	}

	b.WriteString(inputStyle.Render("> " + m.input))
	return lipgloss.NewStyle().Width(m.width).Render(b.String())
}

// Run starts the chat program.
func Run(backend *Backend) error {
	p := tea.NewProgram(NewModel(backend), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
