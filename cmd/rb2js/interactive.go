package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/rb2js/config"
	"github.com/wippyai/rb2js/errors"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	codeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxEntries bounds the transcript kept on screen.
const maxEntries = 20

type entry struct {
	err    error
	source string
	code   string
	output []string
}

type interactiveModel struct {
	err      error
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *pipeline
	input    textinput.Model
	entries  []entry
	history  []string
	histIdx  int
	busy     bool
}

type loadedMsg struct {
	err      error
	pipeline *pipeline
}

type evalMsg struct {
	entry entry
}

func newInteractiveModel(cfg *config.Config, logger *zap.Logger) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = `puts "hello"`
	ti.Prompt = "rb> "
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{cfg: cfg, logger: logger, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load)
}

// load builds the pipeline and brings the parser up before the first
// prompt is accepted.
func (m *interactiveModel) load() tea.Msg {
	ctx := context.Background()
	p, err := newPipeline(m.cfg, m.logger, true)
	if err != nil {
		return loadedMsg{err: err}
	}
	if err := p.manager.InitializePrism(ctx); err != nil {
		p.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{pipeline: p}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.pipeline != nil {
				m.pipeline.Close(context.Background())
			}
			return m, tea.Quit

		case "up":
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			} else {
				m.histIdx = len(m.history)
				m.input.SetValue("")
			}
			return m, nil

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.busy || m.pipeline == nil {
				return m, nil
			}
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			if src == ":diag" {
				m.push(m.diagnostics())
				return m, nil
			}
			m.busy = true
			return m, m.evaluate(src)
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.pipeline = msg.pipeline

	case evalMsg:
		m.busy = false
		m.push(msg.entry)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) push(e entry) {
	m.entries = append(m.entries, e)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

func (m *interactiveModel) evaluate(src string) tea.Cmd {
	p := m.pipeline
	return func() tea.Msg {
		ctx := context.Background()
		e := entry{source: src}

		res, err := p.transpiler.ProcessSource(ctx, src)
		if res != nil {
			e.code = res.GeneratedCode
		}
		if err == nil {
			_, err = p.runtime.RunTimers(ctx)
		}
		e.output = p.runtime.TakeOutput()
		if err != nil {
			if code, ok := errors.GeneratedCode(err); ok {
				e.code = code
			}
			e.err = err
		}
		return evalMsg{entry: e}
	}
}

func (m *interactiveModel) diagnostics() entry {
	d := m.pipeline.manager.Diagnostics()
	var b strings.Builder
	if err := writeYAML(&b, d); err != nil {
		return entry{source: ":diag", err: err}
	}
	return entry{source: ":diag", output: strings.Split(strings.TrimRight(b.String(), "\n"), "\n")}
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
	}
	if m.pipeline == nil {
		return "Loading parser..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("rb2js"))
	b.WriteString(" ")
	b.WriteString(m.pipeline.manager.State().String())
	b.WriteString("\n\n")

	for _, e := range m.entries {
		b.WriteString(sourceStyle.Render("rb> " + e.source))
		b.WriteString("\n")
		if e.code != "" {
			b.WriteString(codeStyle.Render(e.code))
			b.WriteString("\n")
		}
		for _, line := range e.output {
			b.WriteString(resultStyle.Render(line))
			b.WriteString("\n")
		}
		if e.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", e.err)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • ↑/↓ history • :diag diagnostics • esc quit"))
	return b.String()
}

func runInteractive(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// The alternate screen owns the terminal; only warnings reach stderr.
	logger = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	p := tea.NewProgram(newInteractiveModel(cfg, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
