package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/config"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/store"
)

const appVersion = "0.1.0"

var (
	colorCyan = lipgloss.Color("#00D7FF")
	colorGray = lipgloss.Color("#6C6C6C")
	colorGold = lipgloss.Color("#FFD75F")
)

func main() {
	var sessionID string
	root := &cobra.Command{
		Use:   "tracetui",
		Short: "brainloop tracetui — scrollable viewer over a session's trace",
		Long:  "Streams stream_trace pages for one session into a scrollable terminal viewport, for watching an agent turn's tool calls and verification evidence unfold.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			return run(sessionID)
		},
	}
	root.Flags().StringVarP(&sessionID, "session", "s", "", "session id to view")
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the tracetui version",
		Run:   func(cmd *cobra.Command, args []string) { fmt.Printf("brainloop-tracetui v%s\n", appVersion) },
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(sessionID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	db, err := store.NewDBConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	traces := store.NewGormTraceStore(db)

	m := newModel(traces, sessionID)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type pollMsg struct {
	events    []*entity.TraceEvent
	afterSeq  uint64
	truncated bool
}

type pollErrMsg struct{ err error }

type model struct {
	traces    traceReader
	sessionID string
	viewport  viewport.Model
	lines     []string
	afterSeq  uint64
	ready     bool
	err       error
}

// traceReader narrows repository.TraceStore to the single read path
// this viewer needs.
type traceReader interface {
	ReadTrace(ctx context.Context, sessionID string, afterSeq uint64, maxEvents, maxBytes int) ([]*entity.TraceEvent, bool, string, error)
}

func newModel(traces traceReader, sessionID string) model {
	return model{traces: traces, sessionID: sessionID}
}

func (m model) Init() tea.Cmd {
	return m.poll()
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events, truncated, _, err := m.traces.ReadTrace(ctx, m.sessionID, m.afterSeq, 100, 1<<20)
		if err != nil {
			return pollErrMsg{err}
		}
		afterSeq := m.afterSeq
		if len(events) > 0 {
			afterSeq = events[len(events)-1].Seq()
		}
		return pollMsg{events: events, afterSeq: afterSeq, truncated: truncated}
	}
}

type tickMsg struct{}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		headerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight)
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight
		}
	case pollMsg:
		m.afterSeq = msg.afterSeq
		for _, ev := range msg.events {
			m.lines = append(m.lines, renderEvent(ev))
		}
		if m.ready {
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
		}
		return m, tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
	case tickMsg:
		return m, m.poll()
	case pollErrMsg:
		m.err = msg.err
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "loading trace...\n"
	}
	header := lipgloss.NewStyle().Foreground(colorCyan).Bold(true).
		Render(fmt.Sprintf(" session %s — %d events ", m.sessionID, len(m.lines)))
	footer := lipgloss.NewStyle().Foreground(colorGray).Render(" q to quit ")
	if m.err != nil {
		footer = lipgloss.NewStyle().Foreground(colorGold).Render(" error: " + m.err.Error())
	}
	return header + "\n" + m.viewport.View() + "\n" + footer
}

func renderEvent(ev *entity.TraceEvent) string {
	kindStyle := lipgloss.NewStyle().Foreground(colorGold).Bold(true)
	seqStyle := lipgloss.NewStyle().Foreground(colorGray)
	var pretty map[string]any
	body := string(ev.Payload())
	if err := json.Unmarshal(ev.Payload(), &pretty); err == nil {
		if b, err := json.Marshal(pretty); err == nil {
			body = string(b)
		}
	}
	return fmt.Sprintf("%s %s %s", seqStyle.Render(fmt.Sprintf("#%d", ev.Seq())), kindStyle.Render(string(ev.Kind())), body)
}
