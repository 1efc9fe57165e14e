// Package tui renders the operator dashboard: loops, extensions, sandbox
// audit and a command palette, all talking to the daemon over the control
// socket.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/loopdeck/loopdeck/internal/client"
	"github.com/loopdeck/loopdeck/internal/protocol"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginLeft(2)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	deniedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	allowedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			MarginLeft(2)
)

// Tab indexes.
const (
	tabLoops = iota
	tabExtensions
	tabAudit
	tabCount
)

var tabNames = [tabCount]string{"Loops", "Extensions", "Audit"}

type refreshMsg struct {
	loops      []protocol.LoopInfo
	extensions []protocol.ExtensionInfo
	audit      []protocol.AuditEntry
	err        error
}

type tickMsg time.Time

type commandResultMsg struct {
	output string
	err    error
}

// Model is the dashboard's bubbletea model.
type Model struct {
	client *client.Client

	activeTab  int
	loops      []protocol.LoopInfo
	extensions []protocol.ExtensionInfo
	audit      []protocol.AuditEntry

	palette       textinput.Model
	paletteActive bool
	lastOutput    string
	err           error

	width  int
	height int
}

// NewModel builds the dashboard model over an already-connected client.
func NewModel(c *client.Client) Model {
	palette := textinput.New()
	palette.Placeholder = "command (loop new <id> <name>, ext enable <id>, grant add ..., as <ext> <cmd>)"
	palette.CharLimit = 512

	return Model{
		client:  c,
		palette: palette,
	}
}

// Run starts the dashboard program and blocks until quit.
func Run(c *client.Client) error {
	program := tea.NewProgram(NewModel(c), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		msg := refreshMsg{}
		var err error
		if msg.loops, err = c.Loops(); err != nil {
			msg.err = err
			return msg
		}
		if msg.extensions, err = c.Extensions(); err != nil {
			msg.err = err
			return msg
		}
		if msg.audit, err = c.RecentAudit(20); err != nil {
			msg.err = err
			return msg
		}
		return msg
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.Width = msg.Width - 6
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case refreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.loops = msg.loops
		m.extensions = msg.extensions
		m.audit = msg.audit
		return m, nil

	case commandResultMsg:
		if msg.err != nil {
			m.err = msg.err
			m.lastOutput = ""
		} else {
			m.err = nil
			m.lastOutput = msg.output
		}
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.paletteActive {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.paletteActive {
		switch msg.Type {
		case tea.KeyEsc:
			m.paletteActive = false
			m.palette.Blur()
			m.palette.Reset()
			return m, nil
		case tea.KeyEnter:
			command := strings.TrimSpace(m.palette.Value())
			m.paletteActive = false
			m.palette.Blur()
			m.palette.Reset()
			if command == "" {
				return m, nil
			}
			return m, m.execute(command)
		}
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case "shift+tab":
		m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		return m, nil
	case ":", "/":
		m.paletteActive = true
		m.palette.Focus()
		return m, textinput.Blink
	case "r":
		return m, m.refresh()
	}
	return m, nil
}

func (m Model) execute(command string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		output, err := runPaletteCommand(c, command)
		return commandResultMsg{output: output, err: err}
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("loopdeck"))
	b.WriteString("  ")
	for i, name := range tabNames {
		if i == m.activeTab {
			b.WriteString(activeTabStyle.Render("[" + name + "]"))
		} else {
			b.WriteString(tabStyle.Render(name))
		}
	}
	b.WriteString("\n\n")

	switch m.activeTab {
	case tabLoops:
		b.WriteString(m.viewLoops())
	case tabExtensions:
		b.WriteString(m.viewExtensions())
	case tabAudit:
		b.WriteString(m.viewAudit())
	}

	b.WriteString("\n")
	if m.paletteActive {
		b.WriteString("  > " + m.palette.View() + "\n")
	} else {
		b.WriteString(statusStyle.Render("tab: switch view | : palette | r refresh | q quit") + "\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	} else if m.lastOutput != "" {
		wrapped := m.lastOutput
		if m.width > 8 {
			wrapped = wordwrap.String(m.lastOutput, m.width-4)
		}
		b.WriteString(statusStyle.Render(wrapped) + "\n")
	}

	return b.String()
}

func (m Model) viewLoops() string {
	var b strings.Builder
	b.WriteString("  " + headerStyle.Render(fmt.Sprintf("%-20s %-20s %-10s", "ID", "NAME", "STATE")) + "\n")
	if len(m.loops) == 0 {
		b.WriteString(statusStyle.Render("no loops") + "\n")
		return b.String()
	}
	for _, l := range m.loops {
		b.WriteString("  " + rowStyle.Render(fmt.Sprintf("%-20s %-20s %-10s", l.ID, l.Name, l.State)) + "\n")
	}
	return b.String()
}

func (m Model) viewExtensions() string {
	var b strings.Builder
	b.WriteString("  " + headerStyle.Render(fmt.Sprintf("%-20s %-10s %-12s %s", "PLUGIN", "VERSION", "STATE", "PERMISSIONS")) + "\n")
	if len(m.extensions) == 0 {
		b.WriteString(statusStyle.Render("no extensions") + "\n")
		return b.String()
	}
	for _, e := range m.extensions {
		perms := strings.Join(e.Permissions, ",")
		b.WriteString("  " + rowStyle.Render(fmt.Sprintf("%-20s %-10s %-12s %s", e.PluginID, e.Version, e.State, perms)) + "\n")
	}
	return b.String()
}

func (m Model) viewAudit() string {
	var b strings.Builder
	b.WriteString("  " + headerStyle.Render(fmt.Sprintf("%-8s %-20s %s", "VERDICT", "EXTENSION", "INTENT")) + "\n")
	if len(m.audit) == 0 {
		b.WriteString(statusStyle.Render("no audit records") + "\n")
		return b.String()
	}
	for _, entry := range m.audit {
		verdict := deniedStyle.Render("denied")
		if entry.Allowed {
			verdict = allowedStyle.Render("allowed")
		}
		b.WriteString("  " + fmt.Sprintf("%-8s %-20s %s", verdict, entry.ExtensionID, entry.Intent) + "\n")
	}
	return b.String()
}
