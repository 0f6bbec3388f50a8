// Package tui implements the live status dashboard behind
// `pxkube status --watch`: a Bubble Tea model that polls the state
// document and redraws as phases complete.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/state"
)

// TickMsg triggers a state file reload.
type TickMsg struct{}

// Model is the Bubble Tea model for the watch dashboard.
type Model struct {
	ClusterName string
	StatePath   string

	// PhaseOrder fixes the display order; the state document is a map.
	PhaseOrder []string

	Doc     state.Document
	LoadErr error

	Width  int
	Height int
}

// NewModel builds the watch model and loads the first snapshot.
func NewModel(clusterName, statePath string, phaseOrder []string) Model {
	m := Model{
		ClusterName: clusterName,
		StatePath:   statePath,
		PhaseOrder:  phaseOrder,
	}
	m.reload()
	return m
}

func (m *Model) reload() {
	store, err := state.Load(m.StatePath, logr.Discard())
	if err != nil {
		m.LoadErr = err
		return
	}
	m.LoadErr = nil
	m.Doc = store.Snapshot()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TickMsg:
		m.reload()
		return m, tickCmd()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Watch runs the dashboard until the user quits.
func Watch(clusterName, statePath string, phaseOrder []string) error {
	p := tea.NewProgram(NewModel(clusterName, statePath, phaseOrder))
	_, err := p.Run()
	return err
}
