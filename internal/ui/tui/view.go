package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9fafb"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3b82f6")).MarginTop(1)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280")).MarginTop(1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
)

func renderView(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("pxkube status: %s", m.ClusterName)))
	b.WriteString("\n")
	if !m.Doc.LastUpdated.IsZero() {
		b.WriteString(pendingStyle.Render("last updated " + m.Doc.LastUpdated.Local().Format(time.RFC3339)))
		b.WriteString("\n")
	}

	if m.LoadErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("cannot read state: %v", m.LoadErr)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(sectionStyle.Render("Phases"))
	b.WriteString("\n")
	for _, name := range m.PhaseOrder {
		rec, ok := m.Doc.Phases[name]
		if ok && rec.Completed {
			ts := rec.Timestamp.Local().Format("2006-01-02 15:04")
			b.WriteString(doneStyle.Render(fmt.Sprintf("  [OK] %-18s %s", name, ts)))
		} else {
			b.WriteString(pendingStyle.Render(fmt.Sprintf("  [  ] %s", name)))
		}
		b.WriteString("\n")
	}

	if len(m.Doc.Resources) > 0 {
		b.WriteString(sectionStyle.Render("Resources"))
		b.WriteString("\n")
		kinds := make([]string, 0, len(m.Doc.Resources))
		for kind := range m.Doc.Resources {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			ids := make([]string, 0, len(m.Doc.Resources[kind]))
			for id := range m.Doc.Resources[kind] {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				b.WriteString(fmt.Sprintf("  %s/%s: %s\n", kind, id, m.Doc.Resources[kind][id]))
			}
		}
	}

	b.WriteString(footerStyle.Render("press q to quit"))
	b.WriteString("\n")
	return b.String()
}
