// Package ui renders console output: styled status marks when stdout is
// a terminal, plain text when piped.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/pxkube/pxkube/internal/phase"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")

	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	failStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	activeStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// Marks used in phase listings.
const (
	MarkDone    = "[OK]"
	MarkFail    = "[!!]"
	MarkWarn    = "[??]"
	MarkActive  = "[..]"
	MarkPending = "[  ]"
	MarkSkipped = "[--]"
)

// IsTerminal reports whether stdout goes to an interactive terminal.
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Printer writes styled lines, degrading to plain text when not on a
// terminal.
type Printer struct {
	styled bool
}

// NewPrinter builds a printer, auto-detecting terminal support.
func NewPrinter() *Printer {
	return &Printer{styled: IsTerminal()}
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

// Title prints a bold heading.
func (p *Printer) Title(format string, v ...interface{}) {
	fmt.Println(p.render(titleStyle, fmt.Sprintf(format, v...)))
}

// OK prints a success line.
func (p *Printer) OK(format string, v ...interface{}) {
	fmt.Printf("%s %s\n", p.render(okStyle, MarkDone), fmt.Sprintf(format, v...))
}

// Fail prints a failure line.
func (p *Printer) Fail(format string, v ...interface{}) {
	fmt.Printf("%s %s\n", p.render(failStyle, MarkFail), fmt.Sprintf(format, v...))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, v ...interface{}) {
	fmt.Printf("%s %s\n", p.render(warnStyle, MarkWarn), fmt.Sprintf(format, v...))
}

// Skip prints a dimmed skip line.
func (p *Printer) Skip(format string, v ...interface{}) {
	fmt.Printf("%s %s\n", p.render(dimStyle, MarkSkipped), p.render(dimStyle, fmt.Sprintf(format, v...)))
}

// Active prints an in-progress line.
func (p *Printer) Active(format string, v ...interface{}) {
	fmt.Printf("%s %s\n", p.render(activeStyle, MarkActive), fmt.Sprintf(format, v...))
}

// Plain prints an unadorned line.
func (p *Printer) Plain(format string, v ...interface{}) {
	fmt.Printf(format+"\n", v...)
}

// Observer adapts the printer to the pipeline observer interface so
// deploys get styled per-phase progress.
type Observer struct {
	p *Printer
}

// NewObserver builds a styled pipeline observer.
func NewObserver() *Observer {
	return &Observer{p: NewPrinter()}
}

// Printf implements phase.Observer.
func (o *Observer) Printf(format string, v ...interface{}) {
	o.p.Plain(format, v...)
}

// Event implements phase.Observer.
func (o *Observer) Event(e phase.Event) {
	switch e.Type {
	case phase.EventPhaseStarted:
		o.p.Active("%s", e.Phase)
	case phase.EventPhaseCompleted:
		o.p.OK("%s %s", e.Phase, e.Message)
	case phase.EventPhaseFailed:
		o.p.Fail("%s: %s", e.Phase, e.Message)
	case phase.EventPhaseSkipped:
		o.p.Skip("%s (%s)", e.Phase, e.Message)
	case phase.EventPhaseInvalidated:
		o.p.Warn("%s: %s", e.Phase, e.Message)
	case phase.EventPhaseWouldRun:
		o.p.Plain("would run: %s", e.Phase)
	default:
		o.p.Plain("%s %s", e.Type, e.Message)
	}
}
