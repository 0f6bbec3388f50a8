package phase

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Observer receives structured events as the pipeline executes. The
// deploy handler installs a styled console observer; tests install a
// recording one.
type Observer interface {
	// Printf emits an unstructured progress line.
	Printf(format string, v ...interface{})

	// Event emits a structured pipeline event.
	Event(event Event)
}

// Event is one structured pipeline occurrence.
type Event struct {
	Type      EventType
	Phase     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType classifies pipeline events.
type EventType string

const (
	// EventPhaseStarted indicates a phase began executing.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a phase finished and was recorded.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates a phase failed; the pipeline stops.
	EventPhaseFailed EventType = "phase.failed"
	// EventPhaseSkipped indicates a completed, verified phase was not re-run.
	EventPhaseSkipped EventType = "phase.skipped"
	// EventPhaseInvalidated indicates a completed phase failed verification
	// and will re-run.
	EventPhaseInvalidated EventType = "phase.invalidated"
	// EventPhaseWouldRun is emitted instead of execution during dry runs.
	EventPhaseWouldRun EventType = "phase.would-run"
)

// ConsoleObserver writes events through the standard log package.
type ConsoleObserver struct{}

// NewConsoleObserver creates a plain console observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log.Print(formatEvent(event))
}

func formatEvent(event Event) string {
	var parts []string
	parts = append(parts, string(event.Type))
	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		var fieldParts []string
		for k, v := range event.Fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}
	return strings.Join(parts, " ")
}
