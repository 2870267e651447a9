package notify

import (
	"fmt"
	"strings"

	"cronkeep/internal/eventbus"
)

// DefaultEvents are forwarded when no event list is configured.
var DefaultEvents = []string{eventbus.JobFailed, eventbus.JobMarkerFailed}

// Format renders e as a chat message. ok is false for events without a
// message form.
func Format(e eventbus.Event) (text string, ok bool) {
	switch d := e.Data.(type) {
	case eventbus.JobEvent:
		var b strings.Builder
		switch e.Type {
		case eventbus.JobStarted:
			fmt.Fprintf(&b, "▶ %s started", d.Label)
		case eventbus.JobCompleted:
			fmt.Fprintf(&b, "✅ %s completed for %s in %s", d.Label, d.Period, d.Duration.Round(1e6))
		case eventbus.JobFailed:
			fmt.Fprintf(&b, "❌ %s failed for %s", d.Label, d.Period)
		case eventbus.JobMarkerFailed:
			fmt.Fprintf(&b, "⚠ %s: could not record run for %s", d.Label, d.Period)
		case eventbus.JobSkipped:
			fmt.Fprintf(&b, "⏭ %s skipped (%s)", d.Label, d.Reason)
		default:
			return "", false
		}
		if d.Error != "" {
			b.WriteString("\n")
			b.WriteString(d.Error)
		}
		return b.String(), true
	case eventbus.TickEvent:
		switch e.Type {
		case eventbus.TickFinished:
			if d.Ran == 0 {
				return "", false
			}
			return fmt.Sprintf("tick %s: %d ran, %d failed", d.At.Format("2006-01-02 15:04"), d.Ran, d.Failed), true
		case eventbus.TickSkipped:
			return fmt.Sprintf("tick %s skipped (%s)", d.At.Format("2006-01-02 15:04"), d.Reason), true
		}
	}
	return "", false
}

// StatusLine renders e as a one-line systemd STATUS= value.
func StatusLine(e eventbus.Event) (string, bool) {
	switch d := e.Data.(type) {
	case eventbus.JobEvent:
		if e.Type == eventbus.JobStarted {
			return "running " + d.JobID + " for " + d.Period, true
		}
	case eventbus.TickEvent:
		switch e.Type {
		case eventbus.TickFinished:
			return fmt.Sprintf("idle; last tick %s: %d jobs, %d ran, %d failed", d.At.Format("15:04"), d.Jobs, d.Ran, d.Failed), true
		case eventbus.TickSkipped:
			return fmt.Sprintf("idle; last tick %s skipped (%s)", d.At.Format("15:04"), d.Reason), true
		}
	}
	return "", false
}
