// Package notify displays alert notifications. Sinks are fire-and-forget:
// a failed write is dropped.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/steveyegge/stepview/internal/alerts"
)

// Sink modes
const (
	ModeTerminal = "terminal"
	ModeLog      = "log"
	ModeNone     = "none"
)

// TerminalSink prints a colored line per notification
type TerminalSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminalSink writes to out (stdout when nil)
func NewTerminalSink(out io.Writer) *TerminalSink {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalSink{out: out}
}

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	linkColor  = color.New(color.Faint)
)

// Notify implements alerts.Notifier
func (t *TerminalSink) Notify(ctx context.Context, n alerts.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintf(t.out, "%s %s\n", titleColor.Sprint(n.Title), n.Body)
	if n.Link != "" {
		_, _ = fmt.Fprintf(t.out, "  %s\n", linkColor.Sprint(n.Link))
	}
}

// LogSink writes notifications to a structured logger
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs through logger (slog.Default when nil)
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify implements alerts.Notifier
func (l *LogSink) Notify(ctx context.Context, n alerts.Notification) {
	l.logger.InfoContext(ctx, n.Title, "notification_id", n.ID, "body", n.Body, "link", n.Link)
}

// New returns the sink for mode, or nil for "none"
func New(mode string, out io.Writer, logger *slog.Logger) (alerts.Notifier, error) {
	switch mode {
	case ModeTerminal, "":
		return NewTerminalSink(out), nil
	case ModeLog:
		return NewLogSink(logger), nil
	case ModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown notification mode %q", mode)
	}
}
