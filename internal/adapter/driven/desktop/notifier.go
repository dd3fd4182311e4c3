// Package desktop delivers alerts to the local desktop by invoking an
// external notifier command such as terminal-notifier or notify-send.
package desktop

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cmalloy/gitbar/internal/domain/model"
	"github.com/cmalloy/gitbar/internal/domain/port/driven"
)

var _ driven.AlertSink = (*Notifier)(nil)

// commandTimeout bounds a single notifier invocation so a hung command
// cannot accumulate goroutines across refresh cycles.
const commandTimeout = 10 * time.Second

// Notifier runs a notify command for each alert. The command is given as a
// template containing {title}, {message} and {url} placeholders, for example:
//
//	terminal-notifier -title {title} -message {message} -open {url}
//
// Delivery is asynchronous and best-effort. Failures are logged and never
// propagate to the caller.
type Notifier struct {
	command []string
}

// NewNotifier parses the command template. An empty command yields a
// disabled notifier whose Notify is a no-op.
func NewNotifier(command string) *Notifier {
	return &Notifier{command: strings.Fields(command)}
}

// Notify dispatches the alert without blocking.
func (n *Notifier) Notify(alert model.AlertRequest) {
	if len(n.command) == 0 {
		return
	}

	args := make([]string, 0, len(n.command)-1)
	for _, arg := range n.command[1:] {
		args = append(args, expand(arg, alert))
	}

	go n.run(n.command[0], args, alert)
}

func (n *Notifier) run(name string, args []string, alert model.AlertRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if out, err := exec.CommandContext(ctx, name, args...).CombinedOutput(); err != nil {
		slog.Warn("desktop notification failed",
			"command", name,
			"title", alert.Title,
			"error", err,
			"output", strings.TrimSpace(string(out)),
		)
	}
}

func expand(arg string, alert model.AlertRequest) string {
	arg = strings.ReplaceAll(arg, "{title}", alert.Title)
	arg = strings.ReplaceAll(arg, "{message}", alert.Message)
	return strings.ReplaceAll(arg, "{url}", alert.URL)
}
