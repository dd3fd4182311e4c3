package desktop_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	desktop "github.com/cmalloy/gitbar/internal/adapter/driven/desktop"
	"github.com/cmalloy/gitbar/internal/domain/model"
)

func TestNotifier_EmptyCommandIsNoOp(t *testing.T) {
	notifier := desktop.NewNotifier("")

	// Must return immediately without panicking or spawning anything.
	notifier.Notify(model.AlertRequest{Title: "x", Message: "y"})
}

func TestNotifier_ExpandsPlaceholders(t *testing.T) {
	dir := t.TempDir()

	notifier := desktop.NewNotifier("touch " + filepath.Join(dir, "{title}"))
	notifier.Notify(model.AlertRequest{Title: "alerted"})

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "alerted"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNotifier_CommandFailureDoesNotPanic(t *testing.T) {
	notifier := desktop.NewNotifier("/nonexistent/notifier {title}")

	notifier.Notify(model.AlertRequest{Title: "x"})

	// Give the goroutine a moment; the failure is logged, never surfaced.
	time.Sleep(50 * time.Millisecond)
}
