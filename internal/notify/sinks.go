package notify

import (
	"fmt"
	"io"

	"github.com/gen2brain/beeep"
)

// DesktopSink delivers alerts through the platform notification daemon.
// Notifications land in the notification center, so they outlive the
// terminal session that produced them.
type DesktopSink struct{}

func (DesktopSink) Deliver(title, body string) error {
	return beeep.Notify(title, body, "")
}

// StatusLineSink writes alerts to a writer, one per line. This is the
// foreground-only path, standing in for the original app's status bar.
type StatusLineSink struct {
	W io.Writer
}

func (s StatusLineSink) Deliver(title, body string) error {
	_, err := fmt.Fprintf(s.W, "%s: %s\n", title, body)
	return err
}
