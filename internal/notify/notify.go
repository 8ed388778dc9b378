// Package notify delivers user-facing alerts. The dispatcher gates on the
// runtime's notification capability and prefers a persistent delivery path
// (the desktop notification daemon) over the foreground-only status line.
package notify

import "log/slog"

// Permission mirrors the platform notification permission states.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Capability describes whether and how alerts may be delivered. Requesting
// permission is the caller's concern; the dispatcher only honors the
// already-granted (or not) state.
type Capability struct {
	Supported  bool
	Permission Permission
}

// Sink delivers a single alert.
type Sink interface {
	Deliver(title, body string) error
}

// Dispatcher performs best-effort user alerting. Exactly one visible alert
// is produced per Dispatch call; deduplication across calls is the
// reconciliation engine's job.
type Dispatcher struct {
	cap        Capability
	persistent Sink // survives the app losing focus; may be nil
	foreground Sink // status line fallback; may be nil
}

// NewDispatcher creates a dispatcher with the given capability and sinks.
// Either sink may be nil.
func NewDispatcher(cap Capability, persistent, foreground Sink) *Dispatcher {
	return &Dispatcher{cap: cap, persistent: persistent, foreground: foreground}
}

// Dispatch shows one alert. It is a no-op when notifications are
// unsupported or permission has not been granted.
func (d *Dispatcher) Dispatch(title, body string) {
	if !d.cap.Supported {
		slog.Debug("[notify] unsupported, dropping", "title", title)
		return
	}
	if d.cap.Permission != PermissionGranted {
		slog.Debug("[notify] permission not granted, dropping", "title", title, "permission", string(d.cap.Permission))
		return
	}

	if d.persistent != nil {
		err := d.persistent.Deliver(title, body)
		if err == nil {
			return
		}
		slog.Warn("[notify] persistent delivery failed, falling back", "error", err)
	}

	if d.foreground != nil {
		if err := d.foreground.Deliver(title, body); err != nil {
			slog.Error("[notify] foreground delivery failed", "error", err)
		}
	}
}

// HandleDelivery decodes a background push payload and dispatches it.
// Wire this to whatever transport delivers push messages.
func (d *Dispatcher) HandleDelivery(payload []byte) {
	title, body := DecodePayload(payload)
	d.Dispatch(title, body)
}
