// Package engine owns the authoritative in-memory snapshot of the relay
// state. It merges observations from backend polling, the BLE link, and
// user toggles into one view, decides notifications, and propagates
// changes back out to the other sources.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"plugwatch/internal/ble"
	"plugwatch/internal/device"
)

// Source identifies where an observed value came from.
type Source string

const (
	SourcePoll   Source = "poll"
	SourceDevice Source = "ble"
	SourceUser   Source = "user"
)

// Backend is the slice of the backend client the engine uses.
type Backend interface {
	GetState(ctx context.Context) (device.State, error)
	SetField(ctx context.Context, field device.Field, value bool) error
	ToggleField(ctx context.Context, field device.Field) error
}

// CommandSender writes a command to the peripheral. A false return means
// the command was dropped; the sender has already logged why.
type CommandSender interface {
	Send(cmd string) bool
}

// Notifier shows a user-facing alert.
type Notifier interface {
	Dispatch(title, body string)
}

// StatusSink receives short foreground status messages (the status bar).
type StatusSink interface {
	Show(message string)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(string)

func (f StatusFunc) Show(message string) { f(message) }

// Options configures the engine.
type Options struct {
	PollInterval time.Duration
	Override     bool // start with raw-protocol override enabled
}

// Engine reconciles the three state sources. All transitions run under one
// mutex, so observations are applied strictly in arrival order: if the
// poll and the peripheral disagree within one interval, whichever is
// processed last wins, exactly as two uncoordinated event sources feeding
// one serialized function.
type Engine struct {
	backend  Backend
	commands CommandSender
	notifier Notifier
	status   StatusSink // optional

	pollInterval time.Duration

	mu       sync.Mutex
	last     device.State
	override bool
}

// New creates an engine. The status sink may be nil.
func New(backend Backend, commands CommandSender, notifier Notifier, status StatusSink, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Engine{
		backend:      backend,
		commands:     commands,
		notifier:     notifier,
		status:       status,
		pollInterval: opts.PollInterval,
		// The relay starts de-energized with monitoring active, the
		// same defaults the backend seeds.
		last:     device.State{Status: false, Function: true},
		override: opts.Override,
	}
}

// Prime loads the initial snapshot from the backend without emitting
// notifications. A failure leaves the defaults in place; the next
// successful poll reconciles.
func (e *Engine) Prime(ctx context.Context) error {
	state, err := e.backend.GetState(ctx)
	if err != nil {
		slog.Warn("[engine] initial state fetch failed, starting from defaults", "error", err)
		return err
	}

	e.mu.Lock()
	e.last = state
	e.mu.Unlock()

	slog.Info("[engine] initial state", "status", state.Status, "function", state.Function)
	return nil
}

// Run polls the backend until ctx is cancelled. BLE messages and user
// toggles arrive independently through their own entry points; Run only
// owns the polling cadence.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

// poll fetches the backend state and feeds both fields through the
// transition rule.
func (e *Engine) poll(ctx context.Context) {
	state, err := e.backend.GetState(ctx)
	if err != nil {
		slog.Warn("[engine] poll failed", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.observeLocked(device.FieldStatus, state.Status, SourcePoll)
	e.observeLocked(device.FieldFunction, state.Function, SourcePoll)
}

// HandleDeviceCommand ingests a classified BLE message. The peripheral
// only ever reports the relay's energized state.
func (e *Engine) HandleDeviceCommand(cmd ble.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observeLocked(device.FieldStatus, cmd == ble.CommandOn, SourceDevice)
}

// Toggle flips a field on behalf of the user. The local snapshot updates
// optimistically; the peripheral and the backend are told afterwards, and
// a backend failure is logged without rolling the flip back (the next
// successful poll converges the two).
func (e *Engine) Toggle(field device.Field) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observeLocked(field, !e.last.Get(field), SourceUser)
}

// observeLocked is the transition rule. Caller holds mu. A value equal to
// the last known one is a no-op; a differing value updates the snapshot,
// emits exactly one notification, and propagates to the sources that did
// not report it.
func (e *Engine) observeLocked(field device.Field, value bool, src Source) {
	if e.last.Get(field) == value {
		return
	}
	e.last.Set(field, value)

	slog.Debug("[engine] transition", "field", string(field), "value", value, "source", string(src))

	title, body := transitionMessage(field, value, src)
	e.notifier.Dispatch(title, body)
	if e.status != nil {
		if msg := statusMessage(field, value, src); msg != "" {
			e.status.Show(msg)
		}
	}

	switch src {
	case SourceDevice:
		go e.persistSet(field, value)
	case SourceUser:
		e.commands.Send(outboundCommand(field, value, e.override))
		go e.persistToggle(field)
	}
}

// persistSet mirrors a device-observed value to the backend,
// fire-and-forget.
func (e *Engine) persistSet(field device.Field, value bool) {
	if err := e.backend.SetField(context.Background(), field, value); err != nil {
		slog.Error("[engine] backend sync failed", "field", string(field), "error", err)
	}
}

// persistToggle mirrors a user toggle to the backend, fire-and-forget.
func (e *Engine) persistToggle(field device.Field) {
	if err := e.backend.ToggleField(context.Background(), field); err != nil {
		slog.Error("[engine] backend sync failed", "field", string(field), "error", err)
	}
}

// outboundCommand builds the wire command for a user toggle. Override mode
// bypasses the field namespace in favor of raw ON/OFF.
func outboundCommand(field device.Field, value bool, override bool) string {
	onOff := "OFF"
	if value {
		onOff = "ON"
	}
	if override {
		return onOff
	}
	return strings.ToUpper(string(field)) + "_" + onOff
}

// SetOverride switches the outbound wire protocol. The switch itself is
// transmitted so the peripheral follows along. Callers gate this behind
// an explicit user confirmation; the engine just executes it.
func (e *Engine) SetOverride(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.override == on {
		return
	}
	e.override = on

	cmd := "OVERRIDE_OFF"
	msg := "Override mode disabled"
	if on {
		cmd = "OVERRIDE_ON"
		msg = "Override mode enabled"
	}
	e.commands.Send(cmd)
	if e.status != nil {
		e.status.Show(msg)
	}
	slog.Info("[engine] override mode", "enabled", on)
}

// Override reports whether raw-protocol override is active.
func (e *Engine) Override() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.override
}

// Snapshot returns a copy of the authoritative state.
func (e *Engine) Snapshot() device.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
