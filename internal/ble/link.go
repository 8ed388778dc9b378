package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Command is a classified inbound message from the peripheral.
type Command string

const (
	CommandOn  Command = "ON"
	CommandOff Command = "OFF"
)

// LinkState is the connection lifecycle state of a Link.
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
)

func (s LinkState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrUnavailable indicates the Bluetooth adapter could not be enabled on
// this host.
var ErrUnavailable = errors.New("ble: bluetooth adapter unavailable")

// ErrBusy indicates Connect was called while a connection attempt or an
// active connection already exists.
var ErrBusy = errors.New("ble: connect already in progress or connected")

// LinkOptions configures the Link.
type LinkOptions struct {
	DeviceName  string        // optional peripheral name filter; empty picks the first match
	ScanTimeout time.Duration // how long to scan for the UART service
}

// DefaultLinkOptions returns sensible defaults.
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{
		ScanTimeout: 10 * time.Second,
	}
}

// Link is the transport adapter for the relay's HM-10 module. It owns the
// connection and characteristic handles, decodes inbound frames into
// ON/OFF commands, and encodes outbound commands. A dropped connection
// resets the Link to Disconnected; reconnection requires a fresh Connect.
type Link struct {
	adapter   Adapter
	opts      LinkOptions
	onMessage func(Command)

	mu         sync.Mutex
	state      LinkState
	conn       Connection
	char       Characteristic
	deviceName string
}

// NewLink creates a Link over the given adapter.
func NewLink(adapter Adapter, opts LinkOptions) *Link {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Second
	}
	return &Link{
		adapter: adapter,
		opts:    opts,
	}
}

// OnMessage registers the callback invoked for each classified inbound
// command. Register before Connect; frames arriving with no callback are
// dropped.
func (l *Link) OnMessage(cb func(Command)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = cb
}

// Connect discovers the peripheral, opens the UART characteristic, and
// subscribes to its notifications. On any failure the Link remains
// Disconnected and the error is returned for the caller to surface.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Disconnected {
		l.mu.Unlock()
		return ErrBusy
	}
	l.state = Connecting
	l.mu.Unlock()

	conn, char, name, err := l.establish(ctx)
	if err != nil {
		l.mu.Lock()
		l.state = Disconnected
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.char = char
	l.deviceName = name
	l.state = Connected
	l.mu.Unlock()

	// Peer-initiated drop resets the link. No automatic retry: the caller
	// decides when to attempt a fresh Connect.
	conn.OnDisconnect(func() {
		slog.Warn("[BLE] peripheral disconnected")
		l.reset()
	})

	slog.Info("[BLE] connected", "device", name)
	return nil
}

// establish runs discovery through subscription and hands back the live
// handles. It does not touch the Link's fields.
func (l *Link) establish(ctx context.Context) (Connection, Characteristic, string, error) {
	if err := l.adapter.Enable(); err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, l.opts.ScanTimeout)
	defer cancel()

	devices, err := l.adapter.Scan(scanCtx, ServiceUUID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("ble: scan: %w", err)
	}

	target, err := pickDevice(devices, l.opts.DeviceName)
	if err != nil {
		return nil, nil, "", err
	}

	conn, err := l.adapter.Connect(ctx, target.Address)
	if err != nil {
		return nil, nil, "", fmt.Errorf("ble: connect: %w", err)
	}

	char, err := conn.DiscoverCharacteristic(ServiceUUID, CharUUID)
	if err != nil {
		conn.Disconnect()
		return nil, nil, "", fmt.Errorf("ble: discover UART characteristic: %w", err)
	}

	if err := char.Subscribe(l.handleFrame); err != nil {
		conn.Disconnect()
		return nil, nil, "", fmt.Errorf("ble: subscribe: %w", err)
	}

	name := target.Name
	if name == "" {
		name = "HM-10"
	}
	return conn, char, name, nil
}

// pickDevice selects the peripheral to connect to from a scan result.
func pickDevice(devices []Device, wantName string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("ble: no peripheral advertising service %s", ServiceUUID)
	}
	if wantName == "" {
		return devices[0], nil
	}
	for _, d := range devices {
		if d.Name == wantName {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("ble: peripheral %q not found among %d scanned devices", wantName, len(devices))
}

// handleFrame classifies an inbound frame and forwards it to the callback.
func (l *Link) handleFrame(data []byte) {
	cmd, ok := DecodeFrame(data)
	if !ok {
		slog.Debug("[BLE] dropping unrecognized frame", "raw", string(data))
		return
	}

	l.mu.Lock()
	cb := l.onMessage
	l.mu.Unlock()

	slog.Debug("[BLE] received", "command", string(cmd))
	if cb != nil {
		cb(cmd)
	}
}

// DecodeFrame classifies a raw inbound frame. The frame is decoded as text,
// stripped of whitespace and control characters, and uppercased. A frame
// containing "ON" classifies as CommandOn, then one containing "OFF" as
// CommandOff; the ON check deliberately runs first to preserve the wire
// behavior existing peripherals rely on. Anything else is dropped.
func DecodeFrame(data []byte) (Command, bool) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, string(data))
	clean = strings.ToUpper(clean)

	switch {
	case strings.Contains(clean, "ON"):
		return CommandOn, true
	case strings.Contains(clean, "OFF"):
		return CommandOff, true
	default:
		return "", false
	}
}

// Send frames and writes a command to the peripheral. It returns false if
// the link is not connected or the write fails; it never returns an error.
func (l *Link) Send(cmd string) bool {
	l.mu.Lock()
	char := l.char
	connected := l.state == Connected
	l.mu.Unlock()

	if !connected || char == nil {
		slog.Warn("[BLE] send while disconnected, dropping", "command", cmd)
		return false
	}

	if err := char.Write([]byte(cmd + "\n")); err != nil {
		slog.Error("[BLE] write failed", "command", cmd, "error", err)
		return false
	}
	return true
}

// Disconnect tears down the connection. Calling it while already
// disconnected is a no-op.
func (l *Link) Disconnect() {
	l.mu.Lock()
	conn := l.conn
	wasConnected := l.state != Disconnected
	l.conn = nil
	l.char = nil
	l.deviceName = ""
	l.state = Disconnected
	l.mu.Unlock()

	if !wasConnected {
		return
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect", "error", err)
		}
	}
	slog.Info("[BLE] disconnected")
}

// reset clears the handles after a peer-initiated drop so Send fails
// safely instead of acting on a stale characteristic.
func (l *Link) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = nil
	l.char = nil
	l.deviceName = ""
	l.state = Disconnected
}

// State returns the current lifecycle state.
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// DeviceName returns the name of the connected peripheral, or "" when
// disconnected.
func (l *Link) DeviceName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deviceName
}
