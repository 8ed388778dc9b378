// Package push manages the background delivery channel: the one-shot
// subscription handshake with the backend, the subscriber-side keys, and a
// local HTTP receiver that decrypts delivered payloads.
package push

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"plugwatch/internal/notify"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// PermissionRequester asks the user (or the platform) for notification
// permission. The request may prompt, so it can suspend the caller.
type PermissionRequester interface {
	Request(ctx context.Context) (notify.Permission, error)
}

// StaticPermission is a PermissionRequester with a fixed answer, used when
// permission is decided by configuration rather than a prompt.
type StaticPermission notify.Permission

func (p StaticPermission) Request(context.Context) (notify.Permission, error) {
	return notify.Permission(p), nil
}

// Registrar registers a subscription with the delivery platform, binding
// it to the server's VAPID public key.
type Registrar interface {
	Register(ctx context.Context, serverKey []byte) (*webpush.Subscription, error)
}

// Backend is the slice of the backend API the handshake needs.
type Backend interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	SaveSubscription(ctx context.Context, sub *webpush.Subscription) error
}

// Result reports the outcome of an Enable attempt in user-facing terms.
type Result struct {
	Enabled bool
	Reason  string
}

// Record is the tracked subscription state. Active is false unless the
// whole handshake, including backend storage, succeeded.
type Record struct {
	Subscription *webpush.Subscription
	Active       bool
}

// Manager runs the subscription handshake and tracks whether the channel
// is active. The handshake is a linear pipeline with no retry: any stage
// failure aborts and leaves the channel inactive.
type Manager struct {
	perms     PermissionRequester
	registrar Registrar
	backend   Backend

	mu     sync.Mutex
	record Record
}

// NewManager creates a push subscription manager.
func NewManager(perms PermissionRequester, registrar Registrar, backend Backend) *Manager {
	return &Manager{perms: perms, registrar: registrar, backend: backend}
}

// Enable performs the handshake: permission, server key fetch, key decode,
// platform registration, backend storage. The returned Reason is a
// human-readable failure summary; details go to the log.
func (m *Manager) Enable(ctx context.Context) Result {
	perm, err := m.perms.Request(ctx)
	if err != nil {
		slog.Warn("[push] permission request failed", "error", err)
		return Result{Reason: "Permission request failed"}
	}
	if perm != notify.PermissionGranted {
		return Result{Reason: "Permission denied"}
	}

	encodedKey, err := m.backend.VAPIDPublicKey(ctx)
	if err != nil {
		slog.Warn("[push] fetching server key failed", "error", err)
		return Result{Reason: "Fetching server key failed"}
	}

	serverKey, err := DecodeServerKey(encodedKey)
	if err != nil {
		slog.Warn("[push] invalid server key", "error", err)
		return Result{Reason: "Invalid server key"}
	}

	sub, err := m.registrar.Register(ctx, serverKey)
	if err != nil {
		slog.Warn("[push] platform registration failed", "error", err)
		return Result{Reason: "Subscription registration failed"}
	}

	if err := m.backend.SaveSubscription(ctx, sub); err != nil {
		// The platform-level subscription may exist at this point, but
		// without backend storage nothing will ever be delivered to it,
		// so the channel is treated as inactive.
		slog.Warn("[push] saving subscription failed", "error", err)
		m.setRecord(Record{Subscription: sub, Active: false})
		return Result{Reason: "Saving subscription failed"}
	}

	m.setRecord(Record{Subscription: sub, Active: true})
	slog.Info("[push] subscription active", "endpoint", sub.Endpoint)
	return Result{Enabled: true}
}

// Active reports whether the background channel is currently active.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Active
}

// Record returns a copy of the tracked subscription state.
func (m *Manager) Record() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record
}

func (m *Manager) setRecord(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = r
}

// DecodeServerKey decodes a base64url VAPID public key into the raw
// uncompressed P-256 point the platform registration expects.
func DecodeServerKey(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("push: decode server key: %w", err)
	}
	if len(raw) != 65 || raw[0] != 0x04 {
		return nil, fmt.Errorf("push: server key is not an uncompressed P-256 point (%d bytes)", len(raw))
	}
	return raw, nil
}
