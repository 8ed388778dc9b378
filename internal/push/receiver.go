package push

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"plugwatch/internal/notify"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// maxPayloadBytes bounds a delivered push message. Web push payloads are
// capped at 4KB; anything bigger is not ours.
const maxPayloadBytes = 16 * 1024

// Receiver is the local delivery endpoint the backend pushes to. It
// decrypts each POSTed message with the subscriber keys and forwards the
// decoded (title, body) to the handler.
type Receiver struct {
	keys      *SubscriberKeys
	onMessage func(title, body string)
}

// NewReceiver creates a delivery endpoint.
func NewReceiver(keys *SubscriberKeys, onMessage func(title, body string)) *Receiver {
	return &Receiver{keys: keys, onMessage: onMessage}
}

// ServeHTTP implements http.Handler.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	payload := body
	if len(body) > 0 {
		plaintext, err := r.keys.Decrypt(body)
		if err != nil {
			// Not encrypted for us, or sent in the clear by a test
			// client. Fall through with the raw bytes; DecodePayload
			// treats undecodable content as a literal body.
			slog.Warn("[push] payload decryption failed, using raw body", "error", err)
		} else {
			payload = plaintext
		}
	}

	title, msg := notify.DecodePayload(payload)
	slog.Debug("[push] delivery received", "title", title)
	if r.onMessage != nil {
		r.onMessage(title, msg)
	}

	w.WriteHeader(http.StatusCreated)
}

// LocalRegistrar issues subscription descriptors pointing at a Receiver's
// endpoint, playing the delivery platform's role in the handshake.
type LocalRegistrar struct {
	keys     *SubscriberKeys
	endpoint string
}

// NewLocalRegistrar creates a registrar for the given keys and public
// endpoint URL.
func NewLocalRegistrar(keys *SubscriberKeys, endpoint string) *LocalRegistrar {
	return &LocalRegistrar{keys: keys, endpoint: endpoint}
}

// Register binds the subscription to the server key and returns its
// descriptor. The key was validated upstream; registration itself cannot
// fail locally, matching a platform that accepts any well-formed key.
func (l *LocalRegistrar) Register(_ context.Context, _ []byte) (*webpush.Subscription, error) {
	return &webpush.Subscription{
		Endpoint: l.endpoint,
		Keys: webpush.Keys{
			P256dh: l.keys.P256dh(),
			Auth:   l.keys.Auth(),
		},
	}, nil
}
