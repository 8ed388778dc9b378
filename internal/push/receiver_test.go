package push

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReceiverDecryptsDelivery(t *testing.T) {
	keys, err := GenerateSubscriberKeys()
	if err != nil {
		t.Fatalf("GenerateSubscriberKeys() error = %v", err)
	}

	var gotTitle, gotBody string
	receiver := NewReceiver(keys, func(title, body string) {
		gotTitle, gotBody = title, body
	})

	message := encryptForSubscriber(t, keys, []byte(`{"title": "Status", "body": "Turned OFF"}`), 0)
	req := httptest.NewRequest(http.MethodPost, "/push", bytes.NewReader(message))
	w := httptest.NewRecorder()

	receiver.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotTitle != "Status" || gotBody != "Turned OFF" {
		t.Errorf("delivered (%q, %q), want (Status, Turned OFF)", gotTitle, gotBody)
	}
}

func TestReceiverPlaintextFallback(t *testing.T) {
	keys, err := GenerateSubscriberKeys()
	if err != nil {
		t.Fatalf("GenerateSubscriberKeys() error = %v", err)
	}

	var gotBody string
	receiver := NewReceiver(keys, func(_, body string) { gotBody = body })

	req := httptest.NewRequest(http.MethodPost, "/push", bytes.NewReader([]byte("relay tripped")))
	w := httptest.NewRecorder()

	receiver.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotBody != "relay tripped" {
		t.Errorf("body = %q, want the literal payload", gotBody)
	}
}

func TestReceiverRejectsGet(t *testing.T) {
	keys, err := GenerateSubscriberKeys()
	if err != nil {
		t.Fatalf("GenerateSubscriberKeys() error = %v", err)
	}

	called := false
	receiver := NewReceiver(keys, func(_, _ string) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/push", nil)
	w := httptest.NewRecorder()

	receiver.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if called {
		t.Error("handler should not fire for GET")
	}
}

func TestLocalRegistrar(t *testing.T) {
	keys, err := GenerateSubscriberKeys()
	if err != nil {
		t.Fatalf("GenerateSubscriberKeys() error = %v", err)
	}

	registrar := NewLocalRegistrar(keys, "http://127.0.0.1:8571/push")
	serverKey, err := DecodeServerKey(testServerKey)
	if err != nil {
		t.Fatalf("DecodeServerKey() error = %v", err)
	}

	sub, err := registrar.Register(context.Background(), serverKey)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if sub.Endpoint != "http://127.0.0.1:8571/push" {
		t.Errorf("endpoint = %q", sub.Endpoint)
	}
	if sub.Keys.P256dh != keys.P256dh() || sub.Keys.Auth != keys.Auth() {
		t.Error("subscription keys do not match the subscriber key material")
	}
}
