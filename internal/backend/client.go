// Package backend is the HTTP client for the relay's system-of-record API.
// All calls are single request/response with no retries; failures are
// returned to the caller, which logs and moves on.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"plugwatch/internal/device"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Client talks to the backend API. It holds no state beyond the base URL
// and the underlying HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for the given base URL, e.g.
// "http://localhost:5000/api". The timeout applies to every call; zero
// selects a 10s default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetState fetches the authoritative state snapshot.
func (c *Client) GetState(ctx context.Context) (device.State, error) {
	var state device.State
	if err := c.getJSON(ctx, "/state", &state); err != nil {
		return device.State{}, fmt.Errorf("backend: get state: %w", err)
	}
	return state, nil
}

// SetField writes one field's value to the backend.
func (c *Client) SetField(ctx context.Context, field device.Field, value bool) error {
	body, err := json.Marshal(map[string]bool{"value": value})
	if err != nil {
		return fmt.Errorf("backend: encode set body: %w", err)
	}
	if err := c.post(ctx, "/set/"+string(field), body); err != nil {
		return fmt.Errorf("backend: set %s: %w", field, err)
	}
	return nil
}

// ToggleField flips one field on the backend.
func (c *Client) ToggleField(ctx context.Context, field device.Field) error {
	if err := c.post(ctx, "/toggle/"+string(field), nil); err != nil {
		return fmt.Errorf("backend: toggle %s: %w", field, err)
	}
	return nil
}

// VAPIDPublicKey fetches the server's base64url-encoded VAPID public key.
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.getJSON(ctx, "/vapid-public-key", &resp); err != nil {
		return "", fmt.Errorf("backend: get vapid key: %w", err)
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("backend: get vapid key: empty key in response")
	}
	return resp.PublicKey, nil
}

// SaveSubscription registers a push subscription descriptor with the
// backend for storage.
func (c *Client) SaveSubscription(ctx context.Context, sub *webpush.Subscription) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("backend: encode subscription: %w", err)
	}
	if err := c.post(ctx, "/subscribe", body); err != nil {
		return fmt.Errorf("backend: subscribe: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
