package push

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// SubscriberKeys are the receiving side's key material: a P-256 ECDH
// keypair and the 16-byte auth secret, the pair a push service would mint
// for a subscription. The backend encrypts payloads against these.
type SubscriberKeys struct {
	priv *ecdh.PrivateKey
	auth []byte
}

// GenerateSubscriberKeys creates fresh subscriber key material.
func GenerateSubscriberKeys() (*SubscriberKeys, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("push: generate keypair: %w", err)
	}

	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return nil, fmt.Errorf("push: generate auth secret: %w", err)
	}

	return &SubscriberKeys{priv: priv, auth: auth}, nil
}

// P256dh returns the base64url public key for the subscription descriptor.
func (k *SubscriberKeys) P256dh() string {
	return base64.RawURLEncoding.EncodeToString(k.priv.PublicKey().Bytes())
}

// Auth returns the base64url auth secret for the subscription descriptor.
func (k *SubscriberKeys) Auth() string {
	return base64.RawURLEncoding.EncodeToString(k.auth)
}
