package push

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// aes128gcm content-coding header: salt (16) | record size (4) | key id
// length (1) | key id. For web push the key id is the sender's
// uncompressed P-256 public key (RFC 8291 §4).
const (
	saltLen      = 16
	headerMinLen = saltLen + 4 + 1
	senderKeyLen = 65
)

// Decrypt opens an RFC 8291 (aes128gcm) encrypted push message body and
// returns the plaintext payload. Web push messages are a single record.
func (k *SubscriberKeys) Decrypt(body []byte) ([]byte, error) {
	if len(body) < headerMinLen {
		return nil, fmt.Errorf("push: message too short for aes128gcm header (%d bytes)", len(body))
	}

	salt := body[:saltLen]
	recordSize := binary.BigEndian.Uint32(body[saltLen : saltLen+4])
	idLen := int(body[saltLen+4])
	if idLen != senderKeyLen {
		return nil, fmt.Errorf("push: key id length %d, want %d (sender public key)", idLen, senderKeyLen)
	}
	if len(body) < headerMinLen+idLen {
		return nil, fmt.Errorf("push: truncated key id")
	}

	senderKeyBytes := body[headerMinLen : headerMinLen+idLen]
	ciphertext := body[headerMinLen+idLen:]
	if uint32(len(ciphertext)) > recordSize {
		return nil, fmt.Errorf("push: message exceeds its record size (%d > %d)", len(ciphertext), recordSize)
	}

	senderKey, err := ecdh.P256().NewPublicKey(senderKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("push: parse sender public key: %w", err)
	}

	shared, err := k.priv.ECDH(senderKey)
	if err != nil {
		return nil, fmt.Errorf("push: ECDH: %w", err)
	}

	// RFC 8291 §3.3-3.4: combine the ECDH secret with the auth secret,
	// then derive the content key and nonce from the salt.
	keyInfo := append([]byte("WebPush: info\x00"), k.priv.PublicKey().Bytes()...)
	keyInfo = append(keyInfo, senderKeyBytes...)
	ikm, err := readHKDF(shared, k.auth, keyInfo, 32)
	if err != nil {
		return nil, err
	}

	cek, err := readHKDF(ikm, salt, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	nonce, err := readHKDF(ikm, salt, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("push: aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("push: gcm: %w", err)
	}

	record, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("push: decrypt: %w", err)
	}

	return stripPadding(record)
}

// stripPadding removes the RFC 8188 record padding: trailing zeros after a
// delimiter byte, 0x02 for the final (here, only) record.
func stripPadding(record []byte) ([]byte, error) {
	i := len(record) - 1
	for i >= 0 && record[i] == 0x00 {
		i--
	}
	if i < 0 {
		return nil, fmt.Errorf("push: record is all padding")
	}
	if record[i] != 0x02 && record[i] != 0x01 {
		return nil, fmt.Errorf("push: bad record delimiter 0x%02x", record[i])
	}
	return record[:i], nil
}

func readHKDF(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("push: hkdf: %w", err)
	}
	return out, nil
}
