package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	payloadPrefix  = "QRL1"
	payloadTagSize = 16
)

var ErrMalformedPayload = errors.New("malformed qr payload")

// PayloadCodec encodes QR session ids with a truncated HMAC tag so tampered
// or foreign payloads are rejected before any store lookup.
type PayloadCodec struct {
	key []byte
}

func NewPayloadCodec(secret string) (*PayloadCodec, error) {
	key, err := DeriveKey(secret, "qr-payload", 32)
	if err != nil {
		return nil, err
	}
	return &PayloadCodec{key: key}, nil
}

func (c *PayloadCodec) Encode(sessionID string) string {
	return payloadPrefix + "." + sessionID + "." + base64.RawURLEncoding.EncodeToString(c.tag(sessionID))
}

func (c *PayloadCodec) Decode(payload string) (string, error) {
	parts := strings.Split(strings.TrimSpace(payload), ".")
	if len(parts) != 3 || parts[0] != payloadPrefix {
		return "", ErrMalformedPayload
	}
	sessionID := parts[1]
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", ErrMalformedPayload
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(tag) != payloadTagSize {
		return "", ErrMalformedPayload
	}
	if !hmac.Equal(tag, c.tag(sessionID)) {
		return "", ErrMalformedPayload
	}
	return sessionID, nil
}

func (c *PayloadCodec) tag(sessionID string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(payloadPrefix + "|" + sessionID))
	return mac.Sum(nil)[:payloadTagSize]
}
