// Package qrtoken signs and verifies the compact JSON payloads embedded in
// check-in QR codes. The codec proves authenticity and integrity only; token
// freshness and business-state validity (used ticket, cancelled registration)
// are the callers' concern.
package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"campus-events/internal/apperr"
)

var (
	ErrMalformed    = apperr.Validation("malformed QR payload")
	ErrBadSignature = apperr.Validation("QR payload signature mismatch")
)

// Claims binds a scannable token to its owning row. Field order is the wire
// contract: the signature is computed over the JSON serialization of these
// fields in exactly this key order, and scanner clients depend on it.
type Claims struct {
	RegistrationID string `json:"registrationId,omitempty"`
	TicketID       string `json:"ticketId,omitempty"`
	EventID        string `json:"eventId"`
	UserID         string `json:"userId"`
	// Timestamp is the mint instant in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

func (c Claims) IssuedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// IssuedWithin reports whether the token was minted no longer than window ago.
func (c Claims) IssuedWithin(window time.Duration, now time.Time) bool {
	return !c.IssuedAt().Before(now.Add(-window))
}

type signedPayload struct {
	Claims
	Signature string `json:"signature"`
}

// Token is a minted QR code: the signed JSON payload and its rendering as a
// PNG data URL. Only the image is persisted; the payload travels inside it.
type Token struct {
	Payload string
	Image   string
}

type Codec struct {
	secret []byte
}

// New builds a codec around the shared signing secret. An empty secret is a
// startup-class configuration error: minting unsigned codes is never an option.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, apperr.Config("QR signing secret is not configured")
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Codec{secret: hashed[:]}, nil
}

func (c *Codec) sign(claims Claims) (string, error) {
	canonical, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("serialize claims: %w", err)
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Mint signs the claims and renders them as a scannable image.
func (c *Codec) Mint(claims Claims) (*Token, error) {
	sig, err := c.sign(claims)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(signedPayload{Claims: claims, Signature: sig})
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render QR image: %w", err)
	}

	return &Token{
		Payload: string(payload),
		Image:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// Verify parses a scanned payload and checks its signature. It returns
// ErrMalformed on unparseable input and ErrBadSignature when the recomputed
// HMAC does not match, using a constant-time comparison.
func (c *Codec) Verify(payload string) (Claims, error) {
	var signed signedPayload
	if err := json.Unmarshal([]byte(payload), &signed); err != nil {
		return Claims{}, ErrMalformed.Wrap(err)
	}

	expected, err := c.sign(signed.Claims)
	if err != nil {
		return Claims{}, err
	}
	if !hmac.Equal([]byte(expected), []byte(signed.Signature)) {
		return Claims{}, ErrBadSignature
	}
	return signed.Claims, nil
}
