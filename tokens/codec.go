// Package tokens implements the compact signed tokens carried in check-in
// links and member invites: base64url(header).base64url(claims).base64url(HMAC-SHA256).
// The algorithm is fixed; the header is informational and never consulted
// when choosing how to verify.
package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingSecret     = errors.New("tokens: signing secret is not configured")
	ErrInvalidFormat     = errors.New("tokens: invalid token format")
	ErrSignatureMismatch = errors.New("tokens: signature mismatch")
	ErrMalformedPayload  = errors.New("tokens: malformed payload")
	ErrExpired           = errors.New("tokens: token expired")
)

// Claims is the payload of every token this service issues. Check-in tokens
// carry the service identifiers and nonce; invite tokens carry only the
// tenant and Type.
type Claims struct {
	TenantID    string `json:"tenantId"`
	ServiceDate string `json:"serviceDate,omitempty"`
	ServiceType string `json:"serviceType,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Type        string `json:"type,omitempty"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp,omitempty"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

var encodedHeader = mustEncodeHeader()

func mustEncodeHeader() string {
	b, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Sign serializes claims and signs them with secret.
func Sign(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("tokens: failed to marshal claims: %w", err)
	}

	signingInput := encodedHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	signature := base64.RawURLEncoding.EncodeToString(sign(signingInput, secret))

	return signingInput + "." + signature, nil
}

// Verify checks the token's signature and expiry at now and returns its
// claims. When the signature is valid but the token has expired the decoded
// claims are returned together with ErrExpired, so callers can act on the
// session the token names.
func Verify(token, secret string, now time.Time) (*Claims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidFormat
	}

	given, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	expected := sign(parts[0]+"."+parts[1], secret)
	if len(given) != len(expected) {
		return nil, ErrSignatureMismatch
	}
	if subtle.ConstantTimeCompare(given, expected) != 1 {
		return nil, ErrSignatureMismatch
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedPayload
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrMalformedPayload
	}

	if claims.ExpiresAt != 0 && !now.Before(time.Unix(claims.ExpiresAt, 0)) {
		return &claims, ErrExpired
	}

	return &claims, nil
}

func sign(input, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(input))
	return mac.Sum(nil)
}
