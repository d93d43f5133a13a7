// Package auth mints and verifies the bearer tokens used to
// authenticate a session at connect time (spec §6.1, §6.3). No JWT or
// signing library appears anywhere in the retrieved corpus, so this is
// a minimal HMAC-SHA256 scheme built on the standard library rather
// than an unfounded dependency: base64url(json{userId, iat}) "."
// base64url(hmac-sha256(secret, payload)).
package auth

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
	ErrAuthRequired = errors.New("auth: token required")
	ErrAuthInvalid  = errors.New("auth: token invalid")
)

// claims is the payload signed into a token.
type claims struct {
	UserID   string `json:"userId"`
	IssuedAt int64  `json:"iat"`
}

// Signer mints and verifies bearer tokens with a shared secret.
// Demo-grade, as spec §6.2 notes: production deployments substitute
// real auth.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign mints a token binding userID to this signer's secret.
func (s *Signer) Sign(userID string) (string, error) {
	payload, err := json.Marshal(claims{UserID: userID, IssuedAt: time.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}

	payloadPart := base64.RawURLEncoding.EncodeToString(payload)
	sig := s.sign(payloadPart)
	sigPart := base64.RawURLEncoding.EncodeToString(sig)

	return payloadPart + "." + sigPart, nil
}

// Verify extracts and authenticates the userId carried by token.
func (s *Signer) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrAuthRequired
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", ErrAuthInvalid
	}

	payloadPart, sigPart := parts[0], parts[1]

	wantSig := s.sign(payloadPart)

	gotSig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return "", ErrAuthInvalid
	}

	if subtle.ConstantTimeCompare(wantSig, gotSig) != 1 {
		return "", ErrAuthInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return "", ErrAuthInvalid
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", ErrAuthInvalid
	}

	if c.UserID == "" {
		return "", ErrAuthInvalid
	}

	return c.UserID, nil
}

func (s *Signer) sign(payloadPart string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payloadPart))

	return mac.Sum(nil)
}
