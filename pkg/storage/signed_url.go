package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid is returned for malformed or forged download tokens.
	ErrTokenInvalid = errors.New("invalid download token")
	// ErrTokenExpired is returned once a well-formed token is past its expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadGrant is what a download token authorises: one stored object for one subject until ExpiresAt.
type DownloadGrant struct {
	Subject   string    `json:"sub"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"-"`
}

type grantPayload struct {
	Subject string `json:"sub"`
	Key     string `json:"key"`
	Expiry  int64  `json:"exp"`
}

// SignedURLSigner issues and verifies HMAC-SHA256 download tokens of the form payload.signature.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer. A non-positive ttl defaults to one day.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign grants access to key on behalf of subject.
func (s *SignedURLSigner) Sign(subject, key string) (string, time.Time, error) {
	if subject == "" || key == "" {
		return "", time.Time{}, errors.New("subject and key are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	raw, err := json.Marshal(grantPayload{Subject: subject, Key: key, Expiry: expiresAt.Unix()})
	if err != nil {
		return "", time.Time{}, err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + s.signature(payload), expiresAt, nil
}

// Verify checks the signature first and the expiry second.
func (s *SignedURLSigner) Verify(token string) (DownloadGrant, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || payload == "" || signature == "" {
		return DownloadGrant{}, ErrTokenInvalid
	}
	if !hmac.Equal([]byte(signature), []byte(s.signature(payload))) {
		return DownloadGrant{}, ErrTokenInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return DownloadGrant{}, ErrTokenInvalid
	}
	var decoded grantPayload
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Key == "" {
		return DownloadGrant{}, ErrTokenInvalid
	}
	grant := DownloadGrant{Subject: decoded.Subject, Key: decoded.Key, ExpiresAt: time.Unix(decoded.Expiry, 0)}
	if s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
