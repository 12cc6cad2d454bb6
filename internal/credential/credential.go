// Package credential validates the push signing credential: a P-256 key pair
// and the contact identity presented to push services. Validation happens once
// at startup; the resulting Credential is immutable and shared by reference.
package credential

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration marks a missing or malformed signing credential. Push
// delivery is disabled while it is present.
var ErrConfiguration = errors.New("push credential misconfigured")

const (
	publicKeyLen  = 65
	privateKeyLen = 32
	pointMarker   = 0x04
)

// Values are the raw configuration strings.
type Values struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Credential is a validated signing credential. Keys are held in canonical
// unpadded base64url form.
type Credential struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// FieldError reports which configuration value is invalid.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() []error { return []error{ErrConfiguration, e.Err} }

// Load validates v and returns the credential or an error wrapping
// ErrConfiguration for the first invalid field.
func Load(v Values) (Credential, error) {
	pub, err := parsePublicKey(v.PublicKey)
	if err != nil {
		return Credential{}, &FieldError{Field: "publicKey", Err: err}
	}
	priv, err := parsePrivateKey(v.PrivateKey)
	if err != nil {
		return Credential{}, &FieldError{Field: "privateKey", Err: err}
	}
	subj, err := NormalizeSubject(v.Subject)
	if err != nil {
		return Credential{}, &FieldError{Field: "subject", Err: err}
	}
	return Credential{
		PublicKey:  EncodeKey(pub),
		PrivateKey: EncodeKey(priv),
		Subject:    subj,
	}, nil
}

// NormalizeSubject trims s and prefixes mailto: unless it already carries a
// mailto or https scheme. Push services accept no other scheme.
func NormalizeSubject(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("contact identity is empty")
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http:") {
		return "", fmt.Errorf("contact identity %q must use https or mailto", s)
	}
	for _, scheme := range []string{"mailto:", "https:"} {
		if strings.HasPrefix(lower, scheme) {
			if len(s) == len(scheme) {
				return "", fmt.Errorf("contact identity %q has no value after the scheme", s)
			}
			return s, nil
		}
	}
	return "mailto:" + s, nil
}

// DecodeKey decodes base64url key material, tolerating padding and the
// standard alphabet.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("value is empty")
	}
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not base64url: %w", err)
	}
	return b, nil
}

// EncodeKey is the canonical form: unpadded base64url.
func EncodeKey(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// ParsePoint decodes an uncompressed P-256 point: 65 bytes with a 0x04 prefix.
// The same shape is required of a subscription's p256dh key.
func ParsePoint(s string) ([]byte, error) {
	return parsePublicKey(s)
}

func parsePublicKey(s string) ([]byte, error) {
	b, err := DecodeKey(s)
	if err != nil {
		return nil, err
	}
	if len(b) != publicKeyLen {
		return nil, fmt.Errorf("decodes to %d bytes, want %d", len(b), publicKeyLen)
	}
	if b[0] != pointMarker {
		return nil, fmt.Errorf("first byte is 0x%02x, want 0x04 (uncompressed point)", b[0])
	}
	return b, nil
}

func parsePrivateKey(s string) ([]byte, error) {
	b, err := DecodeKey(s)
	if err != nil {
		return nil, err
	}
	if len(b) != privateKeyLen {
		return nil, fmt.Errorf("decodes to %d bytes, want %d", len(b), privateKeyLen)
	}
	return b, nil
}
