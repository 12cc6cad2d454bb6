package credential

import (
	"bytes"
	"crypto/ecdh"
)

// FieldReport is the validity of one configuration value.
type FieldReport struct {
	Valid bool   `json:"valid"`
	Hint  string `json:"hint,omitempty"`
}

// Report is the read-only credential diagnostic. It never carries key
// material.
type Report struct {
	PublicKey      FieldReport `json:"publicKey"`
	PrivateKey     FieldReport `json:"privateKey"`
	Subject        FieldReport `json:"subject"`
	KeyPairMatches bool        `json:"keyPairMatches"`
	Ready          bool        `json:"ready"`
}

const (
	hintPublic  = "set ORDERNOTIFY_PUSH_VAPID_PUBLIC_KEY to the base64url uncompressed P-256 public key (65 bytes, starts with 0x04); run `ordernotify vapid generate`"
	hintPrivate = "set ORDERNOTIFY_PUSH_VAPID_PRIVATE_KEY to the base64url P-256 private scalar (32 bytes)"
	hintSubject = "set ORDERNOTIFY_PUSH_VAPID_SUBJECT to a contact address, e.g. ops@example.com or https://example.com"
	hintPair    = "the private key does not derive the configured public key; regenerate both together"
)

// Diagnose inspects v field by field.
func Diagnose(v Values) Report {
	var r Report
	pub, err := parsePublicKey(v.PublicKey)
	r.PublicKey = fieldReport(err, hintPublic)
	priv, err := parsePrivateKey(v.PrivateKey)
	r.PrivateKey = fieldReport(err, hintPrivate)
	_, err = NormalizeSubject(v.Subject)
	r.Subject = fieldReport(err, hintSubject)

	if r.PublicKey.Valid && r.PrivateKey.Valid {
		r.KeyPairMatches = pairMatches(priv, pub)
		if !r.KeyPairMatches {
			r.PrivateKey.Hint = hintPair
		}
	}
	r.Ready = r.PublicKey.Valid && r.PrivateKey.Valid && r.Subject.Valid && r.KeyPairMatches
	return r
}

func fieldReport(err error, hint string) FieldReport {
	if err == nil {
		return FieldReport{Valid: true}
	}
	return FieldReport{Hint: err.Error() + "; " + hint}
}

func pairMatches(priv, pub []byte) bool {
	k, err := ecdh.P256().NewPrivateKey(priv)
	if err != nil {
		return false
	}
	return bytes.Equal(k.PublicKey().Bytes(), pub)
}
