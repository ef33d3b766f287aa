// Package auth computes the exchange's RSA-PSS authentication headers.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Header names attached to every signed request.
const (
	HeaderKey       = "ACCESS-KEY"
	HeaderSignature = "ACCESS-SIGNATURE"
	HeaderTimestamp = "ACCESS-TIMESTAMP"
)

// Signer produces single-use authentication headers for REST requests and
// the WebSocket handshake. Signatures embed a millisecond timestamp, so a
// signer output must never be cached or reused across attempts.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewSigner parses a PEM-encoded RSA private key (PKCS#8 or PKCS#1) and
// returns a signer for the given key identifier.
func NewSigner(keyID string, pemKey []byte) (*Signer, error) {
	if keyID == "" {
		return nil, errors.New("auth: key id is required")
	}

	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("auth: failed to decode PEM block")
	}

	var rsaKey *rsa.PrivateKey
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		var ok bool
		rsaKey, ok = key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("auth: private key is not RSA")
		}
	} else if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		rsaKey = key
	} else {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}

	return &Signer{
		keyID: keyID,
		key:   rsaKey,
		now:   time.Now,
	}, nil
}

// LoadSigner reads a PEM private key from disk and returns a signer.
func LoadSigner(keyID, keyPath string) (*Signer, error) {
	pemData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: read key file: %w", err)
	}
	return NewSigner(keyID, pemData)
}

// KeyID returns the public key identifier.
func (s *Signer) KeyID() string {
	return s.keyID
}

// Headers signs timestamp+method+path with PSS (SHA-256, max salt length)
// and returns the three authentication headers. Every call produces a fresh
// timestamp and signature.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)

	sig, err := s.sign(ts + method + path)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		HeaderKey:       s.keyID,
		HeaderTimestamp: ts,
		HeaderSignature: sig,
	}, nil
}

func (s *Signer) sign(message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature against timestamp+method+path using the
// signer's public key. Exposed for tests and diagnostics.
func (s *Signer) Verify(timestamp, method, path, signature string) error {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("auth: decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(timestamp + method + path))
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, digest[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
}
