package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Signer produces the RSA-PSS request signatures Kalshi's API key scheme
// requires. The signed text is timestamp‖method‖path, where path includes
// the full API prefix (e.g. "/trade-api/v2/events").
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner loads the RSA private key from a PEM file. Both PKCS#1 and
// PKCS#8 encodings are accepted.
func NewSigner(keyID, pemPath string) (*Signer, error) {
	data, err := os.ReadFile(pemPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := parsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", pemPath, err)
	}
	return &Signer{keyID: keyID, key: key}, nil
}

// NewSignerFromKey wraps an already-parsed key. Used by tests.
func NewSignerFromKey(keyID string, key *rsa.PrivateKey) *Signer {
	return &Signer{keyID: keyID, key: key}
}

func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, want *rsa.PrivateKey", parsed)
	}
	return key, nil
}

// Sign returns the base64 RSA-PSS SHA-256 signature of ts+method+path.
func (s *Signer) Sign(ts, method, path string) (string, error) {
	digest := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicKey exposes the key's public half for signature verification in
// tests.
func (s *Signer) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// Headers returns the three auth headers for a request. path must be the
// full URL path including the API prefix; the timestamp is epoch millis.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := s.Sign(ts, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       s.keyID,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}
