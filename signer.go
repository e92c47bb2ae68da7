package breadbox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
)

// SecretKeyLength is the recommended secret key size: the HMAC-SHA512 digest
// length. Shorter configured keys are accepted but weaken the signatures.
const SecretKeyLength = sha512.Size

// Signer produces and verifies HMAC-SHA512 signatures over string payloads.
//
// Payloads are canonicalized by key-sorted form encoding before signing, so
// two maps with the same entries always produce the same signature regardless
// of insertion order. Signatures are URL-safe base64 with padding stripped.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer with the given secret key.
//
// If key is empty, a random key of SecretKeyLength bytes is generated; such
// signatures do not survive a process restart. A non-empty key shorter than
// SecretKeyLength is accepted with a warning.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		key = make([]byte, SecretKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("new signer: generate key: %w", err)
		}
		slog.Info("no secret key configured, generated an ephemeral one",
			"bytes", len(key))
	} else if len(key) < SecretKeyLength {
		slog.Warn("configured secret key is shorter than the digest length",
			"bytes", len(key), "recommended", SecretKeyLength)
	}
	return &Signer{key: key}, nil
}

// Generate signs the payload and returns the encoded signature.
func (s *Signer) Generate(payload map[string]string) string {
	mac := hmac.New(sha512.New, s.key)
	mac.Write([]byte(canonicalize(payload)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the payload. The comparison is
// constant-time to defeat timing attacks.
func (s *Signer) Verify(payload map[string]string, signature string) bool {
	expected := s.Generate(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalize produces a deterministic encoding of the payload.
// url.Values.Encode sorts by key, which is exactly the property Verify needs
// to reproduce what Generate saw.
func canonicalize(payload map[string]string) string {
	values := make(url.Values, len(payload))
	for k, v := range payload {
		values.Set(k, v)
	}
	return values.Encode()
}
