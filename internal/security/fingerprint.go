package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const fingerprintSize = 8

// Fingerprinter derives short, stable, non-reversible tokens for client
// addresses so request logs can correlate callers without storing IPs.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter keyed with key. An empty key is
// replaced by 32 random bytes, which makes fingerprints stable only for the
// lifetime of the process.
func NewFingerprinter(key []byte) (*Fingerprinter, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate fingerprint key: %w", err)
		}
	}
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("fingerprint key longer than %d bytes", blake2b.Size)
	}
	return &Fingerprinter{key: key}, nil
}

// Fingerprint returns a hex-encoded keyed hash of value.
func (f *Fingerprinter) Fingerprint(value string) string {
	if f == nil || value == "" {
		return ""
	}
	h, err := blake2b.New(fingerprintSize, f.key)
	if err != nil {
		// key length is checked in NewFingerprinter
		return ""
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
