package auth

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

const digestSize = 16

var (
	// ErrMissingKey is returned when no signing key is configured.
	ErrMissingKey = errors.New("signed key is not configured")
	// ErrKeyTooLong is returned for keys longer than blake2b accepts.
	ErrKeyTooLong = errors.New("signed key is longer than 64 bytes")
)

// Digester pseudonymizes identity fields with a keyed one-way hash.
type Digester struct {
	key []byte
}

// NewDigester builds a Digester. The key must be at most 64 bytes.
func NewDigester(key string) (*Digester, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) > blake2b.Size {
		return nil, ErrKeyTooLong
	}
	return &Digester{key: []byte(key)}, nil
}

// Digest returns the hex encoded blake2b-128 of word.
func (d *Digester) Digest(word string) string {
	h, err := blake2b.New(digestSize, d.key)
	if err != nil {
		// key length is validated by NewDigester
		panic(err)
	}
	h.Write([]byte(word))
	return hex.EncodeToString(h.Sum(nil))
}
