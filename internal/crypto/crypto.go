// Package crypto seals agent protocol frames with NaCl secretbox.
//
// The 32-byte key is derived from the shared token with HKDF-SHA256, so
// both ends only need to agree on the token. A sealed frame is a random
// 24-byte nonce followed by the secretbox output:
//
//	[ 24-byte nonce ][ ciphertext ]
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var hkdfInfo = []byte("clipkeep-agent-v1")

var (
	// ErrShort is returned for input too small to hold a nonce.
	ErrShort = errors.New("ciphertext too short")
	// ErrOpen is returned when authentication fails, usually because the
	// two ends were configured with different tokens.
	ErrOpen = errors.New("decryption failed (wrong token?)")
)

// Key is a secretbox key.
type Key [32]byte

// DeriveKey derives the key for token. An empty token yields a nil key and
// no error: the channel then runs unencrypted.
func DeriveKey(token string) (*Key, error) {
	if token == "" {
		return nil, nil
	}
	var k Key
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(token), nil, hkdfInfo), k[:]); err != nil {
		return nil, errors.Wrap(err, "key derivation")
	}
	return &k, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (k *Key) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, (*[32]byte)(k)), nil
}

// Open authenticates and decrypts a sealed frame.
func (k *Key) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrShort
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, (*[32]byte)(k))
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
