// Package channel derives the shared symmetric secret that authenticates
// traffic between a number's owner and anyone holding one of its pins.
package channel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SecretSize is the fixed derived-secret length in bytes.
const SecretSize = 32

// ShortKeyLen is the number of leading hex chars of a peer public key used
// to discriminate lobby sub-threads.
const ShortKeyLen = 16

// derivation context string; changing it re-keys every channel.
var hkdfInfo = []byte("zerozero/channel/v1")

// Derive computes the channel secret for (number, pin). Both peers know
// the number; the pin is the only datum exchanged out of band, so either
// side can recompute the secret without a handshake round-trip. The
// function is pure: same inputs always yield the same 32 bytes, and
// changing either input yields an unrelated secret.
//
// The secret is sensitive; callers must never log or transmit it.
func Derive(myNumber, pinValue string) [SecretSize]byte {
	var out [SecretSize]byte
	r := hkdf.New(sha256.New, []byte(myNumber), []byte(pinValue), hkdfInfo)
	if _, err := io.ReadFull(r, out[:]); err != nil {
		// HKDF-SHA256 can produce far more than 32 bytes; a short read
		// means a broken primitive, not a recoverable condition.
		panic(err)
	}
	return out
}

// topic derivation context; kept distinct from the key schedule so the
// rendezvous identifier cannot be turned back into the secret.
var topicInfo = []byte("zerozero/topic/v1")

// Topic maps the channel secret to the rendezvous identifier announced
// to the transport. The mapping is one-way: relays and discovery
// infrastructure see the topic but learn nothing about the secret, so
// they can match peers without being able to read their traffic.
func Topic(secret [SecretSize]byte) [SecretSize]byte {
	h := sha256.New()
	h.Write(topicInfo)
	h.Write(secret[:])
	var out [SecretSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

func aead(secret [SecretSize]byte) cipher.AEAD {
	block, err := aes.NewCipher(secret[:])
	if err != nil {
		panic(err)
	}
	g, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return g
}

// Seal encrypts a wire payload under the channel secret and returns
// nonce||ciphertext. Everything that leaves the process on a channel
// goes through Seal, so transports and relays only ever carry
// ciphertext.
func Seal(secret [SecretSize]byte, plaintext []byte) []byte {
	g := aead(secret)
	nonce := make([]byte, g.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		panic(err)
	}
	return g.Seal(nonce, nonce, plaintext, nil)
}

// Open reverses Seal. Payloads sealed under a different secret, or
// tampered with in flight, are rejected.
func Open(secret [SecretSize]byte, sealed []byte) ([]byte, error) {
	g := aead(secret)
	ns := g.NonceSize()
	if len(sealed) < ns {
		return nil, errors.New("sealed payload too short")
	}
	plain, err := g.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("unseal: %w", err)
	}
	return plain, nil
}

// ShortKey reduces a peer transport public key (hex) to the stable short
// identifier used in lobby sub-thread keys.
func ShortKey(pubKeyHex string) string {
	if len(pubKeyHex) <= ShortKeyLen {
		return pubKeyHex
	}
	return pubKeyHex[:ShortKeyLen]
}
