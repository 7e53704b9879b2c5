package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	mrand "math/rand"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encode transforms a plaintext chunk payload into an opaque datagram under
// key and pattern. The pattern parameter is accepted for API stability
// (spec open question, decided in favor of a uniform AEAD envelope — see
// SPEC_FULL.md) and does not otherwise affect the wire shape.
func Encode(payload []byte, key Key, pattern ObfuscationPattern) ([]byte, error) {
	required := len(payload) + NonceSize + TagSize
	if required > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds budget of %d", ErrPayloadTooLarge, required, MaxPacketSize)
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}

	// Pad the plaintext with random bytes before sealing so the on-wire
	// size carries no information about the real payload length.
	targetSize := required + mrand.Intn(MaxPacketSize-required+1)
	paddedLen := targetSize - NonceSize - TagSize
	padded := make([]byte, paddedLen)
	copy(padded, payload)
	if _, err := rand.Read(padded[len(payload):]); err != nil {
		return nil, fmt.Errorf("%w: padding: %v", ErrCryptoFail, err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrCryptoFail, err)
	}

	sealed := aead.Seal(nil, nonce, padded, nil)

	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// TryDecode attempts to recover an AsemicPacket from a raw datagram under a
// candidate key and pattern. It never returns an error: AEAD failure and
// structural mismatch are both ordinary outcomes for wrong-key or noise
// input, reported as (nil, false).
func TryDecode(datagram []byte, key Key, pattern ObfuscationPattern) (*AsemicPacket, bool) {
	if len(datagram) < NonceSize+TagSize {
		return nil, false
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, false
	}

	nonce := datagram[:NonceSize]
	ciphertext := datagram[NonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false
	}

	if len(plaintext) < 4 {
		return nil, false
	}
	jsonLen := binary.BigEndian.Uint32(plaintext[:4])
	if uint64(4)+uint64(jsonLen) > uint64(len(plaintext)) {
		return nil, false
	}

	var packet AsemicPacket
	if err := json.Unmarshal(plaintext[4:4+jsonLen], &packet); err != nil {
		return nil, false
	}
	return &packet, true
}
