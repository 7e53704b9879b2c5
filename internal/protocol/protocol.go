// Package protocol implements the covert datagram envelope: key derivation,
// the obfuscation-pattern enum, and the AsemicPacket wire chunk header.
package protocol

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

const (
	// MaxPacketSize bounds every on-wire datagram, padding included.
	MaxPacketSize = 1350

	// ChunkSize is the number of raw message bytes placed in each chunk
	// before base64 and JSON overhead. Chosen so the resulting AsemicPacket
	// JSON never exceeds MaxPlaintextBudget: 900 bytes base64-encode to
	// 1200 characters, and the other JSON fields add at most 80 more.
	ChunkSize = 900

	// NonceSize is the XChaCha20-Poly1305 nonce length.
	NonceSize = 24

	// TagSize is the Poly1305 authentication tag length.
	TagSize = 16

	// MaxPlaintextBudget is the AEAD plaintext ceiling after subtracting
	// the nonce, the tag, and the 4-byte length prefix from MaxPacketSize.
	MaxPlaintextBudget = MaxPacketSize - NonceSize - TagSize - 4
)

// Key is the 32-byte symmetric key derived from a user-supplied secret.
type Key [32]byte

// DeriveKey derives the cryptographic key from an arbitrary-length secret.
// Sender and receiver must use this same derivation.
func DeriveKey(secret []byte) Key {
	return Key(sha256.Sum256(secret))
}

// ObfuscationPattern selects the envelope variant a sender claims to use.
type ObfuscationPattern int

const (
	Starfall ObfuscationPattern = iota
	Sunshine
)

// Patterns lists the fixed trial-decryption order required by §4.4: Starfall
// before Sunshine.
var Patterns = [2]ObfuscationPattern{Starfall, Sunshine}

func (p ObfuscationPattern) String() string {
	switch p {
	case Starfall:
		return "Starfall"
	case Sunshine:
		return "Sunshine"
	default:
		return "Unknown"
	}
}

func (p ObfuscationPattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *ObfuscationPattern) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "Starfall":
		*p = Starfall
	case "Sunshine":
		*p = Sunshine
	default:
		return fmt.Errorf("protocol: unknown obfuscation pattern %q", s)
	}
	return nil
}

// AsemicPacket is the structured record carried inside the authenticated
// payload of every datagram. Field names are the stable wire names.
type AsemicPacket struct {
	MsgID       uint32 `json:"msg_id"`
	ChunkNum    uint32 `json:"chunk_num"`
	TotalChunks uint32 `json:"total_chunks"`
	Data        string `json:"data"`
}
