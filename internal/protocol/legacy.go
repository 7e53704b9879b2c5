package protocol

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	mrand "math/rand"
)

// legacyStarfallSigSize is the truncated-hash signature length used by the
// deprecated Starfall draft.
const legacyStarfallSigSize = 4

// legacyMagicKey is the fixed header the deprecated Sunshine draft prepends
// to every datagram. A fixed, key-independent marker on the wire is exactly
// what breaks indistinguishability — see SPEC_FULL.md's note on why this
// path is deprecated.
var legacyMagicKey = [8]byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFE, 0xED, 0xCA, 0xFE}

// legacyXORCipher is the weak XOR step of the XOR+signature envelope kept
// only for interoperating with peers that still speak it. Encode/TryDecode
// never use it; it is reached through EncodeLegacy/TryDecodeLegacy, which the
// receiver calls only in compat mode and the transmitter only for Legacy
// commands.
func legacyXORCipher(data, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range data {
		data[i] ^= key[i%len(key)]
	}
}

// EncodeLegacy produces a datagram using the deprecated XOR+signature
// envelope. Retained for CompatMode interoperability only; new senders
// should always use Encode.
func EncodeLegacy(payload []byte, rawKey []byte, pattern ObfuscationPattern) ([]byte, error) {
	encrypted := make([]byte, len(payload))
	copy(encrypted, payload)
	legacyXORCipher(encrypted, rawKey)

	var signature []byte
	switch pattern {
	case Starfall:
		h := sha256.New()
		h.Write(rawKey)
		h.Write(encrypted)
		signature = h.Sum(nil)[:legacyStarfallSigSize]
	default: // Sunshine
		signature = legacyMagicKey[:]
	}

	required := len(signature) + len(encrypted)
	if required > MaxPacketSize {
		return nil, ErrPayloadTooLarge
	}

	finalSize := required + mrand.Intn(MaxPacketSize-required+1)
	out := make([]byte, finalSize)
	copy(out, signature)
	copy(out[len(signature):], encrypted)
	if finalSize > required {
		if _, err := rand.Read(out[required:]); err != nil {
			return nil, ErrCryptoFail
		}
	}
	return out, nil
}

// TryDecodeLegacy attempts to recover an AsemicPacket using the deprecated
// XOR+signature envelope.
func TryDecodeLegacy(datagram []byte, rawKey []byte, pattern ObfuscationPattern) (*AsemicPacket, bool) {
	var sigSize int
	var body []byte

	switch pattern {
	case Sunshine:
		if len(datagram) < len(legacyMagicKey) {
			return nil, false
		}
		for i, b := range legacyMagicKey {
			if datagram[i] != b {
				return nil, false
			}
		}
		sigSize = len(legacyMagicKey)
		body = datagram[sigSize:]
	default: // Starfall
		if len(datagram) <= legacyStarfallSigSize {
			return nil, false
		}
		sigSize = legacyStarfallSigSize
		body = datagram[sigSize:]
	}

	decrypted := make([]byte, len(body))
	copy(decrypted, body)
	legacyXORCipher(decrypted, rawKey)

	if len(decrypted) < 4 {
		return nil, false
	}
	jsonLen := binary.BigEndian.Uint32(decrypted[:4])
	end := 4 + int(jsonLen)
	if end > len(decrypted) {
		return nil, false
	}

	if pattern == Starfall {
		received := datagram[:sigSize]
		h := sha256.New()
		h.Write(rawKey)
		h.Write(body[:end])
		expected := h.Sum(nil)[:sigSize]
		if string(received) != string(expected) {
			return nil, false
		}
	}

	var packet AsemicPacket
	if err := json.Unmarshal(decrypted[4:end], &packet); err != nil {
		return nil, false
	}
	return &packet, true
}
