package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := DeriveKey([]byte("swordfish"))
	packet := AsemicPacket{MsgID: 42, ChunkNum: 0, TotalChunks: 1, Data: "aGVsbG8="}

	payload, err := buildPlaintext(packet)
	require.NoError(t, err)

	for _, pattern := range Patterns {
		datagram, err := Encode(payload, key, pattern)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(datagram), len(payload)+NonceSize+TagSize)
		require.LessOrEqual(t, len(datagram), MaxPacketSize)

		decoded, ok := TryDecode(datagram, key, pattern)
		require.True(t, ok)
		require.Equal(t, packet, *decoded)
	}
}

func TestTryDecodeWrongKeyIsRejected(t *testing.T) {
	k1 := DeriveKey([]byte("alpha"))
	k2 := DeriveKey([]byte("beta"))
	packet := AsemicPacket{MsgID: 1, ChunkNum: 0, TotalChunks: 1, Data: "eA=="}
	payload, err := buildPlaintext(packet)
	require.NoError(t, err)

	datagram, err := Encode(payload, k1, Starfall)
	require.NoError(t, err)

	_, ok := TryDecode(datagram, k2, Starfall)
	require.False(t, ok)
}

func TestTryDecodeRandomNoiseNeverPanics(t *testing.T) {
	key := DeriveKey([]byte("noise-key"))
	noise := make([]byte, 140)
	_, err := rand.Read(noise)
	require.NoError(t, err)

	for _, pattern := range Patterns {
		_, ok := TryDecode(noise, key, pattern)
		require.False(t, ok)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	key := DeriveKey([]byte("k"))
	huge := make([]byte, MaxPacketSize)
	_, err := Encode(huge, key, Starfall)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestEncodeSizeBoundAcrossManySamples(t *testing.T) {
	key := DeriveKey([]byte("sized"))
	for i := 0; i < 200; i++ {
		payload := make([]byte, i%64)
		datagram, err := Encode(payload, key, Starfall)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(datagram), 40)
		require.LessOrEqual(t, len(datagram), MaxPacketSize)
	}
}

func TestPaddingMasksLengthDifferences(t *testing.T) {
	key := DeriveKey([]byte("pad"))
	short := make([]byte, 10)
	long := make([]byte, 500)

	sawCollision := false
	for i := 0; i < 500 && !sawCollision; i++ {
		a, err := Encode(short, key, Starfall)
		require.NoError(t, err)
		b, err := Encode(long, key, Starfall)
		require.NoError(t, err)
		if len(a) == len(b) {
			sawCollision = true
		}
	}
	require.True(t, sawCollision, "expected some overlap in on-wire sizes between short and long plaintexts")
}

func buildPlaintext(p AsemicPacket) ([]byte, error) {
	j, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(j))
	binary.BigEndian.PutUint32(out[:4], uint32(len(j)))
	copy(out[4:], j)
	return out, nil
}
