package chunker

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/1o0n1/asemic/internal/message"
	"github.com/1o0n1/asemic/internal/protocol"
	"github.com/stretchr/testify/require"
)

func TestSplitSmallMessageSingleChunk(t *testing.T) {
	msgID, payloads, err := Split(message.NewText("hello"))
	require.NoError(t, err)
	require.NotZero(t, msgID)
	require.Len(t, payloads, 1)

	packet := decodePayload(t, payloads[0])
	require.Equal(t, msgID, packet.MsgID)
	require.EqualValues(t, 0, packet.ChunkNum)
	require.EqualValues(t, 1, packet.TotalChunks)
}

func TestSplitLargeFileMultipleChunks(t *testing.T) {
	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i)
	}
	_, payloads, err := Split(message.NewFile("x.bin", data))
	require.NoError(t, err)
	require.Greater(t, len(payloads), 1)

	for i, p := range payloads {
		packet := decodePayload(t, p)
		require.EqualValues(t, i, packet.ChunkNum)
		require.EqualValues(t, len(payloads), packet.TotalChunks)
		require.LessOrEqual(t, len(p), protocol.MaxPlaintextBudget)
	}
}

func TestSplitChunksFitPacketBudget(t *testing.T) {
	data := make([]byte, protocol.ChunkSize*3)
	_, payloads, err := Split(message.NewFile("f", data))
	require.NoError(t, err)
	for _, p := range payloads {
		require.LessOrEqual(t, len(p), protocol.MaxPlaintextBudget)
	}
}

func decodePayload(t *testing.T, payload []byte) protocol.AsemicPacket {
	t.Helper()
	require.GreaterOrEqual(t, len(payload), 4)
	jsonLen := binary.BigEndian.Uint32(payload[:4])
	require.LessOrEqual(t, int(4+jsonLen), len(payload))

	var packet protocol.AsemicPacket
	require.NoError(t, json.Unmarshal(payload[4:4+jsonLen], &packet))
	return packet
}
