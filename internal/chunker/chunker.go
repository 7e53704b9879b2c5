// Package chunker splits a serialized message into fixed-size transport
// chunks and builds the plaintext payload handed to the packet codec.
//
// The shape mirrors a three-step split -> wrap -> serialize pipeline: sample
// an identifier, slice the data, and attach a self-describing header to
// every slice so the receiver can reassemble out of order.
package chunker

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/1o0n1/asemic/internal/message"
	"github.com/1o0n1/asemic/internal/protocol"
)

// Split serializes content, samples a random 32-bit message id, and returns
// one plaintext payload per chunk, ready for protocol.Encode. Each payload
// is be_u32(len(json)) || json, where json is the marshaled AsemicPacket.
func Split(content message.Content) (msgID uint32, payloads [][]byte, err error) {
	data, err := json.Marshal(content)
	if err != nil {
		return 0, nil, fmt.Errorf("chunker: serializing content: %w", err)
	}

	msgID, err = randomUint32()
	if err != nil {
		return 0, nil, fmt.Errorf("chunker: sampling message id: %w", err)
	}

	total := int(math.Ceil(float64(len(data)) / float64(protocol.ChunkSize)))
	if total == 0 {
		total = 1 // an empty message still gets one (empty) chunk
	}
	if total > math.MaxUint32 {
		return 0, nil, fmt.Errorf("chunker: message requires %d chunks, too many", total)
	}

	payloads = make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * protocol.ChunkSize
		end := start + protocol.ChunkSize
		if end > len(data) {
			end = len(data)
		}

		packet := protocol.AsemicPacket{
			MsgID:       msgID,
			ChunkNum:    uint32(i),
			TotalChunks: uint32(total),
			Data:        base64.StdEncoding.EncodeToString(data[start:end]),
		}

		j, err := json.Marshal(packet)
		if err != nil {
			return 0, nil, fmt.Errorf("chunker: serializing chunk %d: %w", i, err)
		}
		if len(j) > protocol.MaxPlaintextBudget {
			return 0, nil, fmt.Errorf("chunker: chunk %d json (%d bytes) exceeds plaintext budget %d", i, len(j), protocol.MaxPlaintextBudget)
		}

		payload := make([]byte, 4+len(j))
		binary.BigEndian.PutUint32(payload[:4], uint32(len(j)))
		copy(payload[4:], j)
		payloads = append(payloads, payload)
	}

	return msgID, payloads, nil
}

func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
