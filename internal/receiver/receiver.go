// Package receiver turns inbound datagrams into delivered messages: trial
// decryption against every known key and pattern, chunk reassembly, content
// deserialization, and the file-subcontent side effect, translated from the
// original source's processor task into a plain method call invoked once per
// datagram taken off the netio receive channel.
package receiver

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pion/logging"

	"github.com/1o0n1/asemic/internal/control"
	"github.com/1o0n1/asemic/internal/message"
	"github.com/1o0n1/asemic/internal/protocol"
	"github.com/1o0n1/asemic/internal/state"
)

// Receiver owns no socket; it is driven by whatever reads datagrams off the
// wire (see internal/netio).
type Receiver struct {
	state      *state.SharedState
	hub        control.Broadcaster
	log        logging.LeveledLogger
	compatMode bool
}

// New constructs a Receiver backed by shared state and a notification sink.
func New(st *state.SharedState, hub control.Broadcaster, loggerFactory logging.LoggerFactory) *Receiver {
	return &Receiver{
		state: st,
		hub:   hub,
		log:   loggerFactory.NewLogger("receiver"),
	}
}

// EnableCompatMode makes trialDecrypt additionally try the deprecated
// XOR+signature envelope (protocol.TryDecodeLegacy) after the AEAD draft
// fails for every key and pattern. Off by default: spec.md §9 treats the
// legacy draft as deprecated and only permits keeping it "documented in the
// external interface as a compatibility flag."
func (r *Receiver) EnableCompatMode() {
	r.compatMode = true
}

// HandleDatagram implements the per-datagram protocol: trial decryption,
// reassembly, delivery or noise classification. sender is the textual
// address the datagram arrived from, used as the reassembly session key and
// the delivered message's sender field.
func (r *Receiver) HandleDatagram(sender string, datagram []byte) {
	stats := r.state.IncrementReceived()
	r.hub.Publish(control.NewStatsUpdate(stats))

	keys := r.state.Keys()

	packet, key, pattern, ok := r.trialDecrypt(datagram, keys)
	if !ok {
		r.hub.Publish(control.NewNoisePacket(sender, len(datagram)))
		return
	}

	chunkData, err := base64.StdEncoding.DecodeString(packet.Data)
	if err != nil {
		r.log.Warnf("chunk from %s carried invalid base64, dropping: %v", sender, err)
		return
	}

	assembled := r.state.InsertChunk(sender, packet.MsgID, packet.ChunkNum, packet.TotalChunks, chunkData)
	if assembled == nil {
		return
	}

	var content message.Content
	if err := json.Unmarshal(assembled, &content); err != nil {
		r.log.Warnf("reassembled message %d from %s did not deserialize, discarding: %v", packet.MsgID, sender, err)
		return
	}

	if content.Kind == message.KindFile {
		content = r.applyFileSideEffect(content)
	}

	delivered := r.state.RecordMessage(content, sender, key, pattern)
	r.hub.Publish(control.NewMessageNotification(delivered))
	r.hub.Publish(control.NewStatsUpdate(r.state.Stats()))
}

// trialDecrypt tries every (pattern, key) combination in the fixed order
// patterns-outer, keys-inner, returning the first success. When compatMode
// is enabled, a second pass retries the same order against the deprecated
// XOR+signature envelope before giving up.
func (r *Receiver) trialDecrypt(datagram []byte, keys []string) (*protocol.AsemicPacket, string, protocol.ObfuscationPattern, bool) {
	for _, pattern := range protocol.Patterns {
		for _, key := range keys {
			derived := protocol.DeriveKey([]byte(key))
			if packet, ok := protocol.TryDecode(datagram, derived, pattern); ok {
				return packet, key, pattern, true
			}
		}
	}

	if r.compatMode {
		for _, pattern := range protocol.Patterns {
			for _, key := range keys {
				if packet, ok := protocol.TryDecodeLegacy(datagram, []byte(key), pattern); ok {
					return packet, key, pattern, true
				}
			}
		}
	}

	return nil, "", 0, false
}

// applyFileSideEffect stores the file body under a fresh id, writes it to
// the downloads directory in the background, and returns content with the
// body replaced by an empty buffer carrying only filename and id.
func (r *Receiver) applyFileSideEffect(content message.Content) message.Content {
	id := r.state.StoreFile(content.File.Filename, content.File.Data)
	data := content.File.Data
	filename := content.File.Filename

	path := r.state.ReserveDownloadPath(filename)
	go func() {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			r.log.Errorf("failed to create downloads directory for %s: %v", filename, err)
			return
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			r.log.Errorf("failed to write received file %s: %v", filename, err)
		}
	}()

	idCopy := id
	return message.Content{
		Kind: message.KindFile,
		File: message.FileContent{Filename: filename, ID: &idCopy},
	}
}
