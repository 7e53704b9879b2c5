// Package state holds the single shared mutable record described in the
// core design: keys, the received-message log, the per-sender reassembly
// buffers, downloaded files, and running statistics. Every mutation goes
// through SharedState's mutex; callers that need to do CPU-bound work
// between reading and writing (trial decryption) snapshot what they need,
// release the lock, then re-acquire it to commit.
//
// The shape is lifted from a storage backend that keeps everything
// in-memory behind one lock and tracks running counts alongside it; the
// DNS-queue-specific consumer bookkeeping doesn't apply here and is
// replaced by chunk reassembly and file storage.
package state

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/1o0n1/asemic/internal/message"
	"github.com/1o0n1/asemic/internal/protocol"
)

// Stats are the monotonic counters observers poll or subscribe to.
type Stats struct {
	PacketsSent       uint64
	PacketsReceived   uint64
	NoisePacketsSent  uint64
	MessagesDecrypted uint64
}

// DecryptedMessage is a delivered message plus the context it was
// recovered under.
type DecryptedMessage struct {
	ID                uuid.UUID
	Timestamp         time.Time
	Sender            string
	Content           message.Content
	DecryptedWithKey  string
	DecryptedPattern  protocol.ObfuscationPattern
}

// StoredFile is a received file body kept in memory for later download.
type StoredFile struct {
	Filename string
	Data     []byte
}

type sessionKey struct {
	sender string
	msgID  uint32
}

// session is a reassembly buffer for one (sender, msg_id) pair. An entry's
// size never exceeds total, and every stored chunk index is < total.
type session struct {
	chunks    map[uint32][]byte
	total     uint32
	firstSeen time.Time
}

// SharedState is the single mutable record mediated by one mutex.
type SharedState struct {
	mu sync.Mutex

	keys          []string
	messages      []DecryptedMessage
	receivedFiles map[uuid.UUID]StoredFile
	reassembly    map[sessionKey]*session
	filenameUses  map[string]int

	downloadsPath string
	stats         Stats

	log logging.LeveledLogger
}

// New constructs an empty SharedState rooted at downloadsPath.
func New(downloadsPath string, loggerFactory logging.LoggerFactory) *SharedState {
	return &SharedState{
		receivedFiles: make(map[uuid.UUID]StoredFile),
		reassembly:    make(map[sessionKey]*session),
		filenameUses:  make(map[string]int),
		downloadsPath: downloadsPath,
		log:           loggerFactory.NewLogger("state"),
	}
}

// DownloadsPath returns the immutable-after-construction downloads directory.
func (s *SharedState) DownloadsPath() string {
	return s.downloadsPath
}

// AddKey inserts key if not already present, preserving trial-decryption
// order. Reports whether it was newly added.
func (s *SharedState) AddKey(key string) bool {
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k == key {
			return false
		}
	}
	s.keys = append(s.keys, key)
	return true
}

// RemoveKey deletes key if present.
func (s *SharedState) RemoveKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return
		}
	}
}

// Keys returns a snapshot copy of the current key list, safe to trial-decrypt
// against after the lock is released.
func (s *SharedState) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Stats returns a copy of the current counters.
func (s *SharedState) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// IncrementReceived bumps packets_received and returns the updated stats.
func (s *SharedState) IncrementReceived() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.PacketsReceived++
	return s.stats
}

// IncrementSent bumps packets_sent and returns the updated stats.
func (s *SharedState) IncrementSent() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.PacketsSent++
	return s.stats
}

// IncrementNoiseSent bumps noise_packets_sent and returns the updated stats.
func (s *SharedState) IncrementNoiseSent() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.NoisePacketsSent++
	return s.stats
}

// InsertChunk inserts data at chunkNum within the (sender, msgID) session,
// creating the session on first arrival. Re-inserting the same chunk_num is
// silently idempotent. A chunk whose chunkNum is not below the session's
// total is dropped. When the session now holds exactly total chunks, the
// assembled bytes (chunk 0..total-1, in order) are returned and the session
// is removed. Otherwise the return is nil and the session persists.
func (s *SharedState) InsertChunk(sender string, msgID, chunkNum, total uint32, data []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{sender: sender, msgID: msgID}
	sess, ok := s.reassembly[key]
	limit := total
	if ok {
		limit = sess.total
	}
	if chunkNum >= limit {
		s.log.Warnf("dropping out-of-range chunk sender=%s msg_id=%d: chunk %d of %d", sender, msgID, chunkNum, limit)
		return nil
	}
	if !ok {
		sess = &session{chunks: make(map[uint32][]byte), total: total, firstSeen: time.Now()}
		s.reassembly[key] = sess
	}
	sess.chunks[chunkNum] = data

	if uint32(len(sess.chunks)) != total {
		return nil
	}

	assembled := make([]byte, 0, total)
	for i := uint32(0); i < total; i++ {
		chunk, ok := sess.chunks[i]
		if !ok {
			// total_chunks was inconsistent across chunks of this message;
			// the session can never complete. Drop it.
			s.log.Warnf("dropping inconsistent session sender=%s msg_id=%d: missing chunk %d of %d", sender, msgID, i, total)
			delete(s.reassembly, key)
			return nil
		}
		assembled = append(assembled, chunk...)
	}
	delete(s.reassembly, key)
	return assembled
}

// SweepReassembly drops reassembly sessions whose oldest chunk arrived more
// than maxAge ago, bounding the unbounded growth the core design flags as an
// open question. It returns the number of sessions dropped.
func (s *SharedState) SweepReassembly(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	dropped := 0
	for key, sess := range s.reassembly {
		if sess.firstSeen.Before(cutoff) {
			delete(s.reassembly, key)
			dropped++
		}
	}
	return dropped
}

// RecordMessage appends a delivered message to the log and bumps
// messages_decrypted, returning the stamped record.
func (s *SharedState) RecordMessage(content message.Content, sender, key string, pattern protocol.ObfuscationPattern) DecryptedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := DecryptedMessage{
		ID:               uuid.New(),
		Timestamp:        time.Now().UTC(),
		Sender:           sender,
		Content:          content,
		DecryptedWithKey: key,
		DecryptedPattern: pattern,
	}
	s.messages = append(s.messages, msg)
	s.stats.MessagesDecrypted++
	return msg
}

// Messages returns a snapshot copy of the delivered-message log.
func (s *SharedState) Messages() []DecryptedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DecryptedMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// StoreFile records a received file body under a freshly minted id and
// returns it.
func (s *SharedState) StoreFile(filename string, data []byte) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.receivedFiles[id] = StoredFile{Filename: filename, Data: data}
	return id
}

// LookupFile returns the stored (filename, bytes) for id, if present.
func (s *SharedState) LookupFile(id uuid.UUID) (StoredFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.receivedFiles[id]
	return f, ok
}

// ReserveDownloadPath sanitizes filename and returns a path joined onto the
// downloads directory: path separators and ".." segments are stripped, and a
// name reserved before is disambiguated with a "-N" suffix, N counting the
// earlier reservations of that sanitized name. Files already on disk and
// names that themselves end in such a suffix are not checked, so those can
// still coincide with a returned path.
func (s *SharedState) ReserveDownloadPath(filename string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	safe := sanitizeFilename(filename)
	uses := s.filenameUses[safe]
	s.filenameUses[safe] = uses + 1

	name := safe
	if uses > 0 {
		ext := filepath.Ext(safe)
		base := strings.TrimSuffix(safe, ext)
		name = fmt.Sprintf("%s-%d%s", base, uses, ext)
	}
	return filepath.Join(s.downloadsPath, name)
}

// sanitizeFilename strips directory components and rejects traversal
// segments, falling back to a safe placeholder for an empty result.
func sanitizeFilename(filename string) string {
	base := filepath.Base(filepath.Clean(filename))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "download"
	}
	return base
}
