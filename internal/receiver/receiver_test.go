package receiver

import (
	"sync"
	"testing"

	"github.com/pion/logging"
	"github.com/stretchr/testify/require"

	"github.com/1o0n1/asemic/internal/chunker"
	"github.com/1o0n1/asemic/internal/control"
	"github.com/1o0n1/asemic/internal/message"
	"github.com/1o0n1/asemic/internal/protocol"
	"github.com/1o0n1/asemic/internal/state"
)

type fakeBroadcaster struct {
	mu            sync.Mutex
	notifications []control.Notification
}

func (f *fakeBroadcaster) Publish(n control.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

func (f *fakeBroadcaster) of(kind control.Kind) []control.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []control.Notification
	for _, n := range f.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func sendChunks(t *testing.T, r *Receiver, sender, keyStr string, pattern protocol.ObfuscationPattern, content message.Content) {
	t.Helper()
	_, payloads, err := chunker.Split(content)
	require.NoError(t, err)
	key := protocol.DeriveKey([]byte(keyStr))
	for _, payload := range payloads {
		datagram, err := protocol.Encode(payload, key, pattern)
		require.NoError(t, err)
		r.HandleDatagram(sender, datagram)
	}
}

func sendLegacyChunks(t *testing.T, r *Receiver, sender, keyStr string, pattern protocol.ObfuscationPattern, content message.Content) {
	t.Helper()
	_, payloads, err := chunker.Split(content)
	require.NoError(t, err)
	for _, payload := range payloads {
		datagram, err := protocol.EncodeLegacy(payload, []byte(keyStr), pattern)
		require.NoError(t, err)
		r.HandleDatagram(sender, datagram)
	}
}

func TestHandleDatagramDeliversTextMessage(t *testing.T) {
	st := state.New(t.TempDir(), logging.NewDefaultLoggerFactory())
	st.AddKey("swordfish")
	hub := &fakeBroadcaster{}
	r := New(st, hub, logging.NewDefaultLoggerFactory())

	sendChunks(t, r, "1.2.3.4:9000", "swordfish", protocol.Starfall, message.NewText("hello there"))

	delivered := hub.of(control.KindNewMessage)
	require.Len(t, delivered, 1)
	require.Equal(t, "hello there", delivered[0].NewMessage.Content.Text)
	require.Equal(t, uint64(1), st.Stats().MessagesDecrypted)
}

func TestHandleDatagramUnknownKeyIsNoise(t *testing.T) {
	st := state.New(t.TempDir(), logging.NewDefaultLoggerFactory())
	st.AddKey("beta")
	hub := &fakeBroadcaster{}
	r := New(st, hub, logging.NewDefaultLoggerFactory())

	key := protocol.DeriveKey([]byte("alpha"))
	datagram, err := protocol.Encode([]byte("irrelevant"), key, protocol.Starfall)
	require.NoError(t, err)
	r.HandleDatagram("5.6.7.8:1", datagram)

	require.Len(t, hub.of(control.KindNoisePacket), 1)
	require.Empty(t, hub.of(control.KindNewMessage))
	require.Equal(t, uint64(0), st.Stats().MessagesDecrypted)
}

func TestHandleDatagramFileSubcontentReplacesBody(t *testing.T) {
	st := state.New(t.TempDir(), logging.NewDefaultLoggerFactory())
	st.AddKey("k")
	hub := &fakeBroadcaster{}
	r := New(st, hub, logging.NewDefaultLoggerFactory())

	content := message.NewFile("report.txt", []byte("file body"))
	sendChunks(t, r, "9.9.9.9:1", "k", protocol.Sunshine, content)

	delivered := hub.of(control.KindNewMessage)
	require.Len(t, delivered, 1)
	file := delivered[0].NewMessage.Content.File
	require.Equal(t, "report.txt", file.Filename)
	require.Empty(t, file.Data)
	require.NotNil(t, file.ID)

	stored, ok := st.LookupFile(*file.ID)
	require.True(t, ok)
	require.Equal(t, []byte("file body"), stored.Data)
}

func TestHandleDatagramCompatModeDeliversLegacyMessage(t *testing.T) {
	st := state.New(t.TempDir(), logging.NewDefaultLoggerFactory())
	st.AddKey("oldpeer")
	hub := &fakeBroadcaster{}
	r := New(st, hub, logging.NewDefaultLoggerFactory())
	r.EnableCompatMode()

	sendLegacyChunks(t, r, "2.2.2.2:5", "oldpeer", protocol.Starfall, message.NewText("hi from the old draft"))

	delivered := hub.of(control.KindNewMessage)
	require.Len(t, delivered, 1)
	require.Equal(t, "hi from the old draft", delivered[0].NewMessage.Content.Text)
}

func TestHandleDatagramLegacyIsNoiseWithoutCompatMode(t *testing.T) {
	st := state.New(t.TempDir(), logging.NewDefaultLoggerFactory())
	st.AddKey("oldpeer")
	hub := &fakeBroadcaster{}
	r := New(st, hub, logging.NewDefaultLoggerFactory())

	sendLegacyChunks(t, r, "2.2.2.2:5", "oldpeer", protocol.Starfall, message.NewText("hi from the old draft"))

	require.Empty(t, hub.of(control.KindNewMessage))
	require.NotEmpty(t, hub.of(control.KindNoisePacket))
}
