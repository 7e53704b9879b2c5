// Package transmitter drains transmit commands and drives the UDP socket's
// write side: chunking and pacing real sends, and emitting cover traffic on
// a timer between them.
package transmitter

import (
	"context"
	"crypto/rand"
	mrand "math/rand"
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/1o0n1/asemic/internal/chunker"
	"github.com/1o0n1/asemic/internal/message"
	"github.com/1o0n1/asemic/internal/protocol"
	"github.com/1o0n1/asemic/internal/state"
)

// chunkSpacing is the pause between successive chunks of one message,
// chosen to avoid bursting past NIC/OS send buffers.
const chunkSpacing = 10 * time.Millisecond

// noiseSizeMin/noiseSizeMax bound the uniformly sampled cover-traffic
// payload length, in [noiseSizeMin, noiseSizeMax).
const (
	noiseSizeMin = 50
	noiseSizeMax = 200
)

// NoiseLevel selects the cover-traffic tick period.
type NoiseLevel int

const (
	Off NoiseLevel = iota
	Slow
	Medium
	Fast
)

// Period returns the tick interval for a level, or 0 when ticking is disabled.
func (n NoiseLevel) Period() time.Duration {
	switch n {
	case Slow:
		return 2000 * time.Millisecond
	case Medium:
		return 500 * time.Millisecond
	case Fast:
		return 100 * time.Millisecond
	default:
		return 0
	}
}

func (n NoiseLevel) String() string {
	switch n {
	case Off:
		return "Off"
	case Slow:
		return "Slow"
	case Medium:
		return "Medium"
	case Fast:
		return "Fast"
	default:
		return "Unknown"
	}
}

// CommandKind discriminates Command.
type CommandKind int

const (
	CommandSendMessage CommandKind = iota
	CommandSetNoiseLevel
)

// Command is the transmitter's command sum type: SendMessage or
// SetNoiseLevel, discriminated by Kind.
type Command struct {
	Kind CommandKind

	// SendMessage fields.
	Target  *net.UDPAddr
	Key     string
	Pattern protocol.ObfuscationPattern
	Content message.Content
	// Legacy selects the deprecated XOR+signature envelope (CompatMode)
	// instead of the authoritative AEAD draft. Only meaningful paired with
	// a receiver that has called receiver.Receiver.EnableCompatMode.
	Legacy bool

	// SetNoiseLevel field.
	Level NoiseLevel
}

// SendMessage builds a SendMessage command using the authoritative AEAD
// envelope.
func SendMessage(target *net.UDPAddr, key string, pattern protocol.ObfuscationPattern, content message.Content) Command {
	return Command{Kind: CommandSendMessage, Target: target, Key: key, Pattern: pattern, Content: content}
}

// SendMessageCompat builds a SendMessage command using the deprecated
// XOR+signature envelope, for interoperating with a CompatMode peer.
func SendMessageCompat(target *net.UDPAddr, key string, pattern protocol.ObfuscationPattern, content message.Content) Command {
	return Command{Kind: CommandSendMessage, Target: target, Key: key, Pattern: pattern, Content: content, Legacy: true}
}

// SetNoiseLevel builds a SetNoiseLevel command.
func SetNoiseLevel(level NoiseLevel) Command {
	return Command{Kind: CommandSetNoiseLevel, Level: level}
}

// SentCounter is the subset of state.SharedState the transmitter needs to
// bump counters on send.
type SentCounter interface {
	IncrementSent() state.Stats
	IncrementNoiseSent() state.Stats
}

// noopCounter satisfies SentCounter when the caller doesn't care about stats
// (used by tests and standalone tools that don't share daemon state).
type noopCounter struct{}

func (noopCounter) IncrementSent() state.Stats      { return state.Stats{} }
func (noopCounter) IncrementNoiseSent() state.Stats { return state.Stats{} }

// Transmitter drains a command channel and drives conn. A single goroutine
// (Run) must be the only caller touching conn's write side.
type Transmitter struct {
	conn     *net.UDPConn
	commands <-chan Command
	counter  SentCounter
	log      logging.LeveledLogger

	lastTarget  *net.UDPAddr
	lastKey     string
	lastPattern protocol.ObfuscationPattern
}

// New constructs a Transmitter. counter may be nil, in which case sent
// counters are not tracked.
func New(conn *net.UDPConn, commands <-chan Command, counter SentCounter, loggerFactory logging.LoggerFactory) *Transmitter {
	if counter == nil {
		counter = noopCounter{}
	}
	return &Transmitter{
		conn:     conn,
		commands: commands,
		counter:  counter,
		log:      loggerFactory.NewLogger("transmitter"),
	}
}

// Run processes commands until ctx is cancelled or the command channel
// closes. It owns the noise ticker: SetNoiseLevel replaces it, and a nil
// ticker channel (level Off) simply never fires in the select below.
func (t *Transmitter) Run(ctx context.Context) error {
	t.log.Info("transmitter started")

	var ticker *time.Ticker
	var tickC <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd, ok := <-t.commands:
			if !ok {
				return nil
			}
			switch cmd.Kind {
			case CommandSendMessage:
				t.handleSend(cmd)
			case CommandSetNoiseLevel:
				if ticker != nil {
					ticker.Stop()
					ticker = nil
					tickC = nil
				}
				if period := cmd.Level.Period(); period > 0 {
					ticker = time.NewTicker(period)
					tickC = ticker.C
				}
				t.log.Infof("noise level set to %s", cmd.Level)
			}

		case <-tickC:
			t.emitNoise()
		}
	}
}

// handleSend chunks content and sends each chunk in ascending order,
// chunkSpacing apart. A single chunk's failure (too large or socket error)
// is logged and transmission continues with the next chunk.
func (t *Transmitter) handleSend(cmd Command) {
	t.lastTarget = cmd.Target
	t.lastKey = cmd.Key
	t.lastPattern = cmd.Pattern

	key := protocol.DeriveKey([]byte(cmd.Key))

	msgID, payloads, err := chunker.Split(cmd.Content)
	if err != nil {
		t.log.Errorf("failed to chunk message for %s: %v", cmd.Target, err)
		return
	}
	t.log.Infof("sending message %d to %s as %d chunks (legacy=%v)", msgID, cmd.Target, len(payloads), cmd.Legacy)

	for i, payload := range payloads {
		var datagram []byte
		var err error
		if cmd.Legacy {
			datagram, err = protocol.EncodeLegacy(payload, []byte(cmd.Key), cmd.Pattern)
		} else {
			datagram, err = protocol.Encode(payload, key, cmd.Pattern)
		}
		if err != nil {
			t.log.Errorf("chunk %d/%d for message %d too large, dropped: %v", i+1, len(payloads), msgID, err)
			continue
		}
		if _, err := t.conn.WriteToUDP(datagram, cmd.Target); err != nil {
			t.log.Errorf("send failed for chunk %d/%d of message %d: %v", i+1, len(payloads), msgID, err)
			continue
		}
		t.counter.IncrementSent()

		if i != len(payloads)-1 {
			time.Sleep(chunkSpacing)
		}
	}
}

// emitNoise sends one cover-traffic datagram to the most recent send
// context, if any. It is a no-op when no message has been sent yet.
func (t *Transmitter) emitNoise() {
	if t.lastTarget == nil {
		return
	}

	size := noiseSizeMin + mrand.Intn(noiseSizeMax-noiseSizeMin)
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		t.log.Errorf("noise payload generation failed: %v", err)
		return
	}

	key := protocol.DeriveKey([]byte(t.lastKey))
	datagram, err := protocol.Encode(payload, key, t.lastPattern)
	if err != nil {
		t.log.Errorf("noise encode failed: %v", err)
		return
	}

	if _, err := t.conn.WriteToUDP(datagram, t.lastTarget); err != nil {
		t.log.Errorf("noise send failed: %v", err)
		return
	}
	t.counter.IncrementNoiseSent()
}
