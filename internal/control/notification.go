// Package control exposes the daemon's control-plane surface: adding and
// removing trial-decryption keys, enqueueing sends, subscribing to a feed of
// delivery/noise/stats events, and downloading received files.
package control

import (
	"encoding/json"
	"fmt"

	"github.com/1o0n1/asemic/internal/state"
)

// Kind discriminates Notification, matching the tagged-union wire shape used
// throughout this module.
type Kind string

const (
	KindFullState   Kind = "FullState"
	KindNewMessage  Kind = "NewMessage"
	KindNoisePacket Kind = "NoisePacket"
	KindKeyUpdate   Kind = "KeyUpdate"
	KindStatsUpdate Kind = "StatsUpdate"
)

// FullStatePayload is sent once to a newly connected subscriber.
type FullStatePayload struct {
	Keys     []string                 `json:"keys"`
	Messages []state.DecryptedMessage `json:"messages"`
	Stats    state.Stats              `json:"stats"`
}

// NoisePacketPayload describes a datagram that failed trial decryption
// under every known key and pattern.
type NoisePacketPayload struct {
	Sender string `json:"sender"`
	Size   int    `json:"size"`
}

// Notification is the sum type broadcast to subscribers. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Notification struct {
	Kind Kind

	FullState   FullStatePayload
	NewMessage  state.DecryptedMessage
	NoisePacket NoisePacketPayload
	KeyUpdate   []string
	StatsUpdate state.Stats
}

// NewFullState builds a FullState notification.
func NewFullState(keys []string, messages []state.DecryptedMessage, stats state.Stats) Notification {
	return Notification{Kind: KindFullState, FullState: FullStatePayload{Keys: keys, Messages: messages, Stats: stats}}
}

// NewMessageNotification builds a NewMessage notification.
func NewMessageNotification(msg state.DecryptedMessage) Notification {
	return Notification{Kind: KindNewMessage, NewMessage: msg}
}

// NewNoisePacket builds a NoisePacket notification.
func NewNoisePacket(sender string, size int) Notification {
	return Notification{Kind: KindNoisePacket, NoisePacket: NoisePacketPayload{Sender: sender, Size: size}}
}

// NewKeyUpdate builds a KeyUpdate notification.
func NewKeyUpdate(keys []string) Notification {
	return Notification{Kind: KindKeyUpdate, KeyUpdate: keys}
}

// NewStatsUpdate builds a StatsUpdate notification.
func NewStatsUpdate(stats state.Stats) Notification {
	return Notification{Kind: KindStatsUpdate, StatsUpdate: stats}
}

// MarshalJSON produces {"type":"<Kind>","payload":<payload>}.
func (n Notification) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch n.Kind {
	case KindFullState:
		payload = n.FullState
	case KindNewMessage:
		payload = n.NewMessage
	case KindNoisePacket:
		payload = n.NoisePacket
	case KindKeyUpdate:
		payload = n.KeyUpdate
	case KindStatsUpdate:
		payload = n.StatsUpdate
	default:
		return nil, fmt.Errorf("control: unknown notification kind %q", n.Kind)
	}
	return json.Marshal(struct {
		Type    Kind        `json:"type"`
		Payload interface{} `json:"payload"`
	}{Type: n.Kind, Payload: payload})
}

// Broadcaster is the subset of Hub the receiver depends on, kept narrow so
// receiver doesn't need to know about subscriber management.
type Broadcaster interface {
	Publish(Notification)
}
