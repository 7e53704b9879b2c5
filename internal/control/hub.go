package control

import (
	"sync"

	"github.com/pion/logging"
)

// subscriberBuffer bounds each subscriber's pending-notification queue. A
// full buffer drops the oldest queued notification rather than blocking the
// broadcaster on a slow subscriber.
const subscriberBuffer = 128

// Hub fans Notification values out to subscribers. The zero value is not
// usable; construct with NewHub.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Notification]struct{}
	log         logging.LeveledLogger
}

// NewHub constructs an empty Hub.
func NewHub(loggerFactory logging.LoggerFactory) *Hub {
	return &Hub{
		subscribers: make(map[chan Notification]struct{}),
		log:         loggerFactory.NewLogger("control"),
	}
}

// Subscribe registers a new subscriber and returns its feed plus an
// unsubscribe function the caller must invoke exactly once when done.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers n to every current subscriber. A subscriber whose buffer
// is full has its oldest pending notification discarded to make room.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- n:
			default:
				h.log.Warn("subscriber buffer full after eviction, dropping notification")
			}
		}
	}
}

// SubscriberCount reports the current number of live subscribers, mainly
// for tests and diagnostics.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
