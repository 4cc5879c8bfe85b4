// Package events fans tree changes out to in-process subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridexplore/explorer/internal/metrics"
)

const (
	EventRoots      = "roots"
	EventChildren   = "children"
	EventSelect     = "select"
	EventExpand     = "expand"
	EventCollapse   = "collapse"
	EventConnection = "connection"
)

// TreeEvent tells subscribers that the explorer state changed. It carries
// no tree data: subscribers read a fresh snapshot from the store.
type TreeEvent struct {
	Type      string `json:"type"`
	NodeID    string `json:"nodeId,omitempty"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster manages subscribers and publishes events.
type Broadcaster struct {
	seq atomic.Uint64

	mu          sync.RWMutex
	subscribers map[chan TreeEvent]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan TreeEvent]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan TreeEvent {
	ch := make(chan TreeEvent, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetEventSubscribers(n)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan TreeEvent) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetEventSubscribers(n)
}

// Publish stamps the event with the next sequence number and sends it to
// all subscribers. Non-blocking: drops events for slow consumers.
func (b *Broadcaster) Publish(event TreeEvent) TreeEvent {
	event.Seq = b.seq.Add(1)
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			metrics.RecordEventDropped()
		}
	}
	return event
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
