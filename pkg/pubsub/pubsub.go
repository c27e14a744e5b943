package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by the engine
const (
	TopicAlertRaised           = "AlertRaised"
	TopicAlertAcknowledged     = "AlertAcknowledged"
	TopicAlertExpired          = "AlertExpired"
	TopicLeakCaseStatusChanged = "LeakCaseStatusChanged"
	TopicNetworkChanged        = "NetworkChanged"
)

// AllTopics lists every engine topic
var AllTopics = []string{
	TopicAlertRaised,
	TopicAlertAcknowledged,
	TopicAlertExpired,
	TopicLeakCaseStatusChanged,
	TopicNetworkChanged,
}

// ErrShutdown is returned when subscribing to a stopped bus
var ErrShutdown = errors.New("pubsub: shut down")

// DefaultBuffer is the per-subscription channel capacity
const DefaultBuffer = 100

// Message is what subscribers receive
type Message struct {
	Topic   string    `json:"topic"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// PubSub provides in-process publish/subscribe for engine events
type PubSub struct {
	subscribers map[string]map[*Subscription]bool
	mu          sync.RWMutex
	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool
	buffer      int
	now         func() time.Time

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Subscription represents a subscription to a topic
type Subscription struct {
	topic     string
	channel   chan Message
	ps        *PubSub
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewPubSub creates a new PubSub instance. buffer <= 0 uses DefaultBuffer.
func NewPubSub(buffer int) *PubSub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &PubSub{
		subscribers: make(map[string]map[*Subscription]bool),
		shutdown:    make(chan struct{}),
		buffer:      buffer,
		now:         time.Now,
	}
}

// Subscribe creates a new subscription to a topic. It ends when ctx is
// cancelled, Unsubscribe is called, or the bus shuts down.
func (ps *PubSub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return nil, ErrShutdown
	}
	ps.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:   topic,
		channel: make(chan Message, ps.buffer),
		ps:      ps,
		ctx:     subCtx,
		cancel:  cancel,
	}

	ps.mu.Lock()
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription]bool)
	}
	ps.subscribers[topic][sub] = true
	ps.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			// Shutdown closes the channel under the write lock
		}
	}()

	return sub, nil
}

// Publish sends payload to all subscribers of a topic. Slow subscribers
// whose buffer is full miss the message; publishers never block.
func (ps *PubSub) Publish(topic string, payload any) {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return
	}
	ps.shutdownMu.Unlock()

	ps.published.Add(1)
	msg := Message{Topic: topic, At: ps.now(), Payload: payload}

	// sends are non-blocking, so holding the read lock keeps a concurrent
	// Unsubscribe from closing a channel mid-send
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for sub := range ps.subscribers[topic] {
		select {
		case sub.channel <- msg:
		default:
			sub.dropped.Add(1)
			ps.dropped.Add(1)
		}
	}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (ps *PubSub) GetSubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Stats returns published and dropped message counts
func (ps *PubSub) Stats() (published, dropped uint64) {
	return ps.published.Load(), ps.dropped.Load()
}

// Shutdown closes all subscriptions and shuts down the PubSub
func (ps *PubSub) Shutdown() {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return
	}
	ps.isShutdown = true
	ps.shutdownMu.Unlock()

	close(ps.shutdown)

	ps.mu.Lock()
	for topic := range ps.subscribers {
		for sub := range ps.subscribers[topic] {
			sub.close()
		}
		delete(ps.subscribers, topic)
	}
	ps.mu.Unlock()
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() string {
	return s.topic
}

// Channel returns the subscription's message channel
func (s *Subscription) Channel() <-chan Message {
	return s.channel
}

// Dropped returns how many messages this subscriber missed
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe removes the subscription
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.ps.mu.Lock()
	defer s.ps.mu.Unlock()

	if s.ps.subscribers[s.topic] != nil {
		delete(s.ps.subscribers[s.topic], s)
		if len(s.ps.subscribers[s.topic]) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}

	s.close()
}

// close closes the subscription channel (idempotent)
func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}
