package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

// subscription is one Subscribe call's delivery channel. A publish may
// still hold a snapshot containing this subscription while cancel runs,
// so the closed flag and every send share mu; sending on ch after close
// would panic the publisher.
type subscription struct {
	mu     sync.Mutex
	ch     chan *LocalMessage
	closed bool
}

func (s *subscription) deliver(msg *LocalMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// Drop message if buffer is full (non-blocking)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// LocalPubSub is an in-process fan-out pub/sub implementation. Every
// subscriber of a channel receives its own copy of each published message,
// in publish order. Delivery is at-most-once: a subscriber whose buffer is
// full misses the message rather than blocking the publisher.
type LocalPubSub struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
	bufSize     int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subscribers: make(map[string][]*subscription),
		bufSize:     bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	subs := make([]*subscription, len(ps.subscribers[channel]))
	copy(subs, ps.subscribers[channel])
	ps.mu.RUnlock()
	for _, s := range subs {
		s.deliver(msg)
	}
	return nil
}

// Subscribe returns a channel of messages for the given channels, and a cancel
// function. Cancel removes only this subscription; other subscribers of the
// same channels are unaffected, and a publish already holding a snapshot
// sees the closed flag instead of a closed channel.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	sub := &subscription{ch: make(chan *LocalMessage, ps.bufSize)}

	ps.mu.Lock()
	for _, c := range channels {
		ps.subscribers[c] = append(ps.subscribers[c], sub)
	}
	ps.mu.Unlock()

	cancel := func() {
		ps.mu.Lock()
		for _, c := range channels {
			list := ps.subscribers[c]
			for j, s := range list {
				if s == sub {
					ps.subscribers[c] = append(list[:j], list[j+1:]...)
					break
				}
			}
		}
		ps.mu.Unlock()
		sub.close()
	}

	return sub.ch, cancel, nil
}
