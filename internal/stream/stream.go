// Package stream fans authentication decisions out to live subscribers such as
// the admin API's event feed.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Decision is one authentication outcome. It never carries credential material.
type Decision struct {
	ConnID    string    `json:"conn_id"`
	Remote    string    `json:"remote"`
	User      string    `json:"user"`
	UserID    uint64    `json:"user_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream delivers each published Decision to every active subscriber.
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]chan Decision
	next    int
	buffer  int
	dropped atomic.Uint64
}

// New returns a stream whose subscribers buffer up to buffer events (16 when <= 0).
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{subs: make(map[int]chan Decision), buffer: buffer}
}

// Subscribe registers a subscriber. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Decision {
	ch := make(chan Decision, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (s *Stream) Publish(evt Decision) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped counts events lost to slow subscribers.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }
