package bridge

import (
	"sync"

	"github.com/keerthikanthn/streambridge/streams"
)

// subscriptionSlot holds at most one live subscription. take clears the
// slot and hands back what was held, so exactly one caller performs the
// cancel even when stop races completion. Go interface values cannot be
// compare-and-swapped directly; the mutex section is two loads and a store.
type subscriptionSlot struct {
	mu  sync.Mutex
	sub streams.Subscription
}

// store records sub if the slot is empty and reports whether it did.
func (s *subscriptionSlot) store(sub streams.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return false
	}
	s.sub = sub
	return true
}

// take clears the slot and returns the previously held subscription, nil
// when the slot was already empty.
func (s *subscriptionSlot) take() streams.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.sub
	s.sub = nil
	return sub
}

// held reports whether a subscription is currently stored.
func (s *subscriptionSlot) held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}
