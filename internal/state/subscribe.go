package state

import (
	"slices"

	"github.com/marcus/dealbook/internal/models"
)

// Subscriber is called with the live document and the changed category, or
// models.Wildcard when the whole document changed.
type Subscriber func(doc *models.Document, category string)

// Subscribe registers fn and immediately calls it once with the wildcard tag. The
// returned func unregisters it; calling it more than once is harmless.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextSub++
	handle := s.nextSub
	s.subs[handle] = fn
	s.subMu.Unlock()

	fn(s.Get(), models.Wildcard)

	return func() {
		s.subMu.Lock()
		delete(s.subs, handle)
		s.subMu.Unlock()
	}
}

// Notify calls every subscriber in registration order.
func (s *Store) Notify(category string) {
	s.subMu.Lock()
	handles := make([]uint64, 0, len(s.subs))
	for h := range s.subs {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	fns := make([]Subscriber, 0, len(handles))
	for _, h := range handles {
		fns = append(fns, s.subs[h])
	}
	s.subMu.Unlock()

	doc := s.Get()
	for _, fn := range fns {
		fn(doc, category)
	}
}

// Subscribers returns the number of registered subscribers.
func (s *Store) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}
