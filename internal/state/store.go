// Package state holds the in-memory CRM document, the mutation API over it and the
// subscriber registry.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/dealbook/internal/models"
)

// Scheduler is told after every local mutation that the document needs pushing.
type Scheduler interface {
	SchedulePush()
}

// Store is the single source of truth for the local document.
//
// All access is serialised by mu. Subscribers are called after mu is released, so a
// subscriber may read the store or mutate it again.
type Store struct {
	mu            sync.RWMutex
	doc           *models.Document
	version       uint64
	lastStamp     time.Time
	activityLimit int
	now           func() time.Time
	newID         func(prefix string) string
	scheduler     Scheduler

	subMu   sync.Mutex
	subs    map[uint64]Subscriber
	nextSub uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithActivityLimit sets the activity log cap.
func WithActivityLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.activityLimit = n
		}
	}
}

// WithIDGenerator overrides id generation. fn receives the id prefix ("dea", "act", ...).
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates a store holding the default document for clientID.
func New(clientID string, opts ...Option) *Store {
	s := &Store{
		doc:           models.NewDocument(clientID),
		activityLimit: models.DefaultActivityLimit,
		now:           time.Now,
		newID:         newID,
		subs:          make(map[uint64]Subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetScheduler wires the push scheduler. Mutations before this call schedule nothing.
func (s *Store) SetScheduler(sch Scheduler) {
	s.mu.Lock()
	s.scheduler = sch
	s.mu.Unlock()
}

// Get returns the live document. Readers racing with mutations should use View or Snapshot.
func (s *Store) Get() *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// View runs fn with the document under the read lock. fn must not mutate it or call
// back into the store.
func (s *Store) View(fn func(doc *models.Document)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.doc)
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Version increments on every change to the document.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ActivityLimit returns the activity log cap.
func (s *Store) ActivityLimit() int {
	return s.activityLimit
}

// Replace swaps in a whole document (hydration, refresh). The activity log is truncated
// to the cap. Subscribers are not notified; callers do that with Notify.
func (s *Store) Replace(doc *models.Document) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(doc.ActivityLog) > s.activityLimit {
		doc.ActivityLog = doc.ActivityLog[:s.activityLimit]
	}
	s.doc = doc
	s.version++
	if newest := newestStamp(doc); newest.After(s.lastStamp) {
		s.lastStamp = newest
	}
	return s.version
}

// newestStamp is the latest time recorded in doc's activity log or syncMeta. Local stamps
// never go below it, so the log stays newest-first when another device's clock ran ahead.
func newestStamp(doc *models.Document) time.Time {
	var newest time.Time
	for _, a := range doc.ActivityLog {
		if a.At.After(newest) {
			newest = a.At
		}
	}
	if at := doc.SyncMeta.LastUpdatedAt; at != nil && at.After(newest) {
		newest = *at
	}
	return newest.UTC()
}

// Apply runs fn with exclusive access to the live document and the current version.
// It is how the sync engine stamps syncMeta without counting as a local change.
func (s *Store) Apply(fn func(doc *models.Document, version uint64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.doc, s.version)
}

// stamp returns a timestamp never earlier than the previous one, in millisecond precision.
// Caller holds mu.
func (s *Store) stamp() time.Time {
	now := s.now().UTC().Truncate(time.Millisecond)
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}

// logActivity prepends an entry and truncates the log. Caller holds mu.
func (s *Store) logActivity(text string, typ models.ActivityType, category, entityID *string, at time.Time) {
	entry := models.ActivityEntry{
		ID:       s.newID("act"),
		Text:     text,
		At:       at,
		Type:     typ,
		Entity:   category,
		EntityID: entityID,
	}
	log := make([]models.ActivityEntry, 0, min(len(s.doc.ActivityLog)+1, s.activityLimit))
	log = append(log, entry)
	for _, a := range s.doc.ActivityLog {
		if len(log) >= s.activityLimit {
			break
		}
		log = append(log, a)
	}
	s.doc.ActivityLog = log
}

// changed finishes a mutation: notify subscribers, then schedule a push.
func (s *Store) changed(category string) {
	s.mu.RLock()
	sch := s.scheduler
	s.mu.RUnlock()

	s.Notify(category)
	if sch != nil {
		sch.SchedulePush()
	}
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// idPrefix derives an entity id prefix from the first three characters of its category.
// It cuts on runes so the id stays valid UTF-8 and survives a JSON round trip unchanged.
func idPrefix(category string) string {
	if category == "" {
		return "ent"
	}
	if r := []rune(category); len(r) > 3 {
		return string(r[:3])
	}
	return category
}
