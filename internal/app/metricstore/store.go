// Package metricstore holds the session-scoped state for one metric
// kind and the three operations that mutate or observe it. One store
// exists per kind per authenticated session; it owns the in-memory
// entry list, the loading and error flags, and the derived
// "already logged today" flag.
package metricstore

import (
	"context"
	"sync"
	"time"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/domain"
	"github.com/trackfit/trackfit/internal/domain/metric"
)

type MessageBus interface {
	PublishEvents(events ...domain.Event) error
}

// Store mediates between the UI and the persistence collaborator for
// a single metric kind. Operations are serialized by the store mutex:
// the reference behavior only ever has one user-initiated operation in
// flight, and serializing makes that explicit instead of relying on it.
type Store struct {
	mu      sync.Mutex
	kind    metric.Kind
	ownerID string
	backend backend.MetricBackend
	bus     MessageBus
	now     func() time.Time

	entries []metric.Entry
	loading bool
	lastErr string
}

type Option func(*Store)

// WithClock overrides the wall clock. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithBus(bus MessageBus) Option {
	return func(s *Store) {
		s.bus = bus
	}
}

func New(b backend.MetricBackend, kind metric.Kind, ownerID string, opts ...Option) *Store {
	s := &Store{
		kind:    kind,
		ownerID: ownerID,
		backend: b,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Kind() metric.Kind {
	return s.kind
}

// State is a point-in-time copy of the store handed to the
// presentation layer. Entries keep the backend's date-descending
// order; the store never re-sorts.
type State struct {
	Entries       []metric.Entry `json:"entries"`
	Loading       bool           `json:"loading"`
	LastError     string         `json:"error"`
	HasEntryToday bool           `json:"has_entry_today"`
}

// Snapshot derives HasEntryToday at observation time against the
// local clock. It is a soft warning: Add never rejects a same-day
// duplicate, the UI surfaces a banner and lets the user proceed.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := metric.Day(s.now())
	hasToday := false
	for _, e := range s.entries {
		if e.Date == today {
			hasToday = true
			break
		}
	}

	entries := make([]metric.Entry, len(s.entries))
	copy(entries, s.entries)

	return State{
		Entries:       entries,
		Loading:       s.loading,
		LastError:     s.lastErr,
		HasEntryToday: hasToday,
	}
}

// Load replaces the entry list wholesale with the owner's entries as
// returned by the backend. On failure the previous entries stay
// untouched and the error message is kept for display. A store
// without an owner is a no-op: no remote call is issued. Failed loads
// are not retried.
func (s *Store) Load(ctx context.Context) {
	if s.ownerID == "" {
		return
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	entries, err := s.backend.List(ctx, s.ownerID, s.kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		return
	}
	s.entries = entries
	s.lastErr = ""
}

// Add inserts one entry and prepends the created record to the local
// list. The value must already satisfy the kind's plausible range;
// the store does not re-validate. The list is not re-sorted, so a
// backdated entry leaves the local order inconsistent with true
// date-descending order until the next Load. The boolean result tells
// the caller whether to close its submission dialog; it promises one
// round trip, not order correctness.
func (s *Store) Add(ctx context.Context, value float64, date string) bool {
	if s.ownerID == "" {
		return false
	}

	created, err := s.backend.Insert(ctx, metric.Entry{
		Kind:    s.kind,
		Value:   value,
		Date:    date,
		OwnerID: s.ownerID,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err.Error()
		return false
	}

	s.entries = append([]metric.Entry{created}, s.entries...)
	s.lastErr = ""
	s.publish(metric.RecordedEvent{At: s.now(), Entry: created})
	return true
}

// Delete removes one entry by identifier. Whether the acting user may
// delete the row is decided by the collaborator's access policy, not
// here. On confirmed success the matching entry leaves the local
// list; on failure state is untouched and the message is kept.
func (s *Store) Delete(ctx context.Context, id int64) bool {
	if err := s.backend.Delete(ctx, id); err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.lastErr = ""
	s.publish(metric.DeletedEvent{At: s.now(), EntryID: id, Kind: s.kind, OwnerID: s.ownerID})
	return true
}

func (s *Store) publish(e domain.Event) {
	if s.bus == nil {
		return
	}
	_ = s.bus.PublishEvents(e)
}
