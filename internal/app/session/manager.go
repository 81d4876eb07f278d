// Package session tracks authenticated sessions and the metric stores
// scoped to them. Store lifetime follows the session: sign-in creates
// a fresh set and loads it, sign-out drops it. Nothing survives
// across sessions in memory.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/app/metricstore"
	"github.com/trackfit/trackfit/internal/domain"
	"github.com/trackfit/trackfit/internal/domain/metric"
	"github.com/trackfit/trackfit/internal/domain/user"
)

// Stores is the per-session store set, one store per metric kind.
// Kinds are fully independent: no state is shared between them and no
// coordination is required.
type Stores struct {
	byKind map[metric.Kind]*metricstore.Store
}

func (s *Stores) ByKind(kind metric.Kind) (*metricstore.Store, bool) {
	st, ok := s.byKind[kind]
	return st, ok
}

type MessageBus interface {
	Register(eventType string, handler func(event domain.Event) error)
	PublishEvents(events ...domain.Event) error
}

// Manager owns the registry of live sessions, keyed by access token.
type Manager struct {
	mu      sync.Mutex
	backend backend.MetricBackend
	bus     MessageBus
	logger  *slog.Logger
	now     func() time.Time

	sessions map[string]*Stores
}

func NewManager(b backend.MetricBackend, bus MessageBus, logger *slog.Logger) *Manager {
	return &Manager{
		backend:  b,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Stores),
	}
}

// Bind subscribes the manager to the session lifecycle events. This
// is the one documented transition of the system: on login open the
// store set and load it, on logout drop it.
func (m *Manager) Bind() {
	m.bus.Register(user.EventNewLogin, func(event domain.Event) error {
		e, ok := event.(user.LoginEvent)
		if !ok {
			return nil
		}
		m.Open(e.UserID, e.Token)
		return nil
	})
	m.bus.Register(user.EventLogout, func(event domain.Event) error {
		e, ok := event.(user.LogoutEvent)
		if !ok {
			return nil
		}
		m.Close(e.Token)
		return nil
	})
}

// Open creates the store set for the session and issues the initial
// load of every kind. Opening an already open session reuses the
// existing set.
func (m *Manager) Open(userID, token string) *Stores {
	m.mu.Lock()
	set, ok := m.sessions[token]
	if !ok {
		set = &Stores{byKind: make(map[metric.Kind]*metricstore.Store)}
		for _, kind := range metric.Kinds {
			set.byKind[kind] = metricstore.New(
				m.backend, kind, userID,
				metricstore.WithBus(m.bus),
				metricstore.WithClock(m.now),
			)
		}
		m.sessions[token] = set
	}
	m.mu.Unlock()

	if !ok {
		ctx := backend.WithToken(context.Background(), token)
		for _, st := range set.byKind {
			st.Load(ctx)
		}
		m.logger.Debug("session opened", "user_id", userID)
	}
	return set
}

func (m *Manager) Close(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// StoresFor returns the live store set for a token, if any. A miss
// happens after a process restart with a still-valid token; callers
// reopen through Open.
func (m *Manager) StoresFor(token string) (*Stores, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sessions[token]
	return set, ok
}
