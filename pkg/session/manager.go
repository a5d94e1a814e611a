package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a conversation.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes turns per conversation on top of a ContextStore.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.ContextStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the clock used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Manager with the given persistence store.
func NewManager(store ports.ContextStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Start creates a conversation with a fresh id, renders its greeting and
// persists it.
func (m *Manager) Start(ctx context.Context, d ports.Dispatcher, settings domain.Settings) (*domain.Conversation, *domain.Response, error) {
	id := uuid.NewString()
	var (
		conv *domain.Conversation
		resp *domain.Response
	)
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		resp, err = d.Dispatch(ctx, domain.Request{State: domain.StateGreeting, Settings: settings})
		if err != nil {
			return err
		}
		conv = m.snapshot(id, resp)
		return m.store.Save(ctx, conv)
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, resp, nil
}

// Turn runs one dispatch for the stored conversation id and persists the
// result. The returned diff is nil when nothing observable changed.
func (m *Manager) Turn(ctx context.Context, d ports.Dispatcher, id string, input domain.Input, settings domain.Settings) (*domain.Response, *domain.ConversationDiff, error) {
	var (
		resp *domain.Response
		diff *domain.ConversationDiff
	)
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		prev, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}

		resp, err = d.Dispatch(ctx, domain.Request{
			State:    prev.State,
			Context:  prev.Context,
			Input:    input,
			Settings: settings,
		})
		if err != nil {
			return err
		}

		next := m.snapshot(id, resp)
		if err := m.store.Save(ctx, next); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		diff = domain.Diff(prev, next)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return resp, diff, nil
}

func (m *Manager) snapshot(id string, resp *domain.Response) *domain.Conversation {
	return &domain.Conversation{
		ID:        id,
		State:     resp.State,
		Context:   resp.Context,
		UpdatedAt: m.now().Unix(),
	}
}

// Load retrieves an existing conversation from the store.
func (m *Manager) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		conv, err = m.store.Load(ctx, id)
		return err
	})
	return conv, err
}

// LoadOrStart tries to load a conversation. If not found, it initializes a
// new one at the greeting and persists it to reserve the id.
func (m *Manager) LoadOrStart(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		conv, err = m.store.Load(ctx, id)
		if err == nil {
			return nil
		}

		if !errors.Is(err, domain.ErrConversationNotFound) {
			return fmt.Errorf("failed to check conversation existence: %w", err)
		}

		conv = domain.NewConversation(id)
		conv.UpdatedAt = m.now().Unix()
		if err := m.store.Save(ctx, conv); err != nil {
			return fmt.Errorf("failed to initialize conversation: %w", err)
		}
		return nil
	})
	return conv, err
}

// Save persists the conversation.
func (m *Manager) Save(ctx context.Context, conv *domain.Conversation) error {
	return m.WithLock(ctx, conv.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, conv)
	})
}

// Delete removes the conversation from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying store.
func (m *Manager) Store() ports.ContextStore {
	return m.store
}

// WithLock executes fn while holding the lock for the conversation.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was cancelled mid-turn.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"conversation_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
