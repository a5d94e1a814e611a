package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/pkg/adapters/memory"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
	"github.com/quotecraft/drew/pkg/session"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s SlowStore) Save(ctx context.Context, conv *domain.Conversation) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.Store.Save(ctx, conv)
}

func (s SlowStore) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.Store.Load(ctx, id)
}

// appendDispatcher records every input as a line item, so lost updates show
// up as missing items.
type appendDispatcher struct{}

func (appendDispatcher) Dispatch(_ context.Context, req domain.Request) (*domain.Response, error) {
	next := req.Context.Clone()
	if req.Input.Text != "" {
		next.Items = append(next.Items, domain.LineItem{ProductID: req.Input.Text, Quantity: 1})
	}
	return &domain.Response{State: domain.StateReview, Context: next, Message: "ok"}, nil
}

func (appendDispatcher) Describe() []domain.Transition { return nil }

type failingDispatcher struct{ err error }

func (f failingDispatcher) Dispatch(context.Context, domain.Request) (*domain.Response, error) {
	return nil, f.err
}

func (failingDispatcher) Describe() []domain.Transition { return nil }

func TestManager_TurnsAreSerialized(t *testing.T) {
	store := SlowStore{memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()

	conv, resp, err := manager.Start(ctx, appendDispatcher{}, domain.Settings{})
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	assert.Equal(t, domain.StateReview, resp.State)

	var wg sync.WaitGroup
	const turns = 10
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			_, _, err := manager.Turn(ctx, appendDispatcher{}, conv.ID, domain.Input{Text: fmt.Sprintf("p%d", val)}, domain.Settings{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	loaded, err := manager.Load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Context.Items, turns, "every turn must see the previous one")
}

func TestManager_TurnDiff(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	manager := session.NewManager(memory.NewStore(), session.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	conv, _, err := manager.Start(ctx, appendDispatcher{}, domain.Settings{})
	require.NoError(t, err)
	assert.Equal(t, fixed.Unix(), conv.UpdatedAt)

	_, diff, err := manager.Turn(ctx, appendDispatcher{}, conv.ID, domain.Input{Text: "p1"}, domain.Settings{})
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Equal(t, conv.ID, diff.ID)
	assert.Nil(t, diff.State, "state did not change")
	assert.Equal(t, []domain.LineItem{{ProductID: "p1", Quantity: 1}}, diff.Items)

	_, diff, err = manager.Turn(ctx, appendDispatcher{}, conv.ID, domain.Input{}, domain.Settings{})
	require.NoError(t, err)
	assert.Nil(t, diff)
}

func TestManager_TurnErrors(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()

	_, _, err := manager.Turn(ctx, appendDispatcher{}, "missing", domain.Input{Text: "x"}, domain.Settings{})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	conv, err := manager.LoadOrStart(ctx, "c1")
	require.NoError(t, err)

	contract := &domain.ContractError{Kind: domain.ContractRunawayChain, Name: "x"}
	_, _, err = manager.Turn(ctx, failingDispatcher{err: contract}, conv.ID, domain.Input{Text: "x"}, domain.Settings{})
	var ce *domain.ContractError
	assert.ErrorAs(t, err, &ce)

	loaded, err := store.Load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateGreeting, loaded.State, "failed turn must not be saved")
}

func TestManager_LoadOrStart(t *testing.T) {
	store := SlowStore{memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "atomic-init"

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := manager.LoadOrStart(ctx, id)
			assert.NoError(t, err)
			assert.NotNil(t, conv)
		}()
	}
	wg.Wait()

	conv, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateGreeting, conv.State)

	ids, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	require.NoError(t, manager.Delete(ctx, id))
	_, err = manager.Load(ctx, id)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

type brokenStore struct{ *memory.Store }

func (brokenStore) Load(context.Context, string) (*domain.Conversation, error) {
	return nil, errors.New("connection refused")
}

func TestManager_LoadOrStart_StoreFailure(t *testing.T) {
	manager := session.NewManager(brokenStore{memory.NewStore()})
	_, err := manager.LoadOrStart(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type recordingLocker struct {
	mu     sync.Mutex
	locked []string
	ttls   []time.Duration
	freed  int
	err    error
}

func (l *recordingLocker) Lock(_ context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.ttls = append(l.ttls, ttl)
	l.mu.Unlock()
	return func(context.Context) error {
		l.mu.Lock()
		l.freed++
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, domain.NewConversation("c1")))
	_, err := manager.Load(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c1"}, locker.locked)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, locker.ttls)
	assert.Equal(t, 2, locker.freed)

	locker.err = context.DeadlineExceeded
	err = manager.Save(ctx, domain.NewConversation("c1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
