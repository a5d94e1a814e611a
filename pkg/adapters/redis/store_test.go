package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/pkg/adapters/redis"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunContextStoreContract(t, store)
}

func TestRedisStore_RoundTripsFullContext(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	conv := domain.NewConversation("c1")
	conv.State = domain.StateClarify
	conv.Context.PreviousState = domain.StateMarkup
	conv.Context.ClarifyAttempts = 2
	conv.Context.Tradecraft = &domain.TradecraftDoc{
		JobType:   "panel_upgrade",
		Questions: []domain.ScopingQuestion{{ID: "amps", Prompt: "Amps?", QuickReplies: []string{"200A"}}},
	}
	conv.Context.PendingProducts = []domain.ProductMatch{{Product: domain.Product{ID: "p", UnitPrice: 2.5}, Category: "wire", Quantity: 3}}
	conv.Context.Transcript = []domain.Turn{{Role: domain.RoleUser, Text: "hi"}}

	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, conv.State, loaded.State)
	assert.Equal(t, domain.StateMarkup, loaded.Context.PreviousState)
	assert.Equal(t, 2, loaded.Context.ClarifyAttempts)
	assert.Equal(t, "Amps?", loaded.Context.Tradecraft.Questions[0].Prompt)
	assert.Equal(t, conv.Context.PendingProducts, loaded.Context.PendingProducts)
	assert.Equal(t, conv.Context.Transcript, loaded.Context.Transcript)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewConversation("conv-ttl")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "conv-ttl")

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "conv-ttl")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	// The index is pruned against wall-clock time.
	time.Sleep(1200 * time.Millisecond)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewConversation("my-conv")))

	assert.True(t, mr.Exists("custom:app:my-conv"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")
	assert.NoError(t, store.Ping(ctx))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)

	require.NoError(t, mr.Set(redis.DefaultPrefix+"broken", "{not json"))

	_, err := store.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConversationNotFound)
}
