package ports

import (
	"context"
	"testing"
	"time"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunContextStoreContract runs a suite of tests to verify that a ContextStore
// implementation adheres to the defined interface contract.
func RunContextStoreContract(t *testing.T, store ContextStore) {
	ctx := context.Background()
	id := "contract-test-" + time.Now().Format("20060102150405.000000000")

	t.Run("Save and Load", func(t *testing.T) {
		conv := domain.NewConversation(id)
		conv.State = domain.StateLabor
		conv.Context.TradecraftJobType = "panel_upgrade"
		conv.Context.ScopingAnswers["amps"] = "200A"
		conv.Context.Items = []domain.LineItem{{ProductID: "p1", Name: "Panel", UnitPrice: 250, Quantity: 2}}
		conv.Context.MarkupPercent = domain.Float(15)

		require.NoError(t, store.Save(ctx, conv), "Save should not return error")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.StateLabor, loaded.State)
		assert.Equal(t, "panel_upgrade", loaded.Context.TradecraftJobType)
		assert.Equal(t, "200A", loaded.Context.ScopingAnswers["amps"])
		require.Len(t, loaded.Context.Items, 1)
		assert.Equal(t, 2.0, loaded.Context.Items[0].Quantity)
		require.NotNil(t, loaded.Context.MarkupPercent)
		assert.Equal(t, 15.0, *loaded.Context.MarkupPercent)
		assert.Nil(t, loaded.Context.LaborHours)
	})

	t.Run("Loaded Copy Is Isolated", func(t *testing.T) {
		conv := domain.NewConversation(id + "-iso")
		conv.Context.Items = []domain.LineItem{{ProductID: "p1", Quantity: 1}}
		require.NoError(t, store.Save(ctx, conv))
		defer func() { _ = store.Delete(ctx, conv.ID) }()

		conv.Context.Items[0].Quantity = 42

		loaded, err := store.Load(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 1.0, loaded.Context.Items[0].Quantity, "store must not alias the caller's context")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+id)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewConversation(id)))

		require.NoError(t, store.Delete(ctx, id), "Delete should not return error")

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound, "Load after Delete should return ErrConversationNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := id + "-1"
		id2 := id + "-2"
		_ = store.Save(ctx, domain.NewConversation(id1))
		_ = store.Save(ctx, domain.NewConversation(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
