package controller_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintdesk/internal/controller"
	"sprintdesk/internal/order"
)

type fakeStore struct {
	items       []controller.Item
	failPersist bool
	fetchCalls  int
	persisted   [][]order.Change
}

func (s *fakeStore) Fetch(ctx context.Context) ([]controller.Item, error) {
	s.fetchCalls++
	out := make([]controller.Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *fakeStore) Persist(ctx context.Context, changes []order.Change) ([]controller.Item, error) {
	if s.failPersist {
		return nil, errors.New("store rejected the plan")
	}
	s.persisted = append(s.persisted, changes)
	byID := make(map[string]int, len(s.items))
	for i, it := range s.items {
		byID[it.ID] = i
	}
	for _, c := range changes {
		if i, ok := byID[c.ID]; ok {
			s.items[i].Order = c.NewOrder
		}
	}
	sorted := make([]controller.Item, len(s.items))
	copy(sorted, s.items)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Order < sorted[i].Order {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	s.items = sorted
	return s.Fetch(ctx)
}

func three() []controller.Item {
	return []controller.Item{
		{ID: "a", Name: "a", Order: 1},
		{ID: "b", Name: "b", Order: 2},
		{ID: "c", Name: "c", Order: 3},
	}
}

func itemIDs(items []controller.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestMoveOptimisticSuccess(t *testing.T) {
	store := &fakeStore{items: three()}
	ctrl := controller.New(store)
	require.NoError(t, ctrl.Load(context.Background()))

	require.NoError(t, ctrl.Move(context.Background(), 0, 2))
	assert.Equal(t, []string{"b", "c", "a"}, itemIDs(ctrl.Items()))
	// Persist got exactly one batch, covering the three shifted tasks.
	require.Len(t, store.persisted, 1)
	assert.Len(t, store.persisted[0], 3)
	// Cache ranks stay dense.
	for i, it := range ctrl.Items() {
		assert.Equal(t, i+1, it.Order)
	}
}

func TestMoveNoopSkipsPersist(t *testing.T) {
	store := &fakeStore{items: three()}
	ctrl := controller.New(store)
	require.NoError(t, ctrl.Load(context.Background()))

	require.NoError(t, ctrl.Move(context.Background(), 1, 1))
	assert.Empty(t, store.persisted)
	assert.Equal(t, []string{"a", "b", "c"}, itemIDs(ctrl.Items()))
}

func TestMoveRollsBackOnPersistFailure(t *testing.T) {
	store := &fakeStore{items: three(), failPersist: true}
	ctrl := controller.New(store)
	require.NoError(t, ctrl.Load(context.Background()))

	err := ctrl.Move(context.Background(), 0, 2)
	require.Error(t, err)
	// The failed move must not leave the optimistic sequence behind; the
	// cache ends up matching the server's untouched order.
	assert.Equal(t, []string{"a", "b", "c"}, itemIDs(ctrl.Items()))
	// Load + post-failure refetch.
	assert.Equal(t, 2, store.fetchCalls)
}

func TestMoveOutOfRange(t *testing.T) {
	store := &fakeStore{items: three()}
	ctrl := controller.New(store)
	require.NoError(t, ctrl.Load(context.Background()))

	require.Error(t, ctrl.Move(context.Background(), 0, 9))
	assert.Equal(t, []string{"a", "b", "c"}, itemIDs(ctrl.Items()))
}

func TestItemsReturnsCopy(t *testing.T) {
	store := &fakeStore{items: three()}
	ctrl := controller.New(store)
	require.NoError(t, ctrl.Load(context.Background()))

	snapshot := ctrl.Items()
	snapshot[0].Name = "mutated"
	assert.Equal(t, "a", ctrl.Items()[0].Name)
}
