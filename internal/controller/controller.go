// Package controller keeps a client-side cache of one sibling set and
// applies drag moves optimistically: the cache is rewritten first, then the
// reindex plan is persisted as one batch. A failed persist rolls the cache
// back and refetches the server's sequence.
package controller

import (
	"context"
	"sync"

	"sprintdesk/internal/domain"
	"sprintdesk/internal/order"
	sprintdesksdk "sprintdesk/sdk/go"
)

// Item is the controller's view of a task: just enough to render a list row
// and compute reorders.
type Item struct {
	ID    string
	Name  string
	Order int
}

// Store is the remote side of the controller. Fetch returns the scope's
// incomplete tasks in display order; Persist applies a reindex plan and
// returns the authoritative sequence.
type Store interface {
	Fetch(ctx context.Context) ([]Item, error)
	Persist(ctx context.Context, changes []order.Change) ([]Item, error)
}

type Controller struct {
	mu         sync.Mutex
	store      Store
	items      []Item
	generation uint64
}

func New(store Store) *Controller {
	return &Controller{store: store}
}

// Load replaces the cache with the server's sequence.
func (c *Controller) Load(ctx context.Context) error {
	items, err := c.store.Fetch(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = items
	c.generation++
	c.mu.Unlock()
	return nil
}

// Items returns a copy of the cached sequence.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Move relocates the element at from to position to. The cache is updated
// before the store call so the UI can re-render immediately. If the store
// rejects the plan, the cache is rolled back to the pre-move snapshot and
// then refreshed from the server; a refetch that loses the race to a newer
// local change is discarded.
func (c *Controller) Move(ctx context.Context, from, to int) error {
	c.mu.Lock()
	snapshot := make([]Item, len(c.items))
	copy(snapshot, c.items)

	seq := itemsToTasks(c.items)
	newSeq, plan, err := order.Reorder(seq, from, to, order.ByOrder)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.items = tasksToItems(newSeq)
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if len(plan) == 0 {
		return nil
	}

	authoritative, persistErr := c.store.Persist(ctx, plan)
	if persistErr == nil {
		c.mu.Lock()
		if c.generation == gen {
			c.items = authoritative
		}
		c.mu.Unlock()
		return nil
	}

	// Rollback, then trust the server over the snapshot.
	c.mu.Lock()
	if c.generation == gen {
		c.items = snapshot
		c.generation++
		gen = c.generation
	} else {
		gen = 0
	}
	c.mu.Unlock()

	if gen != 0 {
		if fresh, err := c.store.Fetch(ctx); err == nil {
			c.mu.Lock()
			if c.generation == gen {
				c.items = fresh
				c.generation++
			}
			c.mu.Unlock()
		}
	}
	return persistErr
}

func itemsToTasks(items []Item) []domain.Task {
	out := make([]domain.Task, 0, len(items))
	for _, it := range items {
		out = append(out, domain.Task{ID: it.ID, Name: it.Name, SortOrder: it.Order})
	}
	return out
}

func tasksToItems(tasks []domain.Task) []Item {
	out := make([]Item, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, Item{ID: t.ID, Name: t.Name, Order: t.SortOrder})
	}
	return out
}

// RemoteStore adapts the HTTP SDK client to the Store interface for one
// reorder scope.
type RemoteStore struct {
	Client *sprintdesksdk.Client
	Scope  sprintdesksdk.ReorderScope
}

func (s RemoteStore) Fetch(ctx context.Context) ([]Item, error) {
	var tasks []sprintdesksdk.Task
	var err error
	switch {
	case s.Scope.Today:
		tasks, err = s.Client.Today(ctx)
	case s.Scope.ParentID != "":
		tasks, err = s.Client.Subtasks(ctx, s.Scope.ParentID)
	default:
		tasks, err = s.Client.IdeaTasks(ctx, s.Scope.IdeaID)
	}
	if err != nil {
		return nil, err
	}
	return sdkItems(tasks, s.Scope.ParentID != ""), nil
}

func (s RemoteStore) Persist(ctx context.Context, changes []order.Change) ([]Item, error) {
	out := make([]sprintdesksdk.ReorderChange, 0, len(changes))
	for _, ch := range changes {
		out = append(out, sprintdesksdk.ReorderChange{ID: ch.ID, NewOrder: ch.NewOrder})
	}
	tasks, err := s.Client.Reorder(ctx, s.Scope, out)
	if err != nil {
		return nil, err
	}
	return sdkItems(tasks, s.Scope.ParentID != ""), nil
}

func sdkItems(tasks []sprintdesksdk.Task, sub bool) []Item {
	items := make([]Item, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		rank := t.Order
		if sub {
			rank = t.SubOrder
		}
		items = append(items, Item{ID: t.ID, Name: t.Name, Order: rank})
	}
	return items
}
