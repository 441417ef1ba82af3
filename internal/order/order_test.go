package order_test

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"sprintdesk/internal/domain"
	"sprintdesk/internal/order"
)

func task(id string, rank int) domain.Task {
	return domain.Task{ID: id, Name: id, SortOrder: rank}
}

func doneTask(id string, completedAt string) domain.Task {
	return domain.Task{ID: id, Name: id, Completed: true, CompletedAt: &completedAt}
}

func ranks(tasks []domain.Task) []int {
	out := make([]int, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.SortOrder)
	}
	return out
}

func ids(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestSortSiblingsCompletedSinkNewestFirst(t *testing.T) {
	tasks := []domain.Task{
		doneTask("old", "2024-01-01T00:00:00Z"),
		task("b", 2),
		doneTask("new", "2024-06-01T00:00:00Z"),
		task("a", 1),
	}
	got := order.SortSiblings(tasks, order.ByOrder)
	want := []string{"a", "b", "new", "old"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s (full: %v)", i, got[i].ID, id, ids(got))
		}
	}
}

func TestSortSiblingsNilCompletedAtLast(t *testing.T) {
	noStamp := domain.Task{ID: "nostamp", Completed: true}
	tasks := []domain.Task{noStamp, doneTask("stamped", "2024-01-01T00:00:00Z")}
	got := order.SortSiblings(tasks, order.ByOrder)
	if got[0].ID != "stamped" || got[1].ID != "nostamp" {
		t.Fatalf("unexpected order: %v", ids(got))
	}
}

func TestReorderMoveDownAndPlan(t *testing.T) {
	seq := []domain.Task{task("a", 1), task("b", 2), task("c", 3), task("d", 4)}
	got, plan, err := order.Reorder(seq, 0, 2, order.ByOrder)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	wantIDs := []string{"b", "c", "a", "d"}
	for i, id := range wantIDs {
		if got[i].ID != id || got[i].SortOrder != i+1 {
			t.Fatalf("position %d: got %s/%d want %s/%d", i, got[i].ID, got[i].SortOrder, id, i+1)
		}
	}
	// d kept rank 4, so the plan touches only a, b, c.
	if len(plan) != 3 {
		t.Fatalf("plan size %d, want 3: %v", len(plan), plan)
	}
	for _, c := range plan {
		if c.ID == "d" {
			t.Fatalf("plan should not touch unmoved tail: %v", plan)
		}
	}
}

func TestReorderNoopMove(t *testing.T) {
	seq := []domain.Task{task("a", 1), task("b", 2)}
	got, plan, err := order.Reorder(seq, 1, 1, order.ByOrder)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if len(plan) != 0 {
		t.Fatalf("no-op move produced plan: %v", plan)
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("no-op move changed sequence: %v", ids(got))
	}
}

func TestReorderOutOfRange(t *testing.T) {
	seq := []domain.Task{task("a", 1)}
	if _, _, err := order.Reorder(seq, 0, 5, order.ByOrder); err == nil {
		t.Fatal("expected out of range error")
	}
	if _, _, err := order.Reorder(nil, 0, 0, order.ByOrder); err == nil {
		t.Fatal("expected error on empty sequence")
	}
}

func TestRenumberClosesGap(t *testing.T) {
	// Ranks 1,3,4 as left behind by a completion at rank 2.
	seq := []domain.Task{task("a", 1), task("c", 3), task("d", 4)}
	got, plan := order.Renumber(seq, order.ByOrder)
	wantRanks := []int{1, 2, 3}
	for i, r := range wantRanks {
		if got[i].SortOrder != r {
			t.Fatalf("ranks after renumber: %v, want %v", ranks(got), wantRanks)
		}
	}
	if len(plan) != 2 {
		t.Fatalf("plan should touch only c and d: %v", plan)
	}
}

func TestRenumberEmpty(t *testing.T) {
	got, plan := order.Renumber(nil, order.ByOrder)
	if got != nil || plan != nil {
		t.Fatalf("empty renumber: got %v plan %v", got, plan)
	}
}

func TestInsertPlanTopShiftsAll(t *testing.T) {
	incomplete := []domain.Task{task("a", 1), task("b", 2)}
	rank, shifts := order.InsertPlan(incomplete, order.Top, order.ByOrder)
	if rank != 1 {
		t.Fatalf("top rank %d, want 1", rank)
	}
	if len(shifts) != 2 || shifts[0].NewOrder != 2 || shifts[1].NewOrder != 3 {
		t.Fatalf("unexpected shifts: %v", shifts)
	}
}

func TestInsertPlanBottom(t *testing.T) {
	incomplete := []domain.Task{task("a", 1), task("b", 2)}
	rank, shifts := order.InsertPlan(incomplete, order.Bottom, order.ByOrder)
	if rank != 3 || shifts != nil {
		t.Fatalf("bottom: rank %d shifts %v", rank, shifts)
	}
	rank, shifts = order.InsertPlan(nil, order.Bottom, order.ByOrder)
	if rank != 1 || shifts != nil {
		t.Fatalf("empty scope: rank %d shifts %v", rank, shifts)
	}
}

func TestPermuteSubsetTradesHeldSlots(t *testing.T) {
	scope := []domain.Task{task("a", 1), task("b", 2), task("c", 3)}
	// a and c swap within slots {1,3}; b's rank is not a subset slot.
	plan := order.PermuteSubset(scope, []domain.Task{task("c", 0), task("a", 0)}, order.ByOrder)
	if len(plan) != 2 {
		t.Fatalf("plan size %d: %v", len(plan), plan)
	}
	want := map[string]int{"c": 1, "a": 3}
	for _, ch := range plan {
		if want[ch.ID] != ch.NewOrder {
			t.Fatalf("change %s → %d, want %d", ch.ID, ch.NewOrder, want[ch.ID])
		}
	}
}

func TestPermuteSubsetIgnoresForeignTasks(t *testing.T) {
	scope := []domain.Task{task("a", 1), task("b", 2)}
	plan := order.PermuteSubset(scope, []domain.Task{task("x", 0), task("b", 0), task("a", 0)}, order.ByOrder)
	want := map[string]int{"b": 1, "a": 2}
	if len(plan) != 2 {
		t.Fatalf("plan size %d: %v", len(plan), plan)
	}
	for _, ch := range plan {
		if want[ch.ID] != ch.NewOrder {
			t.Fatalf("change %s → %d, want %d", ch.ID, ch.NewOrder, want[ch.ID])
		}
	}
}

func TestPermuteSubsetNoopOrderedSubset(t *testing.T) {
	scope := []domain.Task{task("a", 1), task("b", 2), task("c", 3)}
	if plan := order.PermuteSubset(scope, []domain.Task{task("a", 0), task("c", 0)}, order.ByOrder); plan != nil {
		t.Fatalf("already-ordered subset produced plan: %v", plan)
	}
}

func TestResequenceAppliesEffectiveRanks(t *testing.T) {
	seq := []domain.Task{task("a", 1), task("b", 2), task("c", 3)}
	got := order.Resequence(seq, []order.Change{
		{ID: "c", NewOrder: 1},
		{ID: "a", NewOrder: 2},
		{ID: "b", NewOrder: 3},
		{ID: "ghost", NewOrder: 1},
	})
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: %s, want %s (full: %v)", i, got[i].ID, id, ids(got))
		}
	}
	// Members without a plan entry keep their current position.
	got = order.Resequence(seq, []order.Change{{ID: "c", NewOrder: 1}, {ID: "a", NewOrder: 2}})
	if got[0].ID != "c" {
		t.Fatalf("partial plan: %v", ids(got))
	}
}

func TestReorderDensityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")
		seq := make([]domain.Task, 0, n)
		for i := 0; i < n; i++ {
			seq = append(seq, task(fmt.Sprintf("t%d", i), i+1))
		}
		from := rapid.IntRange(0, n-1).Draw(t, "from")
		to := rapid.IntRange(0, n-1).Draw(t, "to")
		got, plan, err := order.Reorder(seq, from, to, order.ByOrder)
		if err != nil {
			t.Fatalf("reorder: %v", err)
		}
		// Ranks stay dense 1..N and the set of IDs is preserved.
		seen := make(map[string]bool, n)
		for i, task := range got {
			if task.SortOrder != i+1 {
				t.Fatalf("rank at %d is %d", i, task.SortOrder)
			}
			seen[task.ID] = true
		}
		if len(seen) != n {
			t.Fatalf("lost elements: %d of %d", len(seen), n)
		}
		if got[to].ID != seq[from].ID {
			t.Fatalf("moved element not at target: got %s want %s", got[to].ID, seq[from].ID)
		}
		for _, c := range plan {
			if c.NewOrder < 1 || c.NewOrder > n {
				t.Fatalf("plan rank out of range: %v", c)
			}
		}
	})
}
