package engine_test

import (
	"context"
	"testing"
	"time"

	"sprintdesk/internal/config"
	"sprintdesk/internal/db"
	"sprintdesk/internal/domain"
	"sprintdesk/internal/engine"
	"sprintdesk/internal/migrate"
	"sprintdesk/internal/order"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Idea   domain.Idea
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()
	idea, err := eng.CreateIdea(ctx, engine.IdeaCreateOptions{Title: "launch prep", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create idea: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Idea: idea}
}

func (env testEnv) mustCreate(t *testing.T, name string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Name:    name,
		IdeaID:  env.Idea.ID,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task %s: %v", name, err)
	}
	return task
}

func (env testEnv) siblings(t *testing.T) []domain.Task {
	t.Helper()
	items, err := env.Engine.SortedSiblings(env.Ctx, engine.Scope{IdeaID: env.Idea.ID})
	if err != nil {
		t.Fatalf("list siblings: %v", err)
	}
	return items
}

func TestCreateTaskAssignsDenseRanks(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	b := env.mustCreate(t, "b")
	if a.SortOrder != 1 || b.SortOrder != 2 {
		t.Fatalf("ranks: a=%d b=%d, want 1 and 2", a.SortOrder, b.SortOrder)
	}
	top, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Name:     "urgent",
		IdeaID:   env.Idea.ID,
		Position: order.Top,
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("create top: %v", err)
	}
	if top.SortOrder != 1 {
		t.Fatalf("top insert rank %d, want 1", top.SortOrder)
	}
	items := env.siblings(t)
	want := []string{"urgent", "a", "b"}
	for i, name := range want {
		if items[i].Name != name || items[i].SortOrder != i+1 {
			t.Fatalf("position %d: %s/%d, want %s/%d", i, items[i].Name, items[i].SortOrder, name, i+1)
		}
	}
}

func TestCreateTaskRequiresName(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "   ", IdeaID: env.Idea.ID}); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestSubtasksCannotNest(t *testing.T) {
	env := newTestEnv(t)
	parent := env.mustCreate(t, "parent")
	child, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "child", ParentID: parent.ID, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	if child.SubOrder != 1 {
		t.Fatalf("subtask rank %d, want 1", child.SubOrder)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "grandchild", ParentID: child.ID}); err == nil {
		t.Fatal("expected nesting error")
	}
}

func TestFocusNowSingleton(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	b := env.mustCreate(t, "b")

	a, err := env.Engine.SetFocusNow(env.Ctx, a.ID, true, "tester")
	if err != nil || !a.IsFocusNow {
		t.Fatalf("focus a: %v", err)
	}
	a, err = env.Engine.ToggleFocusToday(env.Ctx, a.ID, "tester")
	if err != nil || !a.IsFocusToday {
		t.Fatalf("today a: %v", err)
	}

	// Flagging b steals the spotlight but leaves a's today bit alone.
	b, err = env.Engine.SetFocusNow(env.Ctx, b.ID, true, "tester")
	if err != nil || !b.IsFocusNow {
		t.Fatalf("focus b: %v", err)
	}
	a, err = env.Engine.Repo.GetTask(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.IsFocusNow {
		t.Fatal("a kept the spotlight after b took it")
	}
	if !a.IsFocusToday {
		t.Fatal("a lost its today bit when the spotlight moved")
	}
}

func TestCompleteClearsNowKeepsToday(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	if _, err := env.Engine.SetFocusNow(env.Ctx, a.ID, true, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ToggleFocusToday(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	done, err := env.Engine.CompleteTask(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Fatal("completion not recorded")
	}
	if done.IsFocusNow {
		t.Fatal("completed task kept the spotlight")
	}
	if !done.IsFocusToday {
		t.Fatal("completion should preserve the today bit")
	}
}

func TestCompleteClosesRankGap(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "a")
	b := env.mustCreate(t, "b")
	env.mustCreate(t, "c")

	if _, err := env.Engine.CompleteTask(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	items := env.siblings(t)
	// a and c close up to 1,2; b sinks below.
	if items[0].Name != "a" || items[0].SortOrder != 1 {
		t.Fatalf("first: %s/%d", items[0].Name, items[0].SortOrder)
	}
	if items[1].Name != "c" || items[1].SortOrder != 2 {
		t.Fatalf("second: %s/%d", items[1].Name, items[1].SortOrder)
	}
	if items[2].Name != "b" || !items[2].Completed {
		t.Fatalf("completed task not at bottom: %s", items[2].Name)
	}
}

func TestCompletedSortNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	b := env.mustCreate(t, "b")
	if _, err := env.Engine.CompleteTask(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	items := env.siblings(t)
	if items[0].Name != "b" || items[1].Name != "a" {
		t.Fatalf("completed order: %s then %s, want b then a", items[0].Name, items[1].Name)
	}
}

func TestReopenDoesNotRegainSpotlight(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	env.mustCreate(t, "b")
	if _, err := env.Engine.SetFocusNow(env.Ctx, a.ID, true, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	reopened, err := env.Engine.ReopenTask(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Completed || reopened.CompletedAt != nil {
		t.Fatal("reopen left completion state")
	}
	if reopened.IsFocusNow {
		t.Fatal("reopened task regained the spotlight")
	}
	// Re-enters the rank domain at the bottom.
	if reopened.SortOrder != 2 {
		t.Fatalf("reopened rank %d, want 2", reopened.SortOrder)
	}
}

func TestFocusNowRejectsCompleted(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	if _, err := env.Engine.CompleteTask(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetFocusNow(env.Ctx, a.ID, true, "tester"); err == nil {
		t.Fatal("expected error for completed task")
	}
}

func TestRemoveFromTodayKeepsSpotlight(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	if _, err := env.Engine.ToggleFocusToday(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetFocusNow(env.Ctx, a.ID, true, "tester"); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.RemoveFromToday(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("remove from today: %v", err)
	}
	if a.IsFocusToday {
		t.Fatal("today bit not cleared")
	}
	if !a.IsFocusNow {
		t.Fatal("spotlight lost on today removal")
	}
	// Still visible in the Today scope through the spotlight.
	if !a.InToday() {
		t.Fatal("spotlight holder should remain in Today scope")
	}
	today, err := env.Engine.SortedSiblings(env.Ctx, engine.Scope{Today: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(today) != 1 || today[0].ID != a.ID {
		t.Fatalf("today scope: %d items", len(today))
	}
}

func TestRenameToSentinelDeletes(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	env.mustCreate(t, "b")

	name := "  XXX  "
	_, deleted, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, Rename: &name, ActorID: "tester"})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !deleted {
		t.Fatal("sentinel rename should delete")
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, a.ID); err == nil {
		t.Fatal("task still present after sentinel rename")
	}
	// Survivor closes the gap.
	items := env.siblings(t)
	if len(items) != 1 || items[0].SortOrder != 1 {
		t.Fatalf("survivor rank: %v", items)
	}
}

func TestBlankRenameKeepsName(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "keep me")
	blank := "   "
	got, deleted, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, Rename: &blank, ActorID: "tester"})
	if err != nil || deleted {
		t.Fatalf("blank rename: %v deleted=%v", err, deleted)
	}
	if got.Name != "keep me" {
		t.Fatalf("name changed to %q", got.Name)
	}
}

func TestMoveTask(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "a")
	env.mustCreate(t, "b")
	env.mustCreate(t, "c")

	seq, err := env.Engine.MoveTask(env.Ctx, engine.ReorderOptions{
		Scope:   engine.Scope{IdeaID: env.Idea.ID},
		From:    2,
		To:      0,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	want := []string{"c", "a", "b"}
	for i, name := range want {
		if seq[i].Name != name || seq[i].SortOrder != i+1 {
			t.Fatalf("position %d: %s/%d", i, seq[i].Name, seq[i].SortOrder)
		}
	}
	// Persisted, not just returned.
	items := env.siblings(t)
	for i, name := range want {
		if items[i].Name != name {
			t.Fatalf("persisted position %d: %s", i, items[i].Name)
		}
	}
}

func TestMoveTaskOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "a")
	if _, err := env.Engine.MoveTask(env.Ctx, engine.ReorderOptions{
		Scope: engine.Scope{IdeaID: env.Idea.ID},
		From:  0,
		To:    5,
	}); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestTodayMoveKeepsIdeaRanksDense(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	env.mustCreate(t, "b")
	c := env.mustCreate(t, "c")
	for _, id := range []string{a.ID, c.ID} {
		if _, err := env.Engine.ToggleFocusToday(env.Ctx, id, "tester"); err != nil {
			t.Fatalf("flag today: %v", err)
		}
	}

	// Today shows a then c; move c in front of a.
	seq, err := env.Engine.MoveTask(env.Ctx, engine.ReorderOptions{
		Scope:   engine.Scope{Today: true},
		From:    1,
		To:      0,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("today move: %v", err)
	}
	if len(seq) != 2 || seq[0].Name != "c" || seq[1].Name != "a" {
		t.Fatalf("today order after move: %s, %s", seq[0].Name, seq[1].Name)
	}

	// The idea keeps a dense 1..N permutation: c and a traded the slots the
	// today members held, b never moved.
	items := env.siblings(t)
	want := map[string]int{"c": 1, "b": 2, "a": 3}
	for _, it := range items {
		if it.SortOrder != want[it.Name] {
			t.Fatalf("%s rank %d, want %d", it.Name, it.SortOrder, want[it.Name])
		}
	}
}

func TestTodayMoveNeverWritesSubtaskSortOrder(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	parent := env.mustCreate(t, "parent")
	sub, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "sub", ParentID: parent.ID, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	for _, id := range []string{a.ID, sub.ID} {
		if _, err := env.Engine.ToggleFocusToday(env.Ctx, id, "tester"); err != nil {
			t.Fatalf("flag today: %v", err)
		}
	}

	// Each today member is alone in its own sibling scope, so the move is a
	// per-scope no-op: the subtask keeps sub_order 1 and an untouched
	// sort_order, and a keeps its idea rank.
	if _, err := env.Engine.MoveTask(env.Ctx, engine.ReorderOptions{
		Scope:   engine.Scope{Today: true},
		From:    1,
		To:      0,
		ActorID: "tester",
	}); err != nil {
		t.Fatalf("today move: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubOrder != 1 || got.SortOrder != 0 {
		t.Fatalf("subtask ranks after today move: sub_order=%d sort_order=%d", got.SubOrder, got.SortOrder)
	}
	got, err = env.Engine.Repo.GetTask(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SortOrder != 1 {
		t.Fatalf("idea rank after today move: %d, want 1", got.SortOrder)
	}
}

func TestMoveTaskToRank(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	env.mustCreate(t, "b")
	env.mustCreate(t, "c")

	moved, err := env.Engine.MoveTaskToRank(env.Ctx, a.ID, 3, "tester")
	if err != nil {
		t.Fatalf("move to rank: %v", err)
	}
	if moved.SortOrder != 3 {
		t.Fatalf("rank %d, want 3", moved.SortOrder)
	}
	items := env.siblings(t)
	want := []string{"b", "c", "a"}
	for i, name := range want {
		if items[i].Name != name || items[i].SortOrder != i+1 {
			t.Fatalf("position %d: %s/%d", i, items[i].Name, items[i].SortOrder)
		}
	}

	if _, err := env.Engine.MoveTaskToRank(env.Ctx, a.ID, 4, "tester"); err == nil {
		t.Fatal("expected out of range error")
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MoveTaskToRank(env.Ctx, a.ID, 1, "tester"); err == nil {
		t.Fatal("expected error for completed task")
	}
}

func TestDeleteTaskCascadesSubtasks(t *testing.T) {
	env := newTestEnv(t)
	parent := env.mustCreate(t, "parent")
	child, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "child", ParentID: parent.ID, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, parent.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, child.ID); err == nil {
		t.Fatal("subtask survived parent deletion")
	}
}

func TestDeleteIdeaUnlinksTasks(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	if err := env.Engine.DeleteIdea(env.Ctx, env.Idea.ID, "tester"); err != nil {
		t.Fatalf("delete idea: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("task should survive idea deletion: %v", err)
	}
	if got.IdeaID != nil {
		t.Fatalf("task still linked to deleted idea: %v", *got.IdeaID)
	}
}

func TestDeleteMilestoneUnlinksTasks(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMilestone(env.Ctx, engine.MilestoneCreateOptions{
		Name:     "beta",
		TargetAt: "2026-06-01T00:00:00Z",
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Name:        "a",
		IdeaID:      env.Idea.ID,
		MilestoneID: m.ID,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteMilestone(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatalf("delete milestone: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("task should survive milestone deletion: %v", err)
	}
	if got.MilestoneID != nil {
		t.Fatal("task still linked to deleted milestone")
	}
}

func TestMilestoneProgressCounts(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMilestone(env.Ctx, engine.MilestoneCreateOptions{Name: "beta", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	var tasks []domain.Task
	for _, name := range []string{"a", "b", "c"} {
		task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			Name: name, IdeaID: env.Idea.ID, MilestoneID: m.ID, ActorID: "tester",
		})
		if err != nil {
			t.Fatal(err)
		}
		tasks = append(tasks, task)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, tasks[0].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetMilestone(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TaskCount != 3 || got.CompletedCount != 1 {
		t.Fatalf("progress %d/%d, want 1/3", got.CompletedCount, got.TaskCount)
	}
}

func TestEventsAreAppended(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "a")
	name := "xxx"
	if _, _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, Rename: &name, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "task.deleted", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one task.deleted event, got %d", len(events))
	}
	if events[0].ActorID != "tester" {
		t.Fatalf("actor %q", events[0].ActorID)
	}
}
