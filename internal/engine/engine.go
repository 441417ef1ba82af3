package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sprintdesk/internal/config"
	"sprintdesk/internal/domain"
	"sprintdesk/internal/events"
	"sprintdesk/internal/order"
	"sprintdesk/internal/repo"
)

// DeleteName is the legacy rename convention: committing a rename to this
// value (trimmed, case-insensitive) deletes the task instead of renaming it.
const DeleteName = "xxx"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Scope selects one sibling set: the top-level tasks of an idea (empty
// IdeaID means the unlinked pool), the subtasks of one parent, or the
// cross-idea Today set.
type Scope struct {
	IdeaID   string
	ParentID string
	Today    bool
}

func (s Scope) field() order.Field {
	if s.ParentID != "" {
		return order.BySubOrder
	}
	return order.ByOrder
}

func (e Engine) scopeTasks(ctx context.Context, s Scope) ([]domain.Task, error) {
	switch {
	case s.Today:
		return e.Repo.ListToday(ctx)
	case s.ParentID != "":
		return e.Repo.ListSubtasks(ctx, s.ParentID)
	default:
		return e.Repo.ListTopLevelSiblings(ctx, s.IdeaID)
	}
}

// SortedSiblings returns the display sequence for a scope: incomplete tasks
// by rank, then completed tasks newest-first.
func (e Engine) SortedSiblings(ctx context.Context, s Scope) ([]domain.Task, error) {
	tasks, err := e.scopeTasks(ctx, s)
	if err != nil {
		return nil, err
	}
	return order.SortSiblings(tasks, s.field()), nil
}

func scopeOf(t domain.Task) Scope {
	if t.ParentID != nil {
		return Scope{ParentID: *t.ParentID}
	}
	if t.IdeaID != nil {
		return Scope{IdeaID: *t.IdeaID}
	}
	return Scope{}
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	Name        string
	IdeaID      string
	ParentID    string
	MilestoneID string
	Note        string
	Position    order.Position
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Task{}, errors.New("name is required")
	}
	if opts.Position == "" {
		opts.Position = order.Bottom
	}
	if opts.Position != order.Top && opts.Position != order.Bottom {
		return domain.Task{}, fmt.Errorf("invalid position %q", opts.Position)
	}
	if opts.IdeaID != "" {
		if _, err := e.Repo.GetIdea(ctx, opts.IdeaID); err != nil {
			return domain.Task{}, fmt.Errorf("idea %s: %w", opts.IdeaID, err)
		}
	}
	if opts.MilestoneID != "" {
		if _, err := e.Repo.GetMilestone(ctx, opts.MilestoneID); err != nil {
			return domain.Task{}, fmt.Errorf("milestone %s: %w", opts.MilestoneID, err)
		}
	}
	if opts.ParentID != "" {
		parent, err := e.Repo.GetTask(ctx, opts.ParentID)
		if err != nil {
			return domain.Task{}, fmt.Errorf("parent %s: %w", opts.ParentID, err)
		}
		if parent.ParentID != nil {
			return domain.Task{}, errors.New("subtasks cannot have their own subtasks")
		}
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	t := domain.Task{
		ID:          id,
		ParentID:    optionalString(opts.ParentID),
		IdeaID:      optionalString(opts.IdeaID),
		MilestoneID: optionalString(opts.MilestoneID),
		Name:        name,
		Note:        optionalString(opts.Note),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	scope := scopeOf(t)
	field := scope.field()

	siblings, err := e.scopeTasks(ctx, scope)
	if err != nil {
		return domain.Task{}, err
	}
	incomplete := order.Incomplete(order.SortSiblings(siblings, field))
	rank, shifts := order.InsertPlan(incomplete, opts.Position, field)
	if field == order.BySubOrder {
		t.SubOrder = rank
	} else {
		t.SortOrder = rank
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	// The shift and the insert commit together so siblings are never left
	// with duplicate or gapped ranks.
	if err := e.Repo.ApplyReorder(ctx, tx, field, shifts, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{
		"name": t.Name, "position": string(opts.Position),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed partial updates. Pointer fields are
// applied only when non-nil; NoteSet/MilestoneSet distinguish "clear" from
// "leave alone".
type TaskUpdateOptions struct {
	ID           string
	Rename       *string
	Note         *string
	NoteSet      bool
	MilestoneID  *string
	MilestoneSet bool
	IdeaID       *string
	IdeaSet      bool
	ActorID      string
}

// UpdateTask applies field edits. Renaming to the legacy delete sentinel
// removes the task and reports deleted=true; a blank rename is a no-op and
// keeps the previous name.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (task domain.Task, deleted bool, err error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, false, err
	}
	if opts.Rename != nil {
		name := strings.TrimSpace(*opts.Rename)
		if strings.EqualFold(name, DeleteName) {
			if err := e.deleteTask(ctx, t, opts.ActorID, "rename"); err != nil {
				return t, false, err
			}
			return t, true, nil
		}
		if name != "" {
			t.Name = name
		}
	}
	if opts.NoteSet {
		t.Note = opts.Note
		if opts.Note != nil && strings.TrimSpace(*opts.Note) == "" {
			t.Note = nil
		}
	}
	if opts.MilestoneSet {
		if opts.MilestoneID != nil && *opts.MilestoneID != "" {
			if _, err := e.Repo.GetMilestone(ctx, *opts.MilestoneID); err != nil {
				return t, false, fmt.Errorf("milestone %s: %w", *opts.MilestoneID, err)
			}
			t.MilestoneID = opts.MilestoneID
		} else {
			t.MilestoneID = nil
		}
	}
	if opts.IdeaSet {
		if opts.IdeaID != nil && *opts.IdeaID != "" {
			if _, err := e.Repo.GetIdea(ctx, *opts.IdeaID); err != nil {
				return t, false, fmt.Errorf("idea %s: %w", *opts.IdeaID, err)
			}
			t.IdeaID = opts.IdeaID
		} else {
			t.IdeaID = nil
		}
	}
	t.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, false, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, false, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", t.ID, opts.ActorID, events.EventPayload{"name": t.Name}); err != nil {
		return t, false, err
	}
	if err := tx.Commit(); err != nil {
		return t, false, err
	}
	return t, false, nil
}

// CompleteTask marks a task done. A completed task cannot hold the "now"
// spotlight; the today bit is preserved. Remaining incomplete siblings are
// renumbered so their ranks stay dense.
func (e Engine) CompleteTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Completed {
		return t, nil
	}
	now := e.nowString()
	t.Completed = true
	t.CompletedAt = &now
	t.IsFocusNow = false
	t.UpdatedAt = now

	scope := scopeOf(t)
	field := scope.field()
	siblings, err := e.scopeTasks(ctx, scope)
	if err != nil {
		return t, err
	}
	remaining := make([]domain.Task, 0, len(siblings))
	for _, s := range order.Incomplete(order.SortSiblings(siblings, field)) {
		if s.ID != t.ID {
			remaining = append(remaining, s)
		}
	}
	_, plan := order.Renumber(remaining, field)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Repo.ApplyReorder(ctx, tx, field, plan, now); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", "task", t.ID, actorID, events.EventPayload{"name": t.Name}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// ReopenTask clears completion. Focus bits are untouched: a re-opened task
// does not regain the spotlight. It re-enters the rank domain at the bottom.
func (e Engine) ReopenTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if !t.Completed {
		return t, nil
	}
	now := e.nowString()
	t.Completed = false
	t.CompletedAt = nil
	t.UpdatedAt = now

	scope := scopeOf(t)
	field := scope.field()
	siblings, err := e.scopeTasks(ctx, scope)
	if err != nil {
		return t, err
	}
	incomplete := order.Incomplete(order.SortSiblings(siblings, field))
	rank, _ := order.InsertPlan(incomplete, order.Bottom, field)
	if field == order.BySubOrder {
		t.SubOrder = rank
	} else {
		t.SortOrder = rank
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.reopened", "task", t.ID, actorID, nil); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// SetFocusNow turns the "now" spotlight on or off for a task. Turning it on
// clears the previous holder first, inside the same transaction, so the
// partial unique index on focus_now never rejects the write. Today bits are
// preserved on both tasks.
func (e Engine) SetFocusNow(ctx context.Context, id string, on bool, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if on && t.Completed {
		return t, errors.New("completed task cannot be in focus now")
	}
	now := e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if on {
		if err := e.Repo.ClearFocusNow(ctx, tx, now); err != nil {
			return t, err
		}
	}
	t.IsFocusNow = on
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.focus.changed", "task", t.ID, actorID, events.EventPayload{
		"focus": t.Focus().String(),
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// ToggleFocusToday flips today membership; independent of the spotlight.
func (e Engine) ToggleFocusToday(ctx context.Context, id, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	return e.setFocusToday(ctx, t, !t.IsFocusToday, actorID)
}

// RemoveFromToday clears the today bit only. A task that also holds "now"
// keeps it and therefore remains visible in the Today scope.
func (e Engine) RemoveFromToday(ctx context.Context, id, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	return e.setFocusToday(ctx, t, false, actorID)
}

func (e Engine) setFocusToday(ctx context.Context, t domain.Task, today bool, actorID string) (domain.Task, error) {
	if t.IsFocusToday == today {
		return t, nil
	}
	t.IsFocusToday = today
	t.UpdatedAt = e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.focus.changed", "task", t.ID, actorID, events.EventPayload{
		"focus": t.Focus().String(),
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// ReorderOptions move one element of a scope's displayed incomplete
// sequence. Indices address that filtered sequence, never the raw task set.
type ReorderOptions struct {
	Scope   Scope
	From    int
	To      int
	ActorID string
}

// MoveTask computes the reorder server-side and persists the minimal plan
// atomically. A move to the element's own position writes nothing. Today is
// a view over many sibling scopes, so its moves go through ReorderToday
// rather than a direct rank write.
func (e Engine) MoveTask(ctx context.Context, opts ReorderOptions) ([]domain.Task, error) {
	field := opts.Scope.field()
	tasks, err := e.scopeTasks(ctx, opts.Scope)
	if err != nil {
		return nil, err
	}
	seq := order.Incomplete(order.SortSiblings(tasks, field))
	newSeq, plan, err := order.Reorder(seq, opts.From, opts.To, field)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return newSeq, nil
	}
	if opts.Scope.Today {
		if err := e.ReorderToday(ctx, newSeq, opts.ActorID); err != nil {
			return nil, err
		}
		return e.SortedSiblings(ctx, opts.Scope)
	}
	if err := e.ApplyReorderPlan(ctx, field, plan, opts.ActorID); err != nil {
		return nil, err
	}
	return newSeq, nil
}

// ReorderToday persists a new Today sequence. The ranks backing Today belong
// to per-idea, per-parent, and unlinked-pool scopes, so a cross-scope 1..N
// rewrite would corrupt those scopes. Instead each member is permuted within
// the rank slots its own scope already lends to Today members: every scope's
// incomplete ranks remain the same dense set, tasks outside Today never
// move, and a subtask's sort_order is never touched. Cross-scope
// interleaving in the Today view follows the underlying per-scope ranks.
func (e Engine) ReorderToday(ctx context.Context, seq []domain.Task, actorID string) error {
	type scopedPlan struct {
		field order.Field
		plan  []order.Change
	}
	var plans []scopedPlan
	ids := make([]string, 0, len(seq))
	seen := make(map[Scope]bool)
	for _, t := range seq {
		ids = append(ids, t.ID)
		s := scopeOf(t)
		if seen[s] {
			continue
		}
		seen[s] = true
		siblings, err := e.scopeTasks(ctx, s)
		if err != nil {
			return err
		}
		incomplete := order.Incomplete(order.SortSiblings(siblings, s.field()))
		if plan := order.PermuteSubset(incomplete, seq, s.field()); len(plan) > 0 {
			plans = append(plans, scopedPlan{field: s.field(), plan: plan})
		}
	}
	if len(plans) == 0 {
		return nil
	}
	now := e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, sp := range plans {
		if err := e.Repo.ApplyReorder(ctx, tx, sp.field, sp.plan, now); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.reordered", "task", "", actorID, events.EventPayload{
		"ids": ids, "scope": "today",
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// MoveTaskToRank moves a task to a 1-based rank among the incomplete members
// of its own sibling scope. Completed tasks sit outside the rank domain.
func (e Engine) MoveTaskToRank(ctx context.Context, id string, rank int, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Completed {
		return t, errors.New("completed tasks cannot be reordered")
	}
	scope := scopeOf(t)
	field := scope.field()
	tasks, err := e.scopeTasks(ctx, scope)
	if err != nil {
		return t, err
	}
	seq := order.Incomplete(order.SortSiblings(tasks, field))
	from := -1
	for i, s := range seq {
		if s.ID == t.ID {
			from = i
			break
		}
	}
	if from < 0 {
		return t, repo.ErrNotFound
	}
	if rank < 1 || rank > len(seq) {
		return t, errors.New("target rank is out of range")
	}
	_, plan, err := order.Reorder(seq, from, rank-1, field)
	if err != nil {
		return t, err
	}
	if len(plan) > 0 {
		if err := e.ApplyReorderPlan(ctx, field, plan, actorID); err != nil {
			return t, err
		}
	}
	return e.Repo.GetTask(ctx, t.ID)
}

// ApplyReorderPlan persists an explicit reindex plan as one atomic batch.
// Plans come from MoveTask or from a client that computed the reorder
// optimistically.
func (e Engine) ApplyReorderPlan(ctx context.Context, field order.Field, plan []order.Change, actorID string) error {
	if len(plan) == 0 {
		return nil
	}
	now := e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ApplyReorder(ctx, tx, field, plan, now); err != nil {
		return err
	}
	ids := make([]string, 0, len(plan))
	for _, c := range plan {
		ids = append(ids, c.ID)
	}
	if err := e.Events.Append(ctx, tx, "task.reordered", "task", "", actorID, events.EventPayload{
		"ids": ids,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteTask removes a task and its subtasks, then renumbers the surviving
// incomplete siblings.
func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return e.deleteTask(ctx, t, actorID, "")
}

func (e Engine) deleteTask(ctx context.Context, t domain.Task, actorID, via string) error {
	now := e.nowString()
	scope := scopeOf(t)
	field := scope.field()
	siblings, err := e.scopeTasks(ctx, scope)
	if err != nil {
		return err
	}
	remaining := make([]domain.Task, 0, len(siblings))
	for _, s := range order.Incomplete(order.SortSiblings(siblings, field)) {
		if s.ID != t.ID {
			remaining = append(remaining, s)
		}
	}
	_, plan := order.Renumber(remaining, field)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := e.Repo.ApplyReorder(ctx, tx, field, plan, now); err != nil {
		return err
	}
	payload := events.EventPayload{"name": t.Name}
	if via != "" {
		payload["via"] = via
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", t.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// --- ideas ---

type IdeaCreateOptions struct {
	ID          string
	Title       string
	Summary     string
	MilestoneID string
	ProjectID   string
	ActorID     string
}

func (e Engine) CreateIdea(ctx context.Context, opts IdeaCreateOptions) (domain.Idea, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Idea{}, errors.New("title is required")
	}
	if opts.MilestoneID != "" {
		if _, err := e.Repo.GetMilestone(ctx, opts.MilestoneID); err != nil {
			return domain.Idea{}, fmt.Errorf("milestone %s: %w", opts.MilestoneID, err)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	existing, err := e.Repo.ListIdeas(ctx)
	if err != nil {
		return domain.Idea{}, err
	}
	i := domain.Idea{
		ID:          id,
		Title:       title,
		Summary:     opts.Summary,
		MilestoneID: optionalString(opts.MilestoneID),
		ProjectID:   optionalString(opts.ProjectID),
		SortOrder:   len(existing) + 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return i, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertIdea(ctx, tx, i); err != nil {
		return i, err
	}
	if err := e.Events.Append(ctx, tx, "idea.created", "idea", i.ID, opts.ActorID, events.EventPayload{"title": i.Title}); err != nil {
		return i, err
	}
	if err := tx.Commit(); err != nil {
		return i, err
	}
	return i, nil
}

type IdeaUpdateOptions struct {
	ID           string
	Title        *string
	Summary      *string
	MilestoneID  *string
	MilestoneSet bool
	ProjectID    *string
	ProjectSet   bool
	ActorID      string
}

func (e Engine) UpdateIdea(ctx context.Context, opts IdeaUpdateOptions) (domain.Idea, error) {
	i, err := e.Repo.GetIdea(ctx, opts.ID)
	if err != nil {
		return i, err
	}
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title != "" {
			i.Title = title
		}
	}
	if opts.Summary != nil {
		i.Summary = *opts.Summary
	}
	if opts.MilestoneSet {
		if opts.MilestoneID != nil && *opts.MilestoneID != "" {
			if _, err := e.Repo.GetMilestone(ctx, *opts.MilestoneID); err != nil {
				return i, fmt.Errorf("milestone %s: %w", *opts.MilestoneID, err)
			}
			i.MilestoneID = opts.MilestoneID
		} else {
			i.MilestoneID = nil
		}
	}
	if opts.ProjectSet {
		if opts.ProjectID != nil && *opts.ProjectID != "" {
			i.ProjectID = opts.ProjectID
		} else {
			i.ProjectID = nil
		}
	}
	i.UpdatedAt = e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return i, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateIdea(ctx, tx, i); err != nil {
		return i, err
	}
	if err := e.Events.Append(ctx, tx, "idea.updated", "idea", i.ID, opts.ActorID, events.EventPayload{"title": i.Title}); err != nil {
		return i, err
	}
	if err := tx.Commit(); err != nil {
		return i, err
	}
	return i, nil
}

// DeleteIdea unlinks the idea's tasks rather than deleting them; orphaned
// tasks stay addressable by ID and through the Today and milestone scopes.
func (e Engine) DeleteIdea(ctx context.Context, id, actorID string) error {
	i, err := e.Repo.GetIdea(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteIdea(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "idea.deleted", "idea", id, actorID, events.EventPayload{"title": i.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- milestones ---

type MilestoneCreateOptions struct {
	ID       string
	Name     string
	TargetAt string
	Notes    string
	ActorID  string
}

func (e Engine) CreateMilestone(ctx context.Context, opts MilestoneCreateOptions) (domain.Milestone, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Milestone{}, errors.New("name is required")
	}
	if opts.TargetAt != "" {
		if _, err := time.Parse(time.RFC3339, opts.TargetAt); err != nil {
			return domain.Milestone{}, fmt.Errorf("target_at must be RFC3339: %w", err)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	existing, err := e.Repo.ListMilestones(ctx)
	if err != nil {
		return domain.Milestone{}, err
	}
	m := domain.Milestone{
		ID:        id,
		Name:      name,
		TargetAt:  optionalString(opts.TargetAt),
		Notes:     optionalString(opts.Notes),
		SortOrder: len(existing) + 1,
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMilestone(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "milestone.created", "milestone", m.ID, opts.ActorID, events.EventPayload{"name": m.Name}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

type MilestoneUpdateOptions struct {
	ID        string
	Name      *string
	TargetAt  *string
	TargetSet bool
	Notes     *string
	NotesSet  bool
	Completed *bool
	ActorID   string
}

func (e Engine) UpdateMilestone(ctx context.Context, opts MilestoneUpdateOptions) (domain.Milestone, error) {
	m, err := e.Repo.GetMilestone(ctx, opts.ID)
	if err != nil {
		return m, err
	}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name != "" {
			m.Name = name
		}
	}
	if opts.TargetSet {
		if opts.TargetAt != nil && *opts.TargetAt != "" {
			if _, err := time.Parse(time.RFC3339, *opts.TargetAt); err != nil {
				return m, fmt.Errorf("target_at must be RFC3339: %w", err)
			}
			m.TargetAt = opts.TargetAt
		} else {
			m.TargetAt = nil
		}
	}
	if opts.NotesSet {
		m.Notes = opts.Notes
	}
	if opts.Completed != nil {
		m.Completed = *opts.Completed
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMilestone(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "milestone.updated", "milestone", m.ID, opts.ActorID, events.EventPayload{"name": m.Name}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// DeleteMilestone unlinks referencing tasks and ideas; it never deletes them.
func (e Engine) DeleteMilestone(ctx context.Context, id, actorID string) error {
	m, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMilestone(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "milestone.deleted", "milestone", id, actorID, events.EventPayload{"name": m.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
