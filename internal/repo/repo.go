package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sprintdesk/internal/config"
	"sprintdesk/internal/domain"
	"sprintdesk/internal/order"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,parent_id,idea_id,milestone_id,name,note,completed,completed_at,focus_now,focus_today,sort_order,sub_order,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var parentID, ideaID, milestoneID, note, completedAt sql.NullString
	var completed, focusNow, focusToday int
	err := scan(&t.ID, &parentID, &ideaID, &milestoneID, &t.Name, &note, &completed, &completedAt,
		&focusNow, &focusToday, &t.SortOrder, &t.SubOrder, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	if ideaID.Valid {
		t.IdeaID = &ideaID.String
	}
	if milestoneID.Valid {
		t.MilestoneID = &milestoneID.String
	}
	if note.Valid {
		t.Note = &note.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	t.Completed = completed != 0
	t.IsFocusNow = focusNow != 0
	t.IsFocusToday = focusToday != 0
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, nullableStringPtr(t.ParentID), nullableStringPtr(t.IdeaID), nullableStringPtr(t.MilestoneID),
		t.Name, nullableStringPtr(t.Note), boolInt(t.Completed), nullableStringPtr(t.CompletedAt),
		boolInt(t.IsFocusNow), boolInt(t.IsFocusToday), t.SortOrder, t.SubOrder, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET parent_id=?, idea_id=?, milestone_id=?, name=?, note=?, completed=?, completed_at=?, focus_now=?, focus_today=?, sort_order=?, sub_order=?, updated_at=? WHERE id=?`,
		nullableStringPtr(t.ParentID), nullableStringPtr(t.IdeaID), nullableStringPtr(t.MilestoneID),
		t.Name, nullableStringPtr(t.Note), boolInt(t.Completed), nullableStringPtr(t.CompletedAt),
		boolInt(t.IsFocusNow), boolInt(t.IsFocusToday), t.SortOrder, t.SubOrder, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	IdeaID       string
	ParentID     string
	MilestoneID  string
	TopLevelOnly bool
	Today        bool
	Focus        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.IdeaID != "" {
		clauses = append(clauses, "idea_id=?")
		args = append(args, f.IdeaID)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.MilestoneID != "" {
		clauses = append(clauses, "milestone_id=?")
		args = append(args, f.MilestoneID)
	}
	if f.TopLevelOnly {
		clauses = append(clauses, "parent_id IS NULL")
	}
	if f.Today {
		clauses = append(clauses, "(focus_today=1 OR focus_now=1)")
	}
	if f.Focus != "" {
		focus := domain.ParseFocus(f.Focus)
		if focus.Now {
			clauses = append(clauses, "focus_now=1")
		}
		if focus.Today {
			clauses = append(clauses, "focus_today=1")
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY completed ASC, sort_order ASC, sub_order ASC, created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTopLevelSiblings returns all top-level tasks of one idea. An empty
// ideaID selects the unlinked pool used by the legacy Today-only flow.
func (r Repo) ListTopLevelSiblings(ctx context.Context, ideaID string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE parent_id IS NULL AND `
	var args []any
	if ideaID == "" {
		query += `idea_id IS NULL`
	} else {
		query += `idea_id=?`
		args = append(args, ideaID)
	}
	return r.queryTasks(ctx, query, args...)
}

func (r Repo) ListSubtasks(ctx context.Context, parentID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id=?`, parentID)
}

func (r Repo) ListToday(ctx context.Context) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE focus_today=1 OR focus_now=1`)
}

func (r Repo) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// FocusNowHolder returns the task currently holding the "now" spotlight.
func (r Repo) FocusNowHolder(ctx context.Context, tx *sql.Tx) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE focus_now=1 LIMIT 1`)
	return scanTask(row.Scan)
}

func (r Repo) ClearFocusNow(ctx context.Context, tx *sql.Tx, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET focus_now=0, updated_at=? WHERE focus_now=1`, updatedAt)
	return err
}

// ApplyReorder persists a reindex plan for one sibling scope. All updates
// run inside the supplied transaction so the batch is atomic: either every
// rank reflects the new order or none does.
func (r Repo) ApplyReorder(ctx context.Context, tx *sql.Tx, field order.Field, plan []order.Change, updatedAt string) error {
	column := "sort_order"
	if field == order.BySubOrder {
		column = "sub_order"
	}
	for _, c := range plan {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+column+`=?, updated_at=? WHERE id=?`, c.NewOrder, updatedAt, c.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("reorder target %s: %w", c.ID, ErrNotFound)
		}
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	// Subtasks go with the parent; they have no independent lifecycle.
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE parent_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- ideas ---

func scanIdea(scan func(dest ...any) error) (domain.Idea, error) {
	var i domain.Idea
	var summary, milestoneID, projectID sql.NullString
	err := scan(&i.ID, &i.Title, &summary, &milestoneID, &projectID, &i.SortOrder, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	if err != nil {
		return i, err
	}
	if summary.Valid {
		i.Summary = summary.String
	}
	if milestoneID.Valid {
		i.MilestoneID = &milestoneID.String
	}
	if projectID.Valid {
		i.ProjectID = &projectID.String
	}
	return i, nil
}

const ideaColumns = `id,title,summary,milestone_id,project_id,sort_order,created_at,updated_at`

func (r Repo) InsertIdea(ctx context.Context, tx *sql.Tx, i domain.Idea) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ideas(`+ideaColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		i.ID, i.Title, nullable(i.Summary), nullableStringPtr(i.MilestoneID), nullableStringPtr(i.ProjectID),
		i.SortOrder, i.CreatedAt, i.UpdatedAt)
	return err
}

func (r Repo) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=?`, id)
	return scanIdea(row.Scan)
}

func (r Repo) ListIdeas(ctx context.Context) ([]domain.Idea, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ideaColumns+` FROM ideas ORDER BY sort_order ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Idea
	for rows.Next() {
		i, err := scanIdea(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIdea(ctx context.Context, tx *sql.Tx, i domain.Idea) error {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET title=?, summary=?, milestone_id=?, project_id=?, sort_order=?, updated_at=? WHERE id=?`,
		i.Title, nullable(i.Summary), nullableStringPtr(i.MilestoneID), nullableStringPtr(i.ProjectID),
		i.SortOrder, i.UpdatedAt, i.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdea removes the idea only. Its tasks are unlinked (idea_id set to
// NULL by the foreign key), never deleted.
func (r Repo) DeleteIdea(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM ideas WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- milestones ---

const milestoneSelect = `SELECT m.id, m.name, m.target_at, m.notes, m.completed, m.sort_order, m.created_at,
COUNT(t.id) AS task_count,
COALESCE(SUM(CASE WHEN t.completed=1 THEN 1 ELSE 0 END), 0) AS completed_count
FROM milestones m LEFT JOIN tasks t ON t.milestone_id = m.id`

func scanMilestone(scan func(dest ...any) error) (domain.Milestone, error) {
	var m domain.Milestone
	var targetAt, notes sql.NullString
	var completed int
	err := scan(&m.ID, &m.Name, &targetAt, &notes, &completed, &m.SortOrder, &m.CreatedAt, &m.TaskCount, &m.CompletedCount)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if targetAt.Valid {
		m.TargetAt = &targetAt.String
	}
	if notes.Valid {
		m.Notes = &notes.String
	}
	m.Completed = completed != 0
	return m, nil
}

func (r Repo) InsertMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO milestones(id,name,target_at,notes,completed,sort_order,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.Name, nullableStringPtr(m.TargetAt), nullableStringPtr(m.Notes), boolInt(m.Completed), m.SortOrder, m.CreatedAt)
	return err
}

func (r Repo) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	row := r.DB.QueryRowContext(ctx, milestoneSelect+` WHERE m.id=? GROUP BY m.id`, id)
	return scanMilestone(row.Scan)
}

func (r Repo) ListMilestones(ctx context.Context) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, milestoneSelect+` GROUP BY m.id ORDER BY m.sort_order ASC, m.created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET name=?, target_at=?, notes=?, completed=?, sort_order=? WHERE id=?`,
		m.Name, nullableStringPtr(m.TargetAt), nullableStringPtr(m.Notes), boolInt(m.Completed), m.SortOrder, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMilestone unlinks referencing tasks and ideas (foreign keys set the
// reference to NULL) rather than deleting them.
func (r Repo) DeleteMilestone(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entity, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entity.Valid {
			e.EntityID = entity.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- workspace config ---

func (r Repo) UpsertWorkspaceConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO workspace_configs(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetWorkspaceConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM workspace_configs WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
