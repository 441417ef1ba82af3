package domain

import "strings"

type Idea struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Task is a unit of work. A task with a non-nil ParentID is a subtask and
// cannot itself have children (one nesting level only).
type Task struct {
	ID           string  `json:"id"`
	ParentID     *string `json:"parent_id,omitempty"`
	IdeaID       *string `json:"idea_id,omitempty"`
	MilestoneID  *string `json:"milestone_id,omitempty"`
	Name         string  `json:"name"`
	Note         *string `json:"note,omitempty"`
	Completed    bool    `json:"completed"`
	CompletedAt  *string `json:"completed_at,omitempty" format:"date-time"`
	IsFocusNow   bool    `json:"is_focus_now"`
	IsFocusToday bool    `json:"is_focus_today"`
	SortOrder    int     `json:"order"`
	SubOrder     int     `json:"sub_order"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type Milestone struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	TargetAt       *string `json:"target_at,omitempty" format:"date-time"`
	Notes          *string `json:"notes,omitempty"`
	Completed      bool    `json:"completed"`
	SortOrder      int     `json:"sort_order"`
	TaskCount      int     `json:"task_count"`
	CompletedCount int     `json:"completed_count"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Focus is the legacy wire encoding of the two focus bits: "", "today",
// "now", or "now,today". Internally everything uses the two booleans.
type Focus struct {
	Now   bool
	Today bool
}

func ParseFocus(s string) Focus {
	var f Focus
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case "now":
			f.Now = true
		case "today":
			f.Today = true
		}
	}
	return f
}

func (f Focus) String() string {
	switch {
	case f.Now && f.Today:
		return "now,today"
	case f.Now:
		return "now"
	case f.Today:
		return "today"
	default:
		return ""
	}
}

func (t Task) Focus() Focus {
	return Focus{Now: t.IsFocusNow, Today: t.IsFocusToday}
}

// InToday reports whether the task belongs to the Today scope. Tasks holding
// the "now" spotlight are shown there regardless of the today bit.
func (t Task) InToday() bool {
	return !t.Completed && (t.IsFocusToday || t.IsFocusNow)
}
