package server

import (
	"encoding/json"
	"time"

	"sprintdesk/internal/countdown"
	"sprintdesk/internal/domain"
)

// Request payloads

type CreateIdeaRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Summary     *string `json:"summary,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
}

type UpdateIdeaRequest struct {
	Title       *string         `json:"title,omitempty"`
	Summary     *string         `json:"summary,omitempty"`
	MilestoneID nullableIDField `json:"milestone_id,omitempty"`
	ProjectID   nullableIDField `json:"project_id,omitempty"`
}

type CreateTaskRequest struct {
	ID          *string `json:"id,omitempty"`
	Name        string  `json:"name"`
	IdeaID      *string `json:"idea_id,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
	Note        *string `json:"note,omitempty"`
	Position    string  `json:"position,omitempty" enum:"top,bottom"`
}

type UpdateTaskRequest struct {
	Name        *string         `json:"name,omitempty"`
	Note        nullableIDField `json:"note,omitempty"`
	MilestoneID nullableIDField `json:"milestone_id,omitempty"`
	IdeaID      nullableIDField `json:"idea_id,omitempty"`
	Focus       *string         `json:"focus,omitempty"`
	Completed   *bool           `json:"completed,omitempty"`
	Order       *int            `json:"order,omitempty" minimum:"1"`
	SubOrder    *int            `json:"sub_order,omitempty" minimum:"1"`
}

// nullableIDField distinguishes "field absent" from "field set to null".
type nullableIDField struct {
	Set   bool
	Value *string
}

func (f *nullableIDField) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		f.Value = nil
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

type ReorderChangeRequest struct {
	ID       string `json:"id"`
	NewOrder int    `json:"order" minimum:"1"`
}

type ReorderTasksRequest struct {
	IdeaID   *string                `json:"idea_id,omitempty"`
	ParentID *string                `json:"parent_id,omitempty"`
	Today    bool                   `json:"today,omitempty"`
	Changes  []ReorderChangeRequest `json:"changes,omitempty"`
	From     *int                   `json:"from,omitempty" minimum:"0"`
	To       *int                   `json:"to,omitempty" minimum:"0"`
}

type CreateMilestoneRequest struct {
	ID       *string `json:"id,omitempty"`
	Name     string  `json:"name"`
	TargetAt *string `json:"target_at,omitempty" format:"date-time"`
	Notes    *string `json:"notes,omitempty"`
}

type UpdateMilestoneRequest struct {
	Name      *string         `json:"name,omitempty"`
	TargetAt  nullableIDField `json:"target_at,omitempty"`
	Notes     nullableIDField `json:"notes,omitempty"`
	Completed *bool           `json:"completed,omitempty"`
}

// Response payloads

type IdeaResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	IdeaID      *string `json:"idea_id,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
	Name        string  `json:"name"`
	Note        *string `json:"note,omitempty"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	Focus       string  `json:"focus,omitempty"`
	Order       int     `json:"order"`
	SubOrder    int     `json:"sub_order,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	Deleted     bool    `json:"deleted,omitempty"`
}

type RemainingResponse struct {
	Days    int    `json:"days"`
	Hours   int    `json:"hours"`
	Minutes int    `json:"minutes"`
	Seconds int    `json:"seconds"`
	Overdue bool   `json:"overdue"`
	Urgency string `json:"urgency" enum:"overdue,urgent,soon,upcoming,relaxed"`
}

type MilestoneResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	TargetAt       *string            `json:"target_at,omitempty" format:"date-time"`
	Notes          *string            `json:"notes,omitempty"`
	Completed      bool               `json:"completed"`
	SortOrder      int                `json:"sort_order"`
	TaskCount      int                `json:"task_count"`
	CompletedCount int                `json:"completed_count"`
	Remaining      *RemainingResponse `json:"remaining,omitempty"`
	CreatedAt      string             `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func ideaResponse(i domain.Idea) IdeaResponse {
	return IdeaResponse{
		ID:          i.ID,
		Title:       i.Title,
		Summary:     i.Summary,
		MilestoneID: i.MilestoneID,
		ProjectID:   i.ProjectID,
		SortOrder:   i.SortOrder,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func mapIdeas(items []domain.Idea) []IdeaResponse {
	out := make([]IdeaResponse, 0, len(items))
	for _, i := range items {
		out = append(out, ideaResponse(i))
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		IdeaID:      t.IdeaID,
		ParentID:    t.ParentID,
		MilestoneID: t.MilestoneID,
		Name:        t.Name,
		Note:        t.Note,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		Focus:       t.Focus().String(),
		Order:       t.SortOrder,
		SubOrder:    t.SubOrder,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func milestoneResponse(m domain.Milestone, th countdown.Thresholds, now time.Time) MilestoneResponse {
	resp := MilestoneResponse{
		ID:             m.ID,
		Name:           m.Name,
		TargetAt:       m.TargetAt,
		Notes:          m.Notes,
		Completed:      m.Completed,
		SortOrder:      m.SortOrder,
		TaskCount:      m.TaskCount,
		CompletedCount: m.CompletedCount,
		CreatedAt:      m.CreatedAt,
	}
	if m.TargetAt != nil && !m.Completed {
		if target, err := time.Parse(time.RFC3339, *m.TargetAt); err == nil {
			r := countdown.Until(target, now)
			resp.Remaining = &RemainingResponse{
				Days:    r.Days,
				Hours:   r.Hours,
				Minutes: r.Minutes,
				Seconds: r.Seconds,
				Overdue: r.Overdue,
				Urgency: string(countdown.Classify(r, th)),
			}
		}
	}
	return resp
}

func mapMilestones(items []domain.Milestone, th countdown.Thresholds, now time.Time) []MilestoneResponse {
	out := make([]MilestoneResponse, 0, len(items))
	for _, m := range items {
		out = append(out, milestoneResponse(m, th, now))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	var payload map[string]any
	_ = json.Unmarshal([]byte(e.Payload), &payload)
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}
