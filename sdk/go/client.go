package sprintdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sprintdesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          string  `json:"id"`
	IdeaID      *string `json:"idea_id,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
	Name        string  `json:"name"`
	Note        *string `json:"note,omitempty"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Focus       string  `json:"focus,omitempty"`
	Order       int     `json:"order"`
	SubOrder    int     `json:"sub_order,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	Deleted     bool    `json:"deleted,omitempty"`
}

// Idea represents the API idea model.
type Idea struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary,omitempty"`
	MilestoneID *string `json:"milestone_id,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Remaining is a milestone countdown snapshot.
type Remaining struct {
	Days    int    `json:"days"`
	Hours   int    `json:"hours"`
	Minutes int    `json:"minutes"`
	Seconds int    `json:"seconds"`
	Overdue bool   `json:"overdue"`
	Urgency string `json:"urgency"`
}

// Milestone represents the API milestone model.
type Milestone struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	TargetAt       *string    `json:"target_at,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	Completed      bool       `json:"completed"`
	SortOrder      int        `json:"sort_order"`
	TaskCount      int        `json:"task_count"`
	CompletedCount int        `json:"completed_count"`
	Remaining      *Remaining `json:"remaining,omitempty"`
	CreatedAt      string     `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ReorderChange assigns one task a new 1-based rank.
type ReorderChange struct {
	ID       string `json:"id"`
	NewOrder int    `json:"order"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateIdea creates an idea.
func (c *Client) CreateIdea(ctx context.Context, title, summary string) (Idea, error) {
	body := map[string]any{"title": title}
	if summary != "" {
		body["summary"] = summary
	}
	var resp Idea
	err := c.do(ctx, http.MethodPost, "v0/ideas", body, &resp)
	return resp, err
}

// ListIdeas returns all ideas.
func (c *Client) ListIdeas(ctx context.Context) ([]Idea, error) {
	var resp []Idea
	err := c.do(ctx, http.MethodGet, "v0/ideas", nil, &resp)
	return resp, err
}

// DeleteIdea deletes an idea; its tasks are unlinked, not deleted.
func (c *Client) DeleteIdea(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/ideas/"+url.PathEscape(id), nil, nil)
}

// CreateTask creates a task. position is "top" or "bottom" ("" means bottom).
func (c *Client) CreateTask(ctx context.Context, name, ideaID, parentID, position string) (Task, error) {
	body := map[string]any{"name": name}
	if ideaID != "" {
		body["idea_id"] = ideaID
	}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	if position != "" {
		body["position"] = position
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// IdeaTasks returns an idea's top-level tasks in display order.
func (c *Client) IdeaTasks(ctx context.Context, ideaID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "v0/ideas/"+url.PathEscape(ideaID)+"/tasks", nil, &resp)
	return resp, err
}

// Subtasks returns a task's subtasks in display order.
func (c *Client) Subtasks(ctx context.Context, taskID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(taskID)+"/subtasks", nil, &resp)
	return resp, err
}

// Today returns the Today scope in display order.
func (c *Client) Today(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "v0/today", nil, &resp)
	return resp, err
}

// UpdateTask applies a partial update. Renaming to "xxx" deletes the task;
// the response carries deleted=true in that case.
func (c *Client) UpdateTask(ctx context.Context, id string, fields map[string]any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "v0/tasks/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

// SetFocus sets the legacy focus string: "", "today", "now", or "now,today".
func (c *Client) SetFocus(ctx context.Context, id, focus string) (Task, error) {
	return c.UpdateTask(ctx, id, map[string]any{"focus": focus})
}

// CompleteTask marks a task done.
func (c *Client) CompleteTask(ctx context.Context, id string) (Task, error) {
	return c.UpdateTask(ctx, id, map[string]any{"completed": true})
}

// ReopenTask clears completion.
func (c *Client) ReopenTask(ctx context.Context, id string) (Task, error) {
	return c.UpdateTask(ctx, id, map[string]any{"completed": false})
}

// DeleteTask deletes a task and its subtasks.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/tasks/"+url.PathEscape(id), nil, nil)
}

// ReorderScope names one sibling set for reordering.
type ReorderScope struct {
	IdeaID   string
	ParentID string
	Today    bool
}

// Reorder applies an explicit reindex plan to one sibling set and returns
// the refreshed display sequence.
func (c *Client) Reorder(ctx context.Context, scope ReorderScope, changes []ReorderChange) ([]Task, error) {
	body := map[string]any{"changes": changes}
	if scope.IdeaID != "" {
		body["idea_id"] = scope.IdeaID
	}
	if scope.ParentID != "" {
		body["parent_id"] = scope.ParentID
	}
	if scope.Today {
		body["today"] = true
	}
	var resp []Task
	err := c.do(ctx, http.MethodPost, "v0/tasks/reorder", body, &resp)
	return resp, err
}

// Move asks the server to move one element of a scope's incomplete sequence.
func (c *Client) Move(ctx context.Context, scope ReorderScope, from, to int) ([]Task, error) {
	body := map[string]any{"from": from, "to": to}
	if scope.IdeaID != "" {
		body["idea_id"] = scope.IdeaID
	}
	if scope.ParentID != "" {
		body["parent_id"] = scope.ParentID
	}
	if scope.Today {
		body["today"] = true
	}
	var resp []Task
	err := c.do(ctx, http.MethodPost, "v0/tasks/reorder", body, &resp)
	return resp, err
}

// CreateMilestone creates a milestone. targetAt may be "" or RFC3339.
func (c *Client) CreateMilestone(ctx context.Context, name, targetAt string) (Milestone, error) {
	body := map[string]any{"name": name}
	if targetAt != "" {
		body["target_at"] = targetAt
	}
	var resp Milestone
	err := c.do(ctx, http.MethodPost, "v0/milestones", body, &resp)
	return resp, err
}

// ListMilestones returns milestones with countdowns and progress.
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	var resp []Milestone
	err := c.do(ctx, http.MethodGet, "v0/milestones", nil, &resp)
	return resp, err
}

// DeleteMilestone deletes a milestone; referencing tasks are unlinked.
func (c *Client) DeleteMilestone(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/milestones/"+url.PathEscape(id), nil, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Status returns the workspace status summary.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, "v0/status", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
