package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"sprintdesk/internal/countdown"
	"sprintdesk/internal/domain"
	"sprintdesk/internal/engine"
	"sprintdesk/internal/order"
	"sprintdesk/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task abc not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Sprintdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Sprintdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerIdeas(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerToday(group, cfg.Engine)
	registerMilestones(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "out of range"):
		return newAPIError(http.StatusConflict, "reorder_conflict", msg, nil)
	case strings.Contains(lowered, "cannot be in focus"),
		strings.Contains(lowered, "cannot have their own subtasks"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Sprintdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Workspace status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
		if err != nil {
			return nil, handleError(err)
		}
		var open, done, today int
		var nowHolder *TaskResponse
		for _, t := range tasks {
			if t.Completed {
				done++
			} else {
				open++
			}
			if t.InToday() {
				today++
			}
			if t.IsFocusNow {
				resp := taskResponse(t)
				nowHolder = &resp
			}
		}
		body := map[string]any{
			"studio":      e.Config.Studio.Name,
			"open_tasks":  open,
			"done_tasks":  done,
			"today_tasks": today,
			"focus_now":   nowHolder,
		}
		if e.Config.DailyDeadline != "" {
			now := e.Now()
			if deadline, err := countdown.NextDailyDeadline(e.Config.DailyDeadline, now); err == nil {
				r := countdown.Until(deadline, now)
				body["daily_deadline"] = map[string]any{
					"at":        deadline.Format(time.RFC3339),
					"remaining": r.String(),
					"urgency":   string(countdown.Classify(r, e.Config.Thresholds())),
				}
			}
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})
}

func registerIdeas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-idea",
		Method:        http.MethodPost,
		Path:          "/ideas",
		Summary:       "Create idea",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateIdeaRequest `json:"body"`
	}) (*struct {
		Body IdeaResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		i, err := e.CreateIdea(ctx, engine.IdeaCreateOptions{
			ID:          deref(input.Body.ID),
			Title:       input.Body.Title,
			Summary:     deref(input.Body.Summary),
			MilestoneID: deref(input.Body.MilestoneID),
			ProjectID:   deref(input.Body.ProjectID),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IdeaResponse `json:"body"`
		}{Body: ideaResponse(i)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ideas",
		Method:      http.MethodGet,
		Path:        "/ideas",
		Summary:     "List ideas",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []IdeaResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListIdeas(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []IdeaResponse `json:"body"`
		}{Body: mapIdeas(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}",
		Summary:     "Get idea",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body IdeaResponse `json:"body"`
	}, error) {
		i, err := e.Repo.GetIdea(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IdeaResponse `json:"body"`
		}{Body: ideaResponse(i)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-idea-tasks",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}/tasks",
		Summary:     "List an idea's top-level tasks in display order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetIdea(ctx, input.IdeaID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.SortedSiblings(ctx, engine.Scope{IdeaID: input.IdeaID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-idea",
		Method:      http.MethodPatch,
		Path:        "/ideas/{idea_id}",
		Summary:     "Update idea",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		IdeaID string            `path:"idea_id"`
		Body   UpdateIdeaRequest `json:"body"`
	}) (*struct {
		Body IdeaResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		i, err := e.UpdateIdea(ctx, engine.IdeaUpdateOptions{
			ID:           input.IdeaID,
			Title:        input.Body.Title,
			Summary:      input.Body.Summary,
			MilestoneID:  input.Body.MilestoneID.Value,
			MilestoneSet: input.Body.MilestoneID.Set,
			ProjectID:    input.Body.ProjectID.Value,
			ProjectSet:   input.Body.ProjectID.Set,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IdeaResponse `json:"body"`
		}{Body: ideaResponse(i)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-idea",
		Method:      http.MethodDelete,
		Path:        "/ideas/{idea_id}",
		Summary:     "Delete idea (tasks are unlinked, not deleted)",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteIdea(ctx, input.IdeaID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:          deref(input.Body.ID),
			Name:        input.Body.Name,
			IdeaID:      deref(input.Body.IdeaID),
			ParentID:    deref(input.Body.ParentID),
			MilestoneID: deref(input.Body.MilestoneID),
			Note:        deref(input.Body.Note),
			Position:    order.Position(input.Body.Position),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		IdeaID      string `query:"idea_id"`
		ParentID    string `query:"parent_id"`
		MilestoneID string `query:"milestone_id"`
		TopLevel    bool   `query:"top_level"`
		Focus       string `query:"focus"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			IdeaID:       input.IdeaID,
			ParentID:     input.ParentID,
			MilestoneID:  input.MilestoneID,
			TopLevelOnly: input.TopLevel,
			Focus:        input.Focus,
		})
		if err != nil {
			return nil, handleError(err)
		}
		field := order.ByOrder
		if input.ParentID != "" {
			field = order.BySubOrder
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(order.SortSiblings(items, field))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/subtasks",
		Summary:     "List a task's subtasks in display order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.SortedSiblings(ctx, engine.Scope{ParentID: input.TaskID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task fields, focus, or completion",
		Description: "Renaming a task to \"xxx\" deletes it; a blank name keeps the previous one.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}

		var t domain.Task
		var err error
		hasFieldEdits := input.Body.Name != nil || input.Body.Note.Set ||
			input.Body.MilestoneID.Set || input.Body.IdeaID.Set
		if hasFieldEdits {
			var deleted bool
			t, deleted, err = e.UpdateTask(ctx, engine.TaskUpdateOptions{
				ID:           input.TaskID,
				Rename:       input.Body.Name,
				Note:         input.Body.Note.Value,
				NoteSet:      input.Body.Note.Set,
				MilestoneID:  input.Body.MilestoneID.Value,
				MilestoneSet: input.Body.MilestoneID.Set,
				IdeaID:       input.Body.IdeaID.Value,
				IdeaSet:      input.Body.IdeaID.Set,
				ActorID:      actorID,
			})
			if err != nil {
				return nil, handleError(err)
			}
			if deleted {
				resp := taskResponse(t)
				resp.Deleted = true
				return &struct {
					Body TaskResponse `json:"body"`
				}{Body: resp}, nil
			}
		} else {
			t, err = e.Repo.GetTask(ctx, input.TaskID)
			if err != nil {
				return nil, handleError(err)
			}
		}

		if input.Body.Completed != nil && *input.Body.Completed != t.Completed {
			if *input.Body.Completed {
				t, err = e.CompleteTask(ctx, t.ID, actorID)
			} else {
				t, err = e.ReopenTask(ctx, t.ID, actorID)
			}
			if err != nil {
				return nil, handleError(err)
			}
		}

		if input.Body.Focus != nil {
			desired := domain.ParseFocus(*input.Body.Focus)
			if desired.Today != t.IsFocusToday {
				t, err = e.ToggleFocusToday(ctx, t.ID, actorID)
				if err != nil {
					return nil, handleError(err)
				}
			}
			if desired.Now != t.IsFocusNow {
				t, err = e.SetFocusNow(ctx, t.ID, desired.Now, actorID)
				if err != nil {
					return nil, handleError(err)
				}
			}
		}

		if input.Body.Order != nil || input.Body.SubOrder != nil {
			var rank int
			switch {
			case input.Body.Order != nil && t.ParentID != nil:
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "subtasks are ranked by sub_order", nil)
			case input.Body.SubOrder != nil && t.ParentID == nil:
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "top-level tasks are ranked by order", nil)
			case input.Body.Order != nil:
				rank = *input.Body.Order
			default:
				rank = *input.Body.SubOrder
			}
			t, err = e.MoveTaskToRank(ctx, t.ID, rank, actorID)
			if err != nil {
				return nil, handleError(err)
			}
		}

		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/reorder",
		Summary:     "Reorder incomplete tasks within one sibling set",
		Description: "Accepts either an explicit reindex plan (changes) or a from/to move computed server-side. The plan is applied atomically.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body ReorderTasksRequest `json:"body"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scope := engine.Scope{
			IdeaID:   deref(input.Body.IdeaID),
			ParentID: deref(input.Body.ParentID),
			Today:    input.Body.Today,
		}
		switch {
		case len(input.Body.Changes) > 0:
			siblings, err := e.SortedSiblings(ctx, scope)
			if err != nil {
				return nil, handleError(err)
			}
			incomplete := order.Incomplete(siblings)
			inScope := make(map[string]bool, len(incomplete))
			for _, t := range incomplete {
				inScope[t.ID] = true
			}
			plan := make([]order.Change, 0, len(input.Body.Changes))
			for _, c := range input.Body.Changes {
				if !inScope[c.ID] {
					return nil, newAPIError(http.StatusConflict, "reorder_conflict",
						fmt.Sprintf("task %s is not an incomplete member of the scope", c.ID), nil)
				}
				plan = append(plan, order.Change{ID: c.ID, NewOrder: c.NewOrder})
			}
			if scope.Today {
				// Today ranks live in the members' own sibling scopes; the
				// engine permutes within those scopes.
				if err := e.ReorderToday(ctx, order.Resequence(incomplete, plan), actorID); err != nil {
					return nil, handleError(err)
				}
				break
			}
			field := order.ByOrder
			if scope.ParentID != "" {
				field = order.BySubOrder
			}
			if err := e.ApplyReorderPlan(ctx, field, plan, actorID); err != nil {
				return nil, handleError(err)
			}
		case input.Body.From != nil && input.Body.To != nil:
			if _, err := e.MoveTask(ctx, engine.ReorderOptions{
				Scope:   scope,
				From:    *input.Body.From,
				To:      *input.Body.To,
				ActorID: actorID,
			}); err != nil {
				return nil, handleError(err)
			}
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "changes or from/to required", nil)
		}
		items, err := e.SortedSiblings(ctx, scope)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}",
		Summary:     "Delete task and its subtasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerToday(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-today",
		Method:      http.MethodGet,
		Path:        "/today",
		Summary:     "List the Today scope in display order",
		Description: "Tasks holding the \"now\" spotlight appear here even without the today flag.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.SortedSiblings(ctx, engine.Scope{Today: true})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})
}

func registerMilestones(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-milestone",
		Method:        http.MethodPost,
		Path:          "/milestones",
		Summary:       "Create milestone",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateMilestoneRequest `json:"body"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMilestone(ctx, engine.MilestoneCreateOptions{
			ID:       deref(input.Body.ID),
			Name:     input.Body.Name,
			TargetAt: deref(input.Body.TargetAt),
			Notes:    deref(input.Body.Notes),
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: milestoneResponse(m, e.Config.Thresholds(), e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestones",
		Method:      http.MethodGet,
		Path:        "/milestones",
		Summary:     "List milestones with countdowns and progress",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MilestoneResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMilestones(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MilestoneResponse `json:"body"`
		}{Body: mapMilestones(items, e.Config.Thresholds(), e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-milestone",
		Method:      http.MethodGet,
		Path:        "/milestones/{milestone_id}",
		Summary:     "Get milestone",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetMilestone(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: milestoneResponse(m, e.Config.Thresholds(), e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-milestone",
		Method:      http.MethodPatch,
		Path:        "/milestones/{milestone_id}",
		Summary:     "Update milestone",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		MilestoneID string                 `path:"milestone_id"`
		Body        UpdateMilestoneRequest `json:"body"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateMilestone(ctx, engine.MilestoneUpdateOptions{
			ID:        input.MilestoneID,
			Name:      input.Body.Name,
			TargetAt:  input.Body.TargetAt.Value,
			TargetSet: input.Body.TargetAt.Set,
			Notes:     input.Body.Notes.Value,
			NotesSet:  input.Body.Notes.Set,
			Completed: input.Body.Completed,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: milestoneResponse(m, e.Config.Thresholds(), e.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-milestone",
		Method:      http.MethodDelete,
		Path:        "/milestones/{milestone_id}",
		Summary:     "Delete milestone (tasks and ideas are unlinked)",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMilestone(ctx, input.MilestoneID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List latest events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"1" maximum:"500"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
