package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sjmog/vibesuite/internal/actionlog"
	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/ledger"
	"github.com/sjmog/vibesuite/internal/repo"
	"github.com/sjmog/vibesuite/internal/status"
)

// Config for the HTTP API handler.
type Config struct {
	Ledger   ledger.Ledger
	Actions  actionlog.Log
	Status   status.Resolver
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"quota_exceeded"`
	Message string         `json:"message" example:"daily quota exceeded"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the VibeSuite API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Ledger.Repo))
	hcfg := huma.DefaultConfig("VibeSuite API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTemplates(group, cfg.Ledger)
	registerPersonas(group, cfg.Ledger)
	registerActivities(group, cfg.Ledger)
	registerActions(group, cfg.Actions)
	registerTasks(group, cfg.Ledger, cfg.Status)
	registerEvents(group, cfg.Ledger)
	registerAPIKeys(group, cfg.Ledger)
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
	switch {
	case errors.Is(err, ledger.ErrQuotaExceeded):
		return newAPIError(http.StatusTooManyRequests, "quota_exceeded", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrDuplicate):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "quota_exceeded"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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
    <title>VibeSuite API Docs</title>
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

func registerTemplates(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List persona templates",
	}, func(ctx context.Context, input *struct {
		SystemOnly bool `query:"system_only"`
	}) (*struct {
		Body []domain.PersonaTemplate `json:"body"`
	}, error) {
		items, err := l.Repo.ListTemplates(ctx, input.SystemOnly)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PersonaTemplate `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-templates",
		Method:      http.MethodPost,
		Path:        "/templates/sync",
		Summary:     "Sync configured templates into the store",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.PersonaTemplate `json:"body"`
	}, error) {
		items, err := l.SyncTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PersonaTemplate `json:"body"`
		}{Body: items}, nil
	})
}

func registerPersonas(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-persona",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/personas",
		Summary:       "Create persona from a template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      CreatePersonaRequest `json:"body"`
	}) (*struct {
		Body domain.Persona `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		templateID := input.Body.TemplateID
		if templateID == "" && input.Body.TemplateName != nil {
			tpl, err := l.Repo.GetTemplateByName(ctx, *input.Body.TemplateName)
			if err != nil {
				return nil, handleError(err)
			}
			templateID = tpl.ID
		}
		if templateID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "template_id or template_name is required", nil)
		}
		p, err := l.CreatePersona(ctx, ledger.CreatePersonaOptions{
			ProjectID:          input.ProjectID,
			TemplateID:         templateID,
			CustomName:         input.Body.CustomName,
			CustomInstructions: input.Body.CustomInstructions,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Persona `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-personas",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/personas",
		Summary:     "List project personas",
	}, func(ctx context.Context, input *struct {
		ProjectID       string `path:"project_id"`
		IncludeInactive bool   `query:"include_inactive"`
	}) (*struct {
		Body []domain.Persona `json:"body"`
	}, error) {
		items, err := l.Repo.ListPersonas(ctx, input.ProjectID, input.IncludeInactive)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Persona `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-default-personas",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/personas/import-defaults",
		Summary:       "Create personas for every configured template",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body struct {
			Imported int              `json:"imported"`
			Personas []domain.Persona `json:"personas"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		created, err := l.ImportDefaultPersonas(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Imported int              `json:"imported"`
				Personas []domain.Persona `json:"personas"`
			} `json:"body"`
		}{}
		out.Body.Imported = len(created)
		out.Body.Personas = created
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-persona",
		Method:      http.MethodGet,
		Path:        "/personas/{persona_id}",
		Summary:     "Get persona",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonaID string `path:"persona_id"`
	}) (*struct {
		Body domain.Persona `json:"body"`
	}, error) {
		p, err := l.Repo.GetPersona(ctx, input.PersonaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Persona `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-persona",
		Method:      http.MethodPatch,
		Path:        "/personas/{persona_id}",
		Summary:     "Update persona",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonaID string               `path:"persona_id"`
		Body      UpdatePersonaRequest `json:"body"`
	}) (*struct {
		Body domain.Persona `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.UpdatePersona(ctx, input.PersonaID, repo.PersonaUpdate{
			CustomName:         input.Body.CustomName,
			CustomInstructions: input.Body.CustomInstructions,
			IsActive:           input.Body.IsActive,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Persona `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-persona",
		Method:        http.MethodDelete,
		Path:          "/personas/{persona_id}",
		Summary:       "Delete persona (activities survive)",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonaID string `path:"persona_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := l.DeletePersona(ctx, input.PersonaID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerActivities(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-activity",
		Method:        http.MethodPost,
		Path:          "/personas/{persona_id}/activities",
		Summary:       "Record a scored activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		PersonaID string                `path:"persona_id"`
		Body      RecordActivityRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		act, err := l.RecordActivity(ctx, ledger.RecordActivityOptions{
			PersonaID:   input.PersonaID,
			Kind:        domain.ActivityKind(input.Body.Kind),
			TaskID:      input.Body.TaskID,
			TaskSize:    domain.TaskSize(input.Body.TaskSize),
			Description: input.Body.Description,
			Metadata:    input.Body.Metadata,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: act}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/personas/{persona_id}/activities",
		Summary:     "List activities, newest first",
	}, func(ctx context.Context, input *struct {
		PersonaID string `path:"persona_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		items, err := l.Repo.ListActivities(ctx, input.PersonaID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "adjust-score",
		Method:        http.MethodPost,
		Path:          "/personas/{persona_id}/adjustments",
		Summary:       "Record a manual score adjustment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonaID string             `path:"persona_id"`
		Body      AdjustScoreRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Reason == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "reason is required", nil)
		}
		act, err := l.AdjustScore(ctx, input.PersonaID,
			input.Body.ProfessionalismDelta, input.Body.QualityDelta, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: act}, nil
	})
}

func registerActions(api huma.API, a actionlog.Log) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-action",
		Method:        http.MethodPost,
		Path:          "/personas/{persona_id}/actions",
		Summary:       "Record an action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonaID string              `path:"persona_id"`
		Body      RecordActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		act, err := a.RecordAction(ctx, actionlog.RecordActionOptions{
			PersonaID:   input.PersonaID,
			TaskID:      input.Body.TaskID,
			ActivityID:  input.Body.ActivityID,
			Kind:        domain.ActionKind(input.Body.Kind),
			Category:    domain.ActionCategory(input.Body.Category),
			ToolName:    input.Body.ToolName,
			Parameters:  input.Body.Parameters,
			Description: input.Body.Description,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: act}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-action",
		Method:      http.MethodPatch,
		Path:        "/actions/{action_id}",
		Summary:     "Record an action's final outcome",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string                `path:"action_id"`
		Body     CompleteActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		act, err := a.CompleteAction(ctx, input.ActionID,
			domain.ResultStatus(input.Body.ResultStatus), input.Body.ExecutionTimeMs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: act}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "attach-artifact",
		Method:        http.MethodPost,
		Path:          "/actions/{action_id}/artifacts",
		Summary:       "Attach an artifact to an action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string                `path:"action_id"`
		Body     AttachArtifactRequest `json:"body"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		art, err := a.AttachArtifact(ctx, actionlog.AttachArtifactOptions{
			ActionID:      input.ActionID,
			Type:          domain.ArtifactType(input.Body.Type),
			FilePath:      input.Body.FilePath,
			ContentBefore: input.Body.ContentBefore,
			ContentAfter:  input.Body.ContentAfter,
			GitHash:       input.Body.GitHash,
			Output:        input.Body.Output,
			SizeBytes:     input.Body.SizeBytes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: art}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/personas/{persona_id}/actions",
		Summary:     "List actions with artifacts, newest first",
	}, func(ctx context.Context, input *struct {
		PersonaID string `path:"persona_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.ActionWithArtifacts `json:"body"`
	}, error) {
		items, err := a.ListActions(ctx, input.PersonaID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ActionWithArtifacts `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-action",
		Method:        http.MethodDelete,
		Path:          "/actions/{action_id}",
		Summary:       "Delete an action and its artifacts",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*struct{}, error) {
		if err := a.DeleteAction(ctx, input.ActionID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, l ledger.Ledger, res status.Resolver) {
	now := func() string {
		if l.Now != nil {
			return l.Now().UTC().Format(time.RFC3339)
		}
		return time.Now().UTC().Format(time.RFC3339)
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		ts := now()
		t := domain.Task{
			ID:                uuid.NewString(),
			ProjectID:         input.ProjectID,
			Title:             input.Body.Title,
			Status:            "todo",
			AssignedPersonaID: input.Body.AssignedPersonaID,
			CreatedAt:         ts,
			UpdatedAt:         ts,
		}
		if input.Body.Description != nil {
			t.Description = *input.Body.Description
		}
		if err := l.CreateTask(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks with derived status",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.TaskWithStatus `json:"body"`
	}, error) {
		items, err := res.ListTasks(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskWithStatus `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-status",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Get task with derived status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.TaskWithStatus `json:"body"`
	}, error) {
		t, err := res.ResolveTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskWithStatus `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task status or assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		ts := now()
		if input.Body.Status != nil {
			if err := l.Repo.UpdateTaskStatus(ctx, input.TaskID, *input.Body.Status, ts); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.AssignedPersonaID != nil {
			if err := l.Repo.AssignTask(ctx, input.TaskID, input.Body.AssignedPersonaID, ts); err != nil {
				return nil, handleError(err)
			}
		}
		t, err := l.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-attempt",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/attempts",
		Summary:       "Create task attempt",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   CreateAttemptRequest `json:"body"`
	}) (*struct {
		Body domain.TaskAttempt `json:"body"`
	}, error) {
		if _, err := l.Repo.GetTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		a := domain.TaskAttempt{
			ID:        uuid.NewString(),
			TaskID:    input.TaskID,
			Executor:  input.Body.Executor,
			CreatedAt: now(),
		}
		if err := l.Repo.InsertAttempt(ctx, a); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskAttempt `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-merge-commit",
		Method:      http.MethodPatch,
		Path:        "/attempts/{attempt_id}",
		Summary:     "Mark attempt merged",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AttemptID string                `path:"attempt_id"`
		Body      SetMergeCommitRequest `json:"body"`
	}) (*struct {
		Body domain.TaskAttempt `json:"body"`
	}, error) {
		if input.Body.MergeCommit == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "merge_commit is required", nil)
		}
		if err := l.Repo.SetMergeCommit(ctx, input.AttemptID, input.Body.MergeCommit); err != nil {
			return nil, handleError(err)
		}
		a, err := l.Repo.GetAttempt(ctx, input.AttemptID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskAttempt `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-process",
		Method:        http.MethodPost,
		Path:          "/attempts/{attempt_id}/processes",
		Summary:       "Create execution process",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AttemptID string               `path:"attempt_id"`
		Body      CreateProcessRequest `json:"body"`
	}) (*struct {
		Body domain.ExecutionProcess `json:"body"`
	}, error) {
		if _, err := l.Repo.GetAttempt(ctx, input.AttemptID); err != nil {
			return nil, handleError(err)
		}
		typ := domain.ProcessType(input.Body.Type)
		if !typ.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid process type %q", input.Body.Type), nil)
		}
		st := domain.ProcessStatus(input.Body.Status)
		if st == "" {
			st = domain.ProcessRunning
		}
		if !st.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid process status %q", input.Body.Status), nil)
		}
		p := domain.ExecutionProcess{
			ID:        uuid.NewString(),
			AttemptID: input.AttemptID,
			Type:      typ,
			Status:    st,
			CreatedAt: now(),
		}
		if err := l.Repo.InsertProcess(ctx, p); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutionProcess `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-process",
		Method:      http.MethodPatch,
		Path:        "/processes/{process_id}",
		Summary:     "Update execution process status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string               `path:"process_id"`
		Body      UpdateProcessRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		st := domain.ProcessStatus(input.Body.Status)
		if !st.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid process status %q", input.Body.Status), nil)
		}
		if err := l.Repo.UpdateProcessStatus(ctx, input.ProcessID, st); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"id": input.ProcessID, "status": string(st)}}, nil
	})
}

func registerEvents(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events after a cursor",
	}, func(ctx context.Context, input *struct {
		After int64 `query:"after"`
		Limit int   `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := l.Repo.ListEvents(ctx, input.After, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerAPIKeys(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Store a hashed API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body domain.APIKey `json:"body"`
	}, error) {
		if input.Body.ActorID == "" || input.Body.Key == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and key are required", nil)
		}
		key := domain.APIKey{
			ID:      uuid.NewString(),
			ActorID: input.Body.ActorID,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(input.Body.Key),
		}
		if err := l.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.APIKey `json:"body"`
		}{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		items, err := l.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/apikeys/{key_id}",
		Summary:       "Delete API key",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := l.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
