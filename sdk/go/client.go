package vibesuitesdk

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

// Client is a minimal VibeSuite HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Persona represents the API persona model (partial).
type Persona struct {
	ID                   string  `json:"id"`
	ProjectID            string  `json:"project_id"`
	TemplateID           string  `json:"template_id"`
	CustomName           *string `json:"custom_name,omitempty"`
	IsActive             bool    `json:"is_active"`
	ProfessionalismScore float64 `json:"professionalism_score"`
	QualityScore         float64 `json:"quality_score"`
	KudosQuotaUsed       int64   `json:"kudos_quota_used"`
	WtfQuotaUsed         int64   `json:"wtf_quota_used"`
}

// Activity represents one ledger entry.
type Activity struct {
	ID                   string  `json:"id"`
	PersonaID            string  `json:"persona_id"`
	TaskID               *string `json:"task_id,omitempty"`
	Kind                 string  `json:"kind"`
	Description          string  `json:"description"`
	ProfessionalismDelta float64 `json:"professionalism_change"`
	QualityDelta         float64 `json:"quality_change"`
	TaskSize             string  `json:"task_size"`
	CreatedAt            string  `json:"created_at"`
}

// Action represents one telemetry entry.
type Action struct {
	ID              string  `json:"id"`
	PersonaID       string  `json:"persona_id"`
	Kind            string  `json:"kind"`
	Category        string  `json:"category"`
	ResultStatus    string  `json:"result_status"`
	ExecutionTimeMs *int64  `json:"execution_time_ms,omitempty"`
	Description     string  `json:"description"`
	CreatedAt       string  `json:"created_at"`
	TaskID          *string `json:"task_id,omitempty"`
}

// Artifact represents evidence attached to an action.
type Artifact struct {
	ID       string  `json:"id"`
	ActionID string  `json:"action_id"`
	Type     string  `json:"type"`
	FilePath *string `json:"file_path,omitempty"`
}

// ActionWithArtifacts is an action with its evidence.
type ActionWithArtifacts struct {
	Action
	Artifacts []Artifact `json:"artifacts"`
}

// TaskStatus is a task with its derived status overlay.
type TaskStatus struct {
	ID                    string  `json:"id"`
	ProjectID             string  `json:"project_id"`
	Title                 string  `json:"title"`
	Status                string  `json:"status"`
	InProgress            bool    `json:"has_in_progress_attempt"`
	Merged                bool    `json:"has_merged_attempt"`
	LastAttemptFailed     bool    `json:"last_attempt_failed"`
	LatestAttemptExecutor *string `json:"latest_attempt_executor,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreatePersona instantiates a template in the client's project.
func (c *Client) CreatePersona(ctx context.Context, templateName string) (Persona, error) {
	body := map[string]any{"template_name": templateName}
	var resp Persona
	err := c.do(ctx, http.MethodPost, c.projectPath("personas"), body, &resp)
	return resp, err
}

// ListPersonas returns the project's active personas.
func (c *Client) ListPersonas(ctx context.Context) ([]Persona, error) {
	var resp []Persona
	err := c.do(ctx, http.MethodGet, c.projectPath("personas"), nil, &resp)
	return resp, err
}

// ImportDefaultPersonas creates personas for every configured template.
func (c *Client) ImportDefaultPersonas(ctx context.Context) (int, error) {
	var resp struct {
		Imported int `json:"imported"`
	}
	err := c.do(ctx, http.MethodPost, c.projectPath("personas/import-defaults"), nil, &resp)
	return resp.Imported, err
}

// RecordActivity appends a scored activity for a persona.
func (c *Client) RecordActivity(ctx context.Context, personaID, kind, taskSize, description string) (Activity, error) {
	body := map[string]any{
		"kind":        kind,
		"description": description,
	}
	if taskSize != "" {
		body["task_size"] = taskSize
	}
	var resp Activity
	endpoint := fmt.Sprintf("v0/personas/%s/activities", url.PathEscape(personaID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListActivities returns a persona's activities, newest first.
func (c *Client) ListActivities(ctx context.Context, personaID string, limit int) ([]Activity, error) {
	endpoint := fmt.Sprintf("v0/personas/%s/activities", url.PathEscape(personaID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Activity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RecordAction logs an action with a provisional success status.
func (c *Client) RecordAction(ctx context.Context, personaID, kind, category, description string) (Action, error) {
	body := map[string]any{
		"kind":        kind,
		"category":    category,
		"description": description,
	}
	var resp Action
	endpoint := fmt.Sprintf("v0/personas/%s/actions", url.PathEscape(personaID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CompleteAction records the action's real outcome.
func (c *Client) CompleteAction(ctx context.Context, actionID, result string, executionTimeMs int64) (Action, error) {
	body := map[string]any{"result_status": result}
	if executionTimeMs > 0 {
		body["execution_time_ms"] = executionTimeMs
	}
	var resp Action
	endpoint := fmt.Sprintf("v0/actions/%s", url.PathEscape(actionID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// ListActions returns a persona's actions with artifacts, newest first.
func (c *Client) ListActions(ctx context.Context, personaID string, limit int) ([]ActionWithArtifacts, error) {
	endpoint := fmt.Sprintf("v0/personas/%s/actions", url.PathEscape(personaID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []ActionWithArtifacts
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TaskStatus resolves a task's derived status.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	var resp TaskStatus
	endpoint := fmt.Sprintf("v0/tasks/%s/status", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListTasks returns the project's tasks with derived status.
func (c *Client) ListTasks(ctx context.Context) ([]TaskStatus, error) {
	var resp []TaskStatus
	err := c.do(ctx, http.MethodGet, c.projectPath("tasks"), nil, &resp)
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

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
