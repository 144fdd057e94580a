package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sjmog/vibesuite/internal/actionlog"
	"github.com/sjmog/vibesuite/internal/config"
	"github.com/sjmog/vibesuite/internal/db"
	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/ledger"
	"github.com/sjmog/vibesuite/internal/migrate"
	"github.com/sjmog/vibesuite/internal/status"
)

type testServer struct {
	URL    string
	Ledger ledger.Ledger
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("proj-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	led := ledger.New(conn, cfg)
	led.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := led.SyncTemplates(context.Background()); err != nil {
		t.Fatalf("sync templates: %v", err)
	}
	handler, err := New(Config{
		Ledger:   led,
		Actions:  actionlog.New(conn),
		Status:   status.New(conn),
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Ledger: led,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createPersona(t *testing.T, srv *testServer) domain.Persona {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/personas", map[string]any{
		"template_name": "Developer",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create persona: %d %s", res.StatusCode, string(data))
	}
	var p domain.Persona
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal persona: %v", err)
	}
	return p
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestMissingCredentialsRejected(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/proj-1/personas", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestRecordActivityAndQuotaEnvelope(t *testing.T) {
	srv := newTestServer(t)
	p := createPersona(t, srv)

	for i := 0; i < 5; i++ {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/personas/"+p.ID+"/activities", map[string]any{
			"kind": "kudos_received",
		}, actorHeader)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("kudos %d: %d %s", i, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/personas/"+p.ID+"/activities", map[string]any{
		"kind": "kudos_received",
	}, actorHeader)
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "quota_exceeded" {
		t.Fatalf("error code %q, want quota_exceeded", envelope.Error.Code)
	}
}

func TestUnknownPersonaIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/personas/nope", nil, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestDuplicatePersonaConflicts(t *testing.T) {
	srv := newTestServer(t)
	createPersona(t, srv)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/personas", map[string]any{
		"template_name": "Developer",
	}, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
}

func TestCreatePersonaByTemplateNameOnly(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/personas", map[string]any{
		"template_name": "Developer",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("template_name alone must create: %d %s", res.StatusCode, string(data))
	}
	var p domain.Persona
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal persona: %v", err)
	}
	if p.TemplateID == "" {
		t.Fatal("template must resolve from its name")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/personas", map[string]any{
		"custom_name": "no template at all",
	}, actorHeader)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without template_id or template_name, got %d %s", res.StatusCode, string(data))
	}
}

func TestImportDefaults(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-2/personas/import-defaults", nil, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import: %d %s", res.StatusCode, string(data))
	}
	var out struct {
		Imported int `json:"imported"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Imported != len(srv.Ledger.Config.Templates) {
		t.Fatalf("imported %d, want %d", out.Imported, len(srv.Ledger.Config.Templates))
	}
	// Idempotent: second import creates nothing.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-2/personas/import-defaults", nil, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("re-import: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Imported != 0 {
		t.Fatalf("re-import created %d, want 0", out.Imported)
	}
}

func TestCreateTaskBootstrapsProject(t *testing.T) {
	srv := newTestServer(t)
	// No persona or any other write has touched this project yet.
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-9/tasks", map[string]any{
		"title": "First task in a fresh project",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/proj-9/tasks", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", res.StatusCode, string(data))
	}
	var tasks []domain.TaskWithStatus
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
}

func TestTaskDerivedStatusFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks", map[string]any{
		"title": "Ship feature",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/attempts", map[string]any{
		"executor": "claude",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create attempt: %d %s", res.StatusCode, string(data))
	}
	var attempt domain.TaskAttempt
	_ = json.Unmarshal(data, &attempt)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/attempts/"+attempt.ID+"/processes", map[string]any{
		"type": "codingagent",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create process: %d %s", res.StatusCode, string(data))
	}
	var proc domain.ExecutionProcess
	_ = json.Unmarshal(data, &proc)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/status", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, string(data))
	}
	var withStatus domain.TaskWithStatus
	if err := json.Unmarshal(data, &withStatus); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !withStatus.InProgress {
		t.Fatalf("running codingagent must mean in progress: %s", string(data))
	}
	if withStatus.LatestAttemptExecutor == nil || *withStatus.LatestAttemptExecutor != "claude" {
		t.Fatalf("latest executor %v, want claude", withStatus.LatestAttemptExecutor)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/processes/"+proc.ID, map[string]any{
		"status": "failed",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fail process: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/status", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &withStatus)
	if withStatus.InProgress || !withStatus.LastAttemptFailed {
		t.Fatalf("failed process must read failed, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/attempts/"+attempt.ID, map[string]any{
		"merge_commit": "abc123",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("merge: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/status", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &withStatus)
	if !withStatus.Merged {
		t.Fatalf("merged attempt must set merged, got %s", string(data))
	}
}

func TestAPIKeyAuthRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_id": "agent-1",
		"name":     "ci",
		"key":      "s3cret",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/proj-1/personas", nil, map[string]string{
		"X-Api-Key": "s3cret",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/proj-1/personas", nil, map[string]string{
		"X-Api-Key": "wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad api key: %d %s", res.StatusCode, string(data))
	}
}

func TestActionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	p := createPersona(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/personas/"+p.ID+"/actions", map[string]any{
		"kind":     "bash_command",
		"category": "tool_usage",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record action: %d %s", res.StatusCode, string(data))
	}
	var action domain.Action
	_ = json.Unmarshal(data, &action)
	if action.ResultStatus != domain.ResultSuccess {
		t.Fatalf("default result %s, want success", action.ResultStatus)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/actions/"+action.ID, map[string]any{
		"result_status":     "failure",
		"execution_time_ms": 1500,
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete action: %d %s", res.StatusCode, string(data))
	}
	var done domain.Action
	_ = json.Unmarshal(data, &done)
	if done.ResultStatus != domain.ResultFailure || done.ExecutionTimeMs == nil || *done.ExecutionTimeMs != 1500 {
		t.Fatalf("completed action mismatch: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/actions/"+action.ID+"/artifacts", map[string]any{
		"type":      "command_output",
		"output":    map[string]any{"stderr": "boom"},
		"file_path": "run.log",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("attach artifact: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/personas/"+p.ID+"/actions", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list actions: %d %s", res.StatusCode, string(data))
	}
	var list []domain.ActionWithArtifacts
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 1 || len(list[0].Artifacts) != 1 {
		t.Fatalf("want 1 action with 1 artifact, got %s", string(data))
	}
}
