package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/agentrun/agent"
	"github.com/taipm/agentrun/agent/tools"
	"github.com/taipm/agentrun/store"
)

// fakePlannerLLM returns a fixed {"plan": [...]} document so handler
// tests exercise the full plan-then-execute path without a live LLM.
type fakePlannerLLM struct {
	response string
}

func (f *fakePlannerLLM) Ask(ctx context.Context, message string) (string, error) {
	return f.response, nil
}

// staticAdapter is an agent.LLMAdapter double for wiring a MultiProvider
// into test deps without a live provider.
type staticAdapter struct{}

func (staticAdapter) Complete(_ context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	return &agent.CompletionResponse{Content: "ok", Model: req.Model, FinishReason: "stop"}, nil
}

func (staticAdapter) Stream(ctx context.Context, req *agent.CompletionRequest, onChunk func(string)) (*agent.CompletionResponse, error) {
	return staticAdapter{}.Complete(ctx, req)
}

func newTestDeps(t *testing.T, llm agent.PlannerLLM) *Deps {
	t.Helper()

	var logger agent.Logger = &agent.NoopLogger{}
	storage := store.NewMemoryStore()
	manager := agent.NewManager(storage, logger)
	require.NoError(t, manager.Initialize(context.Background()))

	registry := tools.NewRegistry()
	require.NoError(t, registry.RegisterTool(tools.NewDateTimeTool()))

	router, err := agent.NewMultiProvider(&agent.MultiProviderConfig{
		Providers: []agent.ProviderConfig{
			{Name: "test", Type: "test", Model: "test-model", Adapter: staticAdapter{}},
		},
	})
	require.NoError(t, err)

	planner := agent.NewPlanner(manager, llm, registry, nil, logger)
	executor := agent.NewExecutor(manager, registry, agent.StaticParamExecutor{}, agent.Sequential, nil, logger)

	cfg := agent.DefaultServiceConfig()
	cfg.InstanceID = "test-instance"

	return &Deps{
		Config:   cfg,
		Logger:   logger,
		Storage:  storage,
		Registry: registry,
		Manager:  manager,
		Planner:  planner,
		Executor: executor,
		Notifier: agent.NoopNotifier{},
		LLM:      router,
	}
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsStatusTimestampAndInstanceID(t *testing.T) {
	deps := newTestDeps(t, &fakePlannerLLM{})
	router := NewRouter(deps)

	rec := doRequest(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-instance", body["instanceId"])
	require.Contains(t, body, "timestamp")
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err, "timestamp must be RFC3339")

	providers, ok := body["providers"].(map[string]interface{})
	require.True(t, ok, "health must report per-provider status")
	assert.Equal(t, "unknown", providers["test"], "no request has gone through yet")
}

func TestCreateGetListDeleteTaskRoundTrip(t *testing.T) {
	deps := newTestDeps(t, &fakePlannerLLM{})
	router := NewRouter(deps)

	createRec := doRequest(router, http.MethodPost, "/tasks", `{"name":"root task","description":"d"}`)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created agent.Task
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	getRec := doRequest(router, http.MethodGet, "/tasks/"+created.ID, "")
	require.Equal(t, http.StatusOK, getRec.Code)

	listRec := doRequest(router, http.MethodGet, "/tasks", "")
	require.Equal(t, http.StatusOK, listRec.Code)
	var listed struct {
		Tasks []*agent.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	assert.Len(t, listed.Tasks, 1)

	deleteRec := doRequest(router, http.MethodDelete, "/tasks/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, deleteRec.Code)

	missingRec := doRequest(router, http.MethodGet, "/tasks/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestListTasksFiltersByParentID(t *testing.T) {
	deps := newTestDeps(t, &fakePlannerLLM{})
	router := NewRouter(deps)

	parent, err := deps.Manager.CreateTask(context.Background(), agent.TaskCreate{Name: "parent"})
	require.NoError(t, err)
	child, err := deps.Manager.AddSubtask(context.Background(), parent.ID, agent.TaskCreate{Name: "child"})
	require.NoError(t, err)
	_, err = deps.Manager.CreateTask(context.Background(), agent.TaskCreate{Name: "unrelated"})
	require.NoError(t, err)

	rec := doRequest(router, http.MethodGet, "/tasks?parentId="+parent.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Tasks []*agent.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Tasks, 1)
	assert.Equal(t, child.ID, listed.Tasks[0].ID)
}

func TestGetUnknownTaskReturns404(t *testing.T) {
	deps := newTestDeps(t, &fakePlannerLLM{})
	router := NewRouter(deps)

	rec := doRequest(router, http.MethodGet, "/tasks/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestPlanTaskDispatchesExecutorAsynchronously: the HTTP response must
// carry the planned main task immediately, and the subtask the Planner
// created from the single-step plan must reach a terminal status shortly
// after, without the handler blocking on it.
func TestPlanTaskDispatchesExecutorAsynchronously(t *testing.T) {
	llm := &fakePlannerLLM{response: `{"plan": [{"tool_identifier": "datetime__current_time", "thought": "Get the current time"}]}`}
	deps := newTestDeps(t, llm)
	router := NewRouter(deps)

	rec := doRequest(router, http.MethodPost, "/tasks/plan", `{"description":"Search hotels in Valencia"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var planned agent.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &planned))
	assert.Equal(t, agent.StatusPlanned, planned.Status)

	require.Eventually(t, func() bool {
		task := deps.Manager.GetTask(planned.ID)
		return task != nil && task.Status == agent.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond, "main task should reach completed once the detached executor run finishes")

	subtasks := deps.Manager.GetSubtasks(planned.ID)
	require.Len(t, subtasks, 1)
	assert.Equal(t, agent.StatusCompleted, subtasks[0].Status)
}

func TestPlanTaskInvalidBodyReturns400(t *testing.T) {
	deps := newTestDeps(t, &fakePlannerLLM{})
	router := NewRouter(deps)

	rec := doRequest(router, http.MethodPost, "/tasks/plan", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTaskAppliesPartialChanges(t *testing.T) {
	deps := newTestDeps(t, &fakePlannerLLM{})
	router := NewRouter(deps)

	createRec := doRequest(router, http.MethodPost, "/tasks", `{"name":"n"}`)
	var created agent.Task
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	updateBody := fmt.Sprintf(`{"progress": %f}`, 0.5)
	updateRec := doRequest(router, http.MethodPut, "/tasks/"+created.ID, updateBody)
	require.Equal(t, http.StatusOK, updateRec.Code)

	var updated agent.Task
	require.NoError(t, json.Unmarshal(updateRec.Body.Bytes(), &updated))
	assert.Equal(t, 0.5, updated.Progress)
}
