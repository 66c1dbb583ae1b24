package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orquestra-ai/orquestra/internal/approval"
	"github.com/orquestra-ai/orquestra/internal/controller"
	"github.com/orquestra-ai/orquestra/internal/event"
	"github.com/orquestra-ai/orquestra/internal/protocol"
	"github.com/orquestra-ai/orquestra/internal/runner"
	"github.com/orquestra-ai/orquestra/internal/storage"
	"github.com/orquestra-ai/orquestra/internal/team"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

type testEnv struct {
	srv  *Server
	ctrl *controller.Controller
	fake *runner.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.New(t.TempDir())
	fake := runner.NewFake()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	m, err := approval.NewMediator(context.Background(), store, fake)
	require.NoError(t, err)
	ctrl := controller.New(store, fake, m, bus)
	teams := team.NewEngine(ctrl, bus)
	ctrl.SetTeamTracker(teams)

	return &testEnv{
		srv:  New(DefaultConfig(), ctrl, m, teams, bus),
		ctrl: ctrl,
		fake: fake,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestThreadLifecycle(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/threads", map[string]any{
		"name":          "refactor",
		"workspaceDirs": []string{"/tmp/repo"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeInto[map[string]any](t, rec)
	threadID := created["id"].(string)
	assert.Equal(t, "idle", created["status"])

	rec = e.do(t, http.MethodGet, "/threads", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeInto[[]map[string]any](t, rec)
	require.Len(t, list, 1)

	rec = e.do(t, http.MethodPatch, "/threads/"+threadID, map[string]string{"name": "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/threads/"+threadID, nil)
	got := decodeInto[map[string]any](t, rec)
	assert.Equal(t, "renamed", got["name"])

	rec = e.do(t, http.MethodDelete, "/threads/"+threadID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/threads/"+threadID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitAndAbort(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/threads", map[string]any{"name": "work"})
	threadID := decodeInto[map[string]any](t, rec)["id"].(string)

	rec = e.do(t, http.MethodPost, "/threads/"+threadID+"/messages", map[string]any{
		"prompt": "add a cache",
		"effort": "high",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := decodeInto[map[string]string](t, rec)["sessionID"]
	require.NotEmpty(t, sessionID)
	assert.Equal(t, types.EffortHigh, e.fake.LastStart().Effort)

	// A running session rejects deletion but accepts abort.
	rec = e.do(t, http.MethodDelete, "/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/sessions/"+sessionID+"/abort", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"corr-1"}, e.fake.Aborted)
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/threads", map[string]any{"name": "work"})
	threadID := decodeInto[map[string]any](t, rec)["id"].(string)

	rec = e.do(t, http.MethodPost, "/threads/"+threadID+"/messages", map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/threads/missing/messages", map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprovalEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/threads", map[string]any{"name": "work"})
	threadID := decodeInto[map[string]any](t, rec)["id"].(string)
	rec = e.do(t, http.MethodPost, "/threads/"+threadID+"/messages", map[string]any{"prompt": "run it"})
	sessionID := decodeInto[map[string]string](t, rec)["sessionID"]

	// No pending mediation yet.
	rec = e.do(t, http.MethodPost, "/sessions/"+sessionID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	e.ctrl.Route(protocol.ApprovalRequest{
		Base:       protocol.Base{Correlation: "corr-1"},
		ApprovalID: "appr-1",
		ToolName:   "bash",
		Input:      map[string]any{"command": "make deploy"},
	})

	rec = e.do(t, http.MethodPost, "/sessions/"+sessionID+"/deny", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, e.fake.Responds, 1)
	assert.Equal(t, runner.BehaviorDeny, e.fake.Responds[0].Response.Behavior)
}

func TestAnswerEndpointValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/threads", map[string]any{"name": "work"})
	threadID := decodeInto[map[string]any](t, rec)["id"].(string)
	rec = e.do(t, http.MethodPost, "/threads/"+threadID+"/messages", map[string]any{"prompt": "ask"})
	sessionID := decodeInto[map[string]string](t, rec)["sessionID"]

	e.ctrl.Route(protocol.AskUser{
		Base:       protocol.Base{Correlation: "corr-1"},
		ApprovalID: "appr-1",
		Questions:  []types.Question{{Key: "scope", Prompt: "Which?"}},
	})

	rec = e.do(t, http.MethodPost, "/sessions/"+sessionID+"/answer", map[string]any{
		"answers": map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/sessions/"+sessionID+"/answer", map[string]any{
		"answers": map[string]string{"scope": "all"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, e.fake.Responds, 1)
}

func TestRuleEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/rules", map[string]string{"toolName": "bash", "pattern": "git *"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rule := decodeInto[approval.Rule](t, rec)
	assert.NotEmpty(t, rule.ID)

	rec = e.do(t, http.MethodGet, "/rules", nil)
	rules := decodeInto[[]approval.Rule](t, rec)
	require.Len(t, rules, 1)

	rec = e.do(t, http.MethodPost, "/rules", map[string]string{"toolName": "", "pattern": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodDelete, "/rules/"+rule.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, "/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeamEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/teams", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/threads", map[string]any{"name": "work"})
	threadID := decodeInto[map[string]any](t, rec)["id"].(string)
	rec = e.do(t, http.MethodPost, "/threads/"+threadID+"/messages", map[string]any{"prompt": "spin up a crew"})
	require.Equal(t, http.StatusOK, rec.Code)

	e.ctrl.Route(protocol.ToolUse{
		Base:      protocol.Base{Correlation: "corr-1"},
		ToolUseID: "tu-1",
		Name:      "team_create",
		Input:     map[string]any{"name": "crew"},
	})

	rec = e.do(t, http.MethodGet, "/teams", nil)
	names := decodeInto[[]string](t, rec)
	assert.Equal(t, []string{"crew"}, names)

	// Tracked but no snapshot applied yet.
	rec = e.do(t, http.MethodGet, "/teams/crew", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
