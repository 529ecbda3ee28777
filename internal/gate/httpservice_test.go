package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/simplesurance/mergegate/internal/protect"
	"github.com/simplesurance/mergegate/internal/store"
)

func newAPIRequest(t *testing.T, mux *http.ServeMux, method, path, subject, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if subject != "" {
		req.Header.Set(SubjectHeader, subject)
	}

	respRecorder := httptest.NewRecorder()
	mux.ServeHTTP(respRecorder, req)

	return respRecorder
}

func TestHTTPServicePullRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	NewHTTPService(env.gate).RegisterHandlers(mux, "/api/v1/")

	resp := newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests", "bob",
		`{"source_branch": "feature", "target_branch": "master", "title": "add parser"}`,
	)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created store.PullRequest
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "bob", created.Author)
	assert.Equal(t, store.StatusOpen, created.Status)

	resp = newAPIRequest(t, mux,
		http.MethodGet, "/api/v1/projects/proj/repos/repo/pull-requests/1", "", "",
	)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = newAPIRequest(t, mux,
		http.MethodGet, "/api/v1/projects/proj/repos/repo/pull-requests", "", "",
	)
	require.Equal(t, http.StatusOK, resp.Code)

	var listed []store.PullRequest
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	resp = newAPIRequest(t, mux,
		http.MethodGet, "/api/v1/projects/proj/repos/repo/pull-requests/1/merge-check", "bob", "",
	)
	require.Equal(t, http.StatusOK, resp.Code)

	var obstacles []obstacleResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &obstacles))
	require.Len(t, obstacles, 1)
	assert.Equal(t, "self-merge", obstacles[0].Key)
	assert.True(t, obstacles[0].Overridable)

	resp = newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests/1/status", "alice",
		`{"status": "REJECTED", "cause": "declined by reviewer"}`,
	)
	require.Equal(t, http.StatusOK, resp.Code)

	var rejected store.PullRequest
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rejected))
	assert.Equal(t, store.StatusRejected, rejected.Status)
}

func TestHTTPServiceMergeOfBlockedPullRequest(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	NewHTTPService(env.gate).RegisterHandlers(mux, "/api/v1/")

	resp := newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests", "bob",
		`{"source_branch": "feature", "target_branch": "master", "title": "add parser"}`,
	)
	require.Equal(t, http.StatusCreated, resp.Code)

	// bob merging his own pull request is blocked
	resp = newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests/1/merge", "bob", `{}`,
	)
	require.Equal(t, http.StatusConflict, resp.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	assert.Len(t, errResp.Obstacles, 1)

	env.merger.
		EXPECT().
		Merge(gomock.Any(), env.repo, "master", "feature", gomock.Any()).
		Return("c-merge", nil)

	resp = newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests/1/merge", "alice", `{}`,
	)
	require.Equal(t, http.StatusOK, resp.Code)

	var merged store.PullRequest
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &merged))
	assert.Equal(t, store.StatusMerged, merged.Status)
}

func TestHTTPServiceCheckPush(t *testing.T) {
	env := newTestEnv(t)

	env.settings.Protect(env.repo, protect.BranchProtection{Branch: "master"})

	mux := http.NewServeMux()
	NewHTTPService(env.gate).RegisterHandlers(mux, "/api/v1/")

	resp := newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/check-push", "",
		`{"changed": [{"branch": "master", "changesets": [{"id": "c1", "parent_count": 1, "paths": ["main.go"]}]}]}`,
	)
	require.Equal(t, http.StatusForbidden, resp.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	assert.NotEmpty(t, errResp.Violations)

	resp = newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/check-push", "",
		`{"changed": [{"branch": "feature", "changesets": [{"id": "c1", "parent_count": 1, "paths": ["main.go"]}]}]}`,
	)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/check-push", "",
		`{"deleted": [{"branch": "feature"}]}`,
	)
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestHTTPServiceDraftPullRequests(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	NewHTTPService(env.gate).RegisterHandlers(mux, "/api/v1/")

	resp := newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests", "bob",
		`{"source_branch": "feature", "target_branch": "master", "title": "add parser", "draft": true}`,
	)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created store.PullRequest
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.Equal(t, store.StatusDraft, created.Status)

	// drafts can not be merged
	resp = newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests/1/merge", "alice", `{}`,
	)
	assert.Equal(t, http.StatusConflict, resp.Code)

	// marking the draft ready opens it
	resp = newAPIRequest(t, mux,
		http.MethodPost, "/api/v1/projects/proj/repos/repo/pull-requests/1/status", "bob",
		`{"status": "OPEN"}`,
	)
	require.Equal(t, http.StatusOK, resp.Code)

	var opened store.PullRequest
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &opened))
	assert.Equal(t, store.StatusOpen, opened.Status)
}

func TestHTTPServiceConfigurationPermissions(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	NewHTTPService(env.gate).RegisterHandlers(mux, "/api/v1/")

	cfgBody := `{"enabled": true, "rules": [{"rule_name": "branch-pattern"}]}`

	resp := newAPIRequest(t, mux,
		http.MethodPut, "/api/v1/workflow-configuration", "mallory", cfgBody,
	)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	env.authorizer.Grant("admin", "configuration-write")

	resp = newAPIRequest(t, mux,
		http.MethodPut, "/api/v1/workflow-configuration", "admin", cfgBody,
	)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = newAPIRequest(t, mux,
		http.MethodGet, "/api/v1/workflow-configuration", "", "",
	)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "branch-pattern")

	resp = newAPIRequest(t, mux,
		http.MethodPut, "/api/v1/projects/proj/repos/repo/workflow-configuration", "admin",
		`{"enabled": true, "rules": [{"rule_name": "no-such-rule"}]}`,
	)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHTTPServiceUnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	NewHTTPService(env.gate).RegisterHandlers(mux, "/api/v1/")

	resp := newAPIRequest(t, mux, http.MethodGet, "/api/v1/projects/proj/teams", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = newAPIRequest(t, mux,
		http.MethodGet, "/api/v1/projects/proj/repos/repo/pull-requests/99", "", "",
	)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = newAPIRequest(t, mux,
		http.MethodGet, "/api/v1/projects/proj/repos/repo/pull-requests/not-a-number", "", "",
	)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
