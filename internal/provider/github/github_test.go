package github

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergegate/internal/provider"
)

const pushEventPayload = `{
  "ref": "refs/heads/feature",
  "created": false,
  "deleted": false,
  "repository": {
    "name": "repo",
    "owner": {"login": "proj"}
  },
  "commits": [
    {
      "id": "8ad9dec4298f6b8f020997373cf4fe22005f2c06",
      "added": ["parser.go"],
      "modified": ["main.go"],
      "removed": []
    }
  ]
}`

const branchCreatedEventPayload = `{
  "ref": "refs/heads/feature",
  "created": true,
  "deleted": false,
  "repository": {
    "name": "repo",
    "owner": {"login": "proj"}
  },
  "commits": [
    {"id": "c1", "added": ["readme.md"], "modified": [], "removed": []},
    {"id": "c2", "added": [], "modified": ["readme.md"], "removed": []}
  ]
}`

const branchDeletedEventPayload = `{
  "ref": "refs/heads/feature",
  "created": false,
  "deleted": true,
  "repository": {
    "name": "repo",
    "owner": {"login": "proj"}
  },
  "commits": []
}`

func newWebhookReq(eventType, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/listener/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Github-Event", eventType)
	req.Header.Set("X-Github-Delivery", "3355fab0-b22c-11eb-9936-51d9540c0cdc")

	return req
}

func TestHTTPHandlerPushEventParsing(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)
	t.Cleanup(func() { close(evChan) })

	p := New([]chan<- *provider.Event{evChan})

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("push", pushEventPayload))
	require.Equal(t, http.StatusOK, respRecorder.Code)

	event := <-evChan

	assert.Equal(t, "github", event.Provider)
	assert.Equal(t, "push", event.EventType)
	assert.Equal(t, "3355fab0-b22c-11eb-9936-51d9540c0cdc", event.DeliveryID)

	require.NotNil(t, event.Push)
	assert.Equal(t, "proj/repo", event.Push.Repository.String())
	assert.Empty(t, event.Push.Deleted)

	require.Len(t, event.Push.Changed, 1)
	change := event.Push.Changed[0]
	assert.Equal(t, "feature", change.Branch)

	require.Len(t, change.Changesets, 1)
	assert.Equal(t, "8ad9dec4298f6b8f020997373cf4fe22005f2c06", change.Changesets[0].ID)
	assert.Equal(t, 1, change.Changesets[0].ParentCount)
	assert.ElementsMatch(t, []string{"parser.go", "main.go"}, change.Changesets[0].Paths)
}

func TestHTTPHandlerBranchCreation(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)
	t.Cleanup(func() { close(evChan) })

	p := New([]chan<- *provider.Event{evChan})

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("push", branchCreatedEventPayload))
	require.Equal(t, http.StatusOK, respRecorder.Code)

	event := <-evChan

	require.NotNil(t, event.Push)
	require.Len(t, event.Push.Changed, 1)

	changesets := event.Push.Changed[0].Changesets
	require.Len(t, changesets, 2)

	// only the first commit of a new branch is parentless
	assert.Equal(t, 0, changesets[0].ParentCount)
	assert.Equal(t, 1, changesets[1].ParentCount)
}

func TestHTTPHandlerBranchDeletion(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)
	t.Cleanup(func() { close(evChan) })

	p := New([]chan<- *provider.Event{evChan})

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("push", branchDeletedEventPayload))
	require.Equal(t, http.StatusOK, respRecorder.Code)

	event := <-evChan

	require.NotNil(t, event.Push)
	assert.Empty(t, event.Push.Changed)

	require.Len(t, event.Push.Deleted, 1)
	assert.Equal(t, "feature", event.Push.Deleted[0].Branch)
}

func TestHTTPHandlerIgnoresOtherEvents(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)
	t.Cleanup(func() { close(evChan) })

	p := New([]chan<- *provider.Event{evChan})

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("ping", `{"zen": "Design for failure."}`))
	require.Equal(t, http.StatusOK, respRecorder.Code)

	assert.Empty(t, evChan)
}

func TestHTTPHandlerRejectsInvalidSignature(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)
	t.Cleanup(func() { close(evChan) })

	p := New([]chan<- *provider.Event{evChan}, WithPayloadSecret("webhook-secret"))

	req := newWebhookReq("push", pushEventPayload)
	req.Header.Set("X-Hub-Signature", "sha1=0000000000000000000000000000000000000000")

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, req)
	assert.Equal(t, http.StatusBadRequest, respRecorder.Code)
	assert.Empty(t, evChan)
}
