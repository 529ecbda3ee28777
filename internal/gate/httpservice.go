package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/merge"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
	"github.com/simplesurance/mergegate/internal/workflow"
)

// SubjectHeader carries the authenticated user of a request.
// The reverse proxy in front of the service is expected to set it.
const SubjectHeader = "X-Forwarded-User"

// HTTPService exposes the gate operations as a JSON API.
type HTTPService struct {
	gate   *Gate
	logger *zap.Logger
}

func NewHTTPService(gate *Gate) *HTTPService {
	return &HTTPService{
		gate:   gate,
		logger: gate.logger.Named("http_service"),
	}
}

// RegisterHandlers registers the API routes on mux under prefix.
//
// Routes:
//
//	GET, PUT  {prefix}workflow-configuration
//	GET, PUT  {prefix}projects/{key}/repos/{name}/workflow-configuration
//	POST      {prefix}projects/{key}/repos/{name}/check-push
//	GET, POST {prefix}projects/{key}/repos/{name}/pull-requests
//	GET       {prefix}projects/{key}/repos/{name}/pull-requests/{id}
//	GET       {prefix}projects/{key}/repos/{name}/pull-requests/{id}/merge-check
//	POST      {prefix}projects/{key}/repos/{name}/pull-requests/{id}/merge
//	POST      {prefix}projects/{key}/repos/{name}/pull-requests/{id}/status
func (h *HTTPService) RegisterHandlers(mux *http.ServeMux, prefix string) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	mux.HandleFunc(prefix, func(respWr http.ResponseWriter, req *http.Request) {
		h.dispatch(respWr, req, strings.TrimPrefix(req.URL.Path, prefix))
	})
}

func (h *HTTPService) dispatch(respWr http.ResponseWriter, req *http.Request, path string) {
	elems := strings.Split(strings.Trim(path, "/"), "/")

	if len(elems) == 1 && elems[0] == "workflow-configuration" {
		h.handleGlobalConfiguration(respWr, req)
		return
	}

	// all remaining routes are repository scoped:
	// projects/{key}/repos/{name}/...
	if len(elems) < 5 || elems[0] != "projects" || elems[2] != "repos" {
		http.NotFound(respWr, req)
		return
	}

	repo, err := vcs.NewRepository(elems[1], elems[3])
	if err != nil {
		h.sendErr(respWr, req, http.StatusBadRequest, err)
		return
	}

	rest := elems[4:]

	switch {
	case len(rest) == 1 && rest[0] == "workflow-configuration":
		h.handleRepositoryConfiguration(respWr, req, repo)

	case len(rest) == 1 && rest[0] == "check-push":
		h.handleCheckPush(respWr, req, repo)

	case rest[0] == "pull-requests":
		h.dispatchPullRequests(respWr, req, repo, rest[1:])

	default:
		http.NotFound(respWr, req)
	}
}

func (h *HTTPService) dispatchPullRequests(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository, rest []string) {
	if len(rest) == 0 {
		switch req.Method {
		case http.MethodGet:
			h.handleListPullRequests(respWr, req, repo)
		case http.MethodPost:
			h.handleCreatePullRequest(respWr, req, repo)
		default:
			h.sendMethodNotAllowed(respWr, req)
		}

		return
	}

	id, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		h.sendErr(respWr, req, http.StatusBadRequest,
			fmt.Errorf("invalid pull request id: %q", rest[0]))
		return
	}

	switch {
	case len(rest) == 1 && req.Method == http.MethodGet:
		h.handleGetPullRequest(respWr, req, repo, id)

	case len(rest) == 2 && rest[1] == "merge-check" && req.Method == http.MethodGet:
		h.handleMergeCheck(respWr, req, repo, id)

	case len(rest) == 2 && rest[1] == "merge" && req.Method == http.MethodPost:
		h.handleMerge(respWr, req, repo, id)

	case len(rest) == 2 && rest[1] == "status" && req.Method == http.MethodPost:
		h.handleUpdateStatus(respWr, req, repo, id)

	default:
		http.NotFound(respWr, req)
	}
}

type checkPushRequest struct {
	Changed []refChangeRequest `json:"changed"`
	Deleted []refChangeRequest `json:"deleted"`
}

type refChangeRequest struct {
	Branch     string             `json:"branch"`
	Changesets []changesetRequest `json:"changesets"`
}

type changesetRequest struct {
	ID          string   `json:"id"`
	ParentCount int      `json:"parent_count"`
	Paths       []string `json:"paths"`
}

// handleCheckPush lets the pre-receive hook of the vcs server consult the
// write-protection guard before a push is accepted.
// A rejected push answers with 403 and the violation messages, the hook
// fails the push transactionally.
func (h *HTTPService) handleCheckPush(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository) {
	if req.Method != http.MethodPost {
		h.sendMethodNotAllowed(respWr, req)
		return
	}

	var body checkPushRequest
	if !h.decode(respWr, req, &body) {
		return
	}

	event := &vcs.PushEvent{
		Repository: repo,
		Changed:    toRefChanges(body.Changed),
		Deleted:    toRefChanges(body.Deleted),
	}

	if err := h.gate.CheckPush(req.Context(), event); err != nil {
		h.sendDomainErr(respWr, req, err)
		return
	}

	respWr.WriteHeader(http.StatusNoContent)
}

func toRefChanges(changes []refChangeRequest) []vcs.RefChange {
	result := make([]vcs.RefChange, 0, len(changes))

	for _, change := range changes {
		refChange := vcs.RefChange{Branch: change.Branch}

		for _, changeset := range change.Changesets {
			refChange.Changesets = append(refChange.Changesets, vcs.Changeset{
				ID:          changeset.ID,
				ParentCount: changeset.ParentCount,
				Paths:       changeset.Paths,
			})
		}

		result = append(result, refChange)
	}

	return result
}

type createPullRequestRequest struct {
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Draft        bool   `json:"draft"`
}

func (h *HTTPService) handleCreatePullRequest(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository) {
	var body createPullRequestRequest
	if !h.decode(respWr, req, &body) {
		return
	}

	pr, err := h.gate.AddPullRequest(
		req.Context(), repo,
		body.SourceBranch, body.TargetBranch,
		subject(req), body.Title, body.Description,
		body.Draft,
	)
	if err != nil {
		h.sendDomainErr(respWr, req, err)
		return
	}

	h.sendJSON(respWr, req, http.StatusCreated, pr)
}

func (h *HTTPService) handleListPullRequests(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository) {
	prs, err := h.gate.ListPullRequests(req.Context(), repo)
	if err != nil {
		h.sendDomainErr(respWr, req, err)
		return
	}

	h.sendJSON(respWr, req, http.StatusOK, prs)
}

func (h *HTTPService) handleGetPullRequest(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository, id int64) {
	pr, err := h.gate.GetPullRequest(req.Context(), repo, id)
	if err != nil {
		h.sendDomainErr(respWr, req, err)
		return
	}

	h.sendJSON(respWr, req, http.StatusOK, pr)
}

type obstacleResponse struct {
	Key         string `json:"key"`
	Message     string `json:"message"`
	Overridable bool   `json:"overridable"`
}

func (h *HTTPService) handleMergeCheck(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository, id int64) {
	obstacles, err := h.gate.DryRunMerge(req.Context(), repo, id, subject(req))
	if err != nil {
		h.sendDomainErr(respWr, req, err)
		return
	}

	result := make([]obstacleResponse, 0, len(obstacles))
	for _, o := range obstacles {
		result = append(result, obstacleResponse{
			Key:         o.Key,
			Message:     o.Message,
			Overridable: o.Overridable,
		})
	}

	h.sendJSON(respWr, req, http.StatusOK, result)
}

type mergeRequest struct {
	Message            string `json:"message"`
	DeleteSourceBranch bool   `json:"delete_source_branch"`
}

func (h *HTTPService) handleMerge(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository, id int64) {
	var body mergeRequest
	if !h.decode(respWr, req, &body) {
		return
	}

	actor := subject(req)

	pr, err := h.gate.Merge(
		req.Context(), repo, id, actor,
		merge.CommitMetadata{Message: body.Message, Author: actor},
		merge.Options{DeleteSourceBranch: body.DeleteSourceBranch},
	)
	if err != nil {
		h.sendDomainErr(respWr, req, err)
		return
	}

	h.sendJSON(respWr, req, http.StatusOK, pr)
}

type updateStatusRequest struct {
	Status store.Status `json:"status"`
	Cause  string       `json:"cause"`
}

func (h *HTTPService) handleUpdateStatus(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository, id int64) {
	var body updateStatusRequest
	if !h.decode(respWr, req, &body) {
		return
	}

	pr, err := h.gate.UpdateStatus(req.Context(), repo, id, body.Status, body.Cause)
	if err != nil {
		h.sendDomainErr(respWr, req, err)
		return
	}

	h.sendJSON(respWr, req, http.StatusOK, pr)
}

func (h *HTTPService) handleGlobalConfiguration(respWr http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		cfg, err := h.gate.GetGlobalEngineConfiguration(req.Context())
		if err != nil {
			h.sendDomainErr(respWr, req, err)
			return
		}

		h.sendJSON(respWr, req, http.StatusOK, cfg)

	case http.MethodPut:
		var cfg workflow.GlobalConfiguration
		if !h.decode(respWr, req, &cfg) {
			return
		}

		if err := h.gate.SetGlobalEngineConfiguration(req.Context(), subject(req), &cfg); err != nil {
			h.sendDomainErr(respWr, req, err)
			return
		}

		respWr.WriteHeader(http.StatusNoContent)

	default:
		h.sendMethodNotAllowed(respWr, req)
	}
}

func (h *HTTPService) handleRepositoryConfiguration(respWr http.ResponseWriter, req *http.Request, repo vcs.Repository) {
	switch req.Method {
	case http.MethodGet:
		cfg, err := h.gate.GetEngineConfiguration(req.Context(), repo)
		if err != nil {
			h.sendDomainErr(respWr, req, err)
			return
		}

		h.sendJSON(respWr, req, http.StatusOK, cfg)

	case http.MethodPut:
		var cfg workflow.EngineConfiguration
		if !h.decode(respWr, req, &cfg) {
			return
		}

		if err := h.gate.SetEngineConfiguration(req.Context(), subject(req), repo, &cfg); err != nil {
			h.sendDomainErr(respWr, req, err)
			return
		}

		respWr.WriteHeader(http.StatusNoContent)

	default:
		h.sendMethodNotAllowed(respWr, req)
	}
}

func subject(req *http.Request) string {
	if subject := req.Header.Get(SubjectHeader); subject != "" {
		return subject
	}

	return "anonymous"
}

func (h *HTTPService) decode(respWr http.ResponseWriter, req *http.Request, into any) bool {
	if err := json.NewDecoder(req.Body).Decode(into); err != nil {
		h.sendErr(respWr, req, http.StatusBadRequest,
			fmt.Errorf("decoding request body failed: %w", err))
		return false
	}

	return true
}

type errorResponse struct {
	Error string `json:"error"`
	// Obstacles is set when a merge was blocked.
	Obstacles []string `json:"obstacles,omitempty"`
	// Violations is set when a push was rejected by branch protection.
	Violations []string `json:"violations,omitempty"`
}

// sendDomainErr maps the error types of the core to http status codes.
func (h *HTTPService) sendDomainErr(respWr http.ResponseWriter, req *http.Request, err error) {
	var notAllowedErr *mergeerr.MergeNotAllowedError
	if errors.As(err, &notAllowedErr) {
		h.sendJSON(respWr, req, http.StatusConflict, errorResponse{
			Error:     "merge is blocked",
			Obstacles: notAllowedErr.Messages,
		})

		return
	}

	var protectedErr *mergeerr.ProtectedWriteError
	if errors.As(err, &protectedErr) {
		h.sendJSON(respWr, req, http.StatusForbidden, errorResponse{
			Error:      "push rejected, branch only writable via merge",
			Violations: protectedErr.Violations,
		})

		return
	}

	switch {
	case errors.Is(err, mergeerr.ErrNotFound):
		h.sendErr(respWr, req, http.StatusNotFound, err)
	case errors.Is(err, mergeerr.ErrInvalidTransition):
		h.sendErr(respWr, req, http.StatusConflict, err)
	case errors.Is(err, mergeerr.ErrUnknownRule):
		h.sendErr(respWr, req, http.StatusBadRequest, err)
	case errors.Is(err, mergeerr.ErrPermissionDenied):
		h.sendErr(respWr, req, http.StatusForbidden, err)
	default:
		h.logger.Info("request failed", zap.String("path", req.URL.Path), zap.Error(err))
		h.sendErr(respWr, req, http.StatusInternalServerError, err)
	}
}

func (h *HTTPService) sendMethodNotAllowed(respWr http.ResponseWriter, req *http.Request) {
	h.sendErr(respWr, req, http.StatusMethodNotAllowed,
		fmt.Errorf("method %s is not supported", req.Method))
}

func (h *HTTPService) sendErr(respWr http.ResponseWriter, req *http.Request, status int, err error) {
	h.sendJSON(respWr, req, status, errorResponse{Error: err.Error()})
}

func (h *HTTPService) sendJSON(respWr http.ResponseWriter, req *http.Request, status int, body any) {
	respWr.Header().Set("Content-Type", "application/json")
	respWr.WriteHeader(status)

	if err := json.NewEncoder(respWr).Encode(body); err != nil {
		h.logger.Info(
			"sending http response failed",
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
	}
}
