// Package vcs defines the contracts towards the version-control backend: the
// push event data that the host delivers and the ancestry/merge capabilities
// the merge-gate core consumes.
package vcs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
)

// Repository identifies a repository hosted by the server.
type Repository struct {
	ProjectKey string
	Name       string
}

func NewRepository(projectKey, name string) (Repository, error) {
	if projectKey == "" {
		return Repository{}, fmt.Errorf("project key is empty")
	}

	if name == "" {
		return Repository{}, fmt.Errorf("repository name is empty")
	}

	return Repository{ProjectKey: projectKey, Name: name}, nil
}

func (r Repository) String() string {
	return fmt.Sprintf("%s/%s", r.ProjectKey, r.Name)
}

func (r Repository) LogFields() []zap.Field {
	return []zap.Field{logfields.Repository(r.String())}
}

// Changeset is a single commit contained in a push.
type Changeset struct {
	ID string
	// ParentCount is the number of parent commits. A changeset with zero
	// parents is the first commit of its branch.
	ParentCount int
	// Paths are the files the changeset modifies.
	Paths []string
}

// RefChange describes a branch affected by a push together with the
// changesets that landed on it.
type RefChange struct {
	Branch     string
	Changesets []Changeset
}

// PushEvent is delivered by the host for every completed or about-to-be
// accepted push. Changed and Deleted are disjoint.
type PushEvent struct {
	Repository Repository
	// Changed lists branches that were created or modified.
	Changed []RefChange
	// Deleted lists branches that were deleted or closed.
	Deleted []RefChange
}

func (e *PushEvent) LogFields() []zap.Field {
	fields := e.Repository.LogFields()

	for _, c := range e.Changed {
		fields = append(fields, logfields.Branch(c.Branch))
	}

	return fields
}

// AncestryOracle answers commit-graph questions about two refs.
// All methods fail with a *mergeerr.BackendError when the backend is
// unavailable and wrap mergeerr.ErrNotFound when a ref does not exist.
type AncestryOracle interface {
	// BranchesMerged reports whether sourceRef is fully merged into
	// targetRef.
	BranchesMerged(ctx context.Context, repo Repository, targetRef, sourceRef string) (bool, error)
	// LogAncestors counts the changesets reachable from sourceRef but not
	// from sinceRef, up to limit.
	LogAncestors(ctx context.Context, repo Repository, sourceRef, sinceRef string, limit int) (int, error)
	// ModifiedFiles returns the paths touched since the given revision.
	ModifiedFiles(ctx context.Context, repo Repository, revision string) ([]string, error)
}

// Merger performs the privileged merge operation on the backend.
type Merger interface {
	// Merge merges sourceRef into targetRef and returns the ID of the
	// merge changeset.
	Merge(ctx context.Context, repo Repository, targetRef, sourceRef, message string) (string, error)
	// DeleteBranch removes a branch after a successful merge.
	DeleteBranch(ctx context.Context, repo Repository, branch string) error
	// SupportsMerge reports whether the backend of the repository
	// provides the merge capability.
	SupportsMerge(ctx context.Context, repo Repository) (bool, error)
}
