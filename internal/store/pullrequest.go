// Package store persists pull-request records per repository on top of the
// key/value abstraction.
// Operations for the same repository are serialized through a striped lock,
// which makes ID assignment atomic per repository.
package store

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
)

// Status is the lifecycle state of a pull request.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusOpen     Status = "OPEN"
	StatusMerged   Status = "MERGED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether no further transitions are allowed from s,
// except the explicit REJECTED -> OPEN re-open.
func (s Status) IsTerminal() bool {
	return s == StatusMerged || s == StatusRejected
}

// CanTransitionTo reports whether the transition s -> next is legal.
// Transitions are one-directional: DRAFT -> OPEN, OPEN -> MERGED,
// OPEN -> REJECTED and the explicit re-open REJECTED -> OPEN.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusOpen
	case StatusOpen:
		return next == StatusMerged || next == StatusRejected
	case StatusRejected:
		return next == StatusOpen
	default:
		return false
	}
}

// PullRequest is a proposal to merge a source branch into a target branch.
type PullRequest struct {
	ID           int64     `json:"id"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	Status       Status    `json:"status"`
	// StatusCause describes why a terminal status was entered, e.g.
	// "branch deleted" for a rejection.
	StatusCause  string    `json:"status_cause,omitempty"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	Author       string    `json:"author,omitempty"`
	CreationDate time.Time `json:"creation_date"`
	LastModified time.Time `json:"last_modified"`
}

func NewPullRequest(sourceBranch, targetBranch, author, title, description string) (*PullRequest, error) {
	if sourceBranch == "" {
		return nil, errors.New("source branch is empty")
	}

	if targetBranch == "" {
		return nil, errors.New("target branch is empty")
	}

	if sourceBranch == targetBranch {
		return nil, fmt.Errorf("source and target branch are the same: %q", sourceBranch)
	}

	return &PullRequest{
		SourceBranch: sourceBranch,
		TargetBranch: targetBranch,
		Status:       StatusOpen,
		Author:       author,
		Title:        title,
		Description:  description,
	}, nil
}

func (p *PullRequest) String() string {
	return fmt.Sprintf("#%d (%s -> %s, %s)", p.ID, p.SourceBranch, p.TargetBranch, p.Status)
}

func (p *PullRequest) LogFields() []zap.Field {
	return []zap.Field{
		logfields.PullRequest(p.ID),
		logfields.SourceBranch(p.SourceBranch),
		logfields.TargetBranch(p.TargetBranch),
		logfields.PullRequestStatus(string(p.Status)),
	}
}
