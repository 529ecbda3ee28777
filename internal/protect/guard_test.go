package protect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/vcs"
)

func testRepo(t *testing.T) vcs.Repository {
	t.Helper()

	repo, err := vcs.NewRepository("proj", "repo")
	require.NoError(t, err)

	return repo
}

func newTestGuard(t *testing.T, protections ...BranchProtection) *Guard {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	settings := NewStaticSettings()
	for _, p := range protections {
		settings.Protect(testRepo(t), p)
	}

	return NewGuard(settings)
}

func pushEvent(t *testing.T, changed, deleted []vcs.RefChange) *vcs.PushEvent {
	t.Helper()

	return &vcs.PushEvent{
		Repository: testRepo(t),
		Changed:    changed,
		Deleted:    deleted,
	}
}

func TestDirectWriteToProtectedBranchIsRejected(t *testing.T) {
	guard := newTestGuard(t, BranchProtection{Branch: "master"})

	event := pushEvent(t, []vcs.RefChange{{
		Branch: "master",
		Changesets: []vcs.Changeset{
			{ID: "abc123", ParentCount: 1, Paths: []string{"main.go"}},
		},
	}}, nil)

	err := guard.CheckPush(context.Background(), event)

	var protErr *mergeerr.ProtectedWriteError
	require.ErrorAs(t, err, &protErr)
	require.Len(t, protErr.Violations, 1)
	assert.Contains(t, protErr.Violations[0], "abc123")
	assert.Contains(t, protErr.Violations[0], "master")
}

func TestInitialCommitOnProtectedBranchIsAllowed(t *testing.T) {
	guard := newTestGuard(t, BranchProtection{Branch: "master"})

	event := pushEvent(t, []vcs.RefChange{{
		Branch: "master",
		Changesets: []vcs.Changeset{
			{ID: "abc123", ParentCount: 0, Paths: []string{"main.go"}},
		},
	}}, nil)

	require.NoError(t, guard.CheckPush(context.Background(), event))
}

func TestPathExceptionAllowsDirectWrite(t *testing.T) {
	guard := newTestGuard(t, BranchProtection{
		Branch:         "master",
		PathExceptions: []string{"docs/*", "CHANGELOG.md"},
	})

	event := pushEvent(t, []vcs.RefChange{{
		Branch: "master",
		Changesets: []vcs.Changeset{
			{ID: "abc123", ParentCount: 1, Paths: []string{"docs/readme.md", "CHANGELOG.md"}},
		},
	}}, nil)

	require.NoError(t, guard.CheckPush(context.Background(), event))
}

func TestPathExceptionDoesNotCoverOtherPaths(t *testing.T) {
	guard := newTestGuard(t, BranchProtection{
		Branch:         "master",
		PathExceptions: []string{"docs/*"},
	})

	event := pushEvent(t, []vcs.RefChange{{
		Branch: "master",
		Changesets: []vcs.Changeset{
			{ID: "abc123", ParentCount: 1, Paths: []string{"docs/readme.md", "main.go"}},
		},
	}}, nil)

	var protErr *mergeerr.ProtectedWriteError
	require.ErrorAs(t, guard.CheckPush(context.Background(), event), &protErr)
}

func TestDeletionOfProtectedBranchIsRejectedUnconditionally(t *testing.T) {
	guard := newTestGuard(t, BranchProtection{
		Branch:         "master",
		PathExceptions: []string{"*"},
	})

	event := pushEvent(t, nil, []vcs.RefChange{{Branch: "master"}})

	var protErr *mergeerr.ProtectedWriteError
	require.ErrorAs(t, guard.CheckPush(context.Background(), event), &protErr)
	assert.Contains(t, protErr.Violations[0], "can not be deleted")
}

func TestUnprotectedBranchesAreNotChecked(t *testing.T) {
	guard := newTestGuard(t, BranchProtection{Branch: "master"})

	event := pushEvent(t, []vcs.RefChange{{
		Branch: "feature",
		Changesets: []vcs.Changeset{
			{ID: "abc123", ParentCount: 1, Paths: []string{"main.go"}},
		},
	}}, nil)

	require.NoError(t, guard.CheckPush(context.Background(), event))
}

func TestGuardIsNoOpWhenProtectionIsDisabled(t *testing.T) {
	// no protections registered for the repository, protection is
	// disabled entirely
	guard := newTestGuard(t)

	event := pushEvent(t, []vcs.RefChange{{
		Branch: "master",
		Changesets: []vcs.Changeset{
			{ID: "abc123", ParentCount: 1, Paths: []string{"main.go"}},
		},
	}}, nil)

	require.NoError(t, guard.CheckPush(context.Background(), event))
}

func TestInternalMergePushBypassesProtection(t *testing.T) {
	guard := newTestGuard(t, BranchProtection{Branch: "master"})

	event := pushEvent(t, []vcs.RefChange{{
		Branch: "master",
		Changesets: []vcs.Changeset{
			{ID: "mergecommit", ParentCount: 2, Paths: []string{"main.go"}},
		},
	}}, nil)

	ctx := WithInternalMerge(context.Background())
	require.NoError(t, guard.CheckPush(ctx, event))

	// the suppression is scoped to the derived context
	require.Error(t, guard.CheckPush(context.Background(), event))
}

func TestMultipleViolationsAreAllReported(t *testing.T) {
	guard := newTestGuard(t,
		BranchProtection{Branch: "master"},
		BranchProtection{Branch: "release"},
	)

	event := pushEvent(t,
		[]vcs.RefChange{{
			Branch: "master",
			Changesets: []vcs.Changeset{
				{ID: "abc123", ParentCount: 1, Paths: []string{"main.go"}},
			},
		}},
		[]vcs.RefChange{{Branch: "release"}},
	)

	var protErr *mergeerr.ProtectedWriteError
	require.ErrorAs(t, guard.CheckPush(context.Background(), event), &protErr)
	assert.Len(t, protErr.Violations, 2)
}
