// Package protect rejects pushes that write directly to protected branches.
// Protected branches are only writable through the merge operation, which
// suppresses the guard for its own resulting push via the internal-merge
// context marker.
package protect

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const loggerName = "write-protection-guard"

// BranchProtection protects a single branch of a repository.
type BranchProtection struct {
	Branch string
	// PathExceptions are path.Match patterns. A changeset whose modified
	// paths all match an exception may land on the branch directly.
	PathExceptions []string
}

// SettingsProvider yields the protection configuration of a repository.
// enabled is false when branch protection is switched off for the
// repository entirely.
type SettingsProvider interface {
	BranchProtections(ctx context.Context, repo vcs.Repository) (protections []BranchProtection, enabled bool, err error)
}

// StaticSettings is a SettingsProvider backed by a fixed in-memory map,
// populated from the configuration file.
type StaticSettings struct {
	protections map[string][]BranchProtection
}

func NewStaticSettings() *StaticSettings {
	return &StaticSettings{protections: map[string][]BranchProtection{}}
}

func (s *StaticSettings) Protect(repo vcs.Repository, protection BranchProtection) {
	s.protections[repo.String()] = append(s.protections[repo.String()], protection)
}

func (s *StaticSettings) BranchProtections(_ context.Context, repo vcs.Repository) ([]BranchProtection, bool, error) {
	protections, exist := s.protections[repo.String()]
	return protections, exist, nil
}

// Guard checks pushes against the branch protection settings.
type Guard struct {
	settings SettingsProvider
	logger   *zap.Logger
}

func NewGuard(settings SettingsProvider) *Guard {
	return &Guard{
		settings: settings,
		logger:   zap.L().Named(loggerName),
	}
}

// CheckPush validates a push that is about to be accepted.
// It fails with a *mergeerr.ProtectedWriteError listing every violation when
// the push writes directly to a protected branch. Pushes of internal merges
// pass unconditionally.
func (g *Guard) CheckPush(ctx context.Context, event *vcs.PushEvent) error {
	logger := g.logger.With(event.Repository.LogFields()...)

	if IsInternalMerge(ctx) {
		logger.Debug(
			"push is part of an internal merge, protection checks skipped",
			logfields.Event("protection_check_suppressed"),
		)

		return nil
	}

	protections, enabled, err := g.settings.BranchProtections(ctx, event.Repository)
	if err != nil {
		return fmt.Errorf("reading branch protections of %s failed: %w", event.Repository, err)
	}

	if !enabled {
		return nil
	}

	protected := make(map[string]*BranchProtection, len(protections))
	for i := range protections {
		protected[protections[i].Branch] = &protections[i]
	}

	var violations []string

	for _, change := range event.Changed {
		protection, exist := protected[change.Branch]
		if !exist {
			continue
		}

		for _, changeset := range change.Changesets {
			// the very first commit of a branch has no parents and
			// is always allowed
			if changeset.ParentCount == 0 {
				continue
			}

			if excepted(changeset.Paths, protection.PathExceptions) {
				logger.Debug(
					"changeset on protected branch allowed, all paths match an exception",
					logfields.Event("protection_path_exception_applied"),
					logfields.Branch(change.Branch),
					logfields.Changeset(changeset.ID),
				)

				continue
			}

			violations = append(violations, fmt.Sprintf(
				"changeset %s writes directly to protected branch %q",
				changeset.ID, change.Branch,
			))
		}
	}

	for _, deleted := range event.Deleted {
		if _, exist := protected[deleted.Branch]; !exist {
			continue
		}

		violations = append(violations, fmt.Sprintf(
			"protected branch %q can not be deleted", deleted.Branch,
		))
	}

	if len(violations) == 0 {
		return nil
	}

	logger.Info(
		"push rejected, it writes to a protected branch",
		logfields.Event("protected_write_rejected"),
		zap.Strings("violations", violations),
	)

	return &mergeerr.ProtectedWriteError{
		Repository: event.Repository.String(),
		Violations: violations,
	}
}

// excepted reports whether every path matches at least one exception
// pattern. A changeset without path information is never excepted.
func excepted(paths, exceptions []string) bool {
	if len(paths) == 0 || len(exceptions) == 0 {
		return false
	}

	for _, p := range paths {
		if !matchesAny(p, exceptions) {
			return false
		}
	}

	return true
}

func matchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		// a malformed pattern never matches
		if matched, err := path.Match(pattern, p); err == nil && matched {
			return true
		}
	}

	return false
}
