package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/kv"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const storeName = "pull-requests"
const loggerName = "pull-request-store"

// PullRequestStore owns ID assignment and timestamp stamping for
// pull-request records.
type PullRequestStore struct {
	kv     kv.Store
	locks  stripedLock
	logger *zap.Logger

	// now is replaceable in tests
	now func() time.Time
}

func NewPullRequestStore(kvStore kv.Store) *PullRequestStore {
	return &PullRequestStore{
		kv:     kvStore,
		logger: zap.L().Named(loggerName),
		now:    time.Now,
	}
}

func recordKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Add assigns the next sequential ID of the repository, stamps the creation
// date and persists the record. The passed record is not modified and the
// stored record is returned.
func (s *PullRequestStore) Add(ctx context.Context, repo vcs.Repository, pr *PullRequest) (*PullRequest, error) {
	unlock := s.locks.Lock(repo.String())
	defer unlock()

	records, err := s.kv.GetAll(ctx, storeName, repo.String())
	if err != nil {
		return nil, fmt.Errorf("reading pull requests of %s failed: %w", repo, err)
	}

	// the store size is read under the stripe lock, concurrent Add calls
	// for the same repository can not observe the same next ID
	record := *pr
	record.ID = int64(len(records)) + 1
	record.CreationDate = s.now()
	record.LastModified = record.CreationDate

	if err := s.put(ctx, repo, &record); err != nil {
		return nil, err
	}

	s.logger.Debug(
		"pull request persisted",
		append(repo.LogFields(), record.LogFields()...)...,
	)

	return &record, nil
}

// Get returns the record with the given ID.
// It fails with an error wrapping mergeerr.ErrNotFound when it is absent.
func (s *PullRequestStore) Get(ctx context.Context, repo vcs.Repository, id int64) (*PullRequest, error) {
	unlock := s.locks.Lock(repo.String())
	defer unlock()

	return s.get(ctx, repo, id)
}

func (s *PullRequestStore) get(ctx context.Context, repo vcs.Repository, id int64) (*PullRequest, error) {
	raw, err := s.kv.Get(ctx, storeName, repo.String(), recordKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("pull request %d in %s: %w", id, repo, mergeerr.ErrNotFound)
		}

		return nil, fmt.Errorf("reading pull request %d of %s failed: %w", id, repo, err)
	}

	var record PullRequest
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling pull request %d of %s failed: %w", id, repo, err)
	}

	return &record, nil
}

// Update stamps the last-modified timestamp and persists the record.
// The stored creation date is preserved.
// A status change that the transition table does not permit fails with an
// error wrapping mergeerr.ErrInvalidTransition. The check and the write
// happen under the same lock, a caller holding a stale snapshot can not
// overwrite a record that became terminal concurrently.
func (s *PullRequestStore) Update(ctx context.Context, repo vcs.Repository, pr *PullRequest) (*PullRequest, error) {
	unlock := s.locks.Lock(repo.String())
	defer unlock()

	existing, err := s.get(ctx, repo, pr.ID)
	if err != nil {
		return nil, err
	}

	if pr.Status != existing.Status && !existing.Status.CanTransitionTo(pr.Status) {
		return nil, fmt.Errorf(
			"pull request %d of %s can not transition from %s to %s: %w",
			pr.ID, repo, existing.Status, pr.Status, mergeerr.ErrInvalidTransition,
		)
	}

	record := *pr
	record.CreationDate = existing.CreationDate
	record.LastModified = s.now()

	if err := s.put(ctx, repo, &record); err != nil {
		return nil, err
	}

	s.logger.Debug(
		"pull request updated",
		append(repo.LogFields(), record.LogFields()...)...,
	)

	return &record, nil
}

// List returns all records of the repository ordered by ID.
func (s *PullRequestStore) List(ctx context.Context, repo vcs.Repository) ([]*PullRequest, error) {
	unlock := s.locks.Lock(repo.String())
	defer unlock()

	raw, err := s.kv.GetAll(ctx, storeName, repo.String())
	if err != nil {
		return nil, fmt.Errorf("reading pull requests of %s failed: %w", repo, err)
	}

	result := make([]*PullRequest, 0, len(raw))

	for key, val := range raw {
		var record PullRequest

		if err := json.Unmarshal(val, &record); err != nil {
			return nil, fmt.Errorf("unmarshaling pull request %s of %s failed: %w", key, repo, err)
		}

		result = append(result, &record)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (s *PullRequestStore) put(ctx context.Context, repo vcs.Repository, pr *PullRequest) error {
	raw, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("marshaling pull request %d of %s failed: %w", pr.ID, repo, err)
	}

	if err := s.kv.Put(ctx, storeName, repo.String(), recordKey(pr.ID), raw); err != nil {
		return fmt.Errorf("storing pull request %d of %s failed: %w", pr.ID, repo, err)
	}

	return nil
}
