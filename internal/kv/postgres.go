package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const table = "kv_entries"

// PostgresStore persists entries in a single Postgres table.
// Schema:
//
//	CREATE TABLE kv_entries (
//	    store     TEXT  NOT NULL,
//	    namespace TEXT  NOT NULL,
//	    key       TEXT  NOT NULL,
//	    value     BYTEA NOT NULL,
//	    PRIMARY KEY (store, namespace, key)
//	);
type PostgresStore struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

func NewPostgresStore(ctx context.Context, dataSource string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dataSource)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool failed: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database failed: %w", err)
	}

	return &PostgresStore{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Get(ctx context.Context, store, namespace, key string) ([]byte, error) {
	query, args, err := s.builder.
		Select("value").
		From(table).
		Where(squirrel.Eq{"store": store, "namespace": namespace, "key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query failed: %w", err)
	}

	var value []byte

	err = s.pool.QueryRow(ctx, query, args...).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store %s, namespace %s, key %s: %w", store, namespace, key, ErrNotFound)
		}

		return nil, fmt.Errorf("querying value failed: %w", err)
	}

	return value, nil
}

func (s *PostgresStore) Put(ctx context.Context, store, namespace, key string, value []byte) error {
	query, args, err := s.builder.
		Insert(table).
		Columns("store", "namespace", "key", "value").
		Values(store, namespace, key, value).
		Suffix("ON CONFLICT (store, namespace, key) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("building query failed: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("storing value failed: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context, store, namespace string) (map[string][]byte, error) {
	query, args, err := s.builder.
		Select("key", "value").
		From(table).
		Where(squirrel.Eq{"store": store, "namespace": namespace}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query failed: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries failed: %w", err)
	}
	defer rows.Close()

	result := map[string][]byte{}

	for rows.Next() {
		var key string
		var value []byte

		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning row failed: %w", err)
		}

		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows failed: %w", err)
	}

	return result, nil
}
