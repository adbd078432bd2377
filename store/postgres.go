package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentsTableSQL = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		data       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, key)
	)
`

const (
	selectDocumentSQL          = `SELECT data FROM documents WHERE collection = $1 AND key = $2`
	selectDocumentForUpdateSQL = selectDocumentSQL + ` FOR UPDATE`

	replaceDocumentSQL = `
		INSERT INTO documents (collection, key, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()
	`
	mergeDocumentSQL = `
		INSERT INTO documents (collection, key, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, key) DO UPDATE SET
			data = documents.data || EXCLUDED.data,
			updated_at = now()
	`
	updateDocumentSQL = `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND key = $2
	`
)

// PostgresStore keeps documents as JSONB rows in a single table and runs
// transactions at SERIALIZABLE isolation, retrying serialization failures.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, documentsTableSQL); err != nil {
		return fmt.Errorf("store: failed to create documents table: %w", err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string, dst any) error {
	return getDocument(ctx, s.db, selectDocumentSQL, collection, key, dst)
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error {
	return setDocument(ctx, s.db, collection, key, data, opts)
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		if attempt >= maxTxAttempts {
			return fmt.Errorf("%w: %v", ErrTxConflict, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Get(ctx context.Context, collection, key string, dst any) error {
	return getDocument(ctx, t.tx, selectDocumentForUpdateSQL, collection, key, dst)
}

func (t *postgresTx) Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error {
	return setDocument(ctx, t.tx, collection, key, data, opts)
}

func (t *postgresTx) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	doc, err := encode(fields)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, updateDocumentSQL, collection, key, doc)
	if err != nil {
		return fmt.Errorf("store: failed to update %s: %w", docKey(collection, key), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func getDocument(ctx context.Context, q querier, query, collection, key string, dst any) error {
	var raw []byte
	err := q.QueryRow(ctx, query, collection, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: failed to read %s: %w", docKey(collection, key), err)
	}
	return decode(raw, dst)
}

func setDocument(ctx context.Context, q querier, collection, key string, data any, opts []SetOption) error {
	doc, err := encode(data)
	if err != nil {
		return err
	}

	query := replaceDocumentSQL
	if applyOptions(opts).merge {
		query = mergeDocumentSQL
	}
	if _, err := q.Exec(ctx, query, collection, key, doc); err != nil {
		return fmt.Errorf("store: failed to write %s: %w", docKey(collection, key), err)
	}
	return nil
}
