package acl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the operators table. Execute it via
// [PostgresStore.Migrate] or apply it during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS chatroute_operators (
    user_id    TEXT PRIMARY KEY,
    granted_by TEXT NOT NULL DEFAULT '',
    granted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. Call
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the operators table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("acl: migrate: %w", err)
	}
	return nil
}

// IsOperator implements [Store].
func (s *PostgresStore) IsOperator(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM chatroute_operators WHERE user_id = $1)`

	var ok bool
	if err := s.db.QueryRow(ctx, query, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("acl: is operator: %w", err)
	}
	return ok, nil
}

// Grant implements [Store].
func (s *PostgresStore) Grant(ctx context.Context, userID, grantedBy string) error {
	const query = `
		INSERT INTO chatroute_operators (user_id, granted_by)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := s.db.Exec(ctx, query, userID, grantedBy); err != nil {
		if isDuplicateKeyError(err) {
			// Lost a race with a concurrent grant; the row exists.
			return nil
		}
		return fmt.Errorf("acl: grant %q: %w", userID, err)
	}
	return nil
}

// Revoke implements [Store].
func (s *PostgresStore) Revoke(ctx context.Context, userID string) error {
	const query = `DELETE FROM chatroute_operators WHERE user_id = $1`

	tag, err := s.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("acl: revoke %q: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]Operator, error) {
	const query = `
		SELECT user_id, granted_by, granted_at
		FROM chatroute_operators
		ORDER BY user_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("acl: list: %w", err)
	}
	defer rows.Close()

	var ops []Operator
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.UserID, &op.GrantedBy, &op.GrantedAt); err != nil {
			return nil, fmt.Errorf("acl: list scan: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("acl: list rows: %w", err)
	}
	return ops, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
