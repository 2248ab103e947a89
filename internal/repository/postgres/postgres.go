package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repository runs
// unchanged inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db    *sql.DB
	repos *repository.Repositories
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, repos: newRepositories(db)}
}

func newRepositories(db DBTX) *repository.Repositories {
	return &repository.Repositories{
		Bookings: NewBookingRepository(db),
		Disputes: NewDisputeRepository(db),
		Evidence: NewEvidenceRepository(db),
		Ledger:   NewLedgerRepository(db),
		Events:   NewEventRepository(db),
		Listings: NewListingRepository(db),
	}
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// DB exposes the pool for health checks and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn in a read-committed transaction. Row locks taken through
// GetByIDForUpdate are held until fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func statusStrings[T ~string](statuses []T) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
