package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const sqlStateUndefinedTable = "42P01"

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// mapStoreError turns driver errors on the read path into INDEX_UNAVAILABLE errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if isUndefinedTable(err) {
		return domain.Wrap(domain.ErrIndexNotFound, err)
	}
	return domain.Wrap(domain.ErrIndexUnreachable, err)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUndefinedTable
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int, ok bool) *int {
	if !ok {
		return nil
	}
	return &n
}
