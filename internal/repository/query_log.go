package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/pagination"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryLogRepository stores the outcome of each query for later evaluation.
type QueryLogRepository struct {
	pool *pgxpool.Pool
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{pool: pool}
}

func (r *QueryLogRepository) CreateQueryLog(ctx context.Context, entry service.QueryLogEntry) error {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO query_logs
			(id, session_id, query, state, failed_stage, error_code, prompt_version,
			 retrieved_count, passage_count, compression_fallback, empty_context, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id,
		nullableString(entry.SessionID),
		entry.Query,
		string(entry.State),
		nullableString(string(entry.FailedStage)),
		nullableString(entry.ErrorCode),
		entry.PromptVersion,
		entry.RetrievedCount,
		entry.PassageCount,
		entry.CompressionFallback,
		entry.EmptyContext,
		entry.DurationMs,
		createdAt,
	)
	return err
}

// CountByState returns how many logged queries ended in each state.
func (r *QueryLogRepository) CountByState(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM query_logs WHERE created_at >= $1 GROUP BY state`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// QueryLogPage is one page of query logs, newest first.
type QueryLogPage struct {
	Items      []service.QueryLogEntry
	NextCursor string
	HasMore    bool
}

const queryLogColumns = `id, COALESCE(session_id, ''), query, state, COALESCE(failed_stage, ''),
	COALESCE(error_code, ''), prompt_version, retrieved_count, passage_count,
	compression_fallback, empty_context, duration_ms, created_at`

// ListWithCursor pages through query logs newest first, optionally keeping one state.
func (r *QueryLogRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, state domain.QueryState, limit int) (*QueryLogPage, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+queryLogColumns+` FROM query_logs
			 WHERE ($1 = '' OR state = $1) AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			string(state), cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+queryLogColumns+` FROM query_logs
			 WHERE ($1 = '' OR state = $1)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			string(state), limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []service.QueryLogEntry
	for rows.Next() {
		var e service.QueryLogEntry
		var state, failedStage string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Query, &state, &failedStage, &e.ErrorCode, &e.PromptVersion,
			&e.RetrievedCount, &e.PassageCount, &e.CompressionFallback, &e.EmptyContext, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.State = domain.QueryState(state)
		e.FailedStage = domain.QueryState(failedStage)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(entries) > limit
	entries, next := pagination.Trim(entries, limit, func(e service.QueryLogEntry) (string, time.Time) {
		return e.ID, e.CreatedAt
	})
	return &QueryLogPage{Items: entries, NextCursor: next, HasMore: hasMore}, nil
}
