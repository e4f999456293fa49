package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SourceStateRepository tracks ingested source objects per index.
type SourceStateRepository struct {
	db dbtx
}

func NewSourceStateRepository(pool *pgxpool.Pool) *SourceStateRepository {
	return &SourceStateRepository{db: pool}
}

func NewSourceStateRepositoryWithTx(tx dbtx) *SourceStateRepository {
	return &SourceStateRepository{db: tx}
}

func (r *SourceStateRepository) ListStates(ctx context.Context, indexName string) (map[string]domain.SourceState, error) {
	rows, err := r.db.Query(ctx,
		`SELECT index_name, source_key, checksum, record_count, chunk_count, ingested_at
		 FROM ingested_sources WHERE index_name = $1`,
		indexName,
	)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	states := make(map[string]domain.SourceState)
	for rows.Next() {
		var s domain.SourceState
		if err := rows.Scan(&s.IndexName, &s.Key, &s.Checksum, &s.RecordCount, &s.ChunkCount, &s.IngestedAt); err != nil {
			return nil, err
		}
		states[s.Key] = s
	}
	return states, rows.Err()
}

func (r *SourceStateRepository) SaveState(ctx context.Context, state domain.SourceState) error {
	ingestedAt := state.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingested_sources (index_name, source_key, checksum, record_count, chunk_count, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (index_name, source_key) DO UPDATE SET
			checksum = EXCLUDED.checksum,
			record_count = EXCLUDED.record_count,
			chunk_count = EXCLUDED.chunk_count,
			ingested_at = EXCLUDED.ingested_at`,
		state.IndexName,
		state.Key,
		state.Checksum,
		state.RecordCount,
		state.ChunkCount,
		ingestedAt,
	)
	return err
}

func (r *SourceStateRepository) DeleteState(ctx context.Context, indexName, key string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM ingested_sources WHERE index_name = $1 AND source_key = $2`,
		indexName, key,
	)
	return err
}
