package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// maxEfSearch is the largest hnsw.ef_search pgvector accepts.
const maxEfSearch = 1000

// ChunkRepository stores and searches ranking chunks of one vector index.
type ChunkRepository struct {
	db    dbtx
	index domain.IndexSpec
	table string
}

func NewChunkRepository(pool *pgxpool.Pool, index domain.IndexSpec) *ChunkRepository {
	return NewChunkRepositoryWithTx(pool, index)
}

func NewChunkRepositoryWithTx(tx dbtx, index domain.IndexSpec) *ChunkRepository {
	return &ChunkRepository{db: tx, index: index, table: quoteIdent(index.Name)}
}

// Upsert writes chunks in a single batch and returns how many were written.
func (r *ChunkRepository) Upsert(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`INSERT INTO %s
			(id, object_key, source, rank, rank_num, university, country, chunk_index, text, embedding, created_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			source = EXCLUDED.source,
			rank = EXCLUDED.rank,
			rank_num = EXCLUDED.rank_num,
			university = EXCLUDED.university,
			country = EXCLUDED.country,
			chunk_index = EXCLUDED.chunk_index,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding`, r.table)

	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i]
		if err := domain.ValidateChunk(c, r.index.Dimensions); err != nil {
			return 0, fmt.Errorf("chunk %d of %q: %w", c.ChunkIndex, c.Source, err)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(query,
			c.ID,
			c.ObjectKey,
			c.Source,
			c.Rank.String(),
			nullableInt(c.Rank.Number()),
			c.University,
			c.Country,
			c.ChunkIndex,
			c.Text,
			pgvector.NewVector(c.Embedding),
			createdAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to upsert chunk %d: %w", i, mapStoreError(err))
		}
	}
	if err := results.Close(); err != nil {
		return 0, mapStoreError(err)
	}

	return len(chunks), nil
}

// ReplaceObject deletes the chunks cut from one ranking file and inserts the
// new ones, stamped with that file's key.
func (r *ChunkRepository) ReplaceObject(ctx context.Context, key string, chunks []domain.Chunk) (int, error) {
	if _, err := r.DeleteObject(ctx, key); err != nil {
		return 0, err
	}
	for i := range chunks {
		chunks[i].ObjectKey = key
	}
	return r.Upsert(ctx, chunks)
}

// DeleteObject removes every chunk cut from one ranking file.
func (r *ChunkRepository) DeleteObject(ctx context.Context, key string) (int64, error) {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE object_key = $1`, r.table), key)
	if err != nil {
		return 0, mapStoreError(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBySource removes every chunk of a source.
func (r *ChunkRepository) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, r.table), source)
	if err != nil {
		return 0, mapStoreError(err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, mapStoreError(err)
	}
	return n, nil
}

// CountBySource returns chunk counts keyed by source.
func (r *ChunkRepository) CountBySource(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT source, COUNT(*) FROM %s GROUP BY source ORDER BY source`, r.table))
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

// NearestNeighbors returns at most k chunks ordered by descending similarity.
// Equal scores are ordered by id so identical queries return identical results.
func (r *ChunkRepository) NearestNeighbors(ctx context.Context, embedding []float32, k int, filter domain.SearchFilter) (domain.RetrievalResult, error) {
	if k <= 0 {
		return domain.RetrievalResult{}, nil
	}
	if r.index.Dimensions > 0 && len(embedding) != r.index.Dimensions {
		return nil, domain.Wrap(domain.ErrIndexDimensionMismatch,
			fmt.Errorf("query vector has %d dimensions, index %q has %d", len(embedding), r.index.Name, r.index.Dimensions))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// HNSW only visits hnsw.ef_search candidates before the WHERE clause runs.
	// Widen the candidate list to k and keep scanning in distance order until
	// k rows pass the filter.
	if _, err := tx.Exec(ctx,
		`SELECT set_config('hnsw.ef_search', $1, true), set_config('hnsw.iterative_scan', 'strict_order', true)`,
		strconv.Itoa(efSearch(k)),
	); err != nil {
		return nil, mapStoreError(err)
	}

	op := r.index.Metric.DistanceOperator()
	query := fmt.Sprintf(`
		SELECT id, object_key, source, rank, university, country, chunk_index, text, created_at,
		       embedding %s $1 AS distance
		FROM %s`, op, r.table)
	args := []any{pgvector.NewVector(embedding), k}

	if filter.MaxRank > 0 {
		query += " WHERE rank_num IS NOT NULL AND rank_num <= $3"
		args = append(args, filter.MaxRank)
	}
	query += fmt.Sprintf(" ORDER BY embedding %s $1 LIMIT $2", op)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	results := make(domain.RetrievalResult, 0, k)
	for rows.Next() {
		var c domain.Chunk
		var rank string
		var distance float64
		if err := rows.Scan(&c.ID, &c.ObjectKey, &c.Source, &rank, &c.University, &c.Country, &c.ChunkIndex, &c.Text, &c.CreatedAt, &distance); err != nil {
			return nil, mapStoreError(err)
		}
		c.Rank = domain.RankValue(rank)
		results = append(results, domain.ScoredChunk{Chunk: c, Score: r.index.Metric.Score(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	return results, nil
}

func efSearch(k int) int {
	switch {
	case k < 40:
		return 40
	case k > maxEfSearch:
		return maxEfSearch
	}
	return k
}
