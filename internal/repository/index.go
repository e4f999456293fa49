package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IndexRepository manages vector indexes: one chunk table plus an HNSW index per
// registered name.
type IndexRepository struct {
	pool *pgxpool.Pool
}

func NewIndexRepository(pool *pgxpool.Pool) *IndexRepository {
	return &IndexRepository{pool: pool}
}

// Create creates the index described by spec. Creating an existing index with the
// same spec is a no-op; a different spec fails unless recreate is set, in which
// case the old index and all its chunks are dropped first.
func (r *IndexRepository) Create(ctx context.Context, spec domain.IndexSpec, recreate bool) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	existing, err := r.Describe(ctx, spec.Name)
	switch {
	case err == nil && !recreate:
		return existing.CheckCompatible(spec)
	case err != nil && !errors.Is(err, domain.ErrIndexNotFound):
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if recreate {
		if err := dropIndex(ctx, tx, spec.Name); err != nil {
			return err
		}
	}

	table := quoteIdent(spec.Name)
	statements := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			id          UUID PRIMARY KEY,
			object_key  TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL,
			rank        TEXT NOT NULL,
			rank_num    INTEGER,
			university  TEXT NOT NULL,
			country     TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			text        TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, table, spec.Dimensions),
		fmt.Sprintf(`CREATE INDEX %s ON %s USING hnsw (embedding %s)`,
			quoteIdent(spec.Name+"_embedding_hnsw"), table, spec.Metric.OperatorClass()),
		fmt.Sprintf(`CREATE INDEX %s ON %s (source)`, quoteIdent(spec.Name+"_source_idx"), table),
		fmt.Sprintf(`CREATE INDEX %s ON %s (object_key)`, quoteIdent(spec.Name+"_object_key_idx"), table),
		fmt.Sprintf(`CREATE INDEX %s ON %s (rank_num)`, quoteIdent(spec.Name+"_rank_num_idx"), table),
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %q: %w", spec.Name, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO vector_indexes (name, dimensions, metric) VALUES ($1, $2, $3)`,
		spec.Name, spec.Dimensions, string(spec.Metric),
	); err != nil {
		return fmt.Errorf("failed to register index %q: %w", spec.Name, err)
	}

	return tx.Commit(ctx)
}

// Drop removes the index, its chunks and its ingestion state.
func (r *IndexRepository) Drop(ctx context.Context, name string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := dropIndex(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func dropIndex(ctx context.Context, tx pgx.Tx, name string) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(name))); err != nil {
		return fmt.Errorf("failed to drop index table %q: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM vector_indexes WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to unregister index %q: %w", name, err)
	}
	return nil
}

// Describe returns the registered spec of the named index.
func (r *IndexRepository) Describe(ctx context.Context, name string) (*domain.IndexInfo, error) {
	var info domain.IndexInfo
	var metric string
	err := r.pool.QueryRow(ctx,
		`SELECT name, dimensions, metric, created_at FROM vector_indexes WHERE name = $1`,
		name,
	).Scan(&info.Name, &info.Dimensions, &metric, &info.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Wrap(domain.ErrIndexNotFound, fmt.Errorf("index %q is not registered", name))
	}
	if err != nil {
		return nil, mapStoreError(err)
	}

	info.Metric = domain.SimilarityMetric(metric)
	return &info, nil
}

// Verify checks at startup that the index exists, its table is present and it
// matches the configured dimensions and metric.
func (r *IndexRepository) Verify(ctx context.Context, expected domain.IndexSpec) (*domain.IndexInfo, error) {
	info, err := r.Describe(ctx, expected.Name)
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
		expected.Name,
	).Scan(&exists); err != nil {
		return nil, mapStoreError(err)
	}
	if !exists {
		return nil, domain.Wrap(domain.ErrIndexNotFound, fmt.Errorf("table for index %q is missing", expected.Name))
	}

	if err := info.CheckCompatible(expected); err != nil {
		return nil, err
	}
	return info, nil
}

// List returns every registered index ordered by name.
func (r *IndexRepository) List(ctx context.Context) ([]domain.IndexInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, dimensions, metric, created_at FROM vector_indexes ORDER BY name`)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var out []domain.IndexInfo
	for rows.Next() {
		var info domain.IndexInfo
		var metric string
		if err := rows.Scan(&info.Name, &info.Dimensions, &metric, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.Metric = domain.SimilarityMetric(metric)
		out = append(out, info)
	}
	return out, rows.Err()
}
