package repository

import (
	"context"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner provides transactional repositories bound to one vector index.
type TxRunner struct {
	pool  *pgxpool.Pool
	index domain.IndexSpec
}

func NewTxRunner(pool *pgxpool.Pool, index domain.IndexSpec) *TxRunner {
	return &TxRunner{pool: pool, index: index}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapStoreError(err)
	}

	repos := &txRepos{tx: tx, index: r.index}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type txRepos struct {
	tx    pgx.Tx
	index domain.IndexSpec
}

func (r *txRepos) Chunks() service.ChunkWriter {
	return NewChunkRepositoryWithTx(r.tx, r.index)
}

func (r *txRepos) Sources() service.SourceStateRepository {
	return NewSourceStateRepositoryWithTx(r.tx)
}
