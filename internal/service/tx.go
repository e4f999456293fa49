package service

import (
	"context"

	"github.com/cloo-solutions/unirank/internal/domain"
)

// ChunkWriter replaces the chunks cut from one ranking file.
type ChunkWriter interface {
	ReplaceObject(ctx context.Context, key string, chunks []domain.Chunk) (int, error)
	DeleteObject(ctx context.Context, key string) (int64, error)
}

// SourceStateRepository tracks which source objects were ingested, and at which checksum.
type SourceStateRepository interface {
	ListStates(ctx context.Context, indexName string) (map[string]domain.SourceState, error)
	SaveState(ctx context.Context, state domain.SourceState) error
	DeleteState(ctx context.Context, indexName, key string) error
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Chunks() ChunkWriter
	Sources() SourceStateRepository
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
