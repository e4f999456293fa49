package service

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/unirank/internal/domain"
)

type testTxRepos struct {
	chunks  ChunkWriter
	sources SourceStateRepository
}

func (t *testTxRepos) Chunks() ChunkWriter {
	return t.chunks
}

func (t *testTxRepos) Sources() SourceStateRepository {
	return t.sources
}

type testTxRunner struct {
	repos  TxRepositories
	called int
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called++
	return fn(t.repos)
}

// memoryChunkStore keeps chunks per ranking file.
type memoryChunkStore struct {
	mu       sync.Mutex
	byObject map[string][]domain.Chunk
}

func newMemoryChunkStore() *memoryChunkStore {
	return &memoryChunkStore{byObject: make(map[string][]domain.Chunk)}
}

func (m *memoryChunkStore) ReplaceObject(_ context.Context, key string, chunks []domain.Chunk) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.ObjectKey = key
		stored[i] = c
	}
	m.byObject[key] = stored
	return len(chunks), nil
}

func (m *memoryChunkStore) DeleteObject(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.byObject[key])
	delete(m.byObject, key)
	return int64(n), nil
}

// source returns the chunks of one ranking source, in file key order.
func (m *memoryChunkStore) source(name string) []domain.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.byObject))
	for k := range m.byObject {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.Chunk
	for _, k := range keys {
		for _, c := range m.byObject[k] {
			if c.Source == name {
				out = append(out, c)
			}
		}
	}
	return out
}

// memorySourceStates keeps ingestion state in memory.
type memorySourceStates struct {
	mu     sync.Mutex
	states map[string]domain.SourceState
}

func newMemorySourceStates() *memorySourceStates {
	return &memorySourceStates{states: make(map[string]domain.SourceState)}
}

func (m *memorySourceStates) ListStates(_ context.Context, indexName string) (map[string]domain.SourceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.SourceState)
	for k, s := range m.states {
		if s.IndexName == indexName {
			out[k] = s
		}
	}
	return out, nil
}

func (m *memorySourceStates) SaveState(_ context.Context, state domain.SourceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Key] = state
	return nil
}

func (m *memorySourceStates) DeleteState(_ context.Context, _ string, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}
