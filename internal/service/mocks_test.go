package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/openai"
	"github.com/stretchr/testify/mock"
)

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockChunkSearcher is a mock implementation of ChunkSearcher
type MockChunkSearcher struct {
	mock.Mock
}

func (m *MockChunkSearcher) NearestNeighbors(ctx context.Context, embedding []float32, k int, filter domain.SearchFilter) (domain.RetrievalResult, error) {
	args := m.Called(ctx, embedding, k, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.RetrievalResult), args.Error(1)
}

// MockChatCompleter is a mock implementation of ChatCompleter
type MockChatCompleter struct {
	mock.Mock
}

func (m *MockChatCompleter) Complete(ctx context.Context, messages []domain.Message, cfg openai.GenerationConfig) (string, error) {
	args := m.Called(ctx, messages, cfg)
	return args.String(0), args.Error(1)
}

// MockQueryLogRepository is a mock implementation of QueryLogRepository
type MockQueryLogRepository struct {
	mock.Mock
}

func (m *MockQueryLogRepository) CreateQueryLog(ctx context.Context, entry QueryLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// fakeEmbedder returns the same vector for every text.
type fakeEmbedder struct {
	vec   []float32
	err   error
	block bool

	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// fakeSearcher serves a fixed result, honouring k.
type fakeSearcher struct {
	results domain.RetrievalResult
	err     error
}

func (f *fakeSearcher) NearestNeighbors(_ context.Context, _ []float32, k int, _ domain.SearchFilter) (domain.RetrievalResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

// fakeChat answers extraction prompts through extract and everything else
// through answer. A nil function fails the call. The block flags hold the
// call until its context is done.
type fakeChat struct {
	extract func(prompt string) (string, error)
	answer  func(messages []domain.Message) (string, error)

	blockExtract bool
	blockAnswer  bool

	mu      sync.Mutex
	prompts [][]domain.Message
}

func (f *fakeChat) Complete(ctx context.Context, messages []domain.Message, _ openai.GenerationConfig) (string, error) {
	if len(messages) == 1 && strings.Contains(messages[0].Content, "Extracted relevant parts:") {
		if f.blockExtract {
			<-ctx.Done()
			return "", ctx.Err()
		}
		if f.extract == nil {
			return "", errors.New("extraction unavailable")
		}
		return f.extract(messages[0].Content)
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, append([]domain.Message(nil), messages...))
	f.mu.Unlock()
	if f.blockAnswer {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.answer == nil {
		return "", errors.New("generation unavailable")
	}
	return f.answer(messages)
}

func (f *fakeChat) generationPrompts() [][]domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]domain.Message(nil), f.prompts...)
}

func rankingChunk(source, rank, university, country string) domain.Chunk {
	record := domain.RankingRecord{
		Source:     source,
		Rank:       domain.RankValue(rank),
		University: university,
		Country:    country,
	}
	return domain.Chunk{
		ID:         source + "-" + rank,
		Source:     source,
		Rank:       record.Rank,
		University: university,
		Country:    country,
		Text:       record.Text(),
	}
}

func scored(c domain.Chunk, score float32) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: c, Score: score}
}
