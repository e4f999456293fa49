package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
)

// QueryLogEntry captures the outcome of one answered (or failed) query.
type QueryLogEntry struct {
	ID                  string
	SessionID           string
	Query               string
	State               domain.QueryState
	FailedStage         domain.QueryState
	ErrorCode           string
	PromptVersion       string
	RetrievedCount      int
	PassageCount        int
	CompressionFallback bool
	EmptyContext        bool
	DurationMs          int
	CreatedAt           time.Time
}

// QueryLogRepository persists query logs.
type QueryLogRepository interface {
	CreateQueryLog(ctx context.Context, entry QueryLogEntry) error
}

// NewQueryLogEntry builds a log entry from a finished trace.
func NewQueryLogEntry(sessionID, query, promptVersion string, trace *domain.QueryTrace) QueryLogEntry {
	return QueryLogEntry{
		ID:                  trace.ID,
		SessionID:           sessionID,
		Query:               query,
		State:               trace.Current(),
		FailedStage:         trace.FailedStage,
		ErrorCode:           trace.ErrorCode,
		PromptVersion:       promptVersion,
		RetrievedCount:      trace.RetrievedCount,
		PassageCount:        trace.PassageCount,
		CompressionFallback: trace.CompressionFallback,
		EmptyContext:        trace.EmptyContext,
		DurationMs:          int(trace.Duration.Milliseconds()),
		CreatedAt:           trace.StartedAt,
	}
}
