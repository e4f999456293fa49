//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/pagination"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/cloo-solutions/unirank/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRepository_CreateDescribeVerify(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewIndexRepository(pool)
	spec := domain.IndexSpec{Name: "rankings", Dimensions: 768, Metric: domain.MetricCosine}

	_, err := repo.Verify(ctx, spec)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.True(t, domain.HasCode(err, domain.ErrCodeIndexUnavailable))

	require.NoError(t, repo.Create(ctx, spec, false))
	// idempotent for the same spec
	require.NoError(t, repo.Create(ctx, spec, false))

	info, err := repo.Describe(ctx, "rankings")
	require.NoError(t, err)
	assert.Equal(t, 768, info.Dimensions)
	assert.Equal(t, domain.MetricCosine, info.Metric)

	_, err = repo.Verify(ctx, spec)
	require.NoError(t, err)

	_, err = repo.Verify(ctx, domain.IndexSpec{Name: "rankings", Dimensions: 1536, Metric: domain.MetricCosine})
	assert.ErrorIs(t, err, domain.ErrIndexDimensionMismatch)
	assert.True(t, domain.HasCode(err, domain.ErrCodeConfiguration))

	_, err = repo.Verify(ctx, domain.IndexSpec{Name: "rankings", Dimensions: 768, Metric: domain.MetricEuclidean})
	assert.ErrorIs(t, err, domain.ErrIndexMetricMismatch)

	// changing the metric requires a rebuild
	euclidean := domain.IndexSpec{Name: "rankings", Dimensions: 768, Metric: domain.MetricEuclidean}
	assert.ErrorIs(t, repo.Create(ctx, euclidean, false), domain.ErrIndexMetricMismatch)
	require.NoError(t, repo.Create(ctx, euclidean, true))

	info, err = repo.Describe(ctx, "rankings")
	require.NoError(t, err)
	assert.Equal(t, domain.MetricEuclidean, info.Metric)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, repo.Drop(ctx, "rankings"))
	_, err = repo.Describe(ctx, "rankings")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestQueryLogRepository_Create(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewQueryLogRepository(pool)
	now := time.Now().UTC()

	require.NoError(t, repo.CreateQueryLog(ctx, service.QueryLogEntry{
		ID:             uuid.NewString(),
		SessionID:      "chat-1",
		Query:          "Where is Harvard in QS?",
		State:          domain.QueryStateAnswered,
		PromptVersion:  "rankings-v1",
		RetrievedCount: 4,
		PassageCount:   2,
		DurationMs:     120,
		CreatedAt:      now,
	}))
	require.NoError(t, repo.CreateQueryLog(ctx, service.QueryLogEntry{
		Query:         "Where is Harvard in QS?",
		State:         domain.QueryStateFailed,
		FailedStage:   domain.QueryStateEmbedding,
		ErrorCode:     domain.ErrCodeEmbeddingService,
		PromptVersion: "rankings-v1",
	}))

	counts, err := repo.CountByState(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["answered"])
	assert.Equal(t, int64(1), counts["failed"])
}

func TestQueryLogRepository_ListWithCursor(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewQueryLogRepository(pool)
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		state := domain.QueryStateAnswered
		if i == 2 {
			state = domain.QueryStateFailed
		}
		require.NoError(t, repo.CreateQueryLog(ctx, service.QueryLogEntry{
			SessionID:     "chat-1",
			Query:         fmt.Sprintf("query %d", i),
			State:         state,
			PromptVersion: "rankings-v1",
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}))
	}

	first, err := repo.ListWithCursor(ctx, nil, "", 2)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "query 4", first.Items[0].Query)
	assert.Equal(t, "query 3", first.Items[1].Query)

	cursor, err := pagination.DecodeCursor(first.NextCursor)
	require.NoError(t, err)
	second, err := repo.ListWithCursor(ctx, cursor, "", 2)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, "query 2", second.Items[0].Query)
	assert.Equal(t, domain.QueryStateFailed, second.Items[0].State)

	failed, err := repo.ListWithCursor(ctx, nil, domain.QueryStateFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed.Items, 1)
	assert.False(t, failed.HasMore)
	assert.Empty(t, failed.NextCursor)
	assert.Equal(t, "chat-1", failed.Items[0].SessionID)
}
