package score

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	"github.com/dishgraph/dishgraph/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, s store.ConnectionStore) *Engine {
	t.Helper()

	engine, err := NewEngine(s, model.DefaultQualityScoreConfig(), helper.NewLogger(io.Discard, slog.LevelError))
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }
	return engine
}

func connectionWith(mentions, upvotes int, lastMentioned time.Time) *model.Connection {
	return &model.Connection{
		RestaurantID:     uuid.New(),
		DishOrCategoryID: uuid.New(),
		Metrics: model.ConnectionMetrics{
			MentionCount:    mentions,
			TotalUpvotes:    upvotes,
			LastMentionedAt: lastMentioned,
		},
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("Rejects invalid configuration", func(t *testing.T) {
		config := model.DefaultQualityScoreConfig()
		config.ConnectionStrengthWeight = 0.5

		_, err := NewEngine(store.NewMemory(), config, helper.NewLogger(io.Discard, slog.LevelError))

		assert.Error(t, err)
	})
}

func TestConnectionStrength(t *testing.T) {
	engine := newTestEngine(t, store.NewMemory())

	t.Run("No mentions yields zero", func(t *testing.T) {
		strength := engine.ConnectionStrength(connectionWith(0, 0, time.Time{}), testNow)

		assert.Equal(t, 0.0, strength)
	})

	t.Run("More mentions strengthen the connection", func(t *testing.T) {
		weak := engine.ConnectionStrength(connectionWith(1, 0, testNow), testNow)
		strong := engine.ConnectionStrength(connectionWith(20, 0, testNow), testNow)

		assert.Greater(t, strong, weak)
	})

	t.Run("More upvotes strengthen the connection", func(t *testing.T) {
		weak := engine.ConnectionStrength(connectionWith(5, 2, testNow), testNow)
		strong := engine.ConnectionStrength(connectionWith(5, 200, testNow), testNow)

		assert.Greater(t, strong, weak)
	})

	t.Run("Staleness weakens the connection", func(t *testing.T) {
		fresh := engine.ConnectionStrength(connectionWith(5, 50, testNow), testNow)
		stale := engine.ConnectionStrength(connectionWith(5, 50, testNow.AddDate(0, 0, -365)), testNow)

		assert.Greater(t, fresh, stale, "Expected a year-old connection to score below a fresh one")
		assert.Greater(t, stale, 0.0, "Expected decay to never zero out an active history")
	})

	t.Run("Bounded to the unit interval", func(t *testing.T) {
		strength := engine.ConnectionStrength(connectionWith(1_000_000, 1_000_000, testNow), testNow)

		assert.LessOrEqual(t, strength, 1.0)
		assert.GreaterOrEqual(t, strength, 0.0)
	})
}

func TestRestaurantScore(t *testing.T) {
	ctx := context.Background()

	t.Run("Restaurant without connections scores zero", func(t *testing.T) {
		engine := newTestEngine(t, store.NewMemory())

		score, err := engine.RestaurantScore(ctx, uuid.New())

		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("Top dishes dominate the restaurant score", func(t *testing.T) {
		s := store.NewMemory()
		engine := newTestEngine(t, s)
		restaurant := uuid.New()

		for _, mentions := range []int{40, 30, 25, 1, 1} {
			conn := connectionWith(mentions, mentions*10, testNow)
			conn.RestaurantID = restaurant
			require.NoError(t, s.CreateConnection(ctx, conn))
		}

		score, err := engine.RestaurantScore(ctx, restaurant)
		require.NoError(t, err)

		top3 := connectionWith(25, 250, testNow)
		top3.RestaurantID = restaurant
		floor := engine.baseFoodScore(top3, testNow) * engine.config.TopFoodWeight / 2
		assert.Greater(t, score, floor, "Expected weak outliers to drag the score only through the consistency term")
		assert.LessOrEqual(t, score, engine.config.ScaleMax)
	})
}

func TestFoodScore(t *testing.T) {
	ctx := context.Background()

	t.Run("Blends strength with restaurant context", func(t *testing.T) {
		s := store.NewMemory()
		engine := newTestEngine(t, s)
		restaurant := uuid.New()

		conn := connectionWith(10, 100, testNow)
		conn.RestaurantID = restaurant
		require.NoError(t, s.CreateConnection(ctx, conn))

		sibling := connectionWith(50, 500, testNow)
		sibling.RestaurantID = restaurant
		require.NoError(t, s.CreateConnection(ctx, sibling))

		withContext, err := engine.FoodScore(ctx, conn)
		require.NoError(t, err)

		lonely := connectionWith(10, 100, testNow)
		require.NoError(t, s.CreateConnection(ctx, lonely))
		alone, err := engine.FoodScore(ctx, lonely)
		require.NoError(t, err)

		assert.Greater(t, withContext, alone, "Expected a strong restaurant to lift its dishes")
	})

	t.Run("Bounded to the configured scale", func(t *testing.T) {
		s := store.NewMemory()
		engine := newTestEngine(t, s)

		conn := connectionWith(1_000_000, 1_000_000, testNow)
		require.NoError(t, s.CreateConnection(ctx, conn))

		score, err := engine.FoodScore(ctx, conn)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, engine.config.ScaleMax)
	})
}

func TestCategoryScore(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty input yields no score", func(t *testing.T) {
		engine := newTestEngine(t, store.NewMemory())

		_, ok, err := engine.CategoryScore(ctx, nil)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Connections without mentions carry no weight", func(t *testing.T) {
		engine := newTestEngine(t, store.NewMemory())

		_, ok, err := engine.CategoryScore(ctx, []*model.Connection{connectionWith(0, 0, time.Time{})})

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Weighted by mention volume", func(t *testing.T) {
		s := store.NewMemory()
		engine := newTestEngine(t, s)

		strong := connectionWith(50, 500, testNow)
		require.NoError(t, s.CreateConnection(ctx, strong))
		weak := connectionWith(1, 0, testNow.AddDate(0, 0, -300))
		require.NoError(t, s.CreateConnection(ctx, weak))

		score, ok, err := engine.CategoryScore(ctx, []*model.Connection{strong, weak})
		require.NoError(t, err)
		require.True(t, ok)

		strongScore, err := engine.FoodScore(ctx, strong)
		require.NoError(t, err)
		weakScore, err := engine.FoodScore(ctx, weak)
		require.NoError(t, err)

		assert.Greater(t, score, (strongScore+weakScore)/2, "Expected the high-volume connection to dominate the mean")
	})
}

func TestUpdateQualityScoresForConnections(t *testing.T) {
	ctx := context.Background()

	t.Run("Persists scores for every connection", func(t *testing.T) {
		s := store.NewMemory()
		engine := newTestEngine(t, s)

		var ids []uuid.UUID
		for i := 0; i < 60; i++ {
			conn := connectionWith(i+1, i*10, testNow)
			require.NoError(t, s.CreateConnection(ctx, conn))
			ids = append(ids, conn.ID)
		}

		result, err := engine.UpdateQualityScoresForConnections(ctx, ids)

		require.NoError(t, err)
		assert.Equal(t, 60, result.Updated)
		assert.Equal(t, 0, result.Failed)
		assert.Empty(t, result.Errors)

		for _, id := range ids {
			stored, err := s.GetConnection(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, stored.QualityScore, "Expected every connection to carry a score after the run")
		}
	})

	t.Run("Isolates individual failures", func(t *testing.T) {
		s := store.NewMemory()
		engine := newTestEngine(t, s)

		var ids []uuid.UUID
		for i := 0; i < 9; i++ {
			conn := connectionWith(i+1, 0, testNow)
			require.NoError(t, s.CreateConnection(ctx, conn))
			ids = append(ids, conn.ID)
		}
		missing := uuid.New()
		ids = append(ids, missing)

		result, err := engine.UpdateQualityScoresForConnections(ctx, ids)

		require.NoError(t, err, "Expected per-connection failures to stay inside the result")
		assert.Equal(t, 9, result.Updated)
		assert.Equal(t, 1, result.Failed)
		require.Contains(t, result.Errors, missing)
		assert.ErrorIs(t, result.Errors[missing], store.ErrNotFound)
	})

	t.Run("Empty input is a no-op", func(t *testing.T) {
		engine := newTestEngine(t, store.NewMemory())

		result, err := engine.UpdateQualityScoresForConnections(ctx, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, result.Updated)
	})
}

// stalledStore blocks lookups of one connection until the caller's
// context expires, simulating a hung storage round trip.
type stalledStore struct {
	*store.Memory
	stalledID uuid.UUID
}

func (s *stalledStore) GetConnection(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	if id == s.stalledID {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Memory.GetConnection(ctx, id)
}

func TestUpdateQualityScoresBatchTimeout(t *testing.T) {
	ctx := context.Background()
	s := &stalledStore{Memory: store.NewMemory(), stalledID: uuid.New()}

	config := model.DefaultQualityScoreConfig()
	config.BatchSize = 1
	config.BatchTimeout = 50 * time.Millisecond
	engine, err := NewEngine(s, config, helper.NewLogger(io.Discard, slog.LevelError))
	require.NoError(t, err)

	healthy := connectionWith(5, 50, testNow)
	require.NoError(t, s.Memory.CreateConnection(ctx, healthy))

	result, err := engine.UpdateQualityScoresForConnections(ctx, []uuid.UUID{s.stalledID, healthy.ID})

	require.NoError(t, err, "Expected a timed-out batch to not abort the run")
	assert.Equal(t, 1, result.Updated, "Expected the batch after the timeout to still be processed")
	assert.Equal(t, 1, result.Failed)

	require.Contains(t, result.Errors, s.stalledID)
	var timeoutErr *model.QualityScoreTimeoutError
	require.ErrorAs(t, result.Errors[s.stalledID], &timeoutErr)
	assert.Equal(t, s.stalledID, timeoutErr.ConnectionID)
	assert.Equal(t, config.BatchTimeout, timeoutErr.Timeout)

	stored, err := s.Memory.GetConnection(ctx, healthy.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.QualityScore, "Expected the healthy connection to carry a fresh score")
}
