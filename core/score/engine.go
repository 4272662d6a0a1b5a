package score

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	"github.com/dishgraph/dishgraph/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine computes and persists quality scores.
type Engine struct {
	store  store.ConnectionStore
	config model.QualityScoreConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a score engine. The configuration is validated once
// here so scoring code can assume consistent weights.
func NewEngine(connectionStore store.ConnectionStore, config model.QualityScoreConfig, logger *slog.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("NewEngine", err)
	}
	return &Engine{
		store:  connectionStore,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// ConnectionStrength returns the recency-decayed strength of a
// connection in [0, 1]. Mention volume and upvote volume saturate
// independently and decay on separate windows keyed to the days since
// the last mention.
func (e *Engine) ConnectionStrength(connection *model.Connection, now time.Time) float64 {
	age := AgeDays(connection.Metrics.LastMentionedAt, now)

	mentionTerm := saturate(float64(connection.Metrics.MentionCount), e.config.MentionSaturation) *
		Decay(age, e.config.MentionDecayWindowDays)
	upvoteTerm := saturate(float64(connection.Metrics.TotalUpvotes), e.config.UpvoteSaturation) *
		Decay(age, e.config.UpvoteDecayWindowDays)

	return clamp01(e.config.MentionDecayWeight*mentionTerm + e.config.UpvoteDecayWeight*upvoteTerm)
}

// baseFoodScore is the connection's food score without restaurant
// context, on the configured scale. Restaurant scores are aggregated
// from base scores so the two do not recurse into each other.
func (e *Engine) baseFoodScore(connection *model.Connection, now time.Time) float64 {
	return e.config.ConnectionStrengthWeight * e.ConnectionStrength(connection, now) * e.config.ScaleMax
}

// RestaurantScore aggregates a restaurant's connections into a single
// score on the configured scale: a weighted blend of the mean of its top
// food scores and the mean across all of them. A restaurant without
// connections scores zero.
func (e *Engine) RestaurantScore(ctx context.Context, restaurantID uuid.UUID) (float64, error) {
	connections, err := e.store.ListConnectionsForRestaurant(ctx, restaurantID)
	if err != nil {
		return 0, helper.NewError("RestaurantScore", err)
	}
	return e.restaurantScoreOf(connections), nil
}

func (e *Engine) restaurantScoreOf(connections []*model.Connection) float64 {
	if len(connections) == 0 {
		return 0
	}
	now := e.now()

	scores := make([]float64, 0, len(connections))
	for _, c := range connections {
		scores = append(scores, e.baseFoodScore(c, now))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	topN := e.config.TopFoodCount
	if topN > len(scores) {
		topN = len(scores)
	}
	var topSum, allSum float64
	for i, s := range scores {
		if i < topN {
			topSum += s
		}
		allSum += s
	}
	top := topSum / float64(topN)
	all := allSum / float64(len(scores))

	return e.config.TopFoodWeight*top + e.config.ConsistencyWeight*all
}

// FoodScore returns the connection's quality score on the configured
// scale, blending its own strength with its restaurant's context.
func (e *Engine) FoodScore(ctx context.Context, connection *model.Connection) (float64, error) {
	restaurantScore, err := e.RestaurantScore(ctx, connection.RestaurantID)
	if err != nil {
		return 0, helper.NewError("FoodScore", err)
	}

	strength := e.ConnectionStrength(connection, e.now())
	blended := e.config.ConnectionStrengthWeight*strength +
		e.config.RestaurantContextWeight*(restaurantScore/e.config.ScaleMax)

	return clamp01(blended) * e.config.ScaleMax, nil
}

// CategoryScore returns the mention-volume-weighted mean food score of
// the given connections. Connections without mentions carry no weight.
// The second return is false when no connection carries weight.
func (e *Engine) CategoryScore(ctx context.Context, connections []*model.Connection) (float64, bool, error) {
	var weightedSum, totalWeight float64
	for _, c := range connections {
		weight := float64(c.Metrics.MentionCount)
		if weight <= 0 {
			continue
		}
		foodScore, err := e.FoodScore(ctx, c)
		if err != nil {
			return 0, false, helper.NewError("CategoryScore", err)
		}
		weightedSum += weight * foodScore
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0, false, nil
	}
	return weightedSum / totalWeight, true, nil
}

// UpdateResult summarizes one score recomputation run.
type UpdateResult struct {
	Updated int
	Failed  int
	Errors  map[uuid.UUID]error
	Elapsed time.Duration
}

// UpdateQualityScoresForConnections recomputes and persists the quality
// score of every given connection. Connections are processed in batches
// with bounded concurrency; each batch runs under its own timeout.
// Failures are isolated per connection and recorded in the result's
// error map, never aborting the run.
func (e *Engine) UpdateQualityScoresForConnections(ctx context.Context, ids []uuid.UUID) (*UpdateResult, error) {
	start := e.now()
	result := &UpdateResult{Errors: map[uuid.UUID]error{}}
	var mu sync.Mutex

	for offset := 0; offset < len(ids); offset += e.config.BatchSize {
		end := offset + e.config.BatchSize
		if end > len(ids) {
			end = len(ids)
		}

		batchCtx, cancel := context.WithTimeout(ctx, e.config.BatchTimeout)
		group, groupCtx := errgroup.WithContext(batchCtx)
		group.SetLimit(e.config.MaxConcurrent)

		for _, id := range ids[offset:end] {
			id := id
			group.Go(func() error {
				err := e.scoreConnection(groupCtx, id)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					result.Updated++
				case groupCtx.Err() != nil:
					result.Failed++
					result.Errors[id] = &model.QualityScoreTimeoutError{ConnectionID: id, Timeout: e.config.BatchTimeout}
				default:
					result.Failed++
					result.Errors[id] = err
					e.logger.Error("Quality score update failed", "connectionId", id, "error", err)
				}
				// Individual failures never abort the batch.
				return nil
			})
		}

		_ = group.Wait()
		cancel()

		if ctx.Err() != nil {
			return result, helper.NewError("UpdateQualityScoresForConnections", ctx.Err())
		}
	}

	result.Elapsed = e.now().Sub(start)
	return result, nil
}

// scoreConnection recomputes and persists one connection's score.
func (e *Engine) scoreConnection(ctx context.Context, id uuid.UUID) error {
	connection, err := e.store.GetConnection(ctx, id)
	if err != nil {
		return helper.NewError("scoreConnection", err)
	}
	score, err := e.FoodScore(ctx, connection)
	if err != nil {
		return helper.NewError("scoreConnection", err)
	}
	if err := e.store.UpdateQualityScore(ctx, id, score); err != nil {
		return helper.NewError("scoreConnection", err)
	}
	return nil
}
