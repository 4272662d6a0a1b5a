// Package merge consumes the operations emitted by the component
// processors and applies them to the connection graph. Applying the same
// batch twice is a no-op: mentions are deduplicated by source and
// metrics only move when a mention row is actually created.
package merge

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dishgraph/dishgraph/core/score"
	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	"github.com/dishgraph/dishgraph/store"
	"github.com/google/uuid"
)

// ApplyStats summarizes what one Apply call changed.
type ApplyStats struct {
	ConnectionsCreated int
	ConnectionsUpdated int
	MentionsCreated    int
	RacesRecovered     int
	Touched            []uuid.UUID
	Errors             []error
}

// Engine applies component operations to the stores.
type Engine struct {
	connections store.ConnectionStore
	mentions    store.MentionStore
	config      model.MergeConfig
	attributes  model.AttributeConfig
	logger      *slog.Logger
	locks       *helper.KeyedMutex
	now         func() time.Time
}

// NewEngine creates a merge engine.
func NewEngine(connections store.ConnectionStore, mentions store.MentionStore, config model.MergeConfig, attributes model.AttributeConfig, logger *slog.Logger) *Engine {
	return &Engine{
		connections: connections,
		mentions:    mentions,
		config:      config,
		attributes:  attributes,
		logger:      logger,
		locks:       helper.NewKeyedMutex(),
		now:         time.Now,
	}
}

// Apply executes every operation of the given component results in
// order. Operation failures are isolated: they are recorded in the stats
// and the remaining operations continue.
func (e *Engine) Apply(ctx context.Context, results []*model.ComponentResult) *ApplyStats {
	stats := &ApplyStats{}
	touched := map[uuid.UUID]struct{}{}

	for _, result := range results {
		for _, op := range result.Operations {
			ids, err := e.apply(ctx, op, stats)
			if err != nil {
				stats.Errors = append(stats.Errors, err)
				e.logger.Error("Merge operation failed", "operation", op.Type, "tempId", result.TempID, "error", err)
				continue
			}
			for _, id := range ids {
				if _, seen := touched[id]; !seen {
					touched[id] = struct{}{}
					stats.Touched = append(stats.Touched, id)
				}
			}
		}
	}
	return stats
}

func (e *Engine) apply(ctx context.Context, op model.Operation, stats *ApplyStats) ([]uuid.UUID, error) {
	switch op.Type {
	case model.OpUpsertConnection:
		id, err := e.upsertConnection(ctx, op, stats)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{id}, nil
	case model.OpAddAttributes:
		return e.addSelectiveAttributes(ctx, op, stats)
	case model.OpAddDescriptive:
		return e.addDescriptive(ctx, op, stats)
	case model.OpSetMenuItem:
		return e.setMenuItem(ctx, op, stats)
	case model.OpGeneralPraise:
		return e.applyGeneralPraise(ctx, op, stats)
	default:
		return nil, helper.NewError("apply", errors.New("unknown operation type "+string(op.Type)))
	}
}

// tupleKey is the lock key for a connection's identity tuple. Every
// write against a connection row must hold its tuple lock.
func tupleKey(restaurantID, dishOrCategoryID uuid.UUID, signature string) string {
	return restaurantID.String() + "\x00" + dishOrCategoryID.String() + "\x00" + signature
}

// upsertConnection finds or creates the connection for the operation's
// identity tuple and attaches the mention to it. A create that loses the
// unique-index race degrades into an update of the winner's row.
func (e *Engine) upsertConnection(ctx context.Context, op model.Operation, stats *ApplyStats) (uuid.UUID, error) {
	signature := model.SelectiveSignature(op.Selective)
	unlock := e.locks.Lock(tupleKey(op.RestaurantID, op.DishOrCategoryID, signature))
	defer unlock()

	connection, err := e.connections.FindConnection(ctx, op.RestaurantID, op.DishOrCategoryID, signature)
	if err != nil {
		return uuid.Nil, helper.NewError("upsertConnection", err)
	}

	if connection == nil && !e.attributes.RequireExactAttributeMatch {
		// Relaxed matching: a signature miss attaches the mention to the
		// pair's most recently updated connection instead of forking. The
		// row keeps its selective identity.
		fallback, err := e.mostRecentForPair(ctx, op.RestaurantID, op.DishOrCategoryID)
		if err != nil {
			return uuid.Nil, helper.NewError("upsertConnection", err)
		}
		if fallback != nil {
			unlockRow := e.locks.Lock(tupleKey(fallback.RestaurantID, fallback.DishOrCategoryID, fallback.SelectiveSignature()))
			defer unlockRow()
			connection, err = e.connections.GetConnection(ctx, fallback.ID)
			if err != nil {
				return uuid.Nil, helper.NewError("upsertConnection", err)
			}
		}
	}

	created := false
	if connection == nil {
		connection = &model.Connection{
			RestaurantID:     op.RestaurantID,
			DishOrCategoryID: op.DishOrCategoryID,
			Attributes: model.ConnectionAttributes{
				Categories: e.cappedUnion(nil, op.Categories),
				Selective:  normalizeSet(op.Selective),
			},
		}
		err = e.connections.CreateConnection(ctx, connection)
		if errors.Is(err, store.ErrDuplicateKey) {
			raceErr := &model.DuplicateConnectionRaceError{
				RestaurantID:     op.RestaurantID,
				DishOrCategoryID: op.DishOrCategoryID,
				Signature:        signature,
			}
			e.logger.Warn("Recovered duplicate connection race", "error", raceErr)
			stats.RacesRecovered++

			connection, err = e.connections.FindConnection(ctx, op.RestaurantID, op.DishOrCategoryID, signature)
			if err != nil {
				return uuid.Nil, helper.NewError("upsertConnection", err)
			}
			if connection == nil {
				return uuid.Nil, helper.NewError("upsertConnection", errors.New("connection vanished after duplicate key"))
			}
		} else if err != nil {
			return uuid.Nil, helper.NewError("upsertConnection", err)
		} else {
			created = true
			stats.ConnectionsCreated++
		}
	}

	mentionCreated, err := e.mentions.CreateMentionRecord(ctx, op.Mention.Record(connection.ID))
	if err != nil {
		return uuid.Nil, helper.NewError("upsertConnection", err)
	}
	if !mentionCreated {
		// Resubmitted source: the connection stays untouched so replays
		// cannot inflate metrics.
		return connection.ID, nil
	}
	stats.MentionsCreated++

	e.applyMention(connection, op.Mention)
	connection.Attributes.Categories = e.cappedUnion(connection.Attributes.Categories, op.Categories)
	if err := e.recountRecent(ctx, connection); err != nil {
		return uuid.Nil, helper.NewError("upsertConnection", err)
	}

	if err := e.connections.UpdateConnection(ctx, connection); err != nil {
		return uuid.Nil, helper.NewError("upsertConnection", err)
	}
	if !created {
		stats.ConnectionsUpdated++
	}
	return connection.ID, nil
}

// applyMention folds one new mention into the connection's metrics.
func (e *Engine) applyMention(connection *model.Connection, mention *model.ProcessedMention) {
	connection.Metrics.MentionCount++
	connection.Metrics.TotalUpvotes += mention.Upvotes
	if mention.CreatedAt.After(connection.Metrics.LastMentionedAt) {
		connection.Metrics.LastMentionedAt = mention.CreatedAt
	}
	e.insertTopMention(connection, mention)
}

// insertTopMention ranks the mention into the connection's bounded
// top-mention list. Ranking favors upvotes and decays with age so stale
// highlights rotate out.
func (e *Engine) insertTopMention(connection *model.Connection, mention *model.ProcessedMention) {
	age := score.AgeDays(mention.CreatedAt, e.now())
	entry := model.TopMention{
		MentionID: uuid.New(),
		SourceID:  mention.SourceID,
		Excerpt:   mention.Excerpt,
		Upvotes:   mention.Upvotes,
		Score:     float64(mention.Upvotes+1) * score.Decay(age, e.config.TopMentionHalfLifeDays),
		CreatedAt: mention.CreatedAt,
	}

	top := append(connection.Metrics.TopMentions, entry)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Score > top[j].Score
	})
	if len(top) > e.config.MaxTopMentions {
		top = top[:e.config.MaxTopMentions]
	}
	connection.Metrics.TopMentions = top
}

// recountRecent recomputes RecentMentionCount from the stored mention
// timestamps and derives the activity level from it.
func (e *Engine) recountRecent(ctx context.Context, connection *model.Connection) error {
	mentions, err := e.mentions.ListMentionsForConnection(ctx, connection.ID)
	if err != nil {
		return err
	}

	cutoff := e.now().Add(-e.config.RecentMentionWindow)
	recent := 0
	for _, m := range mentions {
		if m.CreatedAt.After(cutoff) {
			recent++
		}
	}
	connection.Metrics.RecentMentionCount = recent
	connection.Metrics.ActivityLevel = e.activityLevel(recent)
	return nil
}

func (e *Engine) activityLevel(recent int) model.ActivityLevel {
	switch {
	case recent >= e.config.ActivityHigh:
		return model.ActivityLevelHigh
	case recent >= e.config.ActivityModerate:
		return model.ActivityLevelModerate
	case recent > 0:
		return model.ActivityLevelLow
	default:
		return model.ActivityLevelDormant
	}
}

// mostRecentForPair returns the pair connection with the latest update,
// or nil when the pair has none.
func (e *Engine) mostRecentForPair(ctx context.Context, restaurantID, dishOrCategoryID uuid.UUID) (*model.Connection, error) {
	pair, err := e.connections.FindConnectionsForPair(ctx, restaurantID, dishOrCategoryID)
	if err != nil {
		return nil, err
	}

	var latest *model.Connection
	for _, connection := range pair {
		if latest == nil || connection.UpdatedAt.After(latest.UpdatedAt) {
			latest = connection
		}
	}
	return latest, nil
}

// findTarget resolves the connection an attribute operation addresses:
// the signature-matched row, or with relaxed matching the pair's most
// recently updated row.
func (e *Engine) findTarget(ctx context.Context, op model.Operation) (*model.Connection, error) {
	signature := model.SelectiveSignature(op.Selective)
	connection, err := e.connections.FindConnection(ctx, op.RestaurantID, op.DishOrCategoryID, signature)
	if err != nil {
		return nil, err
	}
	if connection == nil && !e.attributes.RequireExactAttributeMatch {
		return e.mostRecentForPair(ctx, op.RestaurantID, op.DishOrCategoryID)
	}
	return connection, nil
}

// updateUnderLock re-reads the connection under its tuple lock and
// applies mutate to the fresh row, writing back only when mutate reports
// a change. Listings hand out clones, so writing the listed row back
// directly would overwrite concurrent metric updates with stale state.
func (e *Engine) updateUnderLock(ctx context.Context, stale *model.Connection, mutate func(*model.Connection) bool) (uuid.UUID, bool, error) {
	unlock := e.locks.Lock(tupleKey(stale.RestaurantID, stale.DishOrCategoryID, stale.SelectiveSignature()))
	defer unlock()

	connection, err := e.connections.GetConnection(ctx, stale.ID)
	if errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}

	if !mutate(connection) {
		return connection.ID, false, nil
	}
	if err := e.connections.UpdateConnection(ctx, connection); err != nil {
		return uuid.Nil, false, err
	}
	return connection.ID, true, nil
}

// addSelectiveAttributes reinforces categories on the signature-matched
// connection. The selective set itself is identity and never mutates an
// existing row.
func (e *Engine) addSelectiveAttributes(ctx context.Context, op model.Operation, stats *ApplyStats) ([]uuid.UUID, error) {
	connection, err := e.findTarget(ctx, op)
	if err != nil {
		return nil, helper.NewError("addSelectiveAttributes", err)
	}
	if connection == nil {
		// The upsert of the same mention runs first; a missing row means
		// it failed and there is nothing to attach to.
		return nil, nil
	}

	id, updated, err := e.updateUnderLock(ctx, connection, func(c *model.Connection) bool {
		merged := e.cappedUnion(c.Attributes.Categories, op.Categories)
		if equalSets(merged, c.Attributes.Categories) {
			return false
		}
		c.Attributes.Categories = merged
		return true
	})
	if err != nil {
		return nil, helper.NewError("addSelectiveAttributes", err)
	}
	if id == uuid.Nil {
		return nil, nil
	}
	if updated {
		stats.ConnectionsUpdated++
	}
	return []uuid.UUID{id}, nil
}

// addDescriptive unions descriptive attributes into every connection of
// the restaurant-dish pair, regardless of selective signature.
func (e *Engine) addDescriptive(ctx context.Context, op model.Operation, stats *ApplyStats) ([]uuid.UUID, error) {
	pair, err := e.connections.FindConnectionsForPair(ctx, op.RestaurantID, op.DishOrCategoryID)
	if err != nil {
		return nil, helper.NewError("addDescriptive", err)
	}

	var touched []uuid.UUID
	for _, connection := range pair {
		id, updated, err := e.updateUnderLock(ctx, connection, func(c *model.Connection) bool {
			merged := e.cappedUnion(c.Attributes.Descriptive, op.Descriptive)
			if equalSets(merged, c.Attributes.Descriptive) {
				return false
			}
			c.Attributes.Descriptive = merged
			return true
		})
		if err != nil {
			return nil, helper.NewError("addDescriptive", err)
		}
		if id == uuid.Nil {
			continue
		}
		if updated {
			stats.ConnectionsUpdated++
		}
		touched = append(touched, id)
	}
	return touched, nil
}

// setMenuItem flags the signature-matched connection as a menu item.
func (e *Engine) setMenuItem(ctx context.Context, op model.Operation, stats *ApplyStats) ([]uuid.UUID, error) {
	connection, err := e.findTarget(ctx, op)
	if err != nil {
		return nil, helper.NewError("setMenuItem", err)
	}
	if connection == nil {
		return nil, nil
	}

	id, updated, err := e.updateUnderLock(ctx, connection, func(c *model.Connection) bool {
		if c.Attributes.IsMenuItem == op.IsMenuItem {
			return false
		}
		c.Attributes.IsMenuItem = op.IsMenuItem
		return true
	})
	if err != nil {
		return nil, helper.NewError("setMenuItem", err)
	}
	if id == uuid.Nil {
		return nil, nil
	}
	if updated {
		stats.ConnectionsUpdated++
	}
	return []uuid.UUID{id}, nil
}

// applyGeneralPraise unions restaurant-level attributes into every
// connection of the restaurant.
func (e *Engine) applyGeneralPraise(ctx context.Context, op model.Operation, stats *ApplyStats) ([]uuid.UUID, error) {
	if len(op.Restaurant) == 0 {
		return nil, nil
	}

	connections, err := e.connections.ListConnectionsForRestaurant(ctx, op.RestaurantID)
	if err != nil {
		return nil, helper.NewError("applyGeneralPraise", err)
	}

	var touched []uuid.UUID
	for _, connection := range connections {
		id, updated, err := e.updateUnderLock(ctx, connection, func(c *model.Connection) bool {
			merged := e.cappedUnion(c.Attributes.Restaurant, op.Restaurant)
			if equalSets(merged, c.Attributes.Restaurant) {
				return false
			}
			c.Attributes.Restaurant = merged
			return true
		})
		if err != nil {
			return nil, helper.NewError("applyGeneralPraise", err)
		}
		if !updated || id == uuid.Nil {
			continue
		}
		stats.ConnectionsUpdated++
		touched = append(touched, id)
	}
	return touched, nil
}

// cappedUnion unions additions into base, case-insensitively, bounded by
// the configured per-connection attribute cap.
func (e *Engine) cappedUnion(base model.StringSlice, additions []string) model.StringSlice {
	merged := append(model.StringSlice(nil), base...)
	seen := make(map[string]struct{}, len(merged))
	for _, s := range merged {
		seen[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	for _, s := range additions {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		if e.attributes.MaxAttributesPerConnection > 0 && len(merged) >= e.attributes.MaxAttributesPerConnection {
			break
		}
		seen[key] = struct{}{}
		merged = append(merged, strings.TrimSpace(s))
	}
	return merged
}

// normalizeSet lower-cases, trims and deduplicates an attribute set.
func normalizeSet(values []string) model.StringSlice {
	seen := make(map[string]struct{}, len(values))
	normalized := make(model.StringSlice, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		normalized = append(normalized, v)
	}
	return normalized
}

func equalSets(a, b model.StringSlice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
