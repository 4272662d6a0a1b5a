// Package dishgraph ingests batches of extracted social-media mentions
// and maintains a deduplicated, scored graph of restaurant-dish
// connections on top of PostgreSQL.
package dishgraph

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dishgraph/dishgraph/core/component"
	"github.com/dishgraph/dishgraph/core/dedup"
	"github.com/dishgraph/dishgraph/core/merge"
	"github.com/dishgraph/dishgraph/core/resolver"
	"github.com/dishgraph/dishgraph/core/score"
	"github.com/dishgraph/dishgraph/database"
	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	"github.com/dishgraph/dishgraph/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DishGraph provides a unified interface to the ingestion pipeline and
// its storage handlers.
type DishGraph struct {
	DB       *helper.Database
	Store    store.Store
	Resolver *resolver.Resolver
	Router   *component.Router
	Merger   *merge.Engine
	Scores   *score.Engine

	config model.PipelineConfig
	// Logging
	log *slog.Logger
}

// NewDishGraph creates a DishGraph backed by PostgreSQL, with all
// handlers initialized. A nil pipeline configuration uses the defaults.
func NewDishGraph(dbConfig *helper.DatabaseConfiguration, pipelineConfig *model.PipelineConfig) (*DishGraph, error) {
	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)

	db, err := helper.NewDatabase("dishgraph", dbConfig, logger)
	if err != nil {
		return nil, helper.NewError("connect database", err)
	}

	// force=false to not reload SQL functions if they already exist
	dbStore, err := database.NewStore(db, false)
	if err != nil {
		return nil, helper.NewError("create store", err)
	}

	graph, err := NewDishGraphWithStore(dbStore, pipelineConfig, logger)
	if err != nil {
		return nil, err
	}
	graph.DB = db
	return graph, nil
}

// NewDishGraphWithStore creates a DishGraph on top of an arbitrary
// store implementation. Used with store.NewMemory for tests and for
// callers that do not need persistence.
func NewDishGraphWithStore(s store.Store, pipelineConfig *model.PipelineConfig, logger *slog.Logger) (*DishGraph, error) {
	config := model.DefaultPipelineConfig()
	if pipelineConfig != nil {
		config = *pipelineConfig
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate pipeline configuration", err)
	}
	if logger == nil {
		logger = helper.NewLogger(os.Stdout, slog.LevelInfo)
	}

	scores, err := score.NewEngine(s, config.Quality, logger)
	if err != nil {
		return nil, helper.NewError("create score engine", err)
	}

	return &DishGraph{
		Store:    s,
		Resolver: resolver.NewResolver(s, config.Resolver, logger),
		Router:   component.NewRouter(config.Attributes, logger),
		Merger:   merge.NewEngine(s, s, config.Merge, config.Attributes, logger),
		Scores:   scores,
		config:   config,
		log:      logger,
	}, nil
}

// Close closes the database connection.
func (g *DishGraph) Close() error {
	if g.DB != nil {
		return g.DB.Close()
	}
	return nil
}

// ProcessBatch runs one batch of processed mentions through the full
// pipeline: source dedup, entity resolution, component processing,
// merging into the graph and quality score recomputation for every
// touched connection. With error recovery enabled, individual mention
// failures are recorded in the result and never abort the batch; with
// it disabled, the first failure aborts and surfaces to the caller.
// Resubmitting the same batch is a no-op.
func (g *DishGraph) ProcessBatch(ctx context.Context, mentions []*model.ProcessedMention) (*model.BatchResult, error) {
	start := time.Now()
	result := &model.BatchResult{BatchID: uuid.New()}

	unique := dedup.FirstSeen(mentions, func(m *model.ProcessedMention) string { return m.DedupKey() })
	if dropped := len(mentions) - len(unique); dropped > 0 {
		g.log.Info("Dropped duplicate sources from batch", "batchId", result.BatchID, "dropped", dropped)
	}
	result.TotalMentionsProcessed = len(unique)

	if len(unique) == 0 {
		result.OverallSuccess = true
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		return result, nil
	}

	resolved, err := g.resolveEntities(ctx, unique, result)
	if err != nil {
		return nil, err
	}

	if err := g.processComponents(ctx, unique, resolved, result); err != nil {
		return nil, err
	}

	stats := g.Merger.Apply(ctx, result.ComponentResults)
	if g.config.EnableMetrics {
		result.Metrics.ConnectionsCreated = stats.ConnectionsCreated
		result.Metrics.ConnectionsUpdated = stats.ConnectionsUpdated
		result.Metrics.MentionsCreated = stats.MentionsCreated
	}
	for _, mergeErr := range stats.Errors {
		result.Errors = append(result.Errors, model.BatchError{Component: "merge", Message: mergeErr.Error()})
	}
	if !g.config.EnableErrorRecovery && len(stats.Errors) > 0 {
		return nil, helper.NewError("apply merge operations", stats.Errors[0])
	}

	if len(stats.Touched) > 0 {
		update, err := g.Scores.UpdateQualityScoresForConnections(ctx, stats.Touched)
		if err != nil {
			return nil, helper.NewError("update quality scores", err)
		}
		for id, scoreErr := range update.Errors {
			result.Errors = append(result.Errors, model.BatchError{Component: "score", Message: id.String() + ": " + scoreErr.Error()})
		}
	}

	if g.config.EnableMetrics {
		result.Metrics.ErrorsEncountered = len(result.Errors)
	}
	result.OverallSuccess = len(result.Errors) == 0
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	g.log.Info("Processed batch",
		"batchId", result.BatchID,
		"mentions", result.TotalMentionsProcessed,
		"connectionsCreated", result.Metrics.ConnectionsCreated,
		"connectionsUpdated", result.Metrics.ConnectionsUpdated,
		"errors", result.Metrics.ErrorsEncountered,
	)

	return result, nil
}

// resolveEntities collects and resolves every entity reference of the
// batch. Per-input resolution failures become batch errors; only an
// invalid batch (unknown entity type) is fatal.
func (g *DishGraph) resolveEntities(ctx context.Context, mentions []*model.ProcessedMention, result *model.BatchResult) (*resolver.ResolvedEntities, error) {
	var inputs []resolver.Input
	for _, m := range mentions {
		if m.Restaurant != nil {
			inputs = append(inputs, resolver.Input{
				TempID:         m.Restaurant.TempID,
				Type:           model.EntityTypeRestaurant,
				NormalizedName: m.Restaurant.NormalizedName,
				OriginalText:   m.Restaurant.OriginalText,
			})
		}
		if m.DishOrCategory != nil {
			inputs = append(inputs, resolver.Input{
				TempID:         m.DishOrCategory.TempID,
				Type:           model.EntityTypeDishOrCategory,
				NormalizedName: m.DishOrCategory.NormalizedName,
				OriginalText:   m.DishOrCategory.OriginalText,
			})
		}
	}

	resolved, err := g.Resolver.ResolveBatch(ctx, inputs)
	if err != nil {
		return nil, helper.NewError("resolve entities", err)
	}

	if g.config.EnableMetrics {
		stats := resolved.Stats()
		result.Metrics.EntitiesCreated = stats.NewEntities
		result.Metrics.EntitiesUpdated = stats.FuzzyMatches
	}
	resolveErrs := resolved.Errors()
	if !g.config.EnableErrorRecovery && len(resolveErrs) > 0 {
		return nil, helper.NewError("resolve entities", resolveErrs[0])
	}
	for _, resolveErr := range resolveErrs {
		result.Errors = append(result.Errors, model.BatchError{Component: "resolver", Message: resolveErr.Error()})
	}

	return resolved, nil
}

// processComponents routes every mention through its processors,
// optionally in parallel, preserving batch order in the results.
func (g *DishGraph) processComponents(ctx context.Context, mentions []*model.ProcessedMention, resolved *resolver.ResolvedEntities, result *model.BatchResult) error {
	perMention := make([][]*model.ComponentResult, len(mentions))

	if g.config.EnableParallelProcessing {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(g.config.MaxConcurrentComponents)
		for i, m := range mentions {
			i, m := i, m
			group.Go(func() error {
				perMention[i] = g.Router.ProcessMention(groupCtx, m, resolved)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return helper.NewError("process components", err)
		}
	} else {
		for i, m := range mentions {
			perMention[i] = g.Router.ProcessMention(ctx, m, resolved)
		}
	}

	for _, results := range perMention {
		for _, r := range results {
			result.ComponentResults = append(result.ComponentResults, r)
			if r.Err == nil {
				continue
			}
			if !g.config.EnableErrorRecovery {
				return helper.NewError("process components", r.Err)
			}
			result.Errors = append(result.Errors, model.BatchError{
				TempID:    r.TempID,
				Component: r.Component,
				Message:   r.Err.Error(),
			})
		}
	}
	return nil
}
