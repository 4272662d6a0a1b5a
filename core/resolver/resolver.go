// Package resolver turns entity references from a batch into persisted
// entities, matching against existing rows by normalized name, alias and
// fuzzy similarity before creating new ones.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	"github.com/dishgraph/dishgraph/store"
)

// Input is one entity reference to resolve.
type Input struct {
	TempID         string
	Type           model.EntityType
	NormalizedName string
	OriginalText   string
}

// Stats counts how the inputs of one batch were resolved.
type Stats struct {
	ExactMatches int
	FuzzyMatches int
	NewEntities  int
}

// ResolvedEntities maps the batch's temp ids to persisted entities.
// Inputs that failed resolution are excluded from the map and recorded
// in Errors.
type ResolvedEntities struct {
	byTempID map[string]*model.Entity
	stats    Stats
	errors   []error
}

// Entity returns the resolved entity for a temp id.
func (r *ResolvedEntities) Entity(tempID string) (*model.Entity, bool) {
	entity, ok := r.byTempID[tempID]
	return entity, ok
}

// Len returns the number of successfully resolved temp ids.
func (r *ResolvedEntities) Len() int {
	return len(r.byTempID)
}

// Stats returns the resolution counters of the batch.
func (r *ResolvedEntities) Stats() Stats {
	return r.stats
}

// Errors returns the per-input resolution errors of the batch.
func (r *ResolvedEntities) Errors() []error {
	return r.errors
}

// Resolver resolves entity references against an EntityStore.
type Resolver struct {
	store  store.EntityStore
	config model.ResolverConfig
	logger *slog.Logger
	locks  *helper.KeyedMutex
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(entityStore store.EntityStore, config model.ResolverConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  entityStore,
		config: config,
		logger: logger,
		locks:  helper.NewKeyedMutex(),
	}
}

// resolution is the outcome of resolving one distinct identity.
type resolution struct {
	entity *model.Entity
	kind   string // "exact", "fuzzy" or "created"
}

// ResolveBatch resolves every input of a batch. Inputs sharing an
// identity (type plus normalized name) are resolved once and fanned out
// to all their temp ids. An input without a normalized name is skipped
// and recorded as a MissingIdentifierError; an input with an unknown
// entity type fails the whole batch.
func (r *Resolver) ResolveBatch(ctx context.Context, inputs []Input) (*ResolvedEntities, error) {
	result := &ResolvedEntities{byTempID: make(map[string]*model.Entity, len(inputs))}
	cache := make(map[string]*resolution)

	for _, input := range inputs {
		if !input.Type.Valid() {
			return nil, helper.NewError("ResolveBatch", fmt.Errorf("unknown entity type %q for input %q", input.Type, input.TempID))
		}
		if model.NormalizeName(input.NormalizedName) == "" {
			err := &model.MissingIdentifierError{TempID: input.TempID, EntityType: input.Type}
			result.errors = append(result.errors, err)
			r.logger.Warn("Skipping input without identifier", "tempId", input.TempID, "entityType", input.Type)
			continue
		}

		key := string(input.Type) + "\x00" + model.NormalizeName(input.NormalizedName)
		res, ok := cache[key]
		if !ok {
			var err error
			res, err = r.resolveOne(ctx, input)
			if err != nil {
				result.errors = append(result.errors, helper.NewError("ResolveBatch", err))
				r.logger.Error("Entity resolution failed", "tempId", input.TempID, "name", input.NormalizedName, "error", err)
				continue
			}
			cache[key] = res
			switch res.kind {
			case "exact":
				result.stats.ExactMatches++
			case "fuzzy":
				result.stats.FuzzyMatches++
			case "created":
				result.stats.NewEntities++
			}
		}
		result.byTempID[input.TempID] = res.entity
	}

	return result, nil
}

// resolveOne resolves a single distinct identity. Resolution per
// identity is serialized through a keyed mutex so two inputs racing for
// the same new entity produce exactly one row.
func (r *Resolver) resolveOne(ctx context.Context, input Input) (*resolution, error) {
	unlock := r.locks.Lock(string(input.Type) + "\x00" + model.NormalizeName(input.NormalizedName))
	defer unlock()

	entity, err := r.store.FindEntity(ctx, input.Type, input.NormalizedName)
	if err != nil {
		return nil, helper.NewError("resolveOne", err)
	}
	if entity != nil {
		return &resolution{entity: entity, kind: "exact"}, nil
	}

	match, err := r.findFuzzyMatch(ctx, input)
	if err != nil {
		return nil, helper.NewError("resolveOne", err)
	}
	if match != nil {
		alias := input.OriginalText
		if alias == "" {
			alias = input.NormalizedName
		}
		if err := r.store.AddEntityAlias(ctx, match.ID, alias); err != nil {
			return nil, helper.NewError("resolveOne", err)
		}
		match.Aliases = append(match.Aliases, alias)
		r.logger.Info("Fuzzy matched entity", "name", input.NormalizedName, "matchedId", match.ID, "matchedName", match.Name)
		return &resolution{entity: match, kind: "fuzzy"}, nil
	}

	created := &model.Entity{
		Name: input.NormalizedName,
		Type: input.Type,
	}
	if input.OriginalText != "" && model.NormalizeName(input.OriginalText) != model.NormalizeName(input.NormalizedName) {
		created.Aliases = model.StringSlice{input.OriginalText}
	}
	err = r.store.CreateEntity(ctx, created)
	if errors.Is(err, store.ErrDuplicateKey) {
		// Lost a create race outside our lock scope; the winner's row
		// is authoritative.
		existing, findErr := r.store.FindEntity(ctx, input.Type, input.NormalizedName)
		if findErr != nil {
			return nil, helper.NewError("resolveOne", findErr)
		}
		if existing == nil {
			return nil, helper.NewError("resolveOne", fmt.Errorf("entity %q vanished after duplicate key", input.NormalizedName))
		}
		return &resolution{entity: existing, kind: "exact"}, nil
	}
	if err != nil {
		return nil, helper.NewError("resolveOne", err)
	}
	return &resolution{entity: created, kind: "created"}, nil
}

// findFuzzyMatch scans same-type entities for the most similar name or
// alias at or above the configured threshold. Candidates are ordered by
// creation time so equal scores resolve deterministically to the oldest
// entity.
func (r *Resolver) findFuzzyMatch(ctx context.Context, input Input) (*model.Entity, error) {
	candidates, err := r.store.FindEntitiesByType(ctx, input.Type, r.config.CandidateLimit)
	if err != nil {
		return nil, err
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var best *model.Entity
	var bestScore float64
	for _, candidate := range candidates {
		score := Similarity(input.NormalizedName, candidate.Name)
		for _, alias := range candidate.Aliases {
			if aliasScore := Similarity(input.NormalizedName, alias); aliasScore > score {
				score = aliasScore
			}
		}
		if score >= r.config.FuzzyThreshold && score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best, nil
}
