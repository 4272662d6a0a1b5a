// Package store defines the storage collaborator contract of the
// processing core. Every call is atomic at single-row granularity; no
// cross-step transaction is assumed. The package also ships an
// in-memory implementation used by unit tests and by callers that do
// not need persistence.
package store

import (
	"context"
	"errors"

	"github.com/dishgraph/dishgraph/model"
	"github.com/google/uuid"
)

// ErrDuplicateKey is returned by create operations when a uniqueness
// constraint (entity identity, connection tuple, mention source) is
// already taken. Callers recover by re-reading the earlier row.
var ErrDuplicateKey = errors.New("store: duplicate key")

// ErrNotFound is returned by lookups addressing a missing row by id.
var ErrNotFound = errors.New("store: not found")

// EntityStore persists canonical entities.
type EntityStore interface {
	// FindEntity looks up an entity of the given type by normalized name
	// or alias. Returns (nil, nil) when no entity matches.
	FindEntity(ctx context.Context, entityType model.EntityType, nameOrAlias string) (*model.Entity, error)
	// FindEntitiesByType lists up to limit entities of the given type,
	// used as fuzzy-match candidates.
	FindEntitiesByType(ctx context.Context, entityType model.EntityType, limit int) ([]*model.Entity, error)
	// CreateEntity inserts a new entity. Returns ErrDuplicateKey when an
	// entity with the same (type, normalized name) already exists.
	CreateEntity(ctx context.Context, entity *model.Entity) error
	// AddEntityAlias attaches an alias to an existing entity. Adding an
	// alias the entity already carries is a no-op.
	AddEntityAlias(ctx context.Context, id uuid.UUID, alias string) error
}

// ConnectionStore persists restaurant-dish connections.
type ConnectionStore interface {
	// FindConnection looks up the connection for a (restaurant, dish,
	// selective signature) tuple. Returns (nil, nil) when absent.
	FindConnection(ctx context.Context, restaurantID, dishOrCategoryID uuid.UUID, signature string) (*model.Connection, error)
	// FindConnectionsForPair lists every connection (all signatures) of a
	// restaurant-dish pair.
	FindConnectionsForPair(ctx context.Context, restaurantID, dishOrCategoryID uuid.UUID) ([]*model.Connection, error)
	// GetConnection fetches a connection by id. Returns ErrNotFound when
	// absent.
	GetConnection(ctx context.Context, id uuid.UUID) (*model.Connection, error)
	// CreateConnection inserts a new connection. Returns ErrDuplicateKey
	// when the (restaurant, dish, signature) tuple is already taken.
	CreateConnection(ctx context.Context, connection *model.Connection) error
	// UpdateConnection overwrites the attributes and metrics of an
	// existing connection.
	UpdateConnection(ctx context.Context, connection *model.Connection) error
	// UpdateQualityScore stores a freshly computed quality score.
	UpdateQualityScore(ctx context.Context, id uuid.UUID, score float64) error
	// ListConnectionsForRestaurant lists every connection of a restaurant.
	ListConnectionsForRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]*model.Connection, error)
}

// MentionStore persists mention rows.
type MentionStore interface {
	// CreateMentionRecord inserts a mention unless one with the same
	// (source type, source id) already exists. Reports whether a row was
	// created.
	CreateMentionRecord(ctx context.Context, mention *model.Mention) (bool, error)
	// ListMentionsForConnection lists the mentions pointing at a
	// connection, newest first.
	ListMentionsForConnection(ctx context.Context, connectionID uuid.UUID) ([]*model.Mention, error)
}

// Store composes the full storage contract.
type Store interface {
	EntityStore
	ConnectionStore
	MentionStore
}
