// Package database implements the storage contract on PostgreSQL. Each
// table has its own handler built on SQL functions loaded from embedded
// files; Store composes the handlers behind the store.Store interface
// and translates driver errors into the store package's sentinels.
package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	dishsql "github.com/dishgraph/dishgraph/sql"
	"github.com/dishgraph/dishgraph/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db          *helper.Database
	entities    EntitiesDBHandlerFunctions
	connections ConnectionsDBHandlerFunctions
	mentions    MentionsDBHandlerFunctions
}

// NewStore connects the handlers for all tables. If force is true, the
// SQL functions are reloaded even if they already exist.
func NewStore(db *helper.Database, force bool) (*Store, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", errors.New("database connection is nil"))
	}

	err := dishsql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("init database", err)
	}

	entities, err := NewEntitiesDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("new entities handler", err)
	}
	connections, err := NewConnectionsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("new connections handler", err)
	}
	mentions, err := NewMentionsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("new mentions handler", err)
	}

	return &Store{
		db:          db,
		entities:    entities,
		connections: connections,
		mentions:    mentions,
	}, nil
}

// isDuplicateKey reports whether the error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isNotFound reports whether the error is a missing row, either as no
// scanned rows or as a raised not-found exception in a SQL function.
func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "P0001" && strings.Contains(pqErr.Message, "not found")
}

// FindEntity looks up an entity by normalized name or alias.
func (s *Store) FindEntity(ctx context.Context, entityType model.EntityType, nameOrAlias string) (*model.Entity, error) {
	entity, err := s.entities.SelectEntityByIdentity(string(entityType), nameOrAlias)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// FindEntitiesByType lists up to limit entities of the given type.
func (s *Store) FindEntitiesByType(ctx context.Context, entityType model.EntityType, limit int) ([]*model.Entity, error) {
	return s.entities.SelectEntitiesByType(string(entityType), limit)
}

// CreateEntity inserts a new entity.
func (s *Store) CreateEntity(ctx context.Context, entity *model.Entity) error {
	err := s.entities.InsertEntity(entity)
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return err
}

// AddEntityAlias attaches an alias to an existing entity. An alias
// already claimed by another entity of the same type is left in place.
func (s *Store) AddEntityAlias(ctx context.Context, id uuid.UUID, alias string) error {
	err := s.entities.AddEntityAlias(id, alias)
	if isNotFound(err) {
		return store.ErrNotFound
	}
	return err
}

// FindConnection looks up a connection by its identity tuple.
func (s *Store) FindConnection(ctx context.Context, restaurantID, dishOrCategoryID uuid.UUID, signature string) (*model.Connection, error) {
	connection, err := s.connections.SelectConnectionByTuple(restaurantID, dishOrCategoryID, signature)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return connection, nil
}

// FindConnectionsForPair lists every connection of a restaurant-dish pair.
func (s *Store) FindConnectionsForPair(ctx context.Context, restaurantID, dishOrCategoryID uuid.UUID) ([]*model.Connection, error) {
	return s.connections.SelectConnectionsByPair(restaurantID, dishOrCategoryID)
}

// GetConnection fetches a connection by id.
func (s *Store) GetConnection(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	connection, err := s.connections.SelectConnection(id)
	if isNotFound(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return connection, nil
}

// CreateConnection inserts a new connection.
func (s *Store) CreateConnection(ctx context.Context, connection *model.Connection) error {
	err := s.connections.InsertConnection(connection)
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return err
}

// UpdateConnection overwrites attributes and metrics of a connection.
func (s *Store) UpdateConnection(ctx context.Context, connection *model.Connection) error {
	err := s.connections.UpdateConnection(connection)
	if isNotFound(err) {
		return store.ErrNotFound
	}
	return err
}

// UpdateQualityScore stores a freshly computed quality score.
func (s *Store) UpdateQualityScore(ctx context.Context, id uuid.UUID, score float64) error {
	err := s.connections.UpdateQualityScore(id, score)
	if isNotFound(err) {
		return store.ErrNotFound
	}
	return err
}

// ListConnectionsForRestaurant lists every connection of a restaurant.
func (s *Store) ListConnectionsForRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]*model.Connection, error) {
	return s.connections.SelectConnectionsByRestaurant(restaurantID)
}

// CreateMentionRecord inserts a mention unless its source is already known.
func (s *Store) CreateMentionRecord(ctx context.Context, mention *model.Mention) (bool, error) {
	return s.mentions.InsertMention(mention)
}

// ListMentionsForConnection lists the mentions of a connection, newest first.
func (s *Store) ListMentionsForConnection(ctx context.Context, connectionID uuid.UUID) ([]*model.Mention, error) {
	return s.mentions.SelectMentionsByConnection(connectionID)
}
