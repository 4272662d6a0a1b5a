package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dishgraph/dishgraph/model"
	"github.com/google/uuid"
)

// Memory is a mutex-guarded in-memory Store. It mirrors the uniqueness
// constraints of the PostgreSQL implementation so concurrency behavior
// (duplicate-key detection, create races) can be exercised in-process.
type Memory struct {
	mu sync.RWMutex

	entities      map[uuid.UUID]*model.Entity
	entityByIdent map[string]uuid.UUID // (type, normalized name or alias) -> id

	connections map[uuid.UUID]*model.Connection
	connByTuple map[string]uuid.UUID   // (restaurant, dish, signature) -> id
	connsByPair map[string][]uuid.UUID // (restaurant, dish) -> ids

	mentions         map[uuid.UUID]*model.Mention
	mentionBySource  map[string]uuid.UUID // (source type, source id) -> id
	mentionsByConnID map[uuid.UUID][]uuid.UUID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entities:         map[uuid.UUID]*model.Entity{},
		entityByIdent:    map[string]uuid.UUID{},
		connections:      map[uuid.UUID]*model.Connection{},
		connByTuple:      map[string]uuid.UUID{},
		connsByPair:      map[string][]uuid.UUID{},
		mentions:         map[uuid.UUID]*model.Mention{},
		mentionBySource:  map[string]uuid.UUID{},
		mentionsByConnID: map[uuid.UUID][]uuid.UUID{},
	}
}

func identKey(entityType model.EntityType, name string) string {
	return string(entityType) + "\x00" + model.NormalizeName(name)
}

func tupleKey(restaurantID, dishID uuid.UUID, signature string) string {
	return restaurantID.String() + "\x00" + dishID.String() + "\x00" + signature
}

func pairKey(restaurantID, dishID uuid.UUID) string {
	return restaurantID.String() + "\x00" + dishID.String()
}

func sourceKey(sourceType model.SourceType, sourceID string) string {
	return string(sourceType) + "\x00" + sourceID
}

func cloneEntity(e *model.Entity) *model.Entity {
	clone := *e
	clone.Aliases = append(model.StringSlice(nil), e.Aliases...)
	return &clone
}

func cloneMention(m *model.Mention) *model.Mention {
	clone := *m
	return &clone
}

// FindEntity looks up an entity by normalized name or alias.
func (s *Memory) FindEntity(ctx context.Context, entityType model.EntityType, nameOrAlias string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entityByIdent[identKey(entityType, nameOrAlias)]
	if !ok {
		return nil, nil
	}
	return cloneEntity(s.entities[id]), nil
}

// FindEntitiesByType lists up to limit entities of the given type.
func (s *Memory) FindEntitiesByType(ctx context.Context, entityType model.EntityType, limit int) ([]*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entities []*model.Entity
	for _, e := range s.entities {
		if e.Type != entityType {
			continue
		}
		entities = append(entities, cloneEntity(e))
		if limit > 0 && len(entities) >= limit {
			break
		}
	}
	return entities, nil
}

// CreateEntity inserts a new entity, enforcing (type, normalized name)
// uniqueness across names and aliases.
func (s *Memory) CreateEntity(ctx context.Context, entity *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identKey(entity.Type, entity.Name)
	if _, exists := s.entityByIdent[key]; exists {
		return ErrDuplicateKey
	}

	stored := cloneEntity(entity)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	s.entities[stored.ID] = stored
	s.entityByIdent[key] = stored.ID
	for _, alias := range stored.Aliases {
		s.entityByIdent[identKey(stored.Type, alias)] = stored.ID
	}

	entity.ID = stored.ID
	entity.CreatedAt = stored.CreatedAt
	return nil
}

// AddEntityAlias attaches an alias to an existing entity.
func (s *Memory) AddEntityAlias(ctx context.Context, id uuid.UUID, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		return ErrNotFound
	}
	if entity.Matches(alias) {
		return nil
	}

	entity.Aliases = append(entity.Aliases, alias)
	s.entityByIdent[identKey(entity.Type, alias)] = id
	return nil
}

// FindConnection looks up a connection by its identity tuple.
func (s *Memory) FindConnection(ctx context.Context, restaurantID, dishOrCategoryID uuid.UUID, signature string) (*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.connByTuple[tupleKey(restaurantID, dishOrCategoryID, signature)]
	if !ok {
		return nil, nil
	}
	return s.connections[id].Clone(), nil
}

// FindConnectionsForPair lists every connection of a restaurant-dish pair.
func (s *Memory) FindConnectionsForPair(ctx context.Context, restaurantID, dishOrCategoryID uuid.UUID) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.connsByPair[pairKey(restaurantID, dishOrCategoryID)]
	connections := make([]*model.Connection, 0, len(ids))
	for _, id := range ids {
		connections = append(connections, s.connections[id].Clone())
	}
	return connections, nil
}

// GetConnection fetches a connection by id.
func (s *Memory) GetConnection(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connection, ok := s.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	return connection.Clone(), nil
}

// CreateConnection inserts a new connection, enforcing tuple uniqueness.
func (s *Memory) CreateConnection(ctx context.Context, connection *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tupleKey(connection.RestaurantID, connection.DishOrCategoryID, connection.SelectiveSignature())
	if _, exists := s.connByTuple[key]; exists {
		return ErrDuplicateKey
	}

	stored := connection.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.connections[stored.ID] = stored
	s.connByTuple[key] = stored.ID
	pk := pairKey(stored.RestaurantID, stored.DishOrCategoryID)
	s.connsByPair[pk] = append(s.connsByPair[pk], stored.ID)

	connection.ID = stored.ID
	connection.CreatedAt = stored.CreatedAt
	connection.UpdatedAt = stored.UpdatedAt
	return nil
}

// UpdateConnection overwrites attributes and metrics of a connection.
// The identity tuple (restaurant, dish, signature) is immutable.
func (s *Memory) UpdateConnection(ctx context.Context, connection *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.connections[connection.ID]
	if !ok {
		return ErrNotFound
	}

	stored := connection.Clone()
	stored.RestaurantID = existing.RestaurantID
	stored.DishOrCategoryID = existing.DishOrCategoryID
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	s.connections[connection.ID] = stored
	connection.UpdatedAt = stored.UpdatedAt
	return nil
}

// UpdateQualityScore stores a freshly computed quality score.
func (s *Memory) UpdateQualityScore(ctx context.Context, id uuid.UUID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	connection, ok := s.connections[id]
	if !ok {
		return ErrNotFound
	}
	connection.QualityScore = &score
	connection.UpdatedAt = time.Now().UTC()
	return nil
}

// ListConnectionsForRestaurant lists every connection of a restaurant.
func (s *Memory) ListConnectionsForRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var connections []*model.Connection
	for _, c := range s.connections {
		if c.RestaurantID == restaurantID {
			connections = append(connections, c.Clone())
		}
	}
	sort.Slice(connections, func(i, j int) bool {
		return connections[i].CreatedAt.Before(connections[j].CreatedAt)
	})
	return connections, nil
}

// CreateMentionRecord inserts a mention unless its source is already known.
func (s *Memory) CreateMentionRecord(ctx context.Context, mention *model.Mention) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sourceKey(mention.SourceType, mention.SourceID)
	if _, exists := s.mentionBySource[key]; exists {
		return false, nil
	}

	stored := cloneMention(mention)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}

	s.mentions[stored.ID] = stored
	s.mentionBySource[key] = stored.ID
	s.mentionsByConnID[stored.ConnectionID] = append(s.mentionsByConnID[stored.ConnectionID], stored.ID)

	mention.ID = stored.ID
	return true, nil
}

// ListMentionsForConnection lists the mentions of a connection, newest first.
func (s *Memory) ListMentionsForConnection(ctx context.Context, connectionID uuid.UUID) ([]*model.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.mentionsByConnID[connectionID]
	mentions := make([]*model.Mention, 0, len(ids))
	for _, id := range ids {
		mentions = append(mentions, cloneMention(s.mentions[id]))
	}
	sort.Slice(mentions, func(i, j int) bool {
		return mentions[i].CreatedAt.After(mentions[j].CreatedAt)
	})
	return mentions, nil
}
