package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType classifies a canonical entity.
type EntityType string

const (
	EntityTypeRestaurant          EntityType = "restaurant"
	EntityTypeDishOrCategory      EntityType = "dish_or_category"
	EntityTypeFoodAttribute       EntityType = "food_attribute"
	EntityTypeRestaurantAttribute EntityType = "restaurant_attribute"
)

// Valid reports whether the entity type is one of the known types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeRestaurant, EntityTypeDishOrCategory, EntityTypeFoodAttribute, EntityTypeRestaurantAttribute:
		return true
	}
	return false
}

// Entity represents a canonical restaurant, dish/category or attribute record.
// There is exactly one row per (type, normalized identity); alternate spellings
// accumulate as aliases instead of forking into new rows.
type Entity struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Type      EntityType  `json:"entity_type"`
	Aliases   StringSlice `json:"aliases,omitempty"`
	Metadata  Metadata    `json:"metadata,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NormalizeName canonicalizes an entity name for identity comparison:
// lower case, trimmed, inner whitespace collapsed.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	return strings.Join(strings.Fields(name), " ")
}

// Matches reports whether the given name matches the entity's canonical
// name or one of its aliases after normalization.
func (e *Entity) Matches(name string) bool {
	normalized := NormalizeName(name)
	if normalized == "" {
		return false
	}
	if NormalizeName(e.Name) == normalized {
		return true
	}
	for _, alias := range e.Aliases {
		if NormalizeName(alias) == normalized {
			return true
		}
	}
	return false
}

// HasAlias reports whether the entity already carries the alias (normalized).
func (e *Entity) HasAlias(alias string) bool {
	normalized := NormalizeName(alias)
	for _, a := range e.Aliases {
		if NormalizeName(a) == normalized {
			return true
		}
	}
	return false
}
