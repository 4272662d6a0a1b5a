package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies where a mention was excerpted from.
type SourceType string

const (
	SourceTypePost    SourceType = "post"
	SourceTypeComment SourceType = "comment"
)

// Mention is one persisted social excerpt attached to a connection.
// Mentions are append-only and deduplicated by (source type, source id).
type Mention struct {
	ID           uuid.UUID  `json:"id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	SourceType   SourceType `json:"source_type"`
	SourceID     string     `json:"source_id"`
	SourceURL    string     `json:"source_url,omitempty"`
	Subreddit    string     `json:"subreddit,omitempty"`
	Excerpt      string     `json:"excerpt"`
	Author       string     `json:"author,omitempty"`
	Upvotes      int        `json:"upvotes"`
	CreatedAt    time.Time  `json:"created_at"`
}

// EntityRef references an entity inside a batch before resolution.
type EntityRef struct {
	TempID         string `json:"temp_id"`
	NormalizedName string `json:"normalized_name"`
	OriginalText   string `json:"original_text,omitempty"`
}

// DishRef references a dish or category inside a batch before resolution.
type DishRef struct {
	EntityRef
	Categories      StringSlice `json:"categories,omitempty"`
	PrimaryCategory string      `json:"primary_category,omitempty"`
}

// DishAttributes splits dish attributes by how they behave during merging.
type DishAttributes struct {
	Selective   StringSlice `json:"selective,omitempty"`
	Descriptive StringSlice `json:"descriptive,omitempty"`
}

// MentionShape is the strict tagged variant of a processed mention,
// computed once at ingestion instead of branching on optional fields
// throughout the pipeline.
type MentionShape string

const (
	ShapeFullPair       MentionShape = "full-pair"
	ShapeRestaurantOnly MentionShape = "restaurant-only"
	ShapeDishOnly       MentionShape = "dish-only"
	ShapeAttributeOnly  MentionShape = "attribute-only"
)

// ProcessedMention is one validated, sanitized batch input produced by the
// upstream extraction step. The pipeline performs no re-sanitization.
type ProcessedMention struct {
	TempID               string         `json:"temp_id"`
	Restaurant           *EntityRef     `json:"restaurant,omitempty"`
	DishOrCategory       *DishRef       `json:"dish_or_category,omitempty"`
	RestaurantAttributes StringSlice    `json:"restaurant_attributes,omitempty"`
	DishAttributes       DishAttributes `json:"dish_attributes"`
	IsMenuItem           bool           `json:"is_menu_item"`
	GeneralPraise        bool           `json:"general_praise"`
	SourceType           SourceType     `json:"source_type"`
	SourceID             string         `json:"source_id"`
	SourceURL            string         `json:"source_url,omitempty"`
	Subreddit            string         `json:"subreddit,omitempty"`
	Excerpt              string         `json:"excerpt"`
	Author               string         `json:"author,omitempty"`
	Upvotes              int            `json:"upvotes"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Shape returns the mention's tagged variant.
func (m *ProcessedMention) Shape() MentionShape {
	hasRestaurant := m.Restaurant != nil && m.Restaurant.NormalizedName != ""
	hasDish := m.DishOrCategory != nil && m.DishOrCategory.NormalizedName != ""

	switch {
	case hasRestaurant && hasDish:
		return ShapeFullPair
	case hasRestaurant:
		return ShapeRestaurantOnly
	case hasDish:
		return ShapeDishOnly
	default:
		return ShapeAttributeOnly
	}
}

// DedupKey is the identity of the mention's source, used to drop
// resubmissions of the same excerpt.
func (m *ProcessedMention) DedupKey() string {
	return string(m.SourceType) + ":" + m.SourceID
}

// Record builds the persistable mention row for a connection.
func (m *ProcessedMention) Record(connectionID uuid.UUID) *Mention {
	return &Mention{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		SourceType:   m.SourceType,
		SourceID:     m.SourceID,
		SourceURL:    m.SourceURL,
		Subreddit:    m.Subreddit,
		Excerpt:      m.Excerpt,
		Author:       m.Author,
		Upvotes:      m.Upvotes,
		CreatedAt:    m.CreatedAt,
	}
}
