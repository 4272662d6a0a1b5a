package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dishgraph/dishgraph/helper"
	"github.com/google/uuid"
)

// ActivityLevel is a tiered classification of recent mention volume.
// It is always derived from RecentMentionCount, never stored independently.
type ActivityLevel string

const (
	ActivityLevelDormant  ActivityLevel = "dormant"
	ActivityLevelLow      ActivityLevel = "low"
	ActivityLevelModerate ActivityLevel = "moderate"
	ActivityLevelHigh     ActivityLevel = "high"
)

// TopMention is one entry of a connection's bounded best-mentions list.
type TopMention struct {
	MentionID uuid.UUID `json:"mention_id"`
	SourceID  string    `json:"source_id"`
	Excerpt   string    `json:"excerpt"`
	Upvotes   int       `json:"upvotes"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// ConnectionAttributes holds the accumulated attributes of a connection.
// Selective attributes are part of the connection's identity (they
// distinguish dish variants); the other sets are additive.
type ConnectionAttributes struct {
	Categories  StringSlice `json:"categories,omitempty"`
	Selective   StringSlice `json:"selective,omitempty"`
	Descriptive StringSlice `json:"descriptive,omitempty"`
	Restaurant  StringSlice `json:"restaurant,omitempty"`
	IsMenuItem  bool        `json:"is_menu_item"`
}

// Value implements the driver.Valuer interface for database storage
func (a ConnectionAttributes) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *ConnectionAttributes) Scan(value interface{}) error {
	if value == nil {
		*a = ConnectionAttributes{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
	return json.Unmarshal(b, a)
}

// ConnectionMetrics holds the recency-aware metrics of a connection.
type ConnectionMetrics struct {
	MentionCount       int           `json:"mention_count"`
	TotalUpvotes       int           `json:"total_upvotes"`
	RecentMentionCount int           `json:"recent_mention_count"`
	LastMentionedAt    time.Time     `json:"last_mentioned_at"`
	ActivityLevel      ActivityLevel `json:"activity_level"`
	TopMentions        []TopMention  `json:"top_mentions,omitempty"`
}

// Value implements the driver.Valuer interface for database storage
func (m ConnectionMetrics) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *ConnectionMetrics) Scan(value interface{}) error {
	if value == nil {
		*m = ConnectionMetrics{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
	return json.Unmarshal(b, m)
}

// Connection is a scored association between one restaurant and one
// dish or category. At most one connection exists per
// (restaurant, dish, selective signature) tuple.
type Connection struct {
	ID               uuid.UUID            `json:"id"`
	RestaurantID     uuid.UUID            `json:"restaurant_id"`
	DishOrCategoryID uuid.UUID            `json:"dish_or_category_id"`
	Attributes       ConnectionAttributes `json:"attributes"`
	Metrics          ConnectionMetrics    `json:"metrics"`
	QualityScore     *float64             `json:"quality_score,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// SelectiveSignature canonicalizes a selective attribute set into a
// comparable key: lower-cased, trimmed, sorted and joined with "|".
// Two mentions merge into the same connection only when their
// signatures are equal.
func SelectiveSignature(selective []string) string {
	if len(selective) == 0 {
		return ""
	}
	normalized := make([]string, 0, len(selective))
	for _, s := range selective {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "|")
}

// SelectiveSignature returns the signature of the connection's own
// selective attribute set.
func (c *Connection) SelectiveSignature() string {
	return SelectiveSignature(c.Attributes.Selective)
}

// Clone returns a deep copy of the connection. Stores hand out clones so
// callers can mutate results without racing each other.
func (c *Connection) Clone() *Connection {
	clone := *c
	clone.Attributes.Categories = append(StringSlice(nil), c.Attributes.Categories...)
	clone.Attributes.Selective = append(StringSlice(nil), c.Attributes.Selective...)
	clone.Attributes.Descriptive = append(StringSlice(nil), c.Attributes.Descriptive...)
	clone.Attributes.Restaurant = append(StringSlice(nil), c.Attributes.Restaurant...)
	clone.Metrics.TopMentions = append([]TopMention(nil), c.Metrics.TopMentions...)
	if c.QualityScore != nil {
		score := *c.QualityScore
		clone.QualityScore = &score
	}
	return &clone
}
