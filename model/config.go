package model

import (
	"fmt"
	"math"
	"time"
)

const weightEpsilon = 1e-6

// PipelineConfig configures batch processing behavior.
type PipelineConfig struct {
	EnableParallelProcessing bool `json:"enable_parallel_processing"`
	MaxConcurrentComponents  int  `json:"max_concurrent_components"`
	EnableMetrics            bool `json:"enable_metrics"`
	EnableErrorRecovery      bool `json:"enable_error_recovery"`

	Resolver   ResolverConfig     `json:"resolver"`
	Attributes AttributeConfig    `json:"attributes"`
	Merge      MergeConfig        `json:"merge"`
	Quality    QualityScoreConfig `json:"quality"`
}

// ResolverConfig configures entity resolution.
type ResolverConfig struct {
	// FuzzyThreshold is the minimum normalized string similarity for a
	// fuzzy match against an existing entity.
	FuzzyThreshold float64 `json:"fuzzy_threshold"`
	// CandidateLimit caps how many same-type entities are considered
	// during fuzzy matching.
	CandidateLimit int `json:"candidate_limit"`
}

// AttributeConfig configures selective/descriptive attribute processing.
type AttributeConfig struct {
	EnableSelectiveMatching    bool `json:"enable_selective_matching"`
	EnableDescriptiveAddition  bool `json:"enable_descriptive_addition"`
	RequireExactAttributeMatch bool `json:"require_exact_attribute_match"`
	MaxAttributesPerConnection int  `json:"max_attributes_per_connection"`
}

// MergeConfig configures the connection merge engine.
type MergeConfig struct {
	// RecentMentionWindow is the window over which RecentMentionCount is
	// recomputed from mention timestamps.
	RecentMentionWindow time.Duration `json:"recent_mention_window"`
	// MaxTopMentions bounds a connection's top-mention list.
	MaxTopMentions int `json:"max_top_mentions"`
	// ActivityModerate and ActivityHigh are the recent-mention-count
	// thresholds for the moderate and high activity tiers. Anything
	// above zero but below moderate is low; zero is dormant.
	ActivityModerate int `json:"activity_moderate"`
	ActivityHigh     int `json:"activity_high"`
	// TopMentionHalfLifeDays controls how fast a mention's ranking score
	// decays inside the top-mention list.
	TopMentionHalfLifeDays float64 `json:"top_mention_half_life_days"`
}

// QualityScoreConfig configures the quality score engine.
type QualityScoreConfig struct {
	// Food score weights; must sum to 1.
	ConnectionStrengthWeight float64 `json:"connection_strength_weight"`
	RestaurantContextWeight  float64 `json:"restaurant_context_weight"`

	// Connection strength term weights; must sum to 1.
	MentionDecayWeight float64 `json:"mention_decay_weight"`
	UpvoteDecayWeight  float64 `json:"upvote_decay_weight"`

	// Decay windows (half-lives) in days, keyed to days since last mention.
	MentionDecayWindowDays float64 `json:"mention_decay_window_days"`
	UpvoteDecayWindowDays  float64 `json:"upvote_decay_window_days"`

	// Volume saturation constants: a count of x contributes x/(x+k).
	MentionSaturation float64 `json:"mention_saturation"`
	UpvoteSaturation  float64 `json:"upvote_saturation"`

	// Restaurant score weights; must sum to 1.
	TopFoodWeight     float64 `json:"top_food_weight"`
	ConsistencyWeight float64 `json:"consistency_weight"`
	// TopFoodCount is N for "mean of top N food scores" (3-5).
	TopFoodCount int `json:"top_food_count"`

	// ScaleMax bounds all scores to [0, ScaleMax].
	ScaleMax float64 `json:"scale_max"`

	// Batch recomputation controls.
	BatchSize     int           `json:"batch_size"`
	MaxConcurrent int           `json:"max_concurrent"`
	BatchTimeout  time.Duration `json:"batch_timeout"`
}

// DefaultPipelineConfig returns the default processing configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		EnableParallelProcessing: true,
		MaxConcurrentComponents:  8,
		EnableMetrics:            true,
		EnableErrorRecovery:      true,
		Resolver:                 DefaultResolverConfig(),
		Attributes:               DefaultAttributeConfig(),
		Merge:                    DefaultMergeConfig(),
		Quality:                  DefaultQualityScoreConfig(),
	}
}

// DefaultResolverConfig returns the default resolution configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		FuzzyThreshold: 0.85,
		CandidateLimit: 500,
	}
}

// DefaultAttributeConfig returns the default attribute configuration.
func DefaultAttributeConfig() AttributeConfig {
	return AttributeConfig{
		EnableSelectiveMatching:    true,
		EnableDescriptiveAddition:  true,
		RequireExactAttributeMatch: true,
		MaxAttributesPerConnection: 10,
	}
}

// DefaultMergeConfig returns the default merge configuration.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		RecentMentionWindow:    30 * 24 * time.Hour,
		MaxTopMentions:         5,
		ActivityModerate:       3,
		ActivityHigh:           10,
		TopMentionHalfLifeDays: 90,
	}
}

// DefaultQualityScoreConfig returns the default scoring configuration.
func DefaultQualityScoreConfig() QualityScoreConfig {
	return QualityScoreConfig{
		ConnectionStrengthWeight: 0.87,
		RestaurantContextWeight:  0.13,
		MentionDecayWeight:       0.60,
		UpvoteDecayWeight:        0.40,
		MentionDecayWindowDays:   180,
		UpvoteDecayWindowDays:    120,
		MentionSaturation:        10,
		UpvoteSaturation:         100,
		TopFoodWeight:            0.80,
		ConsistencyWeight:        0.20,
		TopFoodCount:             3,
		ScaleMax:                 100,
		BatchSize:                50,
		MaxConcurrent:            10,
		BatchTimeout:             30 * time.Second,
	}
}

// Validate checks the weight and bound invariants of the configuration.
func (c *QualityScoreConfig) Validate() error {
	if math.Abs(c.ConnectionStrengthWeight+c.RestaurantContextWeight-1) > weightEpsilon {
		return fmt.Errorf("connection strength and restaurant context weights must sum to 1, got %v", c.ConnectionStrengthWeight+c.RestaurantContextWeight)
	}
	if c.ConnectionStrengthWeight < 0.85 || c.ConnectionStrengthWeight > 0.90 {
		return fmt.Errorf("connection strength weight must be in [0.85, 0.90], got %v", c.ConnectionStrengthWeight)
	}
	if math.Abs(c.MentionDecayWeight+c.UpvoteDecayWeight-1) > weightEpsilon {
		return fmt.Errorf("mention and upvote decay weights must sum to 1, got %v", c.MentionDecayWeight+c.UpvoteDecayWeight)
	}
	if math.Abs(c.TopFoodWeight+c.ConsistencyWeight-1) > weightEpsilon {
		return fmt.Errorf("top food and consistency weights must sum to 1, got %v", c.TopFoodWeight+c.ConsistencyWeight)
	}
	if c.TopFoodCount < 3 || c.TopFoodCount > 5 {
		return fmt.Errorf("top food count must be in [3, 5], got %v", c.TopFoodCount)
	}
	if c.MentionDecayWindowDays <= 0 || c.UpvoteDecayWindowDays <= 0 {
		return fmt.Errorf("decay windows must be positive")
	}
	if c.ScaleMax <= 0 {
		return fmt.Errorf("scale max must be positive, got %v", c.ScaleMax)
	}
	if c.BatchSize <= 0 || c.MaxConcurrent <= 0 || c.BatchTimeout <= 0 {
		return fmt.Errorf("batch size, concurrency and timeout must be positive")
	}
	return nil
}

// Validate checks the full pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.MaxConcurrentComponents <= 0 {
		return fmt.Errorf("max concurrent components must be positive, got %v", c.MaxConcurrentComponents)
	}
	if c.Resolver.FuzzyThreshold <= 0 || c.Resolver.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be in (0, 1], got %v", c.Resolver.FuzzyThreshold)
	}
	if c.Attributes.MaxAttributesPerConnection <= 0 {
		return fmt.Errorf("max attributes per connection must be positive, got %v", c.Attributes.MaxAttributesPerConnection)
	}
	if c.Merge.MaxTopMentions <= 0 {
		return fmt.Errorf("max top mentions must be positive, got %v", c.Merge.MaxTopMentions)
	}
	if c.Merge.RecentMentionWindow <= 0 {
		return fmt.Errorf("recent mention window must be positive, got %v", c.Merge.RecentMentionWindow)
	}
	return c.Quality.Validate()
}
