package model

import (
	"github.com/google/uuid"
)

// OperationType identifies what a processor wants the merge engine to do.
type OperationType string

const (
	OpUpsertConnection OperationType = "upsert_connection"
	OpAddAttributes    OperationType = "add_attributes"
	OpAddDescriptive   OperationType = "add_descriptive"
	OpSetMenuItem      OperationType = "set_menu_item"
	OpGeneralPraise    OperationType = "general_praise"
)

// Operation is one entry of the ephemeral transaction log a processor
// emits. It is consumed by the merge engine and never persisted.
type Operation struct {
	Type             OperationType
	Mention          *ProcessedMention
	RestaurantID     uuid.UUID
	DishOrCategoryID uuid.UUID

	// Attribute payloads, depending on the operation type.
	Categories  []string
	Selective   []string
	Descriptive []string
	Restaurant  []string
	IsMenuItem  bool
}

// AttributeOutcome tags which kinds of attributes a mention carried.
type AttributeOutcome string

const (
	AttributeOutcomeSelectiveOnly   AttributeOutcome = "selective_only"
	AttributeOutcomeDescriptiveOnly AttributeOutcome = "descriptive_only"
	AttributeOutcomeMixed           AttributeOutcome = "mixed"
	AttributeOutcomeNone            AttributeOutcome = "none"
)

// ClassifyAttributes returns the outcome tag for a mention's dish
// attribute sets.
func ClassifyAttributes(attrs DishAttributes) AttributeOutcome {
	switch {
	case len(attrs.Selective) > 0 && len(attrs.Descriptive) > 0:
		return AttributeOutcomeMixed
	case len(attrs.Selective) > 0:
		return AttributeOutcomeSelectiveOnly
	case len(attrs.Descriptive) > 0:
		return AttributeOutcomeDescriptiveOnly
	default:
		return AttributeOutcomeNone
	}
}

// ComponentResult is the outcome of one processor run for one mention.
type ComponentResult struct {
	Component        string           `json:"component"`
	TempID           string           `json:"temp_id"`
	Success          bool             `json:"success"`
	Skipped          bool             `json:"skipped"`
	SkipReason       string           `json:"skip_reason,omitempty"`
	Operations       []Operation      `json:"-"`
	AttributeOutcome AttributeOutcome `json:"attribute_outcome,omitempty"`
	Metrics          map[string]int   `json:"metrics,omitempty"`
	Err              error            `json:"-"`
}

// BatchMetrics aggregates what a batch changed.
type BatchMetrics struct {
	ConnectionsCreated int `json:"connections_created"`
	ConnectionsUpdated int `json:"connections_updated"`
	MentionsCreated    int `json:"mentions_created"`
	EntitiesCreated    int `json:"entities_created"`
	EntitiesUpdated    int `json:"entities_updated"`
	ErrorsEncountered  int `json:"errors_encountered"`
}

// BatchError is one recorded, isolated failure inside a batch.
type BatchError struct {
	TempID    string `json:"temp_id,omitempty"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// BatchResult is the structured per-batch summary returned to the caller.
type BatchResult struct {
	BatchID                uuid.UUID          `json:"batch_id"`
	TotalMentionsProcessed int                `json:"total_mentions_processed"`
	ComponentResults       []*ComponentResult `json:"component_results"`
	OverallSuccess         bool               `json:"overall_success"`
	ProcessingTimeMs       int64              `json:"processing_time_ms"`
	Metrics                BatchMetrics       `json:"metrics"`
	Errors                 []BatchError       `json:"errors,omitempty"`
}
