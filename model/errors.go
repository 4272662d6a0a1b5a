package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MissingIdentifierError reports a resolver input without a usable
// normalized name. Recoverable: the tempId is excluded from the result
// map and the batch continues.
type MissingIdentifierError struct {
	TempID     string
	EntityType EntityType
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("missing identifier for %v input %q", e.EntityType, e.TempID)
}

// ComponentProcessingError is a processor-level failure. It is captured
// into the component's result and never propagated past the router.
type ComponentProcessingError struct {
	ComponentName string
	Operation     string
	Message       string
	Err           error
}

func (e *ComponentProcessingError) Error() string {
	return fmt.Sprintf("component %v failed during %v: %v", e.ComponentName, e.Operation, e.Message)
}

func (e *ComponentProcessingError) Unwrap() error {
	return e.Err
}

// AttributeProcessingError specializes ComponentProcessingError for
// attribute handling, tagging whether the selective or descriptive
// pass failed.
type AttributeProcessingError struct {
	ComponentProcessingError
	AttributeKind string // "selective" or "descriptive"
}

func (e *AttributeProcessingError) Error() string {
	return fmt.Sprintf("%v attribute processing failed in %v: %v", e.AttributeKind, e.ComponentName, e.Message)
}

// DuplicateConnectionRaceError marks a create that lost the race for a
// (restaurant, dish, selective signature) tuple. Internal: the merge
// engine resolves it by merging into the earlier row and logs it as
// recovered; it is never surfaced to callers.
type DuplicateConnectionRaceError struct {
	RestaurantID     uuid.UUID
	DishOrCategoryID uuid.UUID
	Signature        string
}

func (e *DuplicateConnectionRaceError) Error() string {
	return fmt.Sprintf("duplicate connection race for (%v, %v, %q)", e.RestaurantID, e.DishOrCategoryID, e.Signature)
}

// QualityScoreTimeoutError marks a score calculation that did not finish
// inside the batch timeout. Recorded per connection in the update
// result's errors map.
type QualityScoreTimeoutError struct {
	ConnectionID uuid.UUID
	Timeout      time.Duration
}

func (e *QualityScoreTimeoutError) Error() string {
	return fmt.Sprintf("quality score calculation for connection %v timed out after %v", e.ConnectionID, e.Timeout)
}
