// Package component routes each mention of a batch through the
// processors that apply to its shape and collects per-processor results.
// Processors only emit operations; persisting them is the merge engine's
// job.
package component

import (
	"context"
	"fmt"

	"github.com/dishgraph/dishgraph/core/resolver"
	"github.com/dishgraph/dishgraph/model"
)

// Processor handles one concern of mention processing.
type Processor interface {
	// Name identifies the processor in results and logs.
	Name() string
	// ShouldProcess reports whether the processor applies to the mention.
	ShouldProcess(mention *model.ProcessedMention) bool
	// Process emits the operations for the mention. Entity references are
	// looked up in the batch's resolved entities.
	Process(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (*model.ComponentResult, error)
}

// entityID looks up the resolved entity for a reference's temp id.
func entityID(entities *resolver.ResolvedEntities, ref *model.EntityRef) (*model.Entity, error) {
	entity, ok := entities.Entity(ref.TempID)
	if !ok {
		return nil, fmt.Errorf("no resolved entity for temp id %q", ref.TempID)
	}
	return entity, nil
}
