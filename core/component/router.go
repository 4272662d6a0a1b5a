package component

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dishgraph/dishgraph/core/resolver"
	"github.com/dishgraph/dishgraph/model"
)

// Router dispatches mentions to processors in a fixed order. The
// connection upsert runs first so attribute and flag operations of the
// same mention always find their connection.
type Router struct {
	processors []Processor
	logger     *slog.Logger
}

// NewRouter creates a router with the standard processor set.
func NewRouter(config model.AttributeConfig, logger *slog.Logger) *Router {
	return &Router{
		processors: []Processor{
			&ConnectionProcessor{},
			&MenuItemProcessor{},
			&AttributeProcessor{Config: config},
			&DescriptiveProcessor{Config: config},
			&GeneralPraiseProcessor{},
			&DishOnlyProcessor{},
		},
		logger: logger,
	}
}

// Route returns the processors that apply to the mention, in dispatch order.
func (r *Router) Route(mention *model.ProcessedMention) []Processor {
	var applicable []Processor
	for _, p := range r.processors {
		if p.ShouldProcess(mention) {
			applicable = append(applicable, p)
		}
	}
	return applicable
}

// ProcessMention runs every applicable processor for one mention. A
// processor failure or panic is captured into its result and never
// interrupts the remaining processors. A mention no processor applies to
// yields a single skipped result so the batch accounts for it.
func (r *Router) ProcessMention(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) []*model.ComponentResult {
	applicable := r.Route(mention)
	if len(applicable) == 0 {
		return []*model.ComponentResult{{
			Component:  "router",
			TempID:     mention.TempID,
			Success:    true,
			Skipped:    true,
			SkipReason: fmt.Sprintf("no component applies to shape %v", mention.Shape()),
		}}
	}

	results := make([]*model.ComponentResult, 0, len(applicable))
	for _, p := range applicable {
		result := r.runProcessor(ctx, p, mention, entities)
		results = append(results, result)
	}
	return results
}

// runProcessor executes one processor, converting errors and panics into
// a failed result.
func (r *Router) runProcessor(ctx context.Context, p Processor, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (result *model.ComponentResult) {
	defer func() {
		if rec := recover(); rec != nil {
			err := &model.ComponentProcessingError{
				ComponentName: p.Name(),
				Operation:     "Process",
				Message:       fmt.Sprintf("panic: %v", rec),
			}
			r.logger.Error("Component panicked", "component", p.Name(), "tempId", mention.TempID, "panic", rec)
			result = &model.ComponentResult{Component: p.Name(), TempID: mention.TempID, Err: err}
		}
	}()

	result, err := p.Process(ctx, mention, entities)
	if err != nil {
		r.logger.Error("Component failed", "component", p.Name(), "tempId", mention.TempID, "error", err)
		return &model.ComponentResult{Component: p.Name(), TempID: mention.TempID, Err: err}
	}
	return result
}
