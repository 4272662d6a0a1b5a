package component

import (
	"context"

	"github.com/dishgraph/dishgraph/core/resolver"
	"github.com/dishgraph/dishgraph/model"
)

// ConnectionProcessor upserts the connection of a full restaurant-dish
// pair and attaches the mention to it.
type ConnectionProcessor struct{}

func (p *ConnectionProcessor) Name() string {
	return "connection"
}

func (p *ConnectionProcessor) ShouldProcess(mention *model.ProcessedMention) bool {
	return mention.Shape() == model.ShapeFullPair
}

func (p *ConnectionProcessor) Process(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (*model.ComponentResult, error) {
	restaurant, err := entityID(entities, mention.Restaurant)
	if err != nil {
		return nil, &model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err}
	}
	dish, err := entityID(entities, &mention.DishOrCategory.EntityRef)
	if err != nil {
		return nil, &model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err}
	}

	return &model.ComponentResult{
		Component: p.Name(),
		TempID:    mention.TempID,
		Success:   true,
		Operations: []model.Operation{{
			Type:             model.OpUpsertConnection,
			Mention:          mention,
			RestaurantID:     restaurant.ID,
			DishOrCategoryID: dish.ID,
			Categories:       mention.DishOrCategory.Categories,
			Selective:        mention.DishAttributes.Selective,
		}},
		Metrics: map[string]int{"operations": 1},
	}, nil
}

// MenuItemProcessor flags the signature-matched connection as a
// confirmed menu item.
type MenuItemProcessor struct{}

func (p *MenuItemProcessor) Name() string {
	return "menu_item"
}

func (p *MenuItemProcessor) ShouldProcess(mention *model.ProcessedMention) bool {
	return mention.Shape() == model.ShapeFullPair && mention.IsMenuItem
}

func (p *MenuItemProcessor) Process(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (*model.ComponentResult, error) {
	restaurant, err := entityID(entities, mention.Restaurant)
	if err != nil {
		return nil, &model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err}
	}
	dish, err := entityID(entities, &mention.DishOrCategory.EntityRef)
	if err != nil {
		return nil, &model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err}
	}

	return &model.ComponentResult{
		Component: p.Name(),
		TempID:    mention.TempID,
		Success:   true,
		Operations: []model.Operation{{
			Type:             model.OpSetMenuItem,
			Mention:          mention,
			RestaurantID:     restaurant.ID,
			DishOrCategoryID: dish.ID,
			Selective:        mention.DishAttributes.Selective,
			IsMenuItem:       true,
		}},
		Metrics: map[string]int{"operations": 1},
	}, nil
}

// AttributeProcessor reinforces the selective attributes and categories
// of the signature-matched connection and tags the mention's attribute
// outcome.
type AttributeProcessor struct {
	Config model.AttributeConfig
}

func (p *AttributeProcessor) Name() string {
	return "attribute"
}

func (p *AttributeProcessor) ShouldProcess(mention *model.ProcessedMention) bool {
	if mention.Shape() != model.ShapeFullPair {
		return false
	}
	return p.Config.EnableSelectiveMatching && len(mention.DishAttributes.Selective) > 0
}

func (p *AttributeProcessor) Process(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (*model.ComponentResult, error) {
	restaurant, err := entityID(entities, mention.Restaurant)
	if err != nil {
		return nil, &model.AttributeProcessingError{
			ComponentProcessingError: model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err},
			AttributeKind:            "selective",
		}
	}
	dish, err := entityID(entities, &mention.DishOrCategory.EntityRef)
	if err != nil {
		return nil, &model.AttributeProcessingError{
			ComponentProcessingError: model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err},
			AttributeKind:            "selective",
		}
	}

	return &model.ComponentResult{
		Component: p.Name(),
		TempID:    mention.TempID,
		Success:   true,
		Operations: []model.Operation{{
			Type:             model.OpAddAttributes,
			Mention:          mention,
			RestaurantID:     restaurant.ID,
			DishOrCategoryID: dish.ID,
			Categories:       mention.DishOrCategory.Categories,
			Selective:        mention.DishAttributes.Selective,
		}},
		AttributeOutcome: model.ClassifyAttributes(mention.DishAttributes),
		Metrics:          map[string]int{"operations": 1},
	}, nil
}

// DescriptiveProcessor adds descriptive attributes across every
// connection of the restaurant-dish pair, regardless of signature.
type DescriptiveProcessor struct {
	Config model.AttributeConfig
}

func (p *DescriptiveProcessor) Name() string {
	return "descriptive"
}

func (p *DescriptiveProcessor) ShouldProcess(mention *model.ProcessedMention) bool {
	if mention.Shape() != model.ShapeFullPair {
		return false
	}
	return p.Config.EnableDescriptiveAddition && len(mention.DishAttributes.Descriptive) > 0
}

func (p *DescriptiveProcessor) Process(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (*model.ComponentResult, error) {
	restaurant, err := entityID(entities, mention.Restaurant)
	if err != nil {
		return nil, &model.AttributeProcessingError{
			ComponentProcessingError: model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err},
			AttributeKind:            "descriptive",
		}
	}
	dish, err := entityID(entities, &mention.DishOrCategory.EntityRef)
	if err != nil {
		return nil, &model.AttributeProcessingError{
			ComponentProcessingError: model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err},
			AttributeKind:            "descriptive",
		}
	}

	return &model.ComponentResult{
		Component: p.Name(),
		TempID:    mention.TempID,
		Success:   true,
		Operations: []model.Operation{{
			Type:             model.OpAddDescriptive,
			Mention:          mention,
			RestaurantID:     restaurant.ID,
			DishOrCategoryID: dish.ID,
			Descriptive:      mention.DishAttributes.Descriptive,
		}},
		AttributeOutcome: model.ClassifyAttributes(mention.DishAttributes),
		Metrics:          map[string]int{"operations": 1},
	}, nil
}

// GeneralPraiseProcessor spreads restaurant-level praise and attributes
// across the restaurant's existing connections.
type GeneralPraiseProcessor struct{}

func (p *GeneralPraiseProcessor) Name() string {
	return "general_praise"
}

func (p *GeneralPraiseProcessor) ShouldProcess(mention *model.ProcessedMention) bool {
	if mention.Restaurant == nil || mention.Restaurant.NormalizedName == "" {
		return false
	}
	return mention.GeneralPraise || len(mention.RestaurantAttributes) > 0
}

func (p *GeneralPraiseProcessor) Process(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (*model.ComponentResult, error) {
	if len(mention.RestaurantAttributes) == 0 {
		// Pure praise carries nothing to spread; report it as handled
		// rather than emitting an operation the merge engine would drop.
		return &model.ComponentResult{
			Component:  p.Name(),
			TempID:     mention.TempID,
			Success:    true,
			Skipped:    true,
			SkipReason: "general praise without restaurant attributes",
		}, nil
	}

	restaurant, err := entityID(entities, mention.Restaurant)
	if err != nil {
		return nil, &model.ComponentProcessingError{ComponentName: p.Name(), Operation: "Process", Message: err.Error(), Err: err}
	}

	return &model.ComponentResult{
		Component: p.Name(),
		TempID:    mention.TempID,
		Success:   true,
		Operations: []model.Operation{{
			Type:         model.OpGeneralPraise,
			Mention:      mention,
			RestaurantID: restaurant.ID,
			Restaurant:   mention.RestaurantAttributes,
		}},
		Metrics: map[string]int{"operations": 1},
	}, nil
}

// DishOnlyProcessor acknowledges dish mentions without restaurant
// context. They carry no graph operation and are skipped explicitly so
// the batch result accounts for them.
type DishOnlyProcessor struct{}

func (p *DishOnlyProcessor) Name() string {
	return "dish_only"
}

func (p *DishOnlyProcessor) ShouldProcess(mention *model.ProcessedMention) bool {
	return mention.Shape() == model.ShapeDishOnly
}

func (p *DishOnlyProcessor) Process(ctx context.Context, mention *model.ProcessedMention, entities *resolver.ResolvedEntities) (*model.ComponentResult, error) {
	return &model.ComponentResult{
		Component:  p.Name(),
		TempID:     mention.TempID,
		Success:    true,
		Skipped:    true,
		SkipReason: "dish mention without restaurant context",
	}, nil
}
