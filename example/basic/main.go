package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dishgraph/dishgraph"
	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
)

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
	}

	graph, err := dishgraph.NewDishGraph(dbConfig, nil)
	if err != nil {
		log.Fatalf("Failed to create dishgraph: %v", err)
	}
	defer graph.Close()

	// A small batch of extracted mentions, the way an upstream extractor
	// would hand them over.
	batch := []*model.ProcessedMention{
		{
			TempID:     "mention_1",
			Restaurant: &model.EntityRef{TempID: "rest_1", NormalizedName: "franklin barbecue", OriginalText: "Franklin Barbecue"},
			DishOrCategory: &model.DishRef{
				EntityRef:  model.EntityRef{TempID: "dish_1", NormalizedName: "brisket", OriginalText: "brisket"},
				Categories: model.StringSlice{"bbq"},
			},
			DishAttributes: model.DishAttributes{Selective: model.StringSlice{"smoky"}, Descriptive: model.StringSlice{"tender"}},
			SourceType:     model.SourceTypeComment,
			SourceID:       "t1_example1",
			Subreddit:      "austinfood",
			Excerpt:        "the brisket at Franklin is unreal, smoky and tender",
			Author:         "bbqfan",
			Upvotes:        42,
			CreatedAt:      time.Now().UTC().Add(-48 * time.Hour),
		},
		{
			TempID:     "mention_2",
			Restaurant: &model.EntityRef{TempID: "rest_2", NormalizedName: "franklin barbeque", OriginalText: "Franklin Barbeque"},
			DishOrCategory: &model.DishRef{
				EntityRef:  model.EntityRef{TempID: "dish_2", NormalizedName: "brisket", OriginalText: "brisket"},
				Categories: model.StringSlice{"bbq"},
			},
			SourceType: model.SourceTypePost,
			SourceID:   "t3_example2",
			Subreddit:  "austinfood",
			Excerpt:    "Franklin Barbeque brisket is worth the wait",
			Author:     "queuewarrior",
			Upvotes:    110,
			CreatedAt:  time.Now().UTC().Add(-12 * time.Hour),
		},
	}

	result, err := graph.ProcessBatch(context.Background(), batch)
	if err != nil {
		log.Fatalf("Failed to process batch: %v", err)
	}

	fmt.Printf("Batch %s processed %d mentions in %dms\n", result.BatchID, result.TotalMentionsProcessed, result.ProcessingTimeMs)
	fmt.Printf("Entities created: %d (reused via fuzzy match: %d)\n", result.Metrics.EntitiesCreated, result.Metrics.EntitiesUpdated)
	fmt.Printf("Connections created: %d, updated: %d, mentions recorded: %d\n",
		result.Metrics.ConnectionsCreated, result.Metrics.ConnectionsUpdated, result.Metrics.MentionsCreated)

	// Resubmitting the same batch is a no-op.
	replay, err := graph.ProcessBatch(context.Background(), batch)
	if err != nil {
		log.Fatalf("Failed to replay batch: %v", err)
	}
	fmt.Printf("Replay recorded %d new mentions\n", replay.Metrics.MentionsCreated)

	// Inspect the resulting connection and its quality score.
	restaurant, err := graph.Store.FindEntity(context.Background(), model.EntityTypeRestaurant, "franklin barbecue")
	if err != nil || restaurant == nil {
		log.Fatalf("Failed to look up restaurant: %v", err)
	}
	connections, err := graph.Store.ListConnectionsForRestaurant(context.Background(), restaurant.ID)
	if err != nil {
		log.Fatalf("Failed to list connections: %v", err)
	}
	for _, connection := range connections {
		score := 0.0
		if connection.QualityScore != nil {
			score = *connection.QualityScore
		}
		fmt.Printf("Connection %s: %d mentions, %d upvotes, activity %s, quality score %.1f\n",
			connection.ID, connection.Metrics.MentionCount, connection.Metrics.TotalUpvotes,
			connection.Metrics.ActivityLevel, score)
	}
}
