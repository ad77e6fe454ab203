package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/siherrmann/loregraph"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
)

const chapter = `Harry Potter was a student at Hogwarts School of Witchcraft and Wizardry.
His best friend Ron Weasley shared a dormitory with him in Gryffindor Tower.`

func main() {
	ctx := context.Background()

	// Start test containers for both stores
	teardownPostgres, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardownPostgres(ctx)

	teardownNeo4j, boltURL, err := helper.MustStartNeo4jContainer()
	if err != nil {
		log.Fatalf("Failed to start Neo4j container: %v", err)
	}
	defer teardownNeo4j(ctx)

	l, err := loregraph.New(ctx, loregraph.Options{
		Database: &helper.DatabaseConfiguration{
			Host:     "localhost",
			Port:     dbPort,
			Database: "database",
			Username: "user",
			Password: "password",
			Schema:   "public",
			SSLMode:  "disable",
			Attempts: 2,
		},
		Neo4j: &helper.Neo4jConfiguration{
			URI:      boltURL,
			Username: "neo4j",
			Password: "password",
			Database: "neo4j",
			Attempts: 2,
		},
		// Confirmation requests go to a local Ollama, unreachable means "no"
		LLM: &helper.LLMConfiguration{
			BaseURL:      "http://localhost:11434/v1",
			ConfirmModel: "llama3",
			MaxRetries:   1,
		},
		Resolution: model.DefaultResolutionConfig(),
		Logger:     helper.NewLogger("info"),
	})
	if err != nil {
		log.Fatalf("Failed to create loregraph: %v", err)
	}
	defer l.Close(ctx)

	entities := []model.Entity{
		{Name: "Harry Potter", Type: "person", Description: "A young wizard", Confidence: 0.95, SourceFile: "chapter1.txt", ChunkID: "chapter1-0"},
		{Name: "Ron Weasley", Type: "person", Description: "Harry's best friend", Confidence: 0.9, SourceFile: "chapter1.txt", ChunkID: "chapter1-0"},
		{Name: "Hogwarts", Type: "organization", Description: "School of Witchcraft and Wizardry", Confidence: 0.9, SourceFile: "chapter1.txt", ChunkID: "chapter1-0"},
	}
	relationships := []model.Relationship{
		{SourceEntity: "Harry Potter", TargetEntity: "Hogwarts", RelationType: "STUDIED_AT", Confidence: 0.9, SourceText: "Harry Potter was a student at Hogwarts"},
		{SourceEntity: "Harry Potter", TargetEntity: "Ron Weasley", RelationType: "FRIEND_OF", Confidence: 0.85},
	}
	chunk := &model.Chunk{ChunkID: "chapter1-0", SourceFile: "chapter1.txt", Text: chapter}

	// Ingest the batch twice, the second run merges every entity
	for run := 1; run <= 2; run++ {
		stats, err := l.StoreKnowledge(ctx, entities, relationships, chunk)
		if err != nil {
			log.Fatalf("Failed to store knowledge: %v", err)
		}

		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Printf("Run %d:\n%s\n", run, out)
	}

	fmt.Printf("Health: %v\n", l.HealthCheck(ctx))
}
