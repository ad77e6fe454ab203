package loregraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/siherrmann/loregraph/core/cache"
	"github.com/siherrmann/loregraph/core/graph"
	"github.com/siherrmann/loregraph/core/ingestion"
	"github.com/siherrmann/loregraph/core/oracle"
	"github.com/siherrmann/loregraph/core/pipeline"
	"github.com/siherrmann/loregraph/core/resolution"
	"github.com/siherrmann/loregraph/database"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
	loadSql "github.com/siherrmann/loregraph/sql"
)

// Options configures a Loregraph instance
type Options struct {
	Database   *helper.DatabaseConfiguration
	Neo4j      *helper.Neo4jConfiguration
	LLM        *helper.LLMConfiguration
	Resolution model.ResolutionConfig
	// Embed overrides the embedding provider. If nil, LLM.EmbeddingModel selects
	// the remote endpoint and an empty model name the local default model.
	Embed  pipeline.EmbedFunc
	Logger *slog.Logger
}

// Loregraph wires the stores, resolution and ingestion into one instance
type Loregraph struct {
	DB            *helper.Database
	Graph         *graph.Neo4jClient
	Chunks        *database.ChunksDBHandler
	EntitiesCache *database.EntitiesCacheDBHandler
	GraphWriter   *graph.Writer
	CacheWriter   *cache.Writer
	Engine        *resolution.Engine
	Coordinator   *ingestion.Coordinator
	// Logging
	log *slog.Logger

	closeEmbedder func() error
}

// NewFromEnv reads all configuration from the environment, seeded from the given
// env files. Without files ./.env is used if it exists.
func NewFromEnv(ctx context.Context, logger *slog.Logger, envFiles ...string) (*Loregraph, error) {
	options, err := optionsFromEnv(envFiles...)
	if err != nil {
		return nil, err
	}
	options.Logger = logger

	return New(ctx, options)
}

func optionsFromEnv(envFiles ...string) (Options, error) {
	if err := helper.LoadEnv(envFiles...); err != nil {
		return Options{}, err
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return Options{}, err
	}
	neo4jConfig, err := helper.NewNeo4jConfiguration()
	if err != nil {
		return Options{}, err
	}
	llmConfig, err := helper.NewLLMConfiguration()
	if err != nil {
		return Options{}, err
	}

	return Options{
		Database:   dbConfig,
		Neo4j:      neo4jConfig,
		LLM:        llmConfig,
		Resolution: model.DefaultResolutionConfig(),
	}, nil
}

// New connects to both stores, prepares their schemas and builds the ingestion pipeline
func New(ctx context.Context, options Options) (*Loregraph, error) {
	if options.Database == nil || options.Neo4j == nil || options.LLM == nil {
		return nil, helper.NewError("loregraph options validation", fmt.Errorf("database, neo4j and llm configuration are required"))
	}
	if err := options.Resolution.Validate(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = helper.NewLogger("info")
	}

	l := &Loregraph{log: logger}
	ok := false
	defer func() {
		if !ok {
			_ = l.Close(context.Background())
		}
	}()

	// Relational cache
	db, err := helper.NewDatabase("loregraph", options.Database, logger)
	if err != nil {
		return nil, helper.NewError("connect database", err)
	}
	l.DB = db

	if err := loadSql.Init(ctx, db.Conn()); err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	l.Chunks, err = database.NewChunksDBHandler(ctx, db, options.Resolution.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	l.EntitiesCache, err = database.NewEntitiesCacheDBHandler(ctx, db, options.Resolution.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create entities cache handler", err)
	}

	// Graph store
	l.Graph, err = graph.NewNeo4jClient(ctx, options.Neo4j, logger)
	if err != nil {
		return nil, helper.NewError("connect neo4j", err)
	}

	l.GraphWriter = graph.NewWriter(l.Graph, logger)
	if err := l.GraphWriter.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	// Embeddings and confirmation
	client := helper.NewOpenAIClient(options.LLM)

	embed := options.Embed
	if embed == nil {
		if options.LLM.EmbeddingModel != "" {
			embed = pipeline.OpenAIEmbedder(client, options.LLM.EmbeddingModel)
		} else {
			embed, l.closeEmbedder, err = pipeline.DefaultEmbedder(pipeline.DefaultModel)
			if err != nil {
				return nil, helper.NewError("create default embedder", err)
			}
		}
	}
	embedder := pipeline.NewEmbedder(embed, options.Resolution.EmbeddingDim)

	oracleOptions := oracle.DefaultOptions()
	oracleOptions.MaxRetries = options.LLM.MaxRetries
	confirmation := oracle.NewLLMOracle(client, options.LLM.ConfirmModel, oracleOptions, logger)

	// Ingestion
	l.Engine, err = resolution.NewEngine(l.EntitiesCache, embedder, confirmation, options.Resolution, logger)
	if err != nil {
		return nil, helper.NewError("create resolution engine", err)
	}

	l.CacheWriter, err = cache.NewWriter(l.Chunks, l.EntitiesCache, embedder, logger)
	if err != nil {
		return nil, helper.NewError("create cache writer", err)
	}

	l.Coordinator, err = ingestion.NewCoordinator(l.Engine, l.GraphWriter, l.CacheWriter, logger)
	if err != nil {
		return nil, helper.NewError("create ingestion coordinator", err)
	}

	ok = true
	return l, nil
}

// StoreKnowledge ingests one batch of extracted entities and relationships
// together with the chunk they were extracted from.
func (l *Loregraph) StoreKnowledge(ctx context.Context, entities []model.Entity, relationships []model.Relationship, chunk *model.Chunk) (model.IngestionStats, error) {
	return l.Coordinator.StoreKnowledge(ctx, entities, relationships, chunk)
}

// HealthCheck reports the reachability of each store
func (l *Loregraph) HealthCheck(ctx context.Context) map[string]bool {
	status := map[string]bool{
		"postgres": false,
		"neo4j":    false,
	}
	if l.DB != nil {
		status["postgres"] = l.DB.HealthCheck(ctx)
	}
	if l.Graph != nil {
		status["neo4j"] = l.Graph.HealthCheck(ctx)
	}
	return status
}

// Close releases the embedder and both store connections
func (l *Loregraph) Close(ctx context.Context) error {
	var errs []error
	if l.closeEmbedder != nil {
		errs = append(errs, l.closeEmbedder())
		l.closeEmbedder = nil
	}
	if l.Graph != nil {
		errs = append(errs, l.Graph.Close(ctx))
	}
	if l.DB != nil {
		errs = append(errs, l.DB.Close())
	}
	return errors.Join(errs...)
}
