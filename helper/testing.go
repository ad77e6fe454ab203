package helper

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabaseName     = "database"
	testDatabaseUser     = "user"
	testDatabasePassword = "password"
	testNeo4jPassword    = "password"
)

// MustStartPostgresContainer starts a PostgreSQL container with the pgvector extension
// and returns its teardown function and mapped port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase(testDatabaseName),
		postgres.WithUsername(testDatabaseUser),
		postgres.WithPassword(testDatabasePassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, "", fmt.Errorf("error getting mapped port: %w", err)
	}

	return pgContainer.Terminate, port.Port(), nil
}

// MustStartNeo4jContainer starts a Neo4j container and returns its teardown function
// and bolt url.
func MustStartNeo4jContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	neo4jContainer, err := tcneo4j.Run(
		ctx,
		"neo4j:5",
		tcneo4j.WithAdminPassword(testNeo4jPassword),
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting neo4j container: %w", err)
	}

	boltURL, err := neo4jContainer.BoltUrl(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("error getting bolt url: %w", err)
	}

	return neo4jContainer.Terminate, boltURL, nil
}

// SetTestDatabaseConfigEnvs sets the database environment for a test container
func SetTestDatabaseConfigEnvs(t *testing.T, dbPort string) {
	t.Setenv("DATABASE_HOST", "localhost")
	t.Setenv("DATABASE_PORT", dbPort)
	t.Setenv("DATABASE_NAME", testDatabaseName)
	t.Setenv("DATABASE_USER", testDatabaseUser)
	t.Setenv("DATABASE_PASSWORD", testDatabasePassword)
	t.Setenv("DATABASE_SCHEMA", "public")
	t.Setenv("DATABASE_SSLMODE", "disable")
}

// SetTestNeo4jConfigEnvs sets the graph store environment for a test container
func SetTestNeo4jConfigEnvs(t *testing.T, boltURL string) {
	t.Setenv("NEO4J_URI", boltURL)
	t.Setenv("NEO4J_USER", "neo4j")
	t.Setenv("NEO4J_PASSWORD", testNeo4jPassword)
	t.Setenv("NEO4J_DATABASE", "neo4j")
}

// NewTestDatabase connects to a test database and fails hard on error
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(NewPrettyHandler(os.Stdout, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelDebug},
	}))

	db, err := NewDatabase("test", config, logger)
	if err != nil {
		log.Fatalf("error connecting to test database: %v", err)
	}

	return db
}
