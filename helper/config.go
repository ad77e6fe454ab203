package helper

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultStoreAttempts = 2
	defaultStoreTimeout  = 10 * time.Second
)

// DatabaseConfiguration holds the connection settings of the relational cache
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
	// Attempts is the number of tries per store call, reconnecting in between.
	Attempts int
	// Timeout is the deadline of a single store call attempt.
	Timeout time.Duration
}

// Neo4jConfiguration holds the connection settings of the graph store
type Neo4jConfiguration struct {
	URI      string
	Username string
	Password string
	Database string
	Attempts int
	Timeout  time.Duration
}

// LLMConfiguration holds the settings of the OpenAI compatible endpoint
// used for merge confirmation and optionally for embeddings.
type LLMConfiguration struct {
	BaseURL        string
	APIKey         string
	ConfirmModel   string
	EmbeddingModel string
	MaxRetries     int
}

// LoadEnv loads environment variables from the given .env files.
// Missing files are ignored, values already present in the environment win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return NewError("load env file", err)
		}
	}
	return nil
}

// NewDatabaseConfiguration reads the database configuration from the environment
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	attempts, timeout, err := storeCallSettings()
	if err != nil {
		return nil, NewError("database configuration", err)
	}

	config := &DatabaseConfiguration{
		Host:     getEnv("DATABASE_HOST", "postgres"),
		Port:     getEnv("DATABASE_PORT", "5432"),
		Database: getEnv("DATABASE_NAME", "worldbuilding"),
		Username: getEnv("DATABASE_USER", "postgres"),
		Password: getEnv("DATABASE_PASSWORD", "postgres"),
		Schema:   getEnv("DATABASE_SCHEMA", "public"),
		SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		Attempts: attempts,
		Timeout:  timeout,
	}

	if config.Host == "" || config.Database == "" || config.Username == "" {
		return nil, NewError("database configuration", fmt.Errorf("host, database and user must be set"))
	}

	return config, nil
}

// ConnectionString returns the lib/pq connection string
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode, c.Schema,
	)
}

// NewNeo4jConfiguration reads the graph store configuration from the environment
func NewNeo4jConfiguration() (*Neo4jConfiguration, error) {
	attempts, timeout, err := storeCallSettings()
	if err != nil {
		return nil, NewError("neo4j configuration", err)
	}

	config := &Neo4jConfiguration{
		URI:      getEnv("NEO4J_URI", "bolt://neo4j:7687"),
		Username: getEnv("NEO4J_USER", "neo4j"),
		Password: getEnv("NEO4J_PASSWORD", "neo4j"),
		Database: getEnv("NEO4J_DATABASE", "neo4j"),
		Attempts: attempts,
		Timeout:  timeout,
	}

	if config.URI == "" {
		return nil, NewError("neo4j configuration", fmt.Errorf("uri must be set"))
	}

	return config, nil
}

// NewLLMConfiguration reads the LLM endpoint configuration from the environment
func NewLLMConfiguration() (*LLMConfiguration, error) {
	maxRetries, err := strconv.Atoi(getEnv("LLM_MAX_RETRIES", "3"))
	if err != nil || maxRetries < 0 {
		return nil, NewError("llm configuration", fmt.Errorf("invalid LLM_MAX_RETRIES"))
	}

	return &LLMConfiguration{
		BaseURL:        getEnv("LLM_BASE_URL", "http://ollama:11434/v1"),
		APIKey:         getEnv("LLM_API_KEY", ""),
		ConfirmModel:   getEnv("LLM_CONFIRM_MODEL", "ilyagusev/saiga_llama3"),
		EmbeddingModel: getEnv("LLM_EMBEDDING_MODEL", ""),
		MaxRetries:     maxRetries,
	}, nil
}

func storeCallSettings() (int, time.Duration, error) {
	attempts, err := strconv.Atoi(getEnv("STORE_ATTEMPTS", strconv.Itoa(defaultStoreAttempts)))
	if err != nil || attempts < 1 {
		return 0, 0, fmt.Errorf("STORE_ATTEMPTS must be a positive integer")
	}

	timeout, err := time.ParseDuration(getEnv("STORE_TIMEOUT", defaultStoreTimeout.String()))
	if err != nil || timeout <= 0 {
		return 0, 0, fmt.Errorf("STORE_TIMEOUT must be a positive duration")
	}

	return attempts, timeout, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
