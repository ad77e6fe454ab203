package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/loregraph/helper"
)

const defaultTimeout = 10 * time.Second

var errDriverClosed = errors.New("neo4j driver is closed")

// Store executes parameterized queries against the graph store
type Store interface {
	Execute(ctx context.Context, query string, params map[string]any, readonly bool) ([]map[string]any, error)
}

// Neo4jClient is a Store backed by Neo4j.
// Every Execute is retried with a reconnect in between on connectivity failures.
type Neo4jClient struct {
	config *helper.Neo4jConfiguration
	logger *slog.Logger

	mu     sync.RWMutex
	driver neo4j.DriverWithContext
}

// NewNeo4jClient connects to Neo4j and verifies connectivity
func NewNeo4jClient(ctx context.Context, config *helper.Neo4jConfiguration, logger *slog.Logger) (*Neo4jClient, error) {
	if config == nil {
		return nil, helper.NewError("neo4j configuration validation", fmt.Errorf("neo4j configuration is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := &Neo4jClient{
		config: config,
		logger: logger,
	}

	if err := client.connect(ctx); err != nil {
		return nil, err
	}

	logger.Info("Connected to neo4j", slog.String("uri", config.URI), slog.String("database", config.Database))

	return client, nil
}

func (c *Neo4jClient) connect(ctx context.Context) error {
	driver, err := neo4j.NewDriverWithContext(c.config.URI, neo4j.BasicAuth(c.config.Username, c.config.Password, ""))
	if err != nil {
		return helper.NewError("create neo4j driver", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.Background())
		return helper.NewError("verify neo4j connectivity", err)
	}

	c.mu.Lock()
	c.driver = driver
	c.mu.Unlock()

	return nil
}

// Reconnect closes the current driver and creates a new one
func (c *Neo4jClient) Reconnect() error {
	c.mu.Lock()
	old := c.driver
	c.driver = nil
	c.mu.Unlock()

	if old != nil {
		_ = old.Close(context.Background())
	}

	c.logger.Info("Reconnecting to neo4j", slog.String("uri", c.config.URI))

	return c.connect(context.Background())
}

// Close closes the driver
func (c *Neo4jClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	return err
}

// Execute runs the query in a managed transaction and returns all records as maps.
func (c *Neo4jClient) Execute(ctx context.Context, query string, params map[string]any, readonly bool) ([]map[string]any, error) {
	var rows []map[string]any
	err := helper.Retry(ctx, "execute graph query", helper.RetryOptions{
		Attempts:    c.config.Attempts,
		Timeout:     c.timeout(),
		IsTransient: IsTransientGraphError,
		Reconnect:   c.Reconnect,
		Logger:      c.logger,
	}, func(ctx context.Context) error {
		var err error
		rows, err = c.run(ctx, query, params, readonly)
		return err
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (c *Neo4jClient) run(ctx context.Context, query string, params map[string]any, readonly bool) ([]map[string]any, error) {
	c.mu.RLock()
	driver := c.driver
	c.mu.RUnlock()
	if driver == nil {
		return nil, errDriverClosed
	}

	accessMode := neo4j.AccessModeWrite
	if readonly {
		accessMode = neo4j.AccessModeRead
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.config.Database,
		AccessMode:   accessMode,
	})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		rows := make([]map[string]any, 0, len(records))
		for _, record := range records {
			rows = append(rows, record.AsMap())
		}
		return rows, nil
	}

	var result any
	var err error
	if readonly {
		result, err = session.ExecuteRead(ctx, work)
	} else {
		result, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}

	return result.([]map[string]any), nil
}

func (c *Neo4jClient) timeout() time.Duration {
	if c.config.Timeout <= 0 {
		return defaultTimeout
	}
	return c.config.Timeout
}

// HealthCheck runs a trivial read query
func (c *Neo4jClient) HealthCheck(ctx context.Context) bool {
	rows, err := c.Execute(ctx, healthCheckQuery, nil, true)
	if err != nil {
		c.logger.Warn("Neo4j health check failed", slog.String("error", err.Error()))
		return false
	}
	return len(rows) == 1
}

// IsTransientGraphError reports whether err is a connectivity, timeout or
// retryable server failure worth retrying on a fresh driver.
func IsTransientGraphError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errDriverClosed) {
		return true
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
