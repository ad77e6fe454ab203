package helper

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Database wraps the connection pool of the relational cache.
// The pool is replaced on Reconnect, so handlers must go through Conn or Retry
// instead of keeping a reference to Instance.
type Database struct {
	Name     string
	Config   *DatabaseConfiguration
	Instance *sql.DB
	Logger   *slog.Logger

	mu sync.RWMutex
}

// NewDatabase opens and pings a new connection pool.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) (*Database, error) {
	if config == nil {
		return nil, NewError("database configuration validation", fmt.Errorf("database configuration is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	db := &Database{
		Name:   name,
		Config: config,
		Logger: logger,
	}

	if err := db.Connect(); err != nil {
		return nil, err
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host), slog.String("database", config.Database))

	return db, nil
}

// Connect opens the connection pool and verifies it with a ping.
func (d *Database) Connect() error {
	instance, err := sql.Open("postgres", d.Config.ConnectionString())
	if err != nil {
		return NewError("open database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	if err := instance.PingContext(ctx); err != nil {
		_ = instance.Close()
		return NewError("ping database", err)
	}

	d.mu.Lock()
	d.Instance = instance
	d.mu.Unlock()

	return nil
}

// Reconnect closes the current pool and opens a new one.
func (d *Database) Reconnect() error {
	d.mu.Lock()
	old := d.Instance
	d.Instance = nil
	d.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	d.Logger.Info("Reconnecting to database", slog.String("name", d.Name))

	return d.Connect()
}

// Close closes the connection pool
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Instance == nil {
		return nil
	}
	err := d.Instance.Close()
	d.Instance = nil
	return err
}

// Conn returns the current connection pool
func (d *Database) Conn() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.Instance
}

// Retry runs a single store call with the configured attempts and per call timeout,
// reconnecting between attempts.
func (d *Database) Retry(ctx context.Context, operation string, fn func(ctx context.Context, conn *sql.DB) error) error {
	return Retry(ctx, operation, RetryOptions{
		Attempts:    d.Config.Attempts,
		Timeout:     d.timeout(),
		IsTransient: IsTransientDatabaseError,
		Reconnect:   d.Reconnect,
		Logger:      d.Logger,
	}, func(ctx context.Context) error {
		conn := d.Conn()
		if conn == nil {
			return driver.ErrBadConn
		}
		return fn(ctx, conn)
	})
}

// HealthCheck runs a trivial query against the database
func (d *Database) HealthCheck(ctx context.Context) bool {
	err := d.Retry(ctx, "health check", func(ctx context.Context, conn *sql.DB) error {
		var one int
		return conn.QueryRowContext(ctx, `SELECT 1;`).Scan(&one)
	})
	return err == nil
}

func (d *Database) timeout() time.Duration {
	if d.Config == nil || d.Config.Timeout <= 0 {
		return defaultStoreTimeout
	}
	return d.Config.Timeout
}

// IsTransientDatabaseError reports whether err is a connectivity or timeout failure
// worth retrying on a fresh connection.
func IsTransientDatabaseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			// connection exception, insufficient resources, operator intervention
			return true
		case "40":
			// serialization failure, deadlock
			return true
		}
	}

	return false
}
