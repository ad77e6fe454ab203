package sql

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed entities_cache.sql
var entitiesCacheSQL string

// Function lists for verification
var ChunksFunctions = []string{
	"init_chunks",
	"upsert_chunk",
	"select_chunk",
	"select_chunks_by_source_file",
	"delete_chunk",
}

var EntitiesCacheFunctions = []string{
	"init_entities_cache",
	"upsert_cached_entity",
	"select_cached_entity",
	"select_cached_entities_by_type",
	"delete_cached_entity",
}

// Init intializes db extensions
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(ctx context.Context, db *sql.DB, force bool) error {
	return loadFunctions(ctx, db, "chunks", chunksSQL, ChunksFunctions, force)
}

// LoadEntitiesCacheSql loads entity cache related SQL functions
func LoadEntitiesCacheSql(ctx context.Context, db *sql.DB, force bool) error {
	return loadFunctions(ctx, db, "entities cache", entitiesCacheSQL, EntitiesCacheFunctions, force)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(ctx context.Context, db *sql.DB, force bool) error {
	if err := LoadChunksSql(ctx, db, force); err != nil {
		return err
	}

	if err := LoadEntitiesCacheSql(ctx, db, force); err != nil {
		return err
	}

	return nil
}

// loadFunctions executes the embedded script unless all of its functions
// already exist. With force the script is always executed.
func loadFunctions(ctx context.Context, db *sql.DB, name string, script string, sqlFunctions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(ctx, db, sqlFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.ExecContext(ctx, script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(ctx, db, sqlFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required %s SQL functions were created", name)
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(ctx context.Context, db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRowContext(
			ctx,
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
