package graph

const healthCheckQuery = `RETURN 1 AS result`

var schemaQueries = []string{
	`CREATE CONSTRAINT entity_name_type IF NOT EXISTS FOR (e:Entity) REQUIRE (e.name, e.type) IS UNIQUE`,
	`CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name)`,
}

// upsertEntityQuery merges an entity node on (name, type).
// Descriptions are "; " separated parts, a part already present is not appended again.
// Unlike a plain append, writing the same description twice leaves it unchanged.
// Source files and chunk ids are appended only when missing.
// A node is new if it carries the uuid stamped by this call.
const upsertEntityQuery = `
MERGE (e:Entity {name: $name, type: $type})
ON CREATE SET
	e.uuid = $uuid,
	e.description = $description,
	e.created_at = datetime(),
	e.updated_at = datetime(),
	e.source_files = CASE WHEN $source_file IS NULL THEN [] ELSE [$source_file] END,
	e.chunk_ids = CASE WHEN $chunk_id IS NULL THEN [] ELSE [$chunk_id] END
ON MATCH SET
	e.description = CASE
		WHEN $description IS NULL THEN e.description
		WHEN e.description IS NULL THEN $description
		ELSE reduce(d = e.description, part IN split($description, '; ') |
			CASE WHEN part IN split(d, '; ') THEN d ELSE d + '; ' + part END)
	END,
	e.updated_at = datetime(),
	e.source_files = CASE
		WHEN $source_file IS NULL OR $source_file IN coalesce(e.source_files, []) THEN coalesce(e.source_files, [])
		ELSE coalesce(e.source_files, []) + $source_file
	END,
	e.chunk_ids = CASE
		WHEN $chunk_id IS NULL OR $chunk_id IN coalesce(e.chunk_ids, []) THEN coalesce(e.chunk_ids, [])
		ELSE coalesce(e.chunk_ids, []) + $chunk_id
	END
RETURN e.uuid = $uuid AS created
`

// upsertRelationshipQuery merges a relationship between the entities with the given names.
// On match only the confidence may rise, description and source text are kept.
// Missing endpoints match no rows.
const upsertRelationshipQuery = `
MATCH (a:Entity {name: $source_entity})
MATCH (b:Entity {name: $target_entity})
MERGE (a)-[r:RELATED {type: $relation_type}]->(b)
ON CREATE SET
	r.uuid = $uuid,
	r.description = $description,
	r.confidence = $confidence,
	r.source_text = $source_text,
	r.created_at = datetime(),
	r.updated_at = datetime()
ON MATCH SET
	r.confidence = CASE
		WHEN r.confidence IS NULL OR $confidence > r.confidence THEN $confidence
		ELSE r.confidence
	END,
	r.updated_at = datetime()
RETURN r.uuid = $uuid AS created
`

const selectEntityQuery = `
MATCH (e:Entity {name: $name, type: $type})
RETURN e.name AS name, e.type AS type, e.description AS description,
	e.source_files AS source_files, e.chunk_ids AS chunk_ids
`

const selectRelationshipQuery = `
MATCH (a:Entity {name: $source_entity})-[r:RELATED {type: $relation_type}]->(b:Entity {name: $target_entity})
RETURN r.type AS relation_type, r.description AS description, r.confidence AS confidence,
	r.source_text AS source_text
`
