package store

const schemaTables = `
CREATE TABLE IF NOT EXISTS namespaces (
	name       TEXT PRIMARY KEY,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	namespace   TEXT NOT NULL REFERENCES namespaces(name) ON DELETE CASCADE,
	slug        TEXT NOT NULL,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	UNIQUE (namespace, slug)
);

CREATE TABLE IF NOT EXISTS requirements (
	id              TEXT PRIMARY KEY,
	namespace       TEXT NOT NULL REFERENCES namespaces(name) ON DELETE CASCADE,
	project_id      TEXT REFERENCES entities(id) ON DELETE SET NULL,
	owner_entity_id TEXT REFERENCES entities(id) ON DELETE SET NULL,
	title           TEXT NOT NULL,
	body            TEXT,
	priority        TEXT NOT NULL DEFAULT 'medium',
	status          TEXT NOT NULL DEFAULT 'draft',
	context_snippet TEXT,
	tags            TEXT NOT NULL DEFAULT '[]',
	embedding       BLOB,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge_items (
	id         TEXT PRIMARY KEY,
	namespace  TEXT NOT NULL REFERENCES namespaces(name) ON DELETE CASCADE,
	project_id TEXT REFERENCES entities(id) ON DELETE SET NULL,
	entity_id  TEXT REFERENCES entities(id) ON DELETE SET NULL,
	content    TEXT NOT NULL,
	source     TEXT,
	source_ref TEXT,
	tags       TEXT NOT NULL DEFAULT '[]',
	embedding  BLOB,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	namespace       TEXT NOT NULL REFERENCES namespaces(name) ON DELETE CASCADE,
	project_id      TEXT REFERENCES entities(id) ON DELETE SET NULL,
	agent_id        TEXT REFERENCES entities(id) ON DELETE SET NULL,
	type            TEXT NOT NULL DEFAULT 'note',
	title           TEXT NOT NULL,
	body            TEXT,
	context_snippet TEXT,
	session_id      TEXT,
	is_archived     INTEGER NOT NULL DEFAULT 0,
	tags            TEXT NOT NULL DEFAULT '[]',
	embedding       BLOB,
	created_at      TEXT NOT NULL
);
`

const schemaIndexes = `
CREATE INDEX IF NOT EXISTS idx_entities_ns_updated ON entities(namespace, updated_at);
CREATE INDEX IF NOT EXISTS idx_requirements_ns_updated ON requirements(namespace, updated_at);
CREATE INDEX IF NOT EXISTS idx_knowledge_ns_created ON knowledge_items(namespace, created_at);
CREATE INDEX IF NOT EXISTS idx_events_ns_created ON events(namespace, created_at);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(namespace, session_id, is_archived);
`
