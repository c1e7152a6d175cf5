package sqlite

// Schema creates all tables used by the sqlite backend. Statements are
// idempotent so the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS people (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    person_id         TEXT NOT NULL UNIQUE,
    name              TEXT NOT NULL DEFAULT '',
    first_seen        TIMESTAMP NOT NULL,
    last_seen         TIMESTAMP NOT NULL,
    interaction_count INTEGER NOT NULL DEFAULT 0,
    notes             TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS face_embeddings (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    person_id       TEXT NOT NULL REFERENCES people(person_id) ON DELETE CASCADE,
    embedding       BLOB NOT NULL,
    captured_at     TIMESTAMP NOT NULL,
    source_lighting TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_face_embeddings_person ON face_embeddings(person_id);

CREATE TABLE IF NOT EXISTS zones (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    category    TEXT NOT NULL DEFAULT 'unknown',
    description TEXT NOT NULL DEFAULT '',
    known_since TIMESTAMP NOT NULL,
    accessible  INTEGER NOT NULL DEFAULT 1,
    current     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS zone_paths (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    from_zone_id   INTEGER NOT NULL REFERENCES zones(id) ON DELETE CASCADE,
    to_zone_id     INTEGER NOT NULL REFERENCES zones(id) ON DELETE CASCADE,
    direction_hint TEXT NOT NULL DEFAULT '',
    distance_cm    INTEGER NOT NULL DEFAULT 0,
    UNIQUE(from_zone_id, to_zone_id)
);

CREATE TABLE IF NOT EXISTS memories (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    person_id  TEXT NOT NULL DEFAULT '',
    zone_id    INTEGER NOT NULL DEFAULT 0,
    type       TEXT NOT NULL,
    content    TEXT NOT NULL,
    importance INTEGER NOT NULL DEFAULT 5,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_person ON memories(person_id, importance DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS conversation_messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    idx        INTEGER NOT NULL,
    compacted  INTEGER NOT NULL DEFAULT 0,
    ts         TIMESTAMP NOT NULL,
    UNIQUE(session_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_conversation_session ON conversation_messages(session_id, idx);
`
