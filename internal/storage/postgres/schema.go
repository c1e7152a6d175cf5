package postgres

// Schema creates all tables used by the postgres backend. Statements are
// idempotent so the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS people (
    id                BIGSERIAL PRIMARY KEY,
    person_id         TEXT NOT NULL UNIQUE,
    name              TEXT NOT NULL DEFAULT '',
    first_seen        TIMESTAMPTZ NOT NULL,
    last_seen         TIMESTAMPTZ NOT NULL,
    interaction_count INTEGER NOT NULL DEFAULT 0,
    notes             TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS face_embeddings (
    id              BIGSERIAL PRIMARY KEY,
    person_id       TEXT NOT NULL REFERENCES people(person_id) ON DELETE CASCADE,
    embedding       BYTEA NOT NULL,
    captured_at     TIMESTAMPTZ NOT NULL,
    source_lighting TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_face_embeddings_person ON face_embeddings(person_id);

CREATE TABLE IF NOT EXISTS zones (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    category    TEXT NOT NULL DEFAULT 'unknown',
    description TEXT NOT NULL DEFAULT '',
    known_since TIMESTAMPTZ NOT NULL,
    accessible  BOOLEAN NOT NULL DEFAULT TRUE,
    current     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS zone_paths (
    id             BIGSERIAL PRIMARY KEY,
    from_zone_id   BIGINT NOT NULL REFERENCES zones(id) ON DELETE CASCADE,
    to_zone_id     BIGINT NOT NULL REFERENCES zones(id) ON DELETE CASCADE,
    direction_hint TEXT NOT NULL DEFAULT '',
    distance_cm    INTEGER NOT NULL DEFAULT 0,
    UNIQUE(from_zone_id, to_zone_id)
);

CREATE TABLE IF NOT EXISTS memories (
    id         BIGSERIAL PRIMARY KEY,
    person_id  TEXT NOT NULL DEFAULT '',
    zone_id    BIGINT NOT NULL DEFAULT 0,
    type       TEXT NOT NULL,
    content    TEXT NOT NULL,
    importance INTEGER NOT NULL DEFAULT 5,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_memories_person ON memories(person_id, importance DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS conversation_messages (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    idx        INTEGER NOT NULL,
    compacted  BOOLEAN NOT NULL DEFAULT FALSE,
    ts         TIMESTAMPTZ NOT NULL,
    UNIQUE(session_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_conversation_session ON conversation_messages(session_id, idx);
`

// MigrationPgvector adds the vector column used for face similarity search.
// Applied only when the pgvector extension is available. Face embeddings are
// 128-dimensional (dlib face_recognition descriptors).
const MigrationPgvector = `
ALTER TABLE face_embeddings ADD COLUMN IF NOT EXISTS embedding_vec vector(128);
CREATE INDEX IF NOT EXISTS idx_face_embeddings_vec ON face_embeddings
    USING ivfflat (embedding_vec vector_l2_ops) WITH (lists = 10);
`
