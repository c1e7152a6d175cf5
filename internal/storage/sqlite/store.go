// Package sqlite implements the storage interfaces on modernc.org/sqlite,
// a CGO-free driver. A single open connection serialises writes; WAL mode
// keeps readers from blocking the writer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, configures WAL mode, and applies the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- PeopleStore ---

func (s *Store) UpsertPerson(ctx context.Context, personID, name string) (*types.Person, error) {
	if personID == "" {
		return nil, fmt.Errorf("%w: person_id is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (person_id, name, first_seen, last_seen, interaction_count, notes)
		VALUES (?, ?, ?, ?, 0, '')
		ON CONFLICT(person_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE people.name END,
			last_seen = excluded.last_seen`,
		personID, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert person: %w", err)
	}

	return s.GetPerson(ctx, personID)
}

func (s *Store) GetPerson(ctx context.Context, personID string) (*types.Person, error) {
	var p types.Person
	err := s.db.QueryRowContext(ctx, `
		SELECT id, person_id, name, first_seen, last_seen, interaction_count, notes
		FROM people WHERE person_id = ?`, personID).Scan(
		&p.ID, &p.PersonID, &p.Name, &p.FirstSeen, &p.LastSeen, &p.InteractionCount, &p.Notes)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return &p, nil
}

func (s *Store) RenamePerson(ctx context.Context, personID, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", storage.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE people SET name = ? WHERE person_id = ?`, name, personID)
	if err != nil {
		return fmt.Errorf("failed to rename person: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to rename person: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) TouchInteraction(ctx context.Context, personID string) error {
	if _, err := s.UpsertPerson(ctx, personID, ""); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE people SET interaction_count = interaction_count + 1, last_seen = ?
		WHERE person_id = ?`, time.Now().UTC(), personID)
	if err != nil {
		return fmt.Errorf("failed to touch interaction: %w", err)
	}
	return nil
}

func (s *Store) AddFaceEmbedding(ctx context.Context, emb *types.FaceEmbedding) error {
	if emb == nil || emb.PersonID == "" || len(emb.Embedding) == 0 {
		return fmt.Errorf("%w: embedding requires person_id and vector", storage.ErrInvalidInput)
	}
	if emb.CapturedAt.IsZero() {
		emb.CapturedAt = time.Now().UTC()
	}
	// The person row must exist for the foreign key.
	if _, err := s.UpsertPerson(ctx, emb.PersonID, ""); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO face_embeddings (person_id, embedding, captured_at, source_lighting)
		VALUES (?, ?, ?, ?)`,
		emb.PersonID, emb.Embedding, emb.CapturedAt, emb.SourceLighting)
	if err != nil {
		return fmt.Errorf("failed to add face embedding: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		emb.ID = id
	}
	return nil
}

func (s *Store) ListFaceEmbeddings(ctx context.Context, personID string) ([]*types.FaceEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, embedding, captured_at, source_lighting
		FROM face_embeddings WHERE person_id = ?
		ORDER BY captured_at DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list face embeddings: %w", err)
	}
	defer rows.Close()

	out := []*types.FaceEmbedding{}
	for rows.Next() {
		var e types.FaceEmbedding
		if err := rows.Scan(&e.ID, &e.PersonID, &e.Embedding, &e.CapturedAt, &e.SourceLighting); err != nil {
			return nil, fmt.Errorf("failed to scan face embedding: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) ListPeople(ctx context.Context) ([]*types.Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, name, first_seen, last_seen, interaction_count, notes
		FROM people ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	out := []*types.Person{}
	for rows.Next() {
		var p types.Person
		if err := rows.Scan(&p.ID, &p.PersonID, &p.Name, &p.FirstSeen, &p.LastSeen, &p.InteractionCount, &p.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- MemoryStore ---

func (s *Store) SaveMemory(ctx context.Context, mem *types.Memory) (storage.SaveOutcome, error) {
	if mem == nil || strings.TrimSpace(mem.Content) == "" {
		return storage.SaveRejected, fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}

	mem.Content = strings.TrimSpace(mem.Content)
	mem.Type = types.NormalizeMemoryType(string(mem.Type))
	mem.Importance = types.ClampImportance(mem.Importance)

	if storage.ContainsSensitive(mem.Content) {
		return storage.SaveRejected, nil
	}

	// Duplicate content for the same person bumps importance instead of
	// inserting a second row.
	var existingID int64
	var existingImportance int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, importance FROM memories
		WHERE person_id = ? AND lower(content) = lower(?)`,
		mem.PersonID, mem.Content).Scan(&existingID, &existingImportance)
	switch {
	case err == nil:
		if mem.Importance > existingImportance {
			existingImportance = mem.Importance
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE memories SET importance = ? WHERE id = ?`,
			existingImportance, existingID); err != nil {
			return storage.SaveRejected, fmt.Errorf("failed to bump duplicate memory: %w", err)
		}
		return storage.SavedDuplicate, nil
	case err != sql.ErrNoRows:
		return storage.SaveRejected, fmt.Errorf("failed to check duplicate memory: %w", err)
	}

	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (person_id, zone_id, type, content, importance, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mem.PersonID, mem.ZoneID, string(mem.Type), mem.Content,
		mem.Importance, mem.CreatedAt, nullableTime(mem.ExpiresAt))
	if err != nil {
		return storage.SaveRejected, fmt.Errorf("failed to save memory: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		mem.ID = id
	}
	return storage.SavedNew, nil
}

func (s *Store) MemoriesForPerson(ctx context.Context, personID string, limit int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, zone_id, type, content, importance, created_at, expires_at
		FROM memories
		WHERE person_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY importance DESC, created_at DESC
		LIMIT ?`, personID, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *Store) RecentMemories(ctx context.Context, limit int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, zone_id, type, content, importance, created_at, expires_at
		FROM memories
		WHERE expires_at IS NULL OR expires_at > ?
		ORDER BY created_at DESC
		LIMIT ?`, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *Store) ContextMemories(ctx context.Context, personID string, limit int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, zone_id, type, content, importance, created_at, expires_at
		FROM memories
		WHERE (person_id = '' OR person_id = ? OR type = ?)
		AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY importance DESC, created_at DESC
		LIMIT ?`, personID, string(types.MemoryZoneInfo), time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list context memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired memories: %w", err)
	}
	return int(n), nil
}

func scanMemories(rows *sql.Rows) ([]*types.Memory, error) {
	out := []*types.Memory{}
	for rows.Next() {
		var m types.Memory
		var expires sql.NullTime
		if err := rows.Scan(&m.ID, &m.PersonID, &m.ZoneID, &m.Type, &m.Content,
			&m.Importance, &m.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if expires.Valid {
			t := expires.Time
			m.ExpiresAt = &t
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- ZoneStore ---

func (s *Store) UpsertZone(ctx context.Context, zone *types.Zone) (*types.Zone, error) {
	if zone == nil || zone.Name == "" {
		return nil, fmt.Errorf("%w: zone name is required", storage.ErrInvalidInput)
	}

	category := types.NormalizeZoneCategory(string(zone.Category))
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zones (name, category, description, known_since, accessible, current)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			description = CASE WHEN excluded.description != '' THEN excluded.description ELSE zones.description END,
			accessible = excluded.accessible`,
		zone.Name, string(category), zone.Description, now, boolInt(zone.Accessible))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert zone: %w", err)
	}

	return s.GetZoneByName(ctx, zone.Name)
}

func (s *Store) GetZoneByName(ctx context.Context, name string) (*types.Zone, error) {
	var z types.Zone
	var accessible, current int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, description, known_since, accessible, current
		FROM zones WHERE name = ?`, name).Scan(
		&z.ID, &z.Name, &z.Category, &z.Description, &z.KnownSince, &accessible, &current)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	z.Accessible = accessible != 0
	z.Current = current != 0
	return &z, nil
}

func (s *Store) SetCurrentZone(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE zones SET current = 0 WHERE current = 1`); err != nil {
		return fmt.Errorf("failed to clear current zone: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE zones SET current = 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to set current zone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set current zone: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) CurrentZone(ctx context.Context) (*types.Zone, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM zones WHERE current = 1 LIMIT 1`).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current zone: %w", err)
	}
	return s.GetZoneByName(ctx, name)
}

func (s *Store) LinkZones(ctx context.Context, path *types.ZonePath) error {
	if path == nil || path.FromZoneID == 0 || path.ToZoneID == 0 {
		return fmt.Errorf("%w: path requires both zone ids", storage.ErrInvalidInput)
	}
	if path.FromZoneID == path.ToZoneID {
		return fmt.Errorf("%w: path endpoints must differ", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zone_paths (from_zone_id, to_zone_id, direction_hint, distance_cm)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_zone_id, to_zone_id) DO UPDATE SET
			direction_hint = excluded.direction_hint,
			distance_cm = excluded.distance_cm`,
		path.FromZoneID, path.ToZoneID, path.DirectionHint, path.DistanceCM)
	if err != nil {
		return fmt.Errorf("failed to link zones: %w", err)
	}
	return nil
}

func (s *Store) ListZones(ctx context.Context) ([]*types.Zone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, description, known_since, accessible, current
		FROM zones ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	out := []*types.Zone{}
	for rows.Next() {
		var z types.Zone
		var accessible, current int
		if err := rows.Scan(&z.ID, &z.Name, &z.Category, &z.Description, &z.KnownSince, &accessible, &current); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		z.Accessible = accessible != 0
		z.Current = current != 0
		out = append(out, &z)
	}
	return out, rows.Err()
}

func (s *Store) ListZonePaths(ctx context.Context) ([]*types.ZonePath, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_zone_id, to_zone_id, direction_hint, distance_cm
		FROM zone_paths ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list zone paths: %w", err)
	}
	defer rows.Close()

	out := []*types.ZonePath{}
	for rows.Next() {
		var p types.ZonePath
		if err := rows.Scan(&p.ID, &p.FromZoneID, &p.ToZoneID, &p.DirectionHint, &p.DistanceCM); err != nil {
			return nil, fmt.Errorf("failed to scan zone path: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// FindPath runs a breadth-first search over zone_paths by hop count.
func (s *Store) FindPath(ctx context.Context, fromName, toName string) ([]string, error) {
	from, err := s.GetZoneByName(ctx, fromName)
	if err != nil {
		return nil, err
	}
	to, err := s.GetZoneByName(ctx, toName)
	if err != nil {
		return nil, err
	}
	if from.ID == to.ID {
		return []string{from.Name}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT from_zone_id, to_zone_id FROM zone_paths`)
	if err != nil {
		return nil, fmt.Errorf("failed to load zone paths: %w", err)
	}
	defer rows.Close()

	adj := map[int64][]int64{}
	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan zone path: %w", err)
		}
		adj[a] = append(adj[a], b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prev := map[int64]int64{from.ID: 0}
	queue := []int64{from.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to.ID {
			break
		}
		for _, next := range adj[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}

	if _, ok := prev[to.ID]; !ok {
		return []string{}, nil
	}

	// Walk back from the destination, then map ids to names.
	ids := []int64{}
	for cur := to.ID; cur != 0; cur = prev[cur] {
		ids = append(ids, cur)
	}
	names := make([]string, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		var name string
		if err := s.db.QueryRowContext(ctx, `SELECT name FROM zones WHERE id = ?`, ids[i]).Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to resolve zone name: %w", err)
		}
		names = append(names, name)
	}
	return names, nil
}

// --- HistoryStore ---

func (s *Store) AppendMessage(ctx context.Context, msg *types.ConversationMessage) error {
	if msg == nil || msg.SessionID == "" || msg.Role == "" {
		return fmt.Errorf("%w: message requires session_id and role", storage.ErrInvalidInput)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(idx) + 1 FROM conversation_messages WHERE session_id = ?`,
		msg.SessionID).Scan(&next); err != nil {
		return fmt.Errorf("failed to find next index: %w", err)
	}
	if next.Valid {
		msg.Index = int(next.Int64)
	} else {
		msg.Index = 0
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (session_id, role, content, idx, compacted, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, msg.Index, boolInt(msg.Compacted), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		msg.ID = id
	}
	return tx.Commit()
}

func (s *Store) SessionMessages(ctx context.Context, sessionID string) ([]*types.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, idx, compacted, ts
		FROM conversation_messages WHERE session_id = ? ORDER BY idx`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []*types.ConversationMessage{}
	for rows.Next() {
		var m types.ConversationMessage
		var compacted int
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Index, &compacted, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Compacted = compacted != 0
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) ReplacePrefix(ctx context.Context, sessionID string, keepFrom int, summary *types.ConversationMessage) error {
	if summary == nil || summary.Content == "" {
		return fmt.Errorf("%w: summary content is required", storage.ErrInvalidInput)
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE session_id = ? AND idx < ?`,
		sessionID, keepFrom); err != nil {
		return fmt.Errorf("failed to delete compacted prefix: %w", err)
	}

	// The summary takes the slot just below the surviving suffix so
	// ordering by idx keeps it first.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (session_id, role, content, idx, compacted, ts)
		VALUES (?, ?, ?, ?, 1, ?)`,
		sessionID, summary.Role, summary.Content, keepFrom-1, summary.Timestamp); err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return tx.Commit()
}

func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
