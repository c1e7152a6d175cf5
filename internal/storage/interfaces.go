// Package storage provides composable storage interfaces for the Robi backend.
//
// The storage layer is split into small, focused interfaces so backends can
// implement each concern independently. Both the sqlite and postgres backends
// satisfy the full Store composition.
package storage

import (
	"context"
	"time"

	"github.com/robilabs/robi/pkg/types"
)

// SaveOutcome reports what happened to a candidate memory on save.
type SaveOutcome int

const (
	// SavedNew means a fresh memory row was inserted.
	SavedNew SaveOutcome = iota
	// SavedDuplicate means an equivalent memory already existed and its
	// importance was bumped instead of inserting a new row.
	SavedDuplicate
	// SaveRejected means the privacy filter blocked the content.
	SaveRejected
)

// PeopleStore manages known people and their face embeddings.
type PeopleStore interface {
	// UpsertPerson creates the person if unknown, otherwise updates the
	// name (when non-empty) and refreshes last_seen.
	UpsertPerson(ctx context.Context, personID, name string) (*types.Person, error)

	// GetPerson retrieves a person by their stable person_id.
	// Returns ErrNotFound if the person doesn't exist.
	GetPerson(ctx context.Context, personID string) (*types.Person, error)

	// RenamePerson sets the display name of a known person.
	// Returns ErrNotFound if the person doesn't exist.
	RenamePerson(ctx context.Context, personID, name string) error

	// TouchInteraction increments the interaction counter and refreshes
	// last_seen for the person. Missing people are created implicitly.
	TouchInteraction(ctx context.Context, personID string) error

	// AddFaceEmbedding stores a face embedding vector for a person.
	AddFaceEmbedding(ctx context.Context, emb *types.FaceEmbedding) error

	// ListFaceEmbeddings returns all stored embeddings for a person,
	// newest first. Returns an empty slice when none exist.
	ListFaceEmbeddings(ctx context.Context, personID string) ([]*types.FaceEmbedding, error)

	// ListPeople returns all known people ordered by last_seen descending.
	ListPeople(ctx context.Context) ([]*types.Person, error)
}

// MemoryStore manages long-term memories about people and places.
type MemoryStore interface {
	// SaveMemory stores a memory after normalization and the privacy
	// filter. Duplicate content for the same person bumps importance on
	// the existing row instead of inserting.
	SaveMemory(ctx context.Context, mem *types.Memory) (SaveOutcome, error)

	// MemoriesForPerson returns non-expired memories for a person ordered
	// by importance descending then recency, capped at limit.
	MemoriesForPerson(ctx context.Context, personID string, limit int) ([]*types.Memory, error)

	// RecentMemories returns the most recent non-expired memories across
	// all people, capped at limit.
	RecentMemories(ctx context.Context, limit int) ([]*types.Memory, error)

	// ContextMemories returns the prompt-seeding bundle: general
	// (personless) facts, zone knowledge, and the given person's own
	// memories when personID is non-empty. Ordered by importance
	// descending then recency, capped at limit.
	ContextMemories(ctx context.Context, personID string, limit int) ([]*types.Memory, error)

	// PurgeExpired hard-deletes memories whose expires_at has passed.
	// Returns the number of rows removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// ZoneStore manages the zone graph the robot navigates.
type ZoneStore interface {
	// UpsertZone creates or updates a zone by name. Category is
	// normalized; unknown categories become "other".
	UpsertZone(ctx context.Context, zone *types.Zone) (*types.Zone, error)

	// GetZoneByName retrieves a zone by its unique name.
	// Returns ErrNotFound if the zone doesn't exist.
	GetZoneByName(ctx context.Context, name string) (*types.Zone, error)

	// SetCurrentZone marks the named zone as current and clears the flag
	// everywhere else, in one transaction. Returns ErrNotFound when the
	// zone is unknown.
	SetCurrentZone(ctx context.Context, name string) error

	// CurrentZone returns the zone currently flagged as current, or
	// ErrNotFound when the robot's position is unknown.
	CurrentZone(ctx context.Context) (*types.Zone, error)

	// LinkZones records a traversable path between two zones. Paths are
	// stored once per direction; linking twice updates the hint and
	// distance.
	LinkZones(ctx context.Context, path *types.ZonePath) error

	// ListZones returns all known zones ordered by name.
	ListZones(ctx context.Context) ([]*types.Zone, error)

	// ListZonePaths returns every directed edge in the zone graph.
	ListZonePaths(ctx context.Context) ([]*types.ZonePath, error)

	// FindPath returns the shortest path by hop count from one zone to
	// another as an ordered slice of zone names, including both
	// endpoints. An empty slice (not an error) means unreachable.
	FindPath(ctx context.Context, fromName, toName string) ([]string, error)
}

// HistoryStore persists per-session conversation transcripts.
type HistoryStore interface {
	// AppendMessage appends a message at the next index for the session.
	AppendMessage(ctx context.Context, msg *types.ConversationMessage) error

	// SessionMessages returns all messages for a session ordered by index.
	SessionMessages(ctx context.Context, sessionID string) ([]*types.ConversationMessage, error)

	// ReplacePrefix atomically deletes every message of the session with
	// index < keepFrom and inserts the summary message in their place.
	// The surviving suffix keeps its original indices.
	ReplacePrefix(ctx context.Context, sessionID string, keepFrom int, summary *types.ConversationMessage) error

	// CountMessages returns the number of messages stored for a session.
	CountMessages(ctx context.Context, sessionID string) (int, error)
}

// Store is the full backend composition used by the server.
type Store interface {
	PeopleStore
	MemoryStore
	ZoneStore
	HistoryStore

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
