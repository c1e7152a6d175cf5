// Package types defines the domain entities shared across the Robi backend:
// people, face embeddings, zones, memories and conversation history.
// These are plain data structs; persistence lives in internal/storage.
package types

import "time"

// ZoneCategory classifies a zone node in the robot's mental map.
type ZoneCategory string

// Valid zone categories.
const (
	ZoneKitchen  ZoneCategory = "kitchen"
	ZoneLiving   ZoneCategory = "living"
	ZoneBedroom  ZoneCategory = "bedroom"
	ZoneBathroom ZoneCategory = "bathroom"
	ZoneUnknown  ZoneCategory = "unknown"
)

// ValidZoneCategory reports whether c is one of the closed set of zone
// categories. Unknown inputs should be normalized to ZoneUnknown by callers.
func ValidZoneCategory(c ZoneCategory) bool {
	switch c {
	case ZoneKitchen, ZoneLiving, ZoneBedroom, ZoneBathroom, ZoneUnknown:
		return true
	}
	return false
}

// NormalizeZoneCategory maps arbitrary input to a valid category,
// defaulting to ZoneUnknown.
func NormalizeZoneCategory(s string) ZoneCategory {
	c := ZoneCategory(s)
	if ValidZoneCategory(c) {
		return c
	}
	return ZoneUnknown
}

// MemoryType classifies a stored memory.
type MemoryType string

// Valid memory types.
const (
	MemoryExperience MemoryType = "experience"
	MemoryZoneInfo   MemoryType = "zone_info"
	MemoryPersonFact MemoryType = "person_fact"
	MemoryGeneral    MemoryType = "general"
)

// ValidMemoryType reports whether t is one of the closed set of memory types.
func ValidMemoryType(t MemoryType) bool {
	switch t {
	case MemoryExperience, MemoryZoneInfo, MemoryPersonFact, MemoryGeneral:
		return true
	}
	return false
}

// NormalizeMemoryType maps arbitrary input to a valid memory type,
// defaulting to MemoryGeneral.
func NormalizeMemoryType(s string) MemoryType {
	t := MemoryType(s)
	if ValidMemoryType(t) {
		return t
	}
	return MemoryGeneral
}

// ClampImportance bounds an importance score to the 1-10 scale.
func ClampImportance(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// Person is an individual known to the robot (family member, friend, visitor).
// PersonID is the stable business slug (e.g. "persona_juan_01"); ID is the
// database primary key.
type Person struct {
	ID               int64     `json:"id"`
	PersonID         string    `json:"person_id"`
	Name             string    `json:"name"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	InteractionCount int       `json:"interaction_count"`
	Notes            string    `json:"notes"`
}

// FaceEmbedding is one biometric sample belonging to a Person. The vector is
// stored as raw bytes (a serialized 128-dimension float array produced by the
// client device); the backend never interprets it, only stores and returns it.
type FaceEmbedding struct {
	ID             int64     `json:"id"`
	PersonID       string    `json:"person_id"`
	Embedding      []byte    `json:"embedding"`
	CapturedAt     time.Time `json:"captured_at"`
	SourceLighting string    `json:"source_lighting,omitempty"` // "day" | "night" | ""
}

// Zone is a named place in the robot's spatial graph. At most one zone has
// Current set at any time; the store enforces that transactionally.
type Zone struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Category    ZoneCategory `json:"category"`
	Description string       `json:"description"`
	KnownSince  time.Time    `json:"known_since"`
	Accessible  bool         `json:"accessible"`
	Current     bool         `json:"current"`
}

// ZonePath is a directed edge between two zones. A bidirectional route is two
// rows. DistanceCM is optional (0 = unknown).
type ZonePath struct {
	ID            int64  `json:"id"`
	FromZoneID    int64  `json:"from_zone_id"`
	ToZoneID      int64  `json:"to_zone_id"`
	DirectionHint string `json:"direction_hint"`
	DistanceCM    int    `json:"distance_cm,omitempty"`
}

// Memory is a retained fact. PersonID is empty for general (personless)
// memories; ZoneID is 0 when the memory is not tied to a place. Expired
// memories are excluded from retrieval by default but not eagerly deleted.
type Memory struct {
	ID         int64      `json:"id"`
	PersonID   string     `json:"person_id,omitempty"`
	ZoneID     int64      `json:"zone_id,omitempty"`
	Type       MemoryType `json:"memory_type"`
	Content    string     `json:"content"`
	Importance int        `json:"importance"` // 1-10
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the memory has an expiry in the past relative to now.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ConversationMessage is one turn in a session's dialogue. Ordering by Index
// is authoritative; a compaction summary always carries a lower index than
// the messages it replaced.
type ConversationMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Index     int       `json:"message_index"`
	Compacted bool      `json:"is_compacted"`
	Timestamp time.Time `json:"timestamp"`
}
