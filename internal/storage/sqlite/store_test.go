package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertPersonCreatesAndUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertPerson(ctx, "face-1", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, 0, p.InteractionCount)

	// Empty name must not erase the stored one.
	p, err = s.UpsertPerson(ctx, "face-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Name)

	p, err = s.UpsertPerson(ctx, "face-1", "Ana María")
	require.NoError(t, err)
	assert.Equal(t, "Ana María", p.Name)
}

func TestGetPersonNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPerson(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRenamePerson(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPerson(ctx, "face-1", "")
	require.NoError(t, err)
	require.NoError(t, s.RenamePerson(ctx, "face-1", "Carlos"))

	p, err := s.GetPerson(ctx, "face-1")
	require.NoError(t, err)
	assert.Equal(t, "Carlos", p.Name)

	assert.ErrorIs(t, s.RenamePerson(ctx, "ghost", "X"), storage.ErrNotFound)
}

func TestTouchInteraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.TouchInteraction(ctx, "face-1"))
	require.NoError(t, s.TouchInteraction(ctx, "face-1"))

	p, err := s.GetPerson(ctx, "face-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.InteractionCount)
}

func TestFaceEmbeddingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	emb := &types.FaceEmbedding{PersonID: "face-1", Embedding: []byte{1, 2, 3}, SourceLighting: "dim"}
	require.NoError(t, s.AddFaceEmbedding(ctx, emb))

	got, err := s.ListFaceEmbeddings(ctx, "face-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Embedding)
	assert.Equal(t, "dim", got[0].SourceLighting)
}

func TestSaveMemoryNewDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem := &types.Memory{PersonID: "face-1", Type: types.MemoryPersonFact, Content: "le gusta el ajedrez", Importance: 5}
	outcome, err := s.SaveMemory(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, storage.SavedNew, outcome)

	// Same content again, case-insensitive, bumps importance instead.
	dup := &types.Memory{PersonID: "face-1", Type: types.MemoryPersonFact, Content: "LE GUSTA EL AJEDREZ", Importance: 8}
	outcome, err = s.SaveMemory(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, storage.SavedDuplicate, outcome)

	mems, err := s.MemoriesForPerson(ctx, "face-1", 10)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, 8, mems[0].Importance)

	// Sensitive content is silently rejected.
	sensitive := &types.Memory{PersonID: "face-1", Type: types.MemoryPersonFact, Content: "su contraseña es 1234"}
	outcome, err = s.SaveMemory(ctx, sensitive)
	require.NoError(t, err)
	assert.Equal(t, storage.SaveRejected, outcome)

	mems, err = s.MemoriesForPerson(ctx, "face-1", 10)
	require.NoError(t, err)
	assert.Len(t, mems, 1)
}

func TestMemoriesForPersonOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range []*types.Memory{
		{PersonID: "p", Type: types.MemoryPersonFact, Content: "low", Importance: 2},
		{PersonID: "p", Type: types.MemoryPersonFact, Content: "high", Importance: 9},
		{PersonID: "p", Type: types.MemoryPersonFact, Content: "mid", Importance: 5},
	} {
		_, err := s.SaveMemory(ctx, m)
		require.NoError(t, err)
	}

	mems, err := s.MemoriesForPerson(ctx, "p", 2)
	require.NoError(t, err)
	require.Len(t, mems, 2)
	assert.Equal(t, "high", mems[0].Content)
	assert.Equal(t, "mid", mems[1].Content)
}

func TestContextMemoriesCombinesPools(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range []*types.Memory{
		{Type: types.MemoryGeneral, Content: "la casa tiene dos plantas", Importance: 4},
		{PersonID: "ana", Type: types.MemoryPersonFact, Content: "le gusta el ajedrez", Importance: 6},
		{PersonID: "luis", Type: types.MemoryZoneInfo, Content: "la despensa está junto a la cocina", Importance: 5},
		{PersonID: "luis", Type: types.MemoryPersonFact, Content: "prefiere el café solo", Importance: 9},
	} {
		_, err := s.SaveMemory(ctx, m)
		require.NoError(t, err)
	}

	// Known person: general pool, zone facts, and their own memories, with
	// other people's personal facts excluded.
	mems, err := s.ContextMemories(ctx, "ana", 10)
	require.NoError(t, err)
	require.Len(t, mems, 3)
	contents := []string{mems[0].Content, mems[1].Content, mems[2].Content}
	assert.Contains(t, contents, "la casa tiene dos plantas")
	assert.Contains(t, contents, "le gusta el ajedrez")
	assert.Contains(t, contents, "la despensa está junto a la cocina")
	assert.NotContains(t, contents, "prefiere el café solo")
	assert.Equal(t, "le gusta el ajedrez", mems[0].Content, "ordered by importance")

	// Unknown identity: general pool and zone facts only.
	mems, err = s.ContextMemories(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, mems, 2)
}

func TestPurgeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	for _, m := range []*types.Memory{
		{PersonID: "p", Type: types.MemoryExperience, Content: "stale", ExpiresAt: &past},
		{PersonID: "p", Type: types.MemoryExperience, Content: "fresh", ExpiresAt: &future},
		{PersonID: "p", Type: types.MemoryPersonFact, Content: "forever"},
	} {
		_, err := s.SaveMemory(ctx, m)
		require.NoError(t, err)
	}

	n, err := s.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mems, err := s.MemoriesForPerson(ctx, "p", 10)
	require.NoError(t, err)
	assert.Len(t, mems, 2)
}

func TestSetCurrentZoneClearsPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertZone(ctx, &types.Zone{Name: "cocina", Category: types.ZoneKitchen, Accessible: true})
	require.NoError(t, err)
	_, err = s.UpsertZone(ctx, &types.Zone{Name: "salón", Category: types.ZoneLiving, Accessible: true})
	require.NoError(t, err)

	require.NoError(t, s.SetCurrentZone(ctx, "cocina"))
	require.NoError(t, s.SetCurrentZone(ctx, "salón"))

	cur, err := s.CurrentZone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "salón", cur.Name)

	kitchen, err := s.GetZoneByName(ctx, "cocina")
	require.NoError(t, err)
	assert.False(t, kitchen.Current)

	assert.ErrorIs(t, s.SetCurrentZone(ctx, "ghost"), storage.ErrNotFound)
}

func TestFindPathBFS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	names := []string{"cocina", "pasillo", "salón", "dormitorio", "terraza"}
	zones := map[string]*types.Zone{}
	for _, n := range names {
		z, err := s.UpsertZone(ctx, &types.Zone{Name: n, Category: types.ZoneUnknown, Accessible: true})
		require.NoError(t, err)
		zones[n] = z
	}

	link := func(a, b string) {
		require.NoError(t, s.LinkZones(ctx, &types.ZonePath{FromZoneID: zones[a].ID, ToZoneID: zones[b].ID}))
		require.NoError(t, s.LinkZones(ctx, &types.ZonePath{FromZoneID: zones[b].ID, ToZoneID: zones[a].ID}))
	}
	// cocina - pasillo - salón - dormitorio, plus a direct shortcut
	// cocina - salón. terraza stays disconnected.
	link("cocina", "pasillo")
	link("pasillo", "salón")
	link("salón", "dormitorio")
	link("cocina", "salón")

	path, err := s.FindPath(ctx, "cocina", "dormitorio")
	require.NoError(t, err)
	assert.Equal(t, []string{"cocina", "salón", "dormitorio"}, path)

	path, err = s.FindPath(ctx, "cocina", "terraza")
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = s.FindPath(ctx, "cocina", "cocina")
	require.NoError(t, err)
	assert.Equal(t, []string{"cocina"}, path)

	_, err = s.FindPath(ctx, "cocina", "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHistoryAppendAndReplacePrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := "sess-1"

	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, s.AppendMessage(ctx, &types.ConversationMessage{
			SessionID: session,
			Role:      role,
			Content:   "msg",
		}))
	}

	msgs, err := s.SessionMessages(ctx, session)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	for i, m := range msgs {
		assert.Equal(t, i, m.Index)
	}

	summary := &types.ConversationMessage{Role: "system", Content: "resumen"}
	require.NoError(t, s.ReplacePrefix(ctx, session, 4, summary))

	msgs, err = s.SessionMessages(ctx, session)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "resumen", msgs[0].Content)
	assert.True(t, msgs[0].Compacted)
	assert.Equal(t, 4, msgs[1].Index)
	assert.Equal(t, 5, msgs[2].Index)

	n, err := s.CountMessages(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
