package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robilabs/robi/internal/storage/sqlite"
	"github.com/robilabs/robi/pkg/types"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubBreaker struct{ state string }

func (b stubBreaker) State() string { return b.state }

func TestHealthOK(t *testing.T) {
	h := NewHealthHandler(stubPinger{}, stubBreaker{state: "closed"})

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
	require.Equal(t, "ok", resp["storage"])
	require.Equal(t, "closed", resp["llm_circuit"])
}

func TestHealthDegradedWhenStorageUnreachable(t *testing.T) {
	h := NewHealthHandler(stubPinger{err: errors.New("connection refused")}, nil)

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "degraded", resp["status"])
	require.Equal(t, "unreachable", resp["storage"])
}

func TestHealthRejectsNonGet(t *testing.T) {
	h := NewHealthHandler(stubPinger{}, nil)

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRestoreReturnsKnownState(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = store.UpsertPerson(ctx, "p1", "Ana")
	require.NoError(t, err)
	require.NoError(t, store.AddFaceEmbedding(ctx, &types.FaceEmbedding{
		PersonID: "p1", Embedding: []byte{0x01, 0x02, 0x03},
	}))
	cocina, err := store.UpsertZone(ctx, &types.Zone{Name: "cocina", Category: types.ZoneKitchen, Accessible: true})
	require.NoError(t, err)
	salon, err := store.UpsertZone(ctx, &types.Zone{Name: "salón", Category: types.ZoneLiving, Accessible: true})
	require.NoError(t, err)
	require.NoError(t, store.LinkZones(ctx, &types.ZonePath{FromZoneID: cocina.ID, ToZoneID: salon.ID}))
	require.NoError(t, store.SetCurrentZone(ctx, "cocina"))
	_, err = store.SaveMemory(ctx, &types.Memory{
		PersonID: "p1", Type: types.MemoryGeneral, Content: "le gusta el té", Importance: 5,
	})
	require.NoError(t, err)

	h := NewRestoreHandler(store, nil)

	rec := httptest.NewRecorder()
	h.GetRestore(rec, httptest.NewRequest(http.MethodGet, "/api/restore", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		People []struct {
			types.Person
			FaceEmbeddings []*types.FaceEmbedding `json:"face_embeddings"`
		} `json:"people"`
		Zones       []*types.Zone     `json:"zones"`
		ZonePaths   []*types.ZonePath `json:"zone_paths"`
		CurrentZone string            `json:"current_zone"`
		Memories    []*types.Memory   `json:"recent_memories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.People, 1)
	require.Equal(t, "Ana", resp.People[0].Name)
	require.Len(t, resp.People[0].FaceEmbeddings, 1)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, resp.People[0].FaceEmbeddings[0].Embedding)
	require.Len(t, resp.Zones, 2)
	require.Len(t, resp.ZonePaths, 1)
	require.Equal(t, "cocina", resp.CurrentZone)
	require.Len(t, resp.Memories, 1)
	require.Equal(t, "le gusta el té", resp.Memories[0].Content)
}

func TestRestoreEmptyStoreSerializesEmptyArrays(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewRestoreHandler(store, nil)

	rec := httptest.NewRecorder()
	h.GetRestore(rec, httptest.NewRequest(http.MethodGet, "/api/restore", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp["people"])
	require.NotNil(t, resp["zones"])
	require.NotNil(t, resp["zone_paths"])
	require.NotNil(t, resp["recent_memories"])
}
