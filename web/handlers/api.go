package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/pkg/types"
)

// restoreMemoryLimit caps how many memories the restore endpoint returns.
const restoreMemoryLimit = 20

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CircuitReporter exposes the LLM circuit breaker state.
type CircuitReporter interface {
	State() string
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	store   Pinger
	breaker CircuitReporter
}

// NewHealthHandler creates the health endpoint handler. The breaker may be
// nil when the configured provider is not wrapped in one.
func NewHealthHandler(store Pinger, breaker CircuitReporter) *HealthHandler {
	return &HealthHandler{store: store, breaker: breaker}
}

type healthResponse struct {
	Status     string `json:"status"`
	Storage    string `json:"storage"`
	LLMCircuit string `json:"llm_circuit,omitempty"`
}

func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{Status: "ok", Storage: "ok"}
	if err := h.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Storage = "unreachable"
	}
	if h.breaker != nil {
		resp.LLMCircuit = h.breaker.State()
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// RestoreHandler serves GET /api/restore, the state dump a robot pulls
// after a reboot to warm its local caches.
type RestoreHandler struct {
	store  storage.Store
	logger *zap.Logger
}

// NewRestoreHandler creates the restore endpoint handler.
func NewRestoreHandler(store storage.Store, logger *zap.Logger) *RestoreHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestoreHandler{store: store, logger: logger}
}

// restorePerson bundles a person with their stored face embeddings so the
// robot can rebuild its on-device recognition index in one round trip.
type restorePerson struct {
	*types.Person
	FaceEmbeddings []*types.FaceEmbedding `json:"face_embeddings"`
}

type restoreResponse struct {
	People      []restorePerson   `json:"people"`
	Zones       []*types.Zone     `json:"zones"`
	ZonePaths   []*types.ZonePath `json:"zone_paths"`
	CurrentZone string            `json:"current_zone,omitempty"`
	Memories    []*types.Memory   `json:"recent_memories"`
}

func (h *RestoreHandler) GetRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	resp := restoreResponse{
		People:    []restorePerson{},
		Zones:     []*types.Zone{},
		ZonePaths: []*types.ZonePath{},
		Memories:  []*types.Memory{},
	}

	people, err := h.store.ListPeople(ctx)
	if err != nil {
		h.logger.Error("restore: failed to list people", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	for _, p := range people {
		embeddings, err := h.store.ListFaceEmbeddings(ctx, p.PersonID)
		if err != nil {
			h.logger.Error("restore: failed to list embeddings",
				zap.String("person_id", p.PersonID), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if embeddings == nil {
			embeddings = []*types.FaceEmbedding{}
		}
		resp.People = append(resp.People, restorePerson{Person: p, FaceEmbeddings: embeddings})
	}

	zones, err := h.store.ListZones(ctx)
	if err != nil {
		h.logger.Error("restore: failed to list zones", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if zones != nil {
		resp.Zones = zones
	}
	for _, z := range zones {
		if z.Current {
			resp.CurrentZone = z.Name
		}
	}

	paths, err := h.store.ListZonePaths(ctx)
	if err != nil {
		h.logger.Error("restore: failed to list zone paths", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if paths != nil {
		resp.ZonePaths = paths
	}

	memories, err := h.store.RecentMemories(ctx, restoreMemoryLimit)
	if err != nil {
		h.logger.Error("restore: failed to list memories", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if memories != nil {
		resp.Memories = memories
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
