package gbeapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"tankarena/internal/gbe"
	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// routerHandlers holds the dependencies for route setup.
type routerHandlers struct {
	registry *gbe.Registry
}

type createSessionRequest struct {
	MapName         string `json:"mapName"`
	MaxEnemiesAlive int    `json:"maxEnemiesAlive,omitempty"`
}

type createSessionResponse struct {
	SessionID string                  `json:"sessionId"`
	PlayerID  string                  `json:"playerId"`
	Map       *mapdata.Grid           `json:"map"`
	State     *protocol.StateSnapshot `json:"state"`
	ModelKey  string                  `json:"modelKey"`
	MapKey    string                  `json:"mapKey"`
}

type joinSessionResponse struct {
	PlayerID string                  `json:"playerId"`
	Map      *mapdata.Grid           `json:"map"`
	State    *protocol.StateSnapshot `json:"state"`
}

type listSessionsResponse struct {
	Sessions []gbe.SessionSummary `json:"sessions"`
}

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MapName == "" {
		writeError(w, "mapName is required", http.StatusBadRequest)
		return
	}

	s, playerID, err := h.registry.CreateSession(req.MapName, req.MaxEnemiesAlive)
	if err != nil {
		if errors.Is(err, gbe.ErrNoSpawnAvailable) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, createSessionResponse{
		SessionID: s.ID,
		PlayerID:  playerID,
		Map:       s.Grid,
		State:     s.Snapshot(),
		ModelKey:  s.ModelKey,
		MapKey:    s.MapKey,
	})
}

func (h *routerHandlers) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	s, playerID, err := h.registry.JoinSession(sessionID)
	if err != nil {
		if errors.Is(err, gbe.ErrSessionNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		if errors.Is(err, gbe.ErrNoSpawnAvailable) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, joinSessionResponse{
		PlayerID: playerID,
		Map:      s.Grid,
		State:    s.Snapshot(),
	})
}

func (h *routerHandlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, listSessionsResponse{Sessions: h.registry.List()})
}

// handleAIInput accepts a batch of AI tank inputs as the events array body
// of POST /session/{id}/ai-input (an alternative to the websocket duplex
// stream for stateless AI clients).
func (h *routerHandlers) handleAIInput(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	s, ok := h.registry.Get(sessionID)
	if !ok {
		writeError(w, gbe.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}

	var events []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	for _, raw := range events {
		in, ok := decodeAIInput(raw)
		if !ok {
			continue
		}
		s.EnqueueAIInput(in)
	}

	writeJSON(w, map[string]bool{"ok": true})
}

// Helper functions (package-level for reuse).

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
