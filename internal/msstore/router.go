package msstore

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig contains all dependencies needed to construct the model
// store's HTTP router, mirroring internal/gbeapi.RouterConfig's
// dependency-injection shape.
type RouterConfig struct {
	Store *Store

	// DisableLogging disables the request logger middleware (useful for
	// benchmarks and tests).
	DisableLogging bool
}

// NewRouter constructs the model store's HTTP router. Pure: no goroutines,
// no listeners, safe to exercise with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{store: cfg.Store}

	r.Route("/api", func(r chi.Router) {
		r.Get("/rl-model-keys", h.handleListKeys)
		r.Get("/rl-allocate/{mapKey}", h.handleAllocate)
		r.Post("/rl-release/{mapKey}", h.handleRelease)
		r.Get("/rl-model/{modelKey}", h.handleGetModel)
		r.Post("/rl-model/{modelKey}", h.handlePutModel)
	})

	return r
}

type routerHandlers struct {
	store *Store
}

type allocateResponse struct {
	ModelKey   string `json:"modelKey"`
	IsNew      bool   `json:"isNew"`
	CopiedFrom string `json:"copiedFrom,omitempty"`
}

type listKeysResponse struct {
	Models []KeySummary `json:"models"`
}

func (h *routerHandlers) handleListKeys(w http.ResponseWriter, r *http.Request) {
	mapKey := r.URL.Query().Get("mapKey")
	writeJSON(w, listKeysResponse{Models: h.store.ListKeys(mapKey)})
}

func (h *routerHandlers) handleAllocate(w http.ResponseWriter, r *http.Request) {
	mapKey := chi.URLParam(r, "mapKey")
	baseKey := r.URL.Query().Get("baseKey")
	if baseKey == "" {
		baseKey = "tank-ai-dqn"
	}

	modelKey, isNew, clonedFrom, err := h.store.Allocate(mapKey, baseKey)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, allocateResponse{
		ModelKey:   modelKey,
		IsNew:      isNew,
		CopiedFrom: clonedFrom,
	})
}

func (h *routerHandlers) handleRelease(w http.ResponseWriter, r *http.Request) {
	mapKey := chi.URLParam(r, "mapKey")
	var body struct {
		ModelKey string `json:"modelKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ModelKey == "" {
		writeError(w, "modelKey is required", http.StatusBadRequest)
		return
	}
	h.store.Release(mapKey, body.ModelKey)
	writeJSON(w, map[string]bool{"ok": true})
}

func (h *routerHandlers) handleGetModel(w http.ResponseWriter, r *http.Request) {
	modelKey := chi.URLParam(r, "modelKey")
	rec, ok := h.store.Get(modelKey)
	if !ok {
		writeError(w, "model not found", http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func (h *routerHandlers) handlePutModel(w http.ResponseWriter, r *http.Request) {
	modelKey := chi.URLParam(r, "modelKey")
	var rec Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rec.ModelKey = modelKey
	if err := h.store.Upsert(rec); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	saved, _ := h.store.Get(modelKey)
	writeJSON(w, map[string]any{"ok": true, "updatedAt": saved.UpdatedAt})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
