package gbe

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"tankarena/internal/config"
	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// generateID mints a random hex identifier, matching the control plane's
// own session-id generation idiom.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Registry is the cross-session mutable structure (§5): append/remove
// only, so that the AIB's poll-list and the tick-sweep goroutine always
// see a consistent snapshot.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	engineCfg config.EngineConfig
	weights   config.RewardWeights
	tuning    config.RewardTuning

	mapsDir string
	defsDir string

	allocator ModelAllocator
}

// ModelAllocator is the subset of the model-store client the registry needs
// to mint a modelKey at session-creation time.
type ModelAllocator interface {
	Allocate(mapKey, baseKey string) (modelKey string, isNew bool, err error)
}

// NewRegistry constructs an empty session registry.
func NewRegistry(engineCfg config.EngineConfig, weights config.RewardWeights, tuning config.RewardTuning, mapsDir, defsDir string, allocator ModelAllocator) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		engineCfg: engineCfg,
		weights:   weights,
		tuning:    tuning,
		mapsDir:   mapsDir,
		defsDir:   defsDir,
		allocator: allocator,
	}
}

// SessionSummary is one row of GET /sessions.
type SessionSummary struct {
	SessionID string `json:"sessionId"`
	Tick      uint64 `json:"tick"`
	GameOver  bool   `json:"gameOver"`
	Players   int    `json:"players"`
	MapName   string `json:"mapName"`
	ModelKey  string `json:"modelKey"`
	MapKey    string `json:"mapKey"`
}

// CreateSession loads a map and tank-definition table, allocates a model
// key, and spawns the requester's player tank. maxEnemiesAlive, if > 0,
// overrides the configured cap for this session only.
func (r *Registry) CreateSession(mapName string, maxEnemiesAlive int) (*Session, string, error) {
	grid, err := mapdata.LoadGrid(filepath.Join(r.mapsDir, mapName))
	if err != nil {
		return nil, "", errors.Wrapf(err, "gbe: load map %s", mapName)
	}
	defRows, err := loadTankDefRows(r.defsDir)
	if err != nil {
		return nil, "", errors.Wrap(err, "gbe: load tank defs")
	}
	defs := make(map[string]protocol.TankDef, len(defRows))
	for _, row := range defRows {
		defs[row.TankLabel] = row
	}

	engineCfg := r.engineCfg
	if maxEnemiesAlive > 0 {
		engineCfg.MaxEnemiesAlive = maxEnemiesAlive
	}

	mapKey := normalizeMapKey(mapName)
	modelKey := ""
	if r.allocator != nil {
		if key, _, err := r.allocator.Allocate(mapKey, "tank-ai-dqn"); err == nil {
			modelKey = key
		}
	}

	sessionID := generateID()
	seed := time.Now().UnixNano()
	s := NewSession(sessionID, mapName, mapKey, grid, defs, defRows, seed, engineCfg, r.weights, r.tuning)
	s.ModelKey = modelKey

	playerID, err := s.spawnPlayer()
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	r.sessions[sessionID] = s
	r.mu.Unlock()

	go r.runLoop(s)

	return s, playerID, nil
}

// JoinSession spawns an additional player tank on an existing session.
func (r *Registry) JoinSession(sessionID string) (*Session, string, error) {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil, "", ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	playerID, err := s.spawnPlayer()
	if err != nil {
		return nil, "", err
	}
	return s, playerID, nil
}

// Get returns a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns a stable summary snapshot of every live session.
func (r *Registry) List() []SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.Lock()
		out = append(out, SessionSummary{
			SessionID: s.ID,
			Tick:      s.Tick,
			GameOver:  s.GameOver,
			Players:   len(s.Tanks),
			MapName:   s.MapName,
			ModelKey:  s.ModelKey,
			MapKey:    s.MapKey,
		})
		s.mu.Unlock()
	}
	return out
}

// remove drops a session from the registry (scheduled removal, §4.1 step
// 10, or no-subscribers-remain per §3).
func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// normalizeMapKey derives the map-key glossary term from a map file name.
func normalizeMapKey(mapName string) string {
	key := mapName
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			key = key[:i]
			break
		}
	}
	return key
}
