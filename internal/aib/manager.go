package aib

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"tankarena/internal/config"
	"tankarena/internal/gbe"
	"tankarena/internal/mapdata"
	"tankarena/internal/msclient"
)

// sessionSummary is GET /sessions' row shape; the AI backend links
// internal/gbe already (for LoadTankDefs), so it decodes session rows
// straight into gbe.SessionSummary rather than duplicating the struct.
type sessionSummary = gbe.SessionSummary

// Manager polls the game backend's session list and keeps one sessionWorker
// running per live session, grounded on internal/chat/listener.go's
// reconnect-loop idiom generalized from one socket to a fleet of sockets
// whose membership itself must be polled for.
type Manager struct {
	cfg     config.AIBConfig
	ms      *msclient.Client
	http    *http.Client
	persist *persistenceWorker

	mapsDir   string
	defsDir   string
	idleTicks int

	mu        sync.Mutex
	workers   map[string]*sessionWorker
	gridCache map[string]*mapdata.Grid
	defsCache *tankDefLookup

	seed int64
}

// NewManager constructs a manager ready to Run. mapsDir/defsDir are the
// same on-disk directories the game backend loads from (§4.3: "the AI
// backend loads the map grid and tank-definition table directly from
// disk rather than over the wire"); idleTicks is the same idle-tick
// threshold the game backend's reward tuning uses (config.RewardTuning.
// IdleTicks), shared so a tank's idleTicks/idleThreshold feature ratio
// means the same thing on both sides of the wire.
func NewManager(cfg config.AIBConfig, mapsDir, defsDir string, idleTicks int) *Manager {
	ms := msclient.New(cfg.MSBaseURL)
	m := &Manager{
		cfg:       cfg,
		ms:        ms,
		http:      &http.Client{Timeout: 10 * time.Second},
		mapsDir:   mapsDir,
		defsDir:   defsDir,
		idleTicks: idleTicks,
		workers:   make(map[string]*sessionWorker),
		gridCache: make(map[string]*mapdata.Grid),
		seed:      time.Now().UnixNano(),
	}
	m.persist = newPersistenceWorker(ms, m.onSaveResult)
	return m
}

func (m *Manager) onSaveResult(sessionID string, latency time.Duration, err error) {
	saveLatencyHistogram.Observe(latency.Seconds())
	if err != nil {
		saveFailuresCounter.Inc()
	}
}

// Run polls GBE's session list at cfg.PollInterval until the stop channel
// is closed; callers typically run this in its own
// goroutine for the lifetime of the process.
func (m *Manager) Run(stop <-chan struct{}) {
	go m.persist.Run()

	interval := time.Duration(m.cfg.PollInterval * float64(time.Second))
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			m.shutdown()
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Manager) poll() {
	summaries, err := m.fetchSessions()
	if err != nil {
		log.Printf("aib: poll sessions failed: %v", err)
		return
	}

	live := make(map[string]sessionSummary, len(summaries))
	for _, s := range summaries {
		live[s.SessionID] = s
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range live {
		if _, ok := m.workers[id]; !ok {
			m.startWorkerLocked(id, s)
		}
	}

	for id, w := range m.workers {
		if _, ok := live[id]; !ok {
			w.Stop()
			w.release()
			delete(m.workers, id)
		}
	}

	activeSessionsGauge.Set(float64(len(m.workers)))
}

func (m *Manager) fetchSessions() ([]sessionSummary, error) {
	resp, err := m.http.Get(m.cfg.GBEBaseURL + "/sessions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aib: gbe /sessions returned %d", resp.StatusCode)
	}
	var out struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// startWorkerLocked spins up a sessionWorker for a newly-seen session. Must
// be called with m.mu held.
func (m *Manager) startWorkerLocked(id string, s sessionSummary) {
	grid, err := m.gridFor(s.MapName)
	if err != nil {
		log.Printf("aib: session %s: load map %s failed: %v", id, s.MapName, err)
		return
	}
	defs, err := m.tankDefsOnce()
	if err != nil {
		log.Printf("aib: session %s: load tank defs failed: %v", id, err)
		return
	}

	mapKey := s.MapKey
	if mapKey == "" {
		mapKey = normalizeMapKey(s.MapName)
	}
	modelKey := s.ModelKey
	if modelKey == "" {
		modelKey = fmt.Sprintf("tank-ai-dqn-%s", mapKey)
	}

	w, err := newSessionWorker(m.cfg, m.ms, m.persist, id, s.MapName, mapKey, modelKey,
		grid, defs, m.idleTicks, m.seed)
	if err != nil {
		log.Printf("aib: session %s: dial stream failed: %v", id, err)
		return
	}
	m.workers[id] = w
	go w.Run()
	log.Printf("aib: attached session %s map=%s mapKey=%s modelKey=%s", id, s.MapName, mapKey, modelKey)
}

func (m *Manager) gridFor(mapName string) (*mapdata.Grid, error) {
	if g, ok := m.gridCache[mapName]; ok {
		return g, nil
	}
	g, err := mapdata.LoadGrid(filepath.Join(m.mapsDir, mapName))
	if err != nil {
		return nil, err
	}
	m.gridCache[mapName] = g
	return g, nil
}

func (m *Manager) tankDefsOnce() (*tankDefLookup, error) {
	if m.defsCache != nil {
		return m.defsCache, nil
	}
	defs, err := gbe.LoadTankDefs(m.defsDir)
	if err != nil {
		return nil, err
	}
	m.defsCache = newTankDefLookup(defs)
	return m.defsCache, nil
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.workers {
		w.Stop()
		w.release()
		delete(m.workers, id)
	}
	m.persist.Stop()
}
