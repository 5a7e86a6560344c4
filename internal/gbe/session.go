package gbe

import (
	"sync"

	"tankarena/internal/config"
	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// Subscriber is one socket attached to a session's duplex stream.
type Subscriber struct {
	ID       string
	Role     protocol.Role
	PlayerID string
	DebugAI  bool
	DebugGBE bool

	// debug label bookkeeping (§4.1 "debug channels"): labels already sent
	// to this socket, tracked independently per channel.
	aiLabelsSent  bool
	gbeLabelsSent bool

	Send func(v any) error // true subscribers send over a websocket; tests may stub this
}

// episodeAccumulator is the in-flight inference-episode window entry for
// one AI tank (design notes: rolling window of the 10 most recent closed
// episodes).
type episodeAccumulator struct {
	steps      int
	rewardSum  float64
	hits       int
	startTick  uint64
}

type episodeRecord struct {
	reward     float64
	ticks      uint64
	won        bool
}

// Session is one live game: a map, its tanks and bullets, subscriber
// sockets, and all bookkeeping the tick step needs (§3).
type Session struct {
	mu sync.Mutex

	ID         string
	MapName    string
	MapKey     string
	Grid       *mapdata.Grid
	TankDefs   map[string]protocol.TankDef // keyed by tank_label
	TankDefRows []protocol.TankDef          // file order, for deterministic first-match lookups

	Tick     uint64
	RNGSeed  int64
	rng      *rngState

	Tanks       map[string]*Tank
	Bullets     map[string]*Bullet
	AIRuntimes  map[string]*AIRuntime

	Subscribers map[string]*Subscriber

	// append-only input lists (§5): drained at the start of each tick step.
	inputMu            sync.Mutex
	playerInputs   []protocol.InputMessage
	aiInputs       []protocol.InputMessage
	aiInputQueues  map[string][]protocol.InputMessage // per-AI-tank FIFO

	PendingEvents   []protocol.Event
	TileChanges     []protocol.TileChange

	AIRewardAccum map[string]map[string]float64 // tankID -> reason -> value, accumulated since last transition

	GameOver       bool
	GameOverReason string
	ScheduledRemovalTick uint64
	HasScheduledRemoval  bool

	ModelKey string

	Episodes map[string]*episodeAccumulator
	EpisodeHistory map[string][]episodeRecord // rolling window, capped at 10

	SpawnTimer int

	IDs *protocol.IDTable

	LastSnapshot *protocol.StateSnapshot
	LastTransitionState *protocol.StateSnapshot

	EngineCfg config.EngineConfig
	Weights   config.RewardWeights
	Tuning    config.RewardTuning

	playerSpawns []mapdata.Point
	aiSpawns     []mapdata.Point

	lastAIDisconnectLog uint64
	hadAISubscriberLastTick bool

	lastAiError string
}

// NewSession constructs a session in its initial (pre-first-tick) state.
func NewSession(id, mapName, mapKey string, grid *mapdata.Grid, defs map[string]protocol.TankDef, defRows []protocol.TankDef, seed int64, engineCfg config.EngineConfig, weights config.RewardWeights, tuning config.RewardTuning) *Session {
	s := &Session{
		ID:            id,
		MapName:       mapName,
		MapKey:        mapKey,
		Grid:          grid,
		TankDefs:      defs,
		TankDefRows:   defRows,
		RNGSeed:       seed,
		rng:           newRNGState(seed),
		Tanks:         make(map[string]*Tank),
		Bullets:       make(map[string]*Bullet),
		AIRuntimes:    make(map[string]*AIRuntime),
		Subscribers:   make(map[string]*Subscriber),
		aiInputQueues: make(map[string][]protocol.InputMessage),
		AIRewardAccum: make(map[string]map[string]float64),
		Episodes:      make(map[string]*episodeAccumulator),
		EpisodeHistory: make(map[string][]episodeRecord),
		IDs:           protocol.NewIDTable(),
		EngineCfg:     engineCfg,
		Weights:       weights,
		Tuning:        tuning,
		playerSpawns:  grid.FindSpawnPoints(mapdata.TilePlayerSpawn),
		aiSpawns:      grid.FindSpawnPoints(mapdata.TileAISpawn),
	}
	return s
}

// MaxEnemyCount is min(|aiSpawnPoints|, configuredCap) (§3 invariant).
func (s *Session) MaxEnemyCount() int {
	if len(s.aiSpawns) < s.EngineCfg.MaxEnemiesAlive {
		return len(s.aiSpawns)
	}
	return s.EngineCfg.MaxEnemiesAlive
}

// aliveAICount returns the current count of alive AI tanks.
func (s *Session) aliveAICount() int {
	n := 0
	for _, t := range s.Tanks {
		if t.Role == protocol.RoleAI && t.Alive() {
			n++
		}
	}
	return n
}

// EnqueuePlayerInput appends a player input; safe for concurrent callers
// (§5: external endpoints only append).
func (s *Session) EnqueuePlayerInput(in protocol.InputMessage) {
	s.inputMu.Lock()
	s.playerInputs = append(s.playerInputs, in)
	s.inputMu.Unlock()
}

// EnqueueAIInput appends an AI input to the session's raw inbox; drained
// per-tank into FIFO queues during the tick's drain step.
func (s *Session) EnqueueAIInput(in protocol.InputMessage) {
	s.inputMu.Lock()
	s.aiInputs = append(s.aiInputs, in)
	s.inputMu.Unlock()
}

func (s *Session) drainRawInputs() ([]protocol.InputMessage, []protocol.InputMessage) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	p := s.playerInputs
	a := s.aiInputs
	s.playerInputs = nil
	s.aiInputs = nil
	return p, a
}

// AddSubscriber registers a new socket. A late AI join displaces the
// existing AI subscriber (§3 invariant): the caller is responsible for
// closing the displaced socket after this call returns its id.
func (s *Session) AddSubscriber(sub *Subscriber) (displacedAIID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Role == protocol.RoleAI {
		for id, existing := range s.Subscribers {
			if existing.Role == protocol.RoleAI && id != sub.ID {
				displacedAIID = id
				delete(s.Subscribers, id)
			}
		}
	}
	s.Subscribers[sub.ID] = sub
	return displacedAIID
}

// RemoveSubscriber drops bookkeeping for a socket that failed to send or
// disconnected (§5 suspension points).
func (s *Session) RemoveSubscriber(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Subscribers, id)
}

// HasAISubscriber reports whether an AI socket is currently attached.
func (s *Session) HasAISubscriber() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.Subscribers {
		if sub.Role == protocol.RoleAI {
			return true
		}
	}
	return false
}
