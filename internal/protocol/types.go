// Package protocol defines the wire formats shared by the game backend, the
// AI backend, and the model store: state snapshots/deltas, transitions,
// stream input messages, and model payloads.
package protocol

// Role identifies the kind of subscriber attached to a session stream.
type Role string

const (
	RolePlayer Role = "player"
	RoleAI     Role = "ai"
)

// TankDef is one row of the tank-definition table (§6). Labels ending in
// "_en" are AI tanks; labels ending in "_pl" are player tanks.
type TankDef struct {
	TankLabel     string  `json:"tank_label"`
	Texture       string  `json:"texture"`
	Speed         float64 `json:"speed"`
	Cooldown      int     `json:"cooldown"`
	TankHitPoint  int     `json:"tank_hit_point"`
	BoundMin      Offset  `json:"bound_min"`
	BoundMax      Offset  `json:"bound_max"`
	ShellSize     int     `json:"shell_size"` // 1, 2, or 3
	ShellSpeed    int     `json:"shell_speed"`
	ShellColor    string  `json:"shell_color"` // red, green, blue
}

// Offset is an (x,y) pixel offset from a tank's 32x32 top-left origin.
type Offset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// IsAI reports whether a tank label denotes an AI-controlled tank.
func (d TankDef) IsAI() bool { return hasSuffix(d.TankLabel, "_en") }

// IsPlayer reports whether a tank label denotes a player-controlled tank.
func (d TankDef) IsPlayer() bool { return hasSuffix(d.TankLabel, "_pl") }

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

// Move is one of the four cardinal directions, or no movement.
type Move string

const (
	MoveNone  Move = ""
	MoveUp    Move = "move_up"
	MoveDown  Move = "move_down"
	MoveLeft  Move = "move_left"
	MoveRight Move = "move_right"
)

// JoinMessage is the {type:"join"} stream frame.
type JoinMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	PlayerID  string `json:"playerId,omitempty"`
}

// InputMessage is the {type:"input"} stream frame, and the shape of each
// element of the POST /session/{id}/ai-input events array.
type InputMessage struct {
	Type   string         `json:"type"`
	Role   Role           `json:"role"`
	TankID string         `json:"tankId"`
	Move   Move           `json:"move"`
	Fire   bool           `json:"fire"`
	Debug  map[string]any `json:"debug,omitempty"`
}

// DebugToggleMessage is the {type:"debug_ai_toggle"|"debug_gbe_toggle"} frame.
type DebugToggleMessage struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// PlayerFields is the fixed field order for one upserted player row:
// [id,label,role,x,y,dirX,dirY,health,maxHealth].
var PlayerFields = [...]string{"id", "label", "role", "x", "y", "dirX", "dirY", "health", "maxHealth"}

// BulletFields is the fixed field order for one upserted bullet row:
// [id,x,y,dirX,dirY,radius].
var BulletFields = [...]string{"id", "x", "y", "dirX", "dirY", "radius"}

// EntityUpsert carries upserts/removes for one entity kind in a delta.
type EntityUpsert struct {
	Upserts [][]any  `json:"upserts,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// StateSnapshot is the full per-tick session snapshot (§4.6).
type StateSnapshot struct {
	Tick            uint64           `json:"tick"`
	MapName         string           `json:"mapName"`
	Players         [][]any          `json:"players"`
	Bullets         [][]any          `json:"bullets"`
	Events          []Event          `json:"events,omitempty"`
	GameOver        bool             `json:"gameOver"`
	GameOverReason  string           `json:"gameOverReason,omitempty"`
	GameOverFx      []Event          `json:"gameOverFx,omitempty"`
	Stats           Stats            `json:"stats"`
	AIDebug         *DebugFrame      `json:"aiDebug,omitempty"`
	GBEDebug        *DebugFrame      `json:"gbeDebug,omitempty"`
	MapTilesChanged []TileChange     `json:"mapTilesChanged,omitempty"`
}

// Stats are the aggregate per-tick counters attached to every snapshot.
type Stats struct {
	PlayerCount int `json:"playerCount"`
	AliveCount  int `json:"aliveCount"`
	AICount     int `json:"aiCount"`
}

// TileChange records one destructible-tile mutation for this tick.
type TileChange struct {
	X     int          `json:"x"`
	Y     int          `json:"y"`
	Tile  int          `json:"tile"`
}

// DebugFrame is a compact metric channel: the first emit after a socket
// subscribes carries Labels; subsequent emits on that socket carry only
// Values in the established order.
type DebugFrame struct {
	Labels []string  `json:"labels,omitempty"`
	Values []float64 `json:"values"`
}

// Delta is the post-tick diff against the previous snapshot (§4.6).
type Delta struct {
	DeltaFlag       bool          `json:"delta"`
	Tick            uint64        `json:"tick"`
	MapName         string        `json:"mapName,omitempty"`
	Players         *EntityUpsert `json:"players,omitempty"`
	Bullets         *EntityUpsert `json:"bullets,omitempty"`
	Events          []Event       `json:"events,omitempty"`
	GameOver        *bool         `json:"gameOver,omitempty"`
	GameOverReason  *string       `json:"gameOverReason,omitempty"`
	GameOverFx      []Event       `json:"gameOverFx,omitempty"`
	Stats           *Stats        `json:"stats,omitempty"`
	AIDebug         *DebugFrame   `json:"aiDebug,omitempty"`
	GBEDebug        *DebugFrame   `json:"gbeDebug,omitempty"`
	MapTilesChanged []TileChange  `json:"mapTilesChanged,omitempty"`
}

// StateEnvelope wraps a state delta for transmission:
// {type:"state", state:delta}.
type StateEnvelope struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

// RewardEntry is one AI tank's accumulated reward for a transition, with the
// set of reasons that contributed this interval. ShootCooldownTicks and
// IdleTicks are carried here (rather than in the state snapshot's player
// row) because they are AI-training-only observation fields with no use
// to a player-facing client; this is the channel reserved for that kind
// of data (§6 distinguishes the player wire fields from the AI feature
// vector's ingredient list).
type RewardEntry struct {
	TankID             string             `json:"tankId"`
	Reward             float64            `json:"reward"`
	RewardReasons      map[string]float64 `json:"rewardReasons"`
	ShootCooldownTicks int                `json:"shootCooldownTicks"`
	IdleTicks          int                `json:"idleTicks"`
}

// TransitionMessage is the {type:"transition"} frame sent to AI sockets.
type TransitionMessage struct {
	Type      string        `json:"type"`
	PrevState *StateSnapshot `json:"prevState"`
	NextState *StateSnapshot `json:"nextState"`
	AIRewards []RewardEntry  `json:"aiRewards"`
	Tick      uint64         `json:"tick"`
}

// EpisodeLogMessage reports closed-episode rolling-window metrics for one
// AI tank (design notes: rolling window of the 10 most recent episodes).
type EpisodeLogMessage struct {
	Type       string  `json:"type"`
	TankID     string  `json:"tankId"`
	Episodes   int     `json:"episodes"`
	AvgReward  float64 `json:"avgReward"`
	AvgTimeToWin float64 `json:"avgTimeToWin"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
}

// Event is a typed fan-out event (adapted from the engine's
// event log shape; payloads are inlined rather than gob-encoded since the
// wire format here is JSON text frames, not an internal IPC channel).
type Event struct {
	Type    string         `json:"type"`
	Tick    uint64         `json:"tick"`
	TankID  string         `json:"tankId,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Model payload format (§6).

// WeightSpec describes one packed weight tensor within a model payload.
type WeightSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Dtype string `json:"dtype"` // always "float32"
}

// ModelTopology describes a model's shape.
type ModelTopology struct {
	Format     string `json:"format"` // "linear-q" | "mlp-q"
	StateSize  int    `json:"stateSize"`
	ActionSize int    `json:"actionSize"`
	HiddenSize int    `json:"hiddenSize,omitempty"`
}

// ModelPayload is the full wire representation of a model's weights.
type ModelPayload struct {
	ModelTopology      ModelTopology  `json:"modelTopology"`
	WeightSpecs        []WeightSpec   `json:"weightSpecs"`
	WeightDataBase64   string         `json:"weightDataBase64"`
	UserDefinedMetadata map[string]any `json:"userDefinedMetadata"`
}

// Action space (§6): index -> {move, fire}.
type Action struct {
	Move Move
	Fire bool
}

// ActionSpace is the fixed 10-action index -> {move, fire} table.
var ActionSpace = [10]Action{
	{MoveNone, false},
	{MoveUp, false},
	{MoveDown, false},
	{MoveLeft, false},
	{MoveRight, false},
	{MoveNone, true},
	{MoveUp, true},
	{MoveDown, true},
	{MoveLeft, true},
	{MoveRight, true},
}

const ActionCount = len(ActionSpace)

// FeatureCount is the per-tank feature vector length (§6): 18 scalars + 9
// tile-window values.
const FeatureCount = 27

// FrameStackDepth is the number of stacked feature vectors fed to a model.
const FrameStackDepth = 4

// StackedFeatureCount is FeatureCount * FrameStackDepth.
const StackedFeatureCount = FeatureCount * FrameStackDepth
