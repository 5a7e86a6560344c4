// Package aib is the AI backend: it polls the game backend's session list,
// opens a duplex stream per live session as role "ai", trains a per-session
// Q-model from transition messages, and sends back actions, grounded on
// the control-plane's own connect/reconnect/mirror idiom in
// internal/chat/listener.go generalized from one global chatroom to one
// stream per session.
package aib

import (
	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// tankState is this mirror's local copy of one tank's wire-visible fields
// (protocol.PlayerFields order), plus the AI-only observation fields
// carried on the matching RewardEntry.
type tankState struct {
	ID                 string
	Label              string
	Role               string
	X, Y               float64
	DirX, DirY         float64
	Health, MaxHealth  float64
	ShootCooldownTicks int
	IdleTicks          int
}

// bulletState mirrors one bullet row (protocol.BulletFields order).
type bulletState struct {
	ID           string
	X, Y         float64
	DirX, DirY   float64
	Radius       float64
}

// sessionMirror is one session's local reconstruction of GBE state, built
// by applying the initial snapshot and every subsequent delta (§4.3:
// "maintain a local mirror of session state by applying received deltas").
type sessionMirror struct {
	tick     uint64
	mapName  string
	gameOver bool
	tanks    map[string]*tankState
	bullets  map[string]*bulletState
	grid     *mapdata.Grid

	history map[string][]featureVector // tankID -> rolling window, most-recent last
}

func newSessionMirror(grid *mapdata.Grid) *sessionMirror {
	return &sessionMirror{
		tanks:   make(map[string]*tankState),
		bullets: make(map[string]*bulletState),
		grid:    grid,
		history: make(map[string][]featureVector),
	}
}

// applySnapshot resets the mirror to a full state snapshot, for a state
// frame that arrives without the delta flag set.
func (m *sessionMirror) applySnapshot(snap *protocol.StateSnapshot) {
	m.tick = snap.Tick
	m.mapName = snap.MapName
	m.gameOver = snap.GameOver
	m.tanks = make(map[string]*tankState, len(snap.Players))
	for _, row := range snap.Players {
		t := decodeTankRow(row)
		m.tanks[t.ID] = t
	}
	m.bullets = make(map[string]*bulletState, len(snap.Bullets))
	for _, row := range snap.Bullets {
		b := decodeBulletRow(row)
		m.bullets[b.ID] = b
	}
	for _, tc := range snap.MapTilesChanged {
		m.applyTileChange(tc)
	}
}

// applyDelta folds one delta message into the mirror (§4.6: upserts/
// removed per entity kind, unchanged scalar fields omitted).
func (m *sessionMirror) applyDelta(d *protocol.Delta) {
	m.tick = d.Tick
	if d.MapName != "" {
		m.mapName = d.MapName
	}
	if d.GameOver != nil {
		m.gameOver = *d.GameOver
	}
	if d.Players != nil {
		for _, row := range d.Players.Upserts {
			t := decodeTankRow(row)
			m.tanks[t.ID] = t
		}
		for _, id := range d.Players.Removed {
			delete(m.tanks, id)
			delete(m.history, id)
		}
	}
	if d.Bullets != nil {
		for _, row := range d.Bullets.Upserts {
			b := decodeBulletRow(row)
			m.bullets[b.ID] = b
		}
		for _, id := range d.Bullets.Removed {
			delete(m.bullets, id)
		}
	}
	for _, tc := range d.MapTilesChanged {
		m.applyTileChange(tc)
	}
}

func (m *sessionMirror) applyTileChange(tc protocol.TileChange) {
	if m.grid == nil {
		return
	}
	m.grid.SetTileAt(tc.X, tc.Y, mapdata.TileID(tc.Tile))
}

// applyObservations merges the AI-only dynamic fields carried on a
// transition's reward entries into the mirrored tank state, since those
// fields are never part of a player-visible snapshot/delta row.
func (m *sessionMirror) applyObservations(entries []protocol.RewardEntry) {
	for _, e := range entries {
		if t, ok := m.tanks[e.TankID]; ok {
			t.ShootCooldownTicks = e.ShootCooldownTicks
			t.IdleTicks = e.IdleTicks
		}
	}
}

func decodeTankRow(row []any) *tankState {
	get := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}
	return &tankState{
		ID:        asString(get(0)),
		Label:     asString(get(1)),
		Role:      asString(get(2)),
		X:         asFloat(get(3)),
		Y:         asFloat(get(4)),
		DirX:      asFloat(get(5)),
		DirY:      asFloat(get(6)),
		Health:    asFloat(get(7)),
		MaxHealth: asFloat(get(8)),
	}
}

func decodeBulletRow(row []any) *bulletState {
	get := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}
	return &bulletState{
		ID:     asString(get(0)),
		X:      asFloat(get(1)),
		Y:      asFloat(get(2)),
		DirX:   asFloat(get(3)),
		DirY:   asFloat(get(4)),
		Radius: asFloat(get(5)),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
