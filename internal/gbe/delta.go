package gbe

import (
	"reflect"

	"tankarena/internal/protocol"
)

// Snapshot locks the session and returns its current state snapshot, for
// callers outside the tick loop (HTTP create/join responses) that cannot
// rely on already holding s.mu.
func (s *Session) Snapshot() *protocol.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BuildSnapshot()
}

// BuildSnapshot renders the session's current state into the wire snapshot
// shape (§4.6), passing every id through the session's id-shortening table.
// Callers must hold s.mu (the tick loop already does; use Snapshot from
// outside it).
func (s *Session) BuildSnapshot() *protocol.StateSnapshot {
	snap := &protocol.StateSnapshot{
		Tick:           s.Tick,
		MapName:        s.MapName,
		GameOver:       s.GameOver,
		GameOverReason: s.GameOverReason,
		Events:         append([]protocol.Event(nil), s.PendingEvents...),
		MapTilesChanged: append([]protocol.TileChange(nil), s.TileChanges...),
	}
	for i := range snap.Events {
		if snap.Events[i].TankID != "" {
			snap.Events[i].TankID = s.IDs.ToNetworkID(snap.Events[i].TankID)
		}
	}

	alive := 0
	aiCount := 0
	for _, t := range s.Tanks {
		if t.Alive() {
			alive++
		}
		if t.Role == protocol.RoleAI {
			aiCount++
		}
		snap.Players = append(snap.Players, []any{
			s.IDs.ToNetworkID(t.ID), t.Label, string(t.Role),
			t.X, t.Y, t.DirX, t.DirY, t.Health, t.MaxHealth,
		})
	}
	snap.Stats = protocol.Stats{
		PlayerCount: len(s.Tanks),
		AliveCount:  alive,
		AICount:     aiCount,
	}

	for _, b := range s.Bullets {
		snap.Bullets = append(snap.Bullets, []any{
			s.IDs.ToNetworkID(b.ID), b.X, b.Y, b.DirX, b.DirY, b.Radius,
		})
	}

	return snap
}

// rowKey extracts the network id (first column) from an upsert row.
func rowKey(row []any) string {
	if len(row) == 0 {
		return ""
	}
	s, _ := row[0].(string)
	return s
}

// diffEntities compares two field-order row lists by id and returns the
// upserts (rows whose values changed or that are new) plus ids removed.
func diffEntities(prev, next [][]any) *protocol.EntityUpsert {
	prevByID := make(map[string][]any, len(prev))
	for _, row := range prev {
		prevByID[rowKey(row)] = row
	}
	nextByID := make(map[string][]any, len(next))
	for _, row := range next {
		nextByID[rowKey(row)] = row
	}

	out := &protocol.EntityUpsert{}
	for id, row := range nextByID {
		if old, ok := prevByID[id]; !ok || !reflect.DeepEqual(old, row) {
			out.Upserts = append(out.Upserts, row)
		}
	}
	for id := range prevByID {
		if _, ok := nextByID[id]; !ok {
			out.Removed = append(out.Removed, id)
		}
	}
	if len(out.Upserts) == 0 && len(out.Removed) == 0 {
		return nil
	}
	return out
}

// Diff computes the delta of next against prev (§4.6): unchanged scalar
// fields are omitted, entities move under upserts/removed. A nil prev
// treats every entity as new (the session's first broadcast, before any
// snapshot has been kept).
func Diff(prev, next *protocol.StateSnapshot) *protocol.Delta {
	d := &protocol.Delta{DeltaFlag: true, Tick: next.Tick}

	if prev == nil || prev.MapName != next.MapName {
		d.MapName = next.MapName
	}
	if prev == nil {
		d.Players = diffEntities(nil, next.Players)
		d.Bullets = diffEntities(nil, next.Bullets)
	} else {
		d.Players = diffEntities(prev.Players, next.Players)
		d.Bullets = diffEntities(prev.Bullets, next.Bullets)
	}
	if len(next.Events) > 0 {
		d.Events = next.Events
	}
	if len(next.MapTilesChanged) > 0 {
		d.MapTilesChanged = next.MapTilesChanged
	}
	if len(next.GameOverFx) > 0 {
		d.GameOverFx = next.GameOverFx
	}
	if prev == nil || prev.GameOver != next.GameOver {
		go_ := next.GameOver
		d.GameOver = &go_
	}
	if prev == nil || prev.GameOverReason != next.GameOverReason {
		if next.GameOverReason != "" {
			reason := next.GameOverReason
			d.GameOverReason = &reason
		}
	}
	if prev == nil || prev.Stats != next.Stats {
		stats := next.Stats
		d.Stats = &stats
	}
	d.AIDebug = next.AIDebug
	d.GBEDebug = next.GBEDebug

	return d
}
