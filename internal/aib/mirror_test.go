package aib

import (
	"testing"

	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

func TestApplySnapshotThenDeltaRoundTrip(t *testing.T) {
	m := newSessionMirror(buildTestGrid())

	snap := &protocol.StateSnapshot{
		Tick:    1,
		MapName: "arena1.json",
		Players: [][]any{
			{"ai-1", "normal_en", "ai", 32.0, 32.0, 1.0, 0.0, 100.0, 100.0},
			{"p-1", "basic_pl", "player", 64.0, 64.0, -1.0, 0.0, 100.0, 100.0},
		},
		Bullets: [][]any{
			{"b-1", 10.0, 10.0, 1.0, 0.0, 4.0},
		},
	}
	m.applySnapshot(snap)

	if m.tick != 1 || m.mapName != "arena1.json" {
		t.Fatalf("snapshot not applied: tick=%d mapName=%q", m.tick, m.mapName)
	}
	if len(m.tanks) != 2 || len(m.bullets) != 1 {
		t.Fatalf("expected 2 tanks and 1 bullet, got %d tanks %d bullets", len(m.tanks), len(m.bullets))
	}
	ai := m.tanks["ai-1"]
	if ai == nil || ai.X != 32 || ai.Y != 32 {
		t.Fatalf("ai-1 not decoded correctly: %+v", ai)
	}

	delta := &protocol.Delta{
		DeltaFlag: true,
		Tick:      2,
		Players: &protocol.EntityUpsert{
			Upserts: [][]any{{"ai-1", "normal_en", "ai", 40.0, 32.0, 1.0, 0.0, 90.0, 100.0}},
			Removed: []string{"p-1"},
		},
		Bullets: &protocol.EntityUpsert{
			Removed: []string{"b-1"},
		},
	}
	m.applyDelta(delta)

	if m.tick != 2 {
		t.Fatalf("delta tick not applied: got %d", m.tick)
	}
	if _, ok := m.tanks["p-1"]; ok {
		t.Fatal("p-1 should have been removed by the delta")
	}
	if len(m.bullets) != 0 {
		t.Fatalf("expected bullet b-1 to be removed, got %d bullets", len(m.bullets))
	}
	ai = m.tanks["ai-1"]
	if ai == nil || ai.X != 40 || ai.Health != 90 {
		t.Fatalf("ai-1 was not upserted by the delta: %+v", ai)
	}
}

func TestApplyObservationsMergesAIOnlyFields(t *testing.T) {
	m := newSessionMirror(buildTestGrid())
	m.tanks["ai-1"] = &tankState{ID: "ai-1"}

	m.applyObservations([]protocol.RewardEntry{
		{TankID: "ai-1", ShootCooldownTicks: 5, IdleTicks: 12},
		{TankID: "ghost", ShootCooldownTicks: 99, IdleTicks: 99},
	})

	got := m.tanks["ai-1"]
	if got.ShootCooldownTicks != 5 || got.IdleTicks != 12 {
		t.Fatalf("observations not merged: %+v", got)
	}
	if _, ok := m.tanks["ghost"]; ok {
		t.Fatal("applyObservations must not create tank entries for unknown ids")
	}
}

func TestApplyDeltaRemovesHistoryForRemovedTanks(t *testing.T) {
	m := newSessionMirror(buildTestGrid())
	m.tanks["ai-1"] = &tankState{ID: "ai-1"}
	m.history["ai-1"] = []featureVector{{}}

	m.applyDelta(&protocol.Delta{
		Tick: 3,
		Players: &protocol.EntityUpsert{
			Removed: []string{"ai-1"},
		},
	})

	if _, ok := m.history["ai-1"]; ok {
		t.Fatal("expected history for a removed tank to be cleared")
	}
}

func TestApplyTileChangeUpdatesGrid(t *testing.T) {
	m := newSessionMirror(buildTestGrid())
	m.applyTileChange(protocol.TileChange{X: 32, Y: 32, Tile: int(mapdata.TileWater)})

	id, ok := m.grid.TileAt(32, 32)
	if !ok || id != mapdata.TileWater {
		t.Fatalf("tile change was not applied: id=%v ok=%v", id, ok)
	}
}
