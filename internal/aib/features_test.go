package aib

import (
	"testing"

	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// buildTestGrid returns a 5x5 all-soil grid (TileSize 32, MapSize 160) with
// one player-HQ tile placed at tile (4,4).
func buildTestGrid() *mapdata.Grid {
	const n = 5
	tiles := make([][]mapdata.TileID, n)
	for r := range tiles {
		tiles[r] = make([]mapdata.TileID, n)
		for c := range tiles[r] {
			tiles[r][c] = mapdata.TileSoil
		}
	}
	tiles[4][4] = mapdata.TilePlayerHQ
	return &mapdata.Grid{MapSize: n * 32, TileSize: 32, Tiles: tiles}
}

func TestBuildFeatureVectorLength(t *testing.T) {
	grid := buildTestGrid()
	m := newSessionMirror(grid)
	tank := &tankState{ID: "ai-1", Label: "normal_en", Role: "ai", X: 64, Y: 64, DirX: 1, DirY: 0, Health: 80, MaxHealth: 100}
	m.tanks[tank.ID] = tank

	defs := newTankDefLookup(map[string]protocol.TankDef{
		"normal_en": {TankLabel: "normal_en", Speed: 2.0, Cooldown: 30},
		"basic_pl":  {TankLabel: "basic_pl", Speed: 2.5, Cooldown: 20},
	})

	fv := buildFeatureVector(m, tank, defs, 20)
	if len(fv) != protocol.FeatureCount {
		t.Fatalf("feature vector length = %d, want %d", len(fv), protocol.FeatureCount)
	}
}

func TestBuildFeatureVectorZeroFillsWithNoPlayerPresent(t *testing.T) {
	grid := buildTestGrid()
	m := newSessionMirror(grid)
	tank := &tankState{ID: "ai-1", Label: "normal_en", Role: "ai", X: 64, Y: 64, Health: 100, MaxHealth: 100}
	m.tanks[tank.ID] = tank
	defs := newTankDefLookup(map[string]protocol.TankDef{"normal_en": {TankLabel: "normal_en", Speed: 2.0, Cooldown: 30}})

	fv := buildFeatureVector(m, tank, defs, 20)
	// Indices 7..11 are the five player-relative fields; with no player on
	// the mirror they must all be zero rather than garbage.
	for i := 7; i <= 11; i++ {
		if fv[i] != 0 {
			t.Errorf("feature[%d] = %f, want 0 with no player present", i, fv[i])
		}
	}
}

func TestTileWindowTreatsOutOfBoundsAsSteel(t *testing.T) {
	grid := buildTestGrid()
	window := tileWindow(grid, 0, 0) // top-left tile: 5 of its 9 neighbors are out of bounds
	steelCount := 0
	for _, id := range window {
		if mapdata.TileID(id) == mapdata.TileSteel {
			steelCount++
		}
	}
	if steelCount == 0 {
		t.Fatal("expected out-of-bounds neighbors of the corner tile to read as steel")
	}
}

func TestLabelIndexIsStableAndBounded(t *testing.T) {
	defs := newTankDefLookup(map[string]protocol.TankDef{
		"normal_en": {TankLabel: "normal_en"},
		"fast_en":   {TankLabel: "fast_en"},
		"basic_pl":  {TankLabel: "basic_pl"},
	})
	a := defs.labelIndex("normal_en")
	b := defs.labelIndex("normal_en")
	if a != b {
		t.Fatalf("labelIndex is not stable across calls: %f vs %f", a, b)
	}
	if a < 0 || a > 1 {
		t.Fatalf("labelIndex out of [0,1] range: %f", a)
	}
	if defs.labelIndex("unknown_label") != 0 {
		t.Fatal("labelIndex of an unknown label should default to 0")
	}
}

func TestPushWindowCapsAtFrameStackDepth(t *testing.T) {
	var window []featureVector
	for i := 0; i < protocol.FrameStackDepth+3; i++ {
		var fv featureVector
		fv[0] = float32(i)
		window = pushWindow(window, fv)
	}
	if len(window) != protocol.FrameStackDepth {
		t.Fatalf("window length = %d, want %d", len(window), protocol.FrameStackDepth)
	}
	// oldest frames should have been dropped; window[0] carries the value
	// pushed (FrameStackDepth+3 - FrameStackDepth) iterations ago.
	wantOldest := float32(3)
	if window[0][0] != wantOldest {
		t.Fatalf("window[0][0] = %f, want %f (oldest retained frame)", window[0][0], wantOldest)
	}
}

func TestStackWindowZeroPadsUntilFull(t *testing.T) {
	var window []featureVector
	var fv featureVector
	fv[0] = 1
	window = pushWindow(window, fv)

	stacked, ok := stackWindow(window)
	if !ok {
		t.Fatal("stackWindow should report ok with at least one frame pushed")
	}
	// A single frame is padded on the left with (FrameStackDepth-1) zero
	// frames; the real frame lands at the last slot's feature offset.
	lastSlotOffset := (protocol.FrameStackDepth - 1) * protocol.FeatureCount
	if stacked[lastSlotOffset] != 1 {
		t.Fatalf("stacked[%d] = %f, want 1 (the one real frame)", lastSlotOffset, stacked[lastSlotOffset])
	}
	if stacked[0] != 0 {
		t.Fatalf("stacked[0] = %f, want 0 (zero-padded slot)", stacked[0])
	}
}

func TestStackWindowEmptyIsNotOK(t *testing.T) {
	if _, ok := stackWindow(nil); ok {
		t.Fatal("stackWindow(nil) should report ok=false")
	}
}
