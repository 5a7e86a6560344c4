package gbe

import (
	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// PredictedKind tags the outcome computed at bullet-fire time (§3, §4.1
// step 6) so reward shaping does not have to wait for the bullet to land.
type PredictedKind string

const (
	PredictedNone               PredictedKind = "none"
	PredictedPlayer              PredictedKind = "player"
	PredictedAI                  PredictedKind = "ai"
	PredictedHQ                  PredictedKind = "hq"
	PredictedTileDestructible    PredictedKind = "tile_destructible"
	PredictedTileNonDestructible PredictedKind = "tile_non_destructible"
)

// PredictedResult is the fire-time outcome tag. TargetID is set only for
// PredictedAI.
type PredictedResult struct {
	Kind     PredictedKind
	TargetID string
}

// Bullet is one in-flight projectile. Direction is integer, one axis
// non-zero; Speed is integer pixels stepped per tick.
type Bullet struct {
	ID        string
	OwnerID   string
	X, Y      int
	DirX      int
	DirY      int
	Speed     int
	Radius    int
	Predicted PredictedResult

	firedTick uint64 // the tick it was created on; never collides with owner on this tick
}

// stepResult reports what happened to a bullet during one substep.
type stepResult int

const (
	stepContinue stepResult = iota
	stepConsumedNoEvent
	stepConsumedTile
	stepConsumedTank
)

// Step advances a bullet by `max(|Δx|,|Δy|)` integer DDA substeps (§4.5),
// testing tile overlap then tank overlap at every pixel. It mutates the
// grid when a destructible tile is hit and returns the engine events, tile
// changes, and damaged/destroyed tanks produced this tick.
func (b *Bullet) Step(grid *mapdata.Grid, tanks map[string]*Tank, tick uint64) bulletOutcome {
	var out bulletOutcome
	// direction is a unit vector (one axis +/-1); Δx,Δy for this tick are
	// dir*speed, so max(|Δx|,|Δy|) substeps reduces to b.Speed substeps.
	for i := 0; i < b.Speed; i++ {
		b.X += sign(b.DirX)
		b.Y += sign(b.DirY)

		if !grid.InBounds(b.X, b.Y) {
			out.consumed = true
			return out
		}

		// tile test precedes tank test at the same pixel (§4.5)
		tileID, _ := grid.TileAt(b.X, b.Y)
		props, err := mapdata.PropsOf(tileID)
		if err == nil {
			if props.BlocksBullet {
				out.consumed = true
				out.hitEdgeX, out.hitEdgeY = snapToTileEdge(grid, b.X, b.Y, b.DirX, b.DirY)
				out.event = "fx_hit_tile"
				return out
			}
			if props.Destructible {
				grid.SetTileAt(b.X, b.Y, mapdata.TileSoil)
				out.tileChanged = true
				out.tileX, out.tileY = b.X/grid.TileSize, b.Y/grid.TileSize
				if tileID == mapdata.TilePlayerHQ {
					out.hqDestroyed = true
				}
				out.consumed = true
				out.hitEdgeX, out.hitEdgeY = snapToTileEdge(grid, b.X, b.Y, b.DirX, b.DirY)
				out.event = "fx_hit_tile"
				return out
			}
		}

		// tank overlap: circle (bullet) vs bound-rect (tank)
		for id, t := range tanks {
			if id == b.OwnerID && tick == b.firedTick {
				continue
			}
			if !t.Alive() {
				continue
			}
			x0, y0, x1, y1 := t.BoundRect()
			if circleOverlapsRect(b.X, b.Y, b.Radius, x0, y0, x1, y1) {
				out.consumed = true
				out.hitTankID = id
				out.event = "fx_hit"
				return out
			}
		}
	}
	return out
}

type bulletOutcome struct {
	consumed    bool
	event       string
	hitTankID   string
	tileChanged bool
	tileX, tileY int
	hqDestroyed bool
	hitEdgeX, hitEdgeY int
}

func circleOverlapsRect(cx, cy, r, x0, y0, x1, y1 int) bool {
	closestX := clampInt(cx, x0, x1)
	closestY := clampInt(cy, y0, y1)
	dx := cx - closestX
	dy := cy - closestY
	return dx*dx+dy*dy <= r*r
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// snapToTileEdge snaps the hit effect point to the hit tile's edge on the
// bullet's direction axis, for visual correctness (§4.5 edge policies).
func snapToTileEdge(grid *mapdata.Grid, x, y, dirX, dirY int) (int, int) {
	ts := grid.TileSize
	if dirX != 0 {
		col := x / ts
		if dirX > 0 {
			return col * ts, y
		}
		return (col+1)*ts - 1, y
	}
	if dirY != 0 {
		row := y / ts
		if dirY > 0 {
			return x, row * ts
		}
		return x, (row+1)*ts - 1
	}
	return x, y
}

// PredictOutcome computes the predicted result along a bullet's
// ray-with-LOS at fire time (§4.1 step 6, §4.5): walks tile-by-tile and
// tank-by-tank along the fire direction until something blocks or is hit.
func PredictOutcome(grid *mapdata.Grid, tanks map[string]*Tank, ownerID string, x, y, dirX, dirY, speed, radius int, maxRange int) PredictedResult {
	ts := grid.TileSize
	cx, cy := x, y
	for i := 0; i < maxRange; i++ {
		cx += dirX * ts
		cy += dirY * ts
		if !grid.InBounds(cx, cy) {
			return PredictedResult{Kind: PredictedNone}
		}
		tileID, _ := grid.TileAt(cx, cy)
		props, err := mapdata.PropsOf(tileID)
		if err == nil {
			if tileID == mapdata.TilePlayerHQ {
				return PredictedResult{Kind: PredictedHQ}
			}
			if props.Destructible {
				return PredictedResult{Kind: PredictedTileDestructible}
			}
			if props.BlocksBullet {
				return PredictedResult{Kind: PredictedTileNonDestructible}
			}
		}
		for id, t := range tanks {
			if id == ownerID || !t.Alive() {
				continue
			}
			x0, y0, x1, y1 := t.BoundRect()
			if circleOverlapsRect(cx, cy, radius, x0, y0, x1, y1) {
				if t.Role == protocol.RolePlayer {
					return PredictedResult{Kind: PredictedPlayer}
				}
				return PredictedResult{Kind: PredictedAI, TargetID: id}
			}
		}
	}
	return PredictedResult{Kind: PredictedNone}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
