package aib

import (
	"math"
	"sort"

	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// featureVector is one tank's 27-scalar observation (§6).
type featureVector [protocol.FeatureCount]float32

// tankDefLookup is the subset of the tank-definition table the feature
// builder needs: per-label speed/cooldown, plus the AI-tank speed ceiling
// and the stable label ordering used for labelIndex.
type tankDefLookup struct {
	defs           map[string]protocol.TankDef
	labels         []string // sorted, stable index
	maxEnemySpeed  float64
}

func newTankDefLookup(defs map[string]protocol.TankDef) *tankDefLookup {
	labels := make([]string, 0, len(defs))
	maxSpeed := 0.0
	for label, d := range defs {
		labels = append(labels, label)
		if d.IsAI() && d.Speed > maxSpeed {
			maxSpeed = d.Speed
		}
	}
	sort.Strings(labels)
	if maxSpeed == 0 {
		maxSpeed = 1
	}
	return &tankDefLookup{defs: defs, labels: labels, maxEnemySpeed: maxSpeed}
}

func (l *tankDefLookup) labelIndex(label string) float64 {
	if len(l.labels) <= 1 {
		return 0
	}
	for i, s := range l.labels {
		if s == label {
			return float64(i) / float64(len(l.labels)-1)
		}
	}
	return 0
}

// buildFeatureVector computes the 27-scalar observation for one AI tank
// against the current mirror state (§6 field list, in order).
func buildFeatureVector(m *sessionMirror, t *tankState, defs *tankDefLookup, idleThreshold int) featureVector {
	var f featureVector
	if m.grid == nil {
		return f
	}
	mapSize := float64(m.grid.MapSize)
	def := defs.defs[t.Label]

	nearestPlayer, playerDist, hasPlayer := nearestTank(m, t, protocol.RolePlayer)

	hqX, hqY, hasHQ := nearestHQ(m.grid)
	var hqDx, hqDy, hqDist float64
	if hasHQ {
		hqDx, hqDy = hqX-t.X, hqY-t.Y
		hqDist = dist(t.X, t.Y, hqX, hqY)
	}

	i := 0
	put := func(v float64) {
		f[i] = float32(v)
		i++
	}
	put(t.X / mapSize)
	put(t.Y / mapSize)
	put(t.DirX)
	put(t.DirY)
	put(def.Speed / defs.maxEnemySpeed)
	put(safeDiv(t.Health, t.MaxHealth))
	put(safeDiv(float64(t.ShootCooldownTicks), float64(def.Cooldown)))

	if hasPlayer {
		put((nearestPlayer.X - t.X) / mapSize)
		put((nearestPlayer.Y - t.Y) / mapSize)
		put(playerDist / mapSize)
		put(boolF(rayReachesTank(m.grid, t, nearestPlayer)))
		put(safeDiv(nearestPlayer.Health, nearestPlayer.MaxHealth))
	} else {
		put(0)
		put(0)
		put(0)
		put(0)
		put(0)
	}

	put(hqDx / mapSize)
	put(hqDy / mapSize)
	put(hqDist / mapSize)
	put(boolF(hasHQ && rayReachesHQ(m.grid, t)))
	put(safeDiv(float64(t.IdleTicks), float64(idleThreshold)))
	put(defs.labelIndex(t.Label))

	for _, v := range tileWindow(m.grid, t.X, t.Y) {
		put((float64(v) + 1) / (float64(mapdata.MaxTileID) + 1))
	}

	return f
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func dist(x0, y0, x1, y1 float64) float64 {
	dx, dy := x1-x0, y1-y0
	return math.Sqrt(dx*dx + dy*dy)
}

func nearestTank(m *sessionMirror, from *tankState, role protocol.Role) (*tankState, float64, bool) {
	var best *tankState
	bestDist := 0.0
	for id, t := range m.tanks {
		if id == from.ID || string(role) != t.Role || t.Health <= 0 {
			continue
		}
		d := dist(from.X, from.Y, t.X, t.Y)
		if best == nil || d < bestDist {
			best, bestDist = t, d
		}
	}
	return best, bestDist, best != nil
}

// nearestHQ returns the top-left pixel corner of the first player-HQ tile
// found.
func nearestHQ(grid *mapdata.Grid) (x, y float64, ok bool) {
	pts := grid.FindSpawnPoints(mapdata.TilePlayerHQ)
	if len(pts) == 0 {
		return 0, 0, false
	}
	return float64(pts[0].X), float64(pts[0].Y), true
}

// rayReachesTank walks an axis-aligned ray from "from" along its current
// heading and reports whether it reaches target's tile before a
// blocks-bullet tile, mirroring internal/gbe/rewards.go's rayReachesRect
// (this mirror has no Tank.BoundRect, so the target's own tile cell
// stands in for its hit rect).
func rayReachesTank(grid *mapdata.Grid, from, target *tankState) bool {
	maxRange := grid.MapSize / grid.TileSize
	ts := float64(grid.TileSize)
	x, y := from.X, from.Y
	tx, ty := int(target.X)/grid.TileSize, int(target.Y)/grid.TileSize
	for n := 0; n < maxRange; n++ {
		x += from.DirX * ts
		y += from.DirY * ts
		id, ok := grid.TileAt(int(x), int(y))
		if !ok {
			return false
		}
		if int(x)/grid.TileSize == tx && int(y)/grid.TileSize == ty {
			return true
		}
		props, err := mapdata.PropsOf(id)
		if err != nil || props.BlocksBullet {
			return false
		}
	}
	return false
}

func rayReachesHQ(grid *mapdata.Grid, from *tankState) bool {
	maxRange := grid.MapSize / grid.TileSize
	ts := float64(grid.TileSize)
	x, y := from.X, from.Y
	for n := 0; n < maxRange; n++ {
		x += from.DirX * ts
		y += from.DirY * ts
		id, ok := grid.TileAt(int(x), int(y))
		if !ok {
			return false
		}
		if id == mapdata.TilePlayerHQ {
			return true
		}
		props, err := mapdata.PropsOf(id)
		if err != nil || props.BlocksBullet {
			return false
		}
	}
	return false
}

// tileWindow returns the 9 tile ids in row-major order around the tank's
// tile cell; out-of-bounds cells are treated as steel (fully blocking).
func tileWindow(grid *mapdata.Grid, x, y float64) [9]int {
	var out [9]int
	tx, ty := int(x)/grid.TileSize, int(y)/grid.TileSize
	i := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			id, ok := grid.TileAt((tx+dx)*grid.TileSize, (ty+dy)*grid.TileSize)
			if !ok {
				out[i] = int(mapdata.TileSteel)
			} else {
				out[i] = int(id)
			}
			i++
		}
	}
	return out
}
