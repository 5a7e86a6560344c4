package gbe

import (
	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// findFreeSpawnRect searches the 3x3 tile offsets around a spawn point for
// a tank-sized rect free of blocking tiles and other tanks, falling back to
// the spawn point itself if none is found (§4.1 step 2).
func (s *Session) findFreeSpawnRect(base mapdata.Point, boundMin, boundMax protocol.Offset) (int, int, bool) {
	ts := s.Grid.TileSize
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x := base.X + dx*ts
			y := base.Y + dy*ts
			x0, y0 := x+boundMin.X, y+boundMin.Y
			x1, y1 := x+boundMax.X, y+boundMax.Y
			if s.Grid.RectBlocked(x0, y0, x1, y1) {
				continue
			}
			if s.rectOccupiedByTank(x0, y0, x1, y1) {
				continue
			}
			return x, y, true
		}
	}
	return base.X, base.Y, false
}

func (s *Session) rectOccupiedByTank(x0, y0, x1, y1 int) bool {
	for _, t := range s.Tanks {
		if !t.Alive() {
			continue
		}
		tx0, ty0, tx1, ty1 := t.BoundRect()
		if x0 <= tx1 && x1 >= tx0 && y0 <= ty1 && y1 >= ty0 {
			return true
		}
	}
	return false
}

// spawnPlayer creates a player tank at the next free player spawn point.
// Bounded by |playerSpawnPoints| (§3).
func (s *Session) spawnPlayer() (string, error) {
	def, ok := firstPlayerDef(s.TankDefRows)
	if !ok {
		return "", ErrNoSpawnAvailable
	}
	playerTanks := 0
	for _, t := range s.Tanks {
		if t.Role == protocol.RolePlayer {
			playerTanks++
		}
	}
	if playerTanks >= len(s.playerSpawns) {
		return "", ErrNoSpawnAvailable
	}
	base := s.playerSpawns[playerTanks]
	x, y, _ := s.findFreeSpawnRect(base, def.BoundMin, def.BoundMax)

	id := generateID()
	t := NewTankFromDef(id, def, protocol.RolePlayer, x, y)
	s.Tanks[id] = t
	return id, nil
}

// spawnAI creates one AI tank at a randomly chosen free AI-spawn point
// (§4.1 step 2), bounded by MaxEnemyCount.
func (s *Session) spawnAI() {
	if len(s.aiSpawns) == 0 || s.aliveAICount() >= s.MaxEnemyCount() {
		return
	}
	def, ok := firstAIDef(s.TankDefRows)
	if !ok {
		s.lastAiError = "spawnAI: no AI tank definition"
		return
	}
	base := s.aiSpawns[s.rng.Intn(len(s.aiSpawns))]
	x, y, _ := s.findFreeSpawnRect(base, def.BoundMin, def.BoundMax)

	id := generateID()
	t := NewTankFromDef(id, def, protocol.RoleAI, x, y)
	s.Tanks[id] = t
	s.AIRuntimes[id] = NewAIRuntime(x/s.Grid.TileSize, y/s.Grid.TileSize)
}
