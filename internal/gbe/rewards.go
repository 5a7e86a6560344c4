package gbe

import (
	"tankarena/internal/config"
	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// FiredShot records one shot fired this tick, for reward attribution
// against the shooter's and (if any) target's reward accumulators.
type FiredShot struct {
	OwnerID   string
	Predicted PredictedResult
}

// rewardInputs bundles everything the reward step (§4.1 step 9) needs for
// one tick, beyond the runtime already stored on the session.
type rewardInputs struct {
	weights config.RewardWeights
	tuning  config.RewardTuning
	grid    *mapdata.Grid
	tanks   map[string]*Tank
	runtime map[string]*AIRuntime // keyed by AI tank id
	shots   []FiredShot
	tick    uint64
}

// computeTickRewards applies the full reward-shaping rule for every alive
// AI tank and returns each tank's accumulated reason->value map for this
// tick. Design note (c): the blocked-move flag is cleared here, as part of
// reward application.
func computeTickRewards(in rewardInputs) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)

	for id, t := range in.tanks {
		if t.Role != protocol.RoleAI || !t.Alive() {
			continue
		}
		rt, ok := in.runtime[id]
		if !ok {
			continue
		}
		reasons := make(map[string]float64)

		if rayHitsNearestPlayer(in.grid, in.tanks, t) {
			reasons["playerAim"] += in.weights.PlayerAim
		}
		if rayHitsHQ(in.grid, t) {
			reasons["hqAim"] += in.weights.HqAim
		}
		if rt.IdleTicks > in.tuning.IdleTicks {
			reasons["idlePenalty"] += in.weights.IdlePenalty
		}
		tx, ty := t.X/in.grid.TileSize, t.Y/in.grid.TileSize
		if rt.VisitTile(tx, ty, in.tick) {
			reasons["mapTileTouched"] += in.weights.MapTileTouched
		}
		total := in.grid.MapSize / in.grid.TileSize
		total *= total
		if float64(len(rt.Visited)) < 0.75*float64(total) && in.tick-rt.LastVisitedTick > uint64(in.tuning.ExploreStallTicks) {
			reasons["exploreStallPenalty"] += in.weights.ExploreStallPenalty
		}
		if (t.DirX != rt.PrevDirX || t.DirY != rt.PrevDirY) && rt.TicksSinceDirChange < in.tuning.DirChangeCooldown {
			reasons["directionChangePenalty"] += in.weights.DirectionChangePenalty
		}
		if withinStuckArea(rt.StuckAreaCenter, tx, ty) {
			rt.StuckAreaTicks++
			if rt.StuckAreaTicks > in.tuning.StuckAreaTicks {
				reasons["stuckAreaPenalty"] += in.weights.StuckAreaPenalty
			}
		} else {
			rt.StuckAreaCenter = [2]int{tx, ty}
			rt.StuckAreaTicks = 0
		}
		if rt.BlockedMove {
			reasons["collisionPenalty"] += in.weights.CollisionPenalty
		}
		if t.Health <= 0 {
			reasons["death"] += in.weights.Death
		}

		out[id] = reasons

		// direction-change bookkeeping, after reward evaluated above
		if t.DirX != rt.PrevDirX || t.DirY != rt.PrevDirY {
			rt.PrevDirX, rt.PrevDirY = t.DirX, t.DirY
			rt.TicksSinceDirChange = 0
		} else {
			rt.TicksSinceDirChange++
		}

		// design note (c): clear blockedMove as part of reward application
		rt.resetTick()
	}

	// shot-keyed reasons: hitPlayer, destroyHQ, hitAlly, nonDestructiveShotPenalty,
	// destructiveShot (credited to the shooter), gotHit (credited to the target).
	for _, shot := range in.shots {
		shooter, isAI := in.tanks[shot.OwnerID]
		shooterIsAI := isAI && shooter.Role == protocol.RoleAI
		switch shot.Predicted.Kind {
		case PredictedPlayer:
			if shooterIsAI {
				addReason(out, shot.OwnerID, "hitPlayer", in.weights.HitPlayer)
			}
		case PredictedHQ:
			if shooterIsAI {
				addReason(out, shot.OwnerID, "destroyHQ", in.weights.DestroyHQ)
			}
		case PredictedAI:
			if shot.Predicted.TargetID == shot.OwnerID {
				continue
			}
			if shooterIsAI {
				addReason(out, shot.OwnerID, "hitAlly", in.weights.HitAlly)
			}
			if target, ok := in.tanks[shot.Predicted.TargetID]; ok && target.Role == protocol.RoleAI {
				addReason(out, shot.Predicted.TargetID, "gotHit", in.weights.GotHit)
			}
		case PredictedTileDestructible:
			if shooterIsAI {
				addReason(out, shot.OwnerID, "destructiveShot", in.weights.DestructiveShot)
			}
		case PredictedTileNonDestructible, PredictedNone:
			if shooterIsAI {
				addReason(out, shot.OwnerID, "nonDestructiveShotPenalty", in.weights.NonDestructiveShotPenalty)
			}
		}
	}

	return out
}

func addReason(out map[string]map[string]float64, tankID, reason string, value float64) {
	m, ok := out[tankID]
	if !ok {
		m = make(map[string]float64)
		out[tankID] = m
	}
	m[reason] += value
}

func withinStuckArea(center [2]int, tx, ty int) bool {
	return abs(tx-center[0]) <= 1 && abs(ty-center[1]) <= 1
}

// rayHitsNearestPlayer implements the axis-aligned-ray aim test (design
// note (b): authoritative over the dot-product fallback, since it matches
// bullet physics).
func rayHitsNearestPlayer(grid *mapdata.Grid, tanks map[string]*Tank, t *Tank) bool {
	for id, other := range tanks {
		if id == t.ID || other.Role != protocol.RolePlayer || !other.Alive() {
			continue
		}
		if rayReachesRect(grid, t, other) {
			return true
		}
	}
	return false
}

// rayHitsHQ tests whether the tank's aim ray reaches a player-HQ tile
// without being blocked.
func rayHitsHQ(grid *mapdata.Grid, t *Tank) bool {
	maxRange := grid.MapSize / grid.TileSize
	x, y := t.X, t.Y
	ts := grid.TileSize
	for i := 0; i < maxRange; i++ {
		x += t.DirX * ts
		y += t.DirY * ts
		id, ok := grid.TileAt(x, y)
		if !ok {
			return false
		}
		props, err := mapdata.PropsOf(id)
		if err != nil {
			return false
		}
		if id == mapdata.TilePlayerHQ {
			return true
		}
		if props.BlocksBullet {
			return false
		}
	}
	return false
}

func rayReachesRect(grid *mapdata.Grid, shooter, target *Tank) bool {
	maxRange := grid.MapSize / grid.TileSize
	ts := grid.TileSize
	x, y := shooter.X, shooter.Y
	x0, y0, x1, y1 := target.BoundRect()
	for i := 0; i < maxRange; i++ {
		x += shooter.DirX * ts
		y += shooter.DirY * ts
		id, ok := grid.TileAt(x, y)
		if !ok {
			return false
		}
		if x >= x0 && x <= x1 && y >= y0 && y <= y1 {
			return true
		}
		props, err := mapdata.PropsOf(id)
		if err != nil || props.BlocksBullet {
			return false
		}
	}
	return false
}
