package gbe

import (
	"log"
	"time"

	"tankarena/internal/mapdata"
	"tankarena/internal/protocol"
)

// TickObserver, if set, is called with the wall-clock duration of every
// tick step across every session (observability hook; wired to a
// prometheus histogram by the HTTP layer, left nil in tests).
var TickObserver func(time.Duration)

// runLoop drives one session's ticks at the configured interval, applying
// the catch-up policy (§4.1 "Catch-up policy"): it holds a next-tick-time
// and runs up to MaxTickCatchUp ticks per wake while behind, resetting the
// schedule to "now + interval" if it falls further behind than that.
func (r *Registry) runLoop(s *Session) {
	interval := time.Duration(s.EngineCfg.TickMS) * time.Millisecond
	nextTick := time.Now().Add(interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ran := 0
		for time.Now().After(nextTick) && ran < s.EngineCfg.MaxTickCatchUp {
			s.mu.Lock()
			tickStart := time.Now()
			s.tick()
			if TickObserver != nil {
				TickObserver(time.Since(tickStart))
			}
			removed := s.shouldRemove()
			s.mu.Unlock()
			nextTick = nextTick.Add(interval)
			ran++
			if removed {
				r.remove(s.ID)
				return
			}
		}
		if time.Now().After(nextTick) {
			// fell further behind than the catch-up budget allows;
			// resync instead of running an unbounded backlog
			nextTick = time.Now().Add(interval)
		}
		s.mu.Lock()
		noSubs := len(s.Subscribers) == 0 && s.Tick > 0
		s.mu.Unlock()
		if noSubs {
			r.remove(s.ID)
			return
		}
	}
}

func (s *Session) shouldRemove() bool {
	return s.HasScheduledRemoval && s.Tick >= s.ScheduledRemovalTick
}

// tick runs the full thirteen-step tick algorithm (§4.1). Callers must hold
// s.mu.
func (s *Session) tick() {
	s.rng.advanceTick()

	// 1. increment tick (no per-tick byte counters are kept anywhere, so
	// there is nothing to reset)
	s.Tick++
	s.PendingEvents = nil
	s.TileChanges = nil

	// 2. spawn timer
	if !s.GameOver {
		s.SpawnTimer++
		if s.SpawnTimer >= s.EngineCfg.EnemySpawnIntervalTicks && s.aliveAICount() < s.MaxEnemyCount() {
			s.SpawnTimer = 0
			s.spawnAI()
		}
	}

	// 3 & 4. drain inputs
	playerIns, aiIns := s.drainRawInputs()
	// inbound tank ids may be the short ids sent out in snapshots; map
	// those back to full ids (full ids pass through unchanged)
	for i := range playerIns {
		if full, ok := s.IDs.ResolveNetworkID(playerIns[i].TankID); ok {
			playerIns[i].TankID = full
		}
	}
	for i := range aiIns {
		if full, ok := s.IDs.ResolveNetworkID(aiIns[i].TankID); ok {
			aiIns[i].TankID = full
		}
	}
	for _, in := range playerIns {
		if t, ok := s.Tanks[in.TankID]; ok && t.Role == protocol.RolePlayer {
			t.lastCommand = in
			t.hasCommand = true
		}
	}
	for _, in := range aiIns {
		q := s.aiInputQueues[in.TankID]
		s.aiInputQueues[in.TankID] = append(q, in)
		if len(s.aiInputQueues[in.TankID]) > 3 {
			log.Printf("⚠️ gbe: session %s tank %s ai-input queue depth %d", s.ID, in.TankID, len(s.aiInputQueues[in.TankID]))
		}
	}
	for id, t := range s.Tanks {
		if t.Role != protocol.RoleAI {
			continue
		}
		q := s.aiInputQueues[id]
		if len(q) > 0 {
			t.lastCommand = q[0]
			t.hasCommand = true
			s.aiInputQueues[id] = q[1:]
		}
		// sticky action: if queue was empty, lastCommand (if any) is reapplied as-is
	}

	var shots []FiredShot

	// 5 & 6. apply commands: movement then fire
	for id, t := range s.Tanks {
		if !t.Alive() || !t.hasCommand {
			continue
		}
		cmd := t.lastCommand
		didMove := s.applyMove(t, cmd.Move)
		if t.Role == protocol.RoleAI {
			rt := s.AIRuntimes[id]
			if rt != nil {
				if didMove {
					rt.IdleTicks = 0
				} else {
					rt.IdleTicks++
					rt.BlockedMove = true
				}
			}
		}
		if cmd.Fire && t.ShootCooldown == 0 {
			t.ShootCooldown = t.Cooldown
			cx, cy := t.Center()
			maxRange := s.Grid.MapSize / s.Grid.TileSize
			pred := PredictOutcome(s.Grid, s.Tanks, id, cx, cy, t.DirX, t.DirY, t.ShellSpeed, t.ShellSize, maxRange)
			b := &Bullet{
				ID: generateID(), OwnerID: id, X: cx, Y: cy,
				DirX: t.DirX, DirY: t.DirY, Speed: t.ShellSpeed, Radius: t.ShellSize,
				Predicted: pred, firedTick: s.Tick,
			}
			s.Bullets[b.ID] = b
			shots = append(shots, FiredShot{OwnerID: id, Predicted: pred})
			s.PendingEvents = append(s.PendingEvents, protocol.Event{Type: "fx_fire", Tick: s.Tick, TankID: id})
		}
	}

	// 7. step bullets
	for id, b := range s.Bullets {
		outcome := b.Step(s.Grid, s.Tanks, s.Tick)
		if outcome.tileChanged {
			s.TileChanges = append(s.TileChanges, protocol.TileChange{X: outcome.tileX * s.Grid.TileSize, Y: outcome.tileY * s.Grid.TileSize, Tile: int(mapdata.TileSoil)})
			if outcome.hqDestroyed && !s.GameOver {
				s.GameOver = true
				s.GameOverReason = "hq_destroyed"
				s.PendingEvents = append(s.PendingEvents, protocol.Event{Type: "destroy_hq", Tick: s.Tick})
			}
		}
		if outcome.hitTankID != "" {
			if target, ok := s.Tanks[outcome.hitTankID]; ok {
				target.ApplyDamage(b.Radius * 10)
				if !target.Alive() {
					s.handleTankDeath(target)
				}
			}
		}
		if outcome.event != "" {
			s.PendingEvents = append(s.PendingEvents, protocol.Event{Type: outcome.event, Tick: s.Tick, TankID: b.OwnerID})
		}
		if outcome.consumed {
			delete(s.Bullets, id)
		}
	}

	// 8. decrement cooldowns
	for _, t := range s.Tanks {
		if t.ShootCooldown > 0 {
			t.ShootCooldown--
		}
	}

	// 9. reward shaping
	rewards := computeTickRewards(rewardInputs{
		weights: s.Weights, tuning: s.Tuning, grid: s.Grid, tanks: s.Tanks,
		runtime: s.AIRuntimes, shots: shots, tick: s.Tick,
	})
	for tankID, reasons := range rewards {
		accum, ok := s.AIRewardAccum[tankID]
		if !ok {
			accum = make(map[string]float64)
			s.AIRewardAccum[tankID] = accum
		}
		for reason, v := range reasons {
			accum[reason] += v
		}
		s.trackEpisode(tankID, reasons)
	}

	// 10. schedule removal on fresh game-over
	if s.GameOver && !s.HasScheduledRemoval {
		s.HasScheduledRemoval = true
		removalDelay := uint64(ceilDivU(5000, s.EngineCfg.TickMS))
		s.ScheduledRemovalTick = s.Tick + removalDelay
		s.PendingEvents = append(s.PendingEvents, protocol.Event{Type: "game_over", Tick: s.Tick, Payload: map[string]any{"reason": s.GameOverReason}})
	}

	// 11. broadcast state delta
	s.broadcastState()

	// 12. transition broadcast
	s.maybeBroadcastTransition()

	// 13. clear per-tick events/tile updates happens at the top of the next tick;
	// nothing further to clear here since broadcastState already consumed them this tick.
}

func ceilDivU(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// applyMove sets direction then attempts an X-axis step, then a Y-axis
// step, using axis-independent occupancy tests (§4.1 step 5).
func (s *Session) applyMove(t *Tank, move protocol.Move) bool {
	dx, dy := 0, 0
	switch move {
	case protocol.MoveUp:
		dx, dy = 0, -1
	case protocol.MoveDown:
		dx, dy = 0, 1
	case protocol.MoveLeft:
		dx, dy = -1, 0
	case protocol.MoveRight:
		dx, dy = 1, 0
	default:
		return false
	}
	t.DirX, t.DirY = dx, dy

	moved := false
	step := int(t.Speed)
	if step == 0 {
		step = 1
	}
	if dx != 0 {
		nx := t.X + dx*step
		x0, y0, x1, y1 := t.BoundMin.X+nx, t.BoundMin.Y+t.Y, t.BoundMax.X+nx, t.BoundMax.Y+t.Y
		if !s.Grid.RectBlocked(x0, y0, x1, y1) && !s.tankRectBlockedExcept(t, x0, y0, x1, y1) {
			t.X = nx
			moved = true
		}
	}
	if dy != 0 {
		ny := t.Y + dy*step
		x0, y0, x1, y1 := t.BoundMin.X+t.X, t.BoundMin.Y+ny, t.BoundMax.X+t.X, t.BoundMax.Y+ny
		if !s.Grid.RectBlocked(x0, y0, x1, y1) && !s.tankRectBlockedExcept(t, x0, y0, x1, y1) {
			t.Y = ny
			moved = true
		}
	}
	return moved
}

func (s *Session) tankRectBlockedExcept(self *Tank, x0, y0, x1, y1 int) bool {
	for _, t := range s.Tanks {
		if t == self || !t.Alive() {
			continue
		}
		tx0, ty0, tx1, ty1 := t.BoundRect()
		if x0 <= tx1 && x1 >= tx0 && y0 <= ty1 && y1 >= ty0 {
			return true
		}
	}
	return false
}

func (s *Session) handleTankDeath(t *Tank) {
	s.PendingEvents = append(s.PendingEvents, protocol.Event{Type: "tank_destroyed", Tick: s.Tick, TankID: t.ID})
	if t.Role == protocol.RolePlayer {
		if t.Respawns < s.EngineCfg.MaxPlayerRespawns {
			base := s.playerSpawns[0]
			t.Respawn(base.X, base.Y)
			s.PendingEvents = append(s.PendingEvents, protocol.Event{Type: "respawn", Tick: s.Tick, TankID: t.ID})
		} else if !s.GameOver {
			s.GameOver = true
			s.GameOverReason = "player_destroyed"
		}
	} else {
		delete(s.AIRuntimes, t.ID)
	}
}

// broadcastState builds the snapshot, diffs it against lastState, and
// fans it out to every subscriber (§4.1 step 11). A send failure removes
// the subscriber; the engine never retries or reorders (§5).
func (s *Session) broadcastState() {
	snap := s.BuildSnapshot()
	delta := Diff(s.LastSnapshot, snap)
	s.LastSnapshot = snap

	for id, sub := range s.Subscribers {
		perSocket := *delta
		perSocket.GBEDebug = s.attachDebugFrame(sub, true)
		perSocket.AIDebug = s.attachDebugFrame(sub, false)
		if err := sub.Send(protocol.StateEnvelope{Type: "state", State: &perSocket}); err != nil {
			delete(s.Subscribers, id)
		}
	}
}

// maybeBroadcastTransition flushes accumulated rewards and sends a
// transition packet to AI sockets on the configured stride, or
// unconditionally at game-over (§4.1 step 12, design note (a)).
func (s *Session) maybeBroadcastTransition() {
	hasAI := false
	for _, sub := range s.Subscribers {
		if sub.Role == protocol.RoleAI {
			hasAI = true
			break
		}
	}

	stride := s.Tuning.TransitionInterval
	if stride <= 0 {
		stride = 1
	}
	due := s.Tick%uint64(stride) == 0 || s.GameOver

	if !hasAI {
		if s.hadAISubscriberLastTick {
			log.Printf("⚠️ gbe: session %s ai_backend_disconnected at tick %d", s.ID, s.Tick)
		}
		s.hadAISubscriberLastTick = false
		return
	}
	s.hadAISubscriberLastTick = true
	if !due {
		return
	}

	var entries []protocol.RewardEntry
	for tankID, reasons := range s.AIRewardAccum {
		total := 0.0
		for _, v := range reasons {
			total += v
		}
		entry := protocol.RewardEntry{TankID: s.IDs.ToNetworkID(tankID), Reward: total, RewardReasons: reasons}
		if t, ok := s.Tanks[tankID]; ok {
			entry.ShootCooldownTicks = t.ShootCooldown
		}
		if rt, ok := s.AIRuntimes[tankID]; ok {
			entry.IdleTicks = rt.IdleTicks
		}
		entries = append(entries, entry)
	}
	s.AIRewardAccum = make(map[string]map[string]float64)

	msg := protocol.TransitionMessage{
		Type:      "transition",
		PrevState: s.LastTransitionState,
		NextState: s.LastSnapshot,
		AIRewards: entries,
		Tick:      s.Tick,
	}
	s.LastTransitionState = s.LastSnapshot

	for id, sub := range s.Subscribers {
		if sub.Role != protocol.RoleAI {
			continue
		}
		if err := sub.Send(msg); err != nil {
			delete(s.Subscribers, id)
		}
	}
}

// trackEpisode updates the per-tank episode accumulator and, on a
// false->true game-over edge, closes it into the rolling history
// (design notes: rolling window of the 10 most recent closed episodes).
func (s *Session) trackEpisode(tankID string, reasons map[string]float64) {
	acc, ok := s.Episodes[tankID]
	if !ok {
		if s.GameOver {
			// the episode already closed on the edge; none is open again
			// while gameOver stays true
			return
		}
		acc = &episodeAccumulator{startTick: s.Tick}
		s.Episodes[tankID] = acc
	}
	acc.steps++
	for reason, v := range reasons {
		acc.rewardSum += v
		if reason == "hitPlayer" || reason == "destroyHQ" {
			acc.hits++
		}
	}
	if s.GameOver {
		won := s.GameOverReason == "hq_destroyed"
		hist := s.EpisodeHistory[tankID]
		hist = append(hist, episodeRecord{reward: acc.rewardSum, ticks: s.Tick - acc.startTick, won: won})
		if len(hist) > 10 {
			hist = hist[len(hist)-10:]
		}
		s.EpisodeHistory[tankID] = hist
		delete(s.Episodes, tankID)
	}
}
