package gbe

import "tankarena/internal/protocol"

// TankOrigin is the fixed top-left tile size a tank's bound rect is offset
// from (§3).
const TankOrigin = 32

// Tank is one tank entity: a player's controlled avatar or an AI-spawned
// opponent. Position and heading are integer pixel coordinates; exactly one
// of DirX/DirY is non-zero at any time.
type Tank struct {
	ID       string
	Label    string
	Role     protocol.Role
	X, Y     int
	DirX     int
	DirY     int
	BoundMin protocol.Offset
	BoundMax protocol.Offset

	Speed         float64
	ShellSize     int
	ShellSpeed    int
	Cooldown      int // ticks between shots
	ShootCooldown int // ticks remaining before next shot allowed

	Health    int
	MaxHealth int

	Respawns int // number of times this tank has respawned so far

	// lastCommand is the most recently drained command, reapplied verbatim
	// under the AI sticky-action policy (§4.1 step 4) and used by player
	// tanks as "last command state" (§4.1 step 3).
	lastCommand protocol.InputMessage
	hasCommand  bool
}

// Alive reports whether the tank has positive health.
func (t *Tank) Alive() bool { return t.Health > 0 }

// BoundRect returns the tank's axis-aligned collision rect in absolute
// pixel coordinates.
func (t *Tank) BoundRect() (x0, y0, x1, y1 int) {
	return t.X + t.BoundMin.X, t.Y + t.BoundMin.Y, t.X + t.BoundMax.X, t.Y + t.BoundMax.Y
}

// Center returns the tank's bound-rect center (the bullet fire-origin,
// §4.1 step 6).
func (t *Tank) Center() (int, int) {
	x0, y0, x1, y1 := t.BoundRect()
	return (x0 + x1) / 2, (y0 + y1) / 2
}

// NewTankFromDef constructs a tank at a spawn point from its definition row.
func NewTankFromDef(id string, def protocol.TankDef, role protocol.Role, x, y int) *Tank {
	return &Tank{
		ID:         id,
		Label:      def.TankLabel,
		Role:       role,
		X:          x,
		Y:          y,
		DirX:       0,
		DirY:       1, // facing down by default, matches a single non-zero axis
		BoundMin:   def.BoundMin,
		BoundMax:   def.BoundMax,
		Speed:      def.Speed,
		ShellSize:  def.ShellSize,
		ShellSpeed: def.ShellSpeed,
		Cooldown:   def.Cooldown,
		Health:     def.TankHitPoint,
		MaxHealth:  def.TankHitPoint,
	}
}

// ApplyDamage subtracts dmg from health, floored at 0.
func (t *Tank) ApplyDamage(dmg int) {
	t.Health -= dmg
	if t.Health < 0 {
		t.Health = 0
	}
}

// Respawn resets health and position, bumping the respawn counter.
func (t *Tank) Respawn(x, y int) {
	t.X, t.Y = x, y
	t.Health = t.MaxHealth
	t.Respawns++
}
