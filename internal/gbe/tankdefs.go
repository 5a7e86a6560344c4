package gbe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tankarena/internal/protocol"
)

// loadTankDefRows reads the tank-definition table (§6) from
// "<dir>/tank_defs.json" as a JSON array, preserving file order.
func loadTankDefRows(dir string) ([]protocol.TankDef, error) {
	path := filepath.Join(dir, "tank_defs.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gbe: read tank defs: %w", err)
	}
	var rows []protocol.TankDef
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("gbe: decode tank defs: %w", err)
	}
	return rows, nil
}

// LoadTankDefs reads the tank-definition table (§6), keyed by label.
func LoadTankDefs(dir string) (map[string]protocol.TankDef, error) {
	rows, err := loadTankDefRows(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]protocol.TankDef, len(rows))
	for _, row := range rows {
		out[row.TankLabel] = row
	}
	return out, nil
}

// firstPlayerDef returns the first player-labeled def in file order, so the
// choice is deterministic across runs regardless of Go's randomized map
// iteration order.
func firstPlayerDef(rows []protocol.TankDef) (protocol.TankDef, bool) {
	for _, d := range rows {
		if d.IsPlayer() {
			return d, true
		}
	}
	return protocol.TankDef{}, false
}

// firstAIDef returns the first AI-labeled def in file order.
func firstAIDef(rows []protocol.TankDef) (protocol.TankDef, bool) {
	for _, d := range rows {
		if d.IsAI() {
			return d, true
		}
	}
	return protocol.TankDef{}, false
}
